package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:           "wordnest",
	Short:         "WordNest API server and background workers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with embedded workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the generation workers and maintenance scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd.Context())
	},
}
