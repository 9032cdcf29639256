// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AI プロバイダーの種類
const (
	AIProviderHTTP    = "http"
	AIProviderBedrock = "bedrock"
	AIProviderNone    = "none"
)

// ストレージバックエンドの種類
const (
	StorageBackendLocal = "local"
	StorageBackendMinio = "minio"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// アプリケーション設定
	SessionSecret string // セッション署名用の秘密鍵
	LogLevel      string // ログレベル (debug, info, warn, error)

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// データベース設定
	DatabaseDriver string // sqlite または postgres
	DatabaseDSN    string // 接続文字列

	// ジョブ/キュー設定
	QueueRedisURL             string // Asynq・ジョブレコード・Pub/Sub 用 Redis 接続URL
	JobRetentionHours         int    // ジョブレコードの保持時間（0 は無期限）
	JobBatchSize              int    // 変更イベントをまとめて処理する最大件数（1以下で個別配信）
	JobBatchGraceSeconds      int    // バッチを締めるまでの待ち時間（秒）
	WorkerConcurrency         int    // ワーカーの並列数
	StoryJobTimeoutSeconds    int    // ストーリー生成ジョブの実行上限（秒）
	TranslationJobTimeoutSecs int    // 翻訳ジョブの実行上限（秒）

	// AI 設定
	AIProvider       string // http, bedrock, none
	AIBaseURL        string // OpenAI 互換エンドポイントのベースURL
	AIAPIKey         string // APIキー
	AIModel          string // モデル名
	AITimeoutSeconds int    // 単一呼び出しのタイムアウト（秒）
	AWSRegion        string // Bedrock 利用時のリージョン
	BedrockModelID   string // Bedrock のモデルID

	// ストレージ設定
	StorageBackend string // local または minio
	StorageDir     string // ローカル保存先
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MaxAvatarBytes int64 // アバター画像の最大サイズ（バイト）

	// メンテナンス設定
	AssignmentArchiveDays int    // 期限切れ課題をアーカイブするまでの日数
	MaintenanceCron       string // 定期メンテナンスの実行スケジュール
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		SessionSecret: getEnv("SESSION_SECRET", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:    getEnv("DATABASE_DSN", "wordnest.db"),

		QueueRedisURL:             getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		JobRetentionHours:         getEnvAsInt("JOB_RETENTION_HOURS", 0),
		JobBatchSize:              getEnvAsInt("JOB_BATCH_SIZE", 10),
		JobBatchGraceSeconds:      getEnvAsInt("JOB_BATCH_GRACE_SECONDS", 2),
		WorkerConcurrency:         getEnvAsInt("WORKER_CONCURRENCY", 4),
		StoryJobTimeoutSeconds:    getEnvAsInt("STORY_JOB_TIMEOUT_SECONDS", 300),
		TranslationJobTimeoutSecs: getEnvAsInt("TRANSLATION_JOB_TIMEOUT_SECONDS", 60),

		AIProvider:       strings.ToLower(getEnv("AI_PROVIDER", AIProviderNone)),
		AIBaseURL:        getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
		AIAPIKey:         getEnv("AI_API_KEY", ""),
		AIModel:          getEnv("AI_MODEL", "gpt-4o-mini"),
		AITimeoutSeconds: getEnvAsInt("AI_TIMEOUT_SECONDS", 60),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		BedrockModelID:   getEnv("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0"),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageBackendLocal)),
		StorageDir:     getEnv("STORAGE_DIR", filepath.Join(os.TempDir(), "wordnest")),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "wordnest-avatars"),
		MinioUseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		MaxAvatarBytes: getEnvAsInt64("MAX_AVATAR_BYTES", 2*1024*1024), // 2MB

		AssignmentArchiveDays: getEnvAsInt("ASSIGNMENT_ARCHIVE_DAYS", 30),
		MaintenanceCron:       getEnv("MAINTENANCE_CRON", "@every 1h"),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	switch c.AIProvider {
	case AIProviderHTTP, AIProviderBedrock, AIProviderNone:
	default:
		return fmt.Errorf("AI_PROVIDER must be http, bedrock or none, got %q", c.AIProvider)
	}
	switch c.StorageBackend {
	case StorageBackendLocal, StorageBackendMinio:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be local or minio, got %q", c.StorageBackend)
	}

	// ローカル開発では秘密情報は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required in release mode")
		}
		if c.AIProvider == AIProviderHTTP && c.AIAPIKey == "" {
			return fmt.Errorf("AI_API_KEY is required when AI_PROVIDER=http in release mode")
		}
		if c.StorageBackend == StorageBackendMinio && (c.MinioAccessKey == "" || c.MinioSecretKey == "") {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required in release mode")
		}
	}

	return nil
}

// JobRetention はジョブレコードの保持期間を返します（0 は無期限）。
func (c *Config) JobRetention() time.Duration {
	if c.JobRetentionHours <= 0 {
		return 0
	}
	return time.Duration(c.JobRetentionHours) * time.Hour
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
