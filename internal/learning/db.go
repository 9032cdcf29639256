package learning

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	sharedOnce sync.Once
	sharedDB   *gorm.DB
	sharedErr  error
)

// Open はドライバー名に応じたデータベース接続を開きます。
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		// SQLite は同時書き込みに弱いため接続を 1 本に絞る
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Shared はプロセス全体で共有する接続を初回呼び出し時に開いて返します。
// 2 回目以降の引数は無視されます。
func Shared(driver, dsn string) (*gorm.DB, error) {
	sharedOnce.Do(func() {
		sharedDB, sharedErr = Open(driver, dsn)
	})
	return sharedDB, sharedErr
}

// Migrate はテーブルを作成・更新します。
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(allModels()...)
}
