// Package storage はアバター画像などのバイナリを保存するストレージ抽象化レイヤーを提供します。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/yourusername/wordnest/internal/config"
)

// ErrNotFound は指定したキーのオブジェクトが存在しないことを表します。
var ErrNotFound = errors.New("object not found")

// Storage はキー単位でオブジェクトを保存・取得します。
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, key string) error
}

// New は設定に応じたストレージを作成します。
func New(ctx context.Context, cfg *config.Config) (Storage, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendLocal, "":
		return NewLocal(cfg.StorageDir)
	case config.StorageBackendMinio:
		return NewMinio(ctx,
			WithEndpoint(cfg.MinioEndpoint),
			WithBucket(cfg.MinioBucket),
			WithAccessKey(cfg.MinioAccessKey),
			WithSecretKey(cfg.MinioSecretKey),
			WithSSL(cfg.MinioUseSSL),
		)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.StorageBackend)
	}
}

// cleanKey はキーを正規化し、保存先の外を指すキーを拒否します。
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("storage key is required")
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("invalid storage key: %q", key)
	}
	return cleaned, nil
}
