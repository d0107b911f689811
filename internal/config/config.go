// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// MaxInputSizeDefault は入力XMLファイルの既定サイズ上限（10MiB）。
const MaxInputSizeDefault = 10 * 1024 * 1024

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// 不動産照会サービス
	RealEstateAPIURL  string
	LookupTimeout     time.Duration
	LookupMaxBodySize int64
	LookupInterval    time.Duration

	// 入出力ファイル
	UploadDir    string
	ResultDir    string
	MaxInputSize int64

	// ワーカー
	WorkerInterval      time.Duration
	WorkerMaxConcurrent int
	WorkerClaimLimit    int

	// クリーンアップ
	TaskRetentionDays int

	// Rate Limit（req/min単位）
	RateLimitGeneral int
	RateLimitUpload  int

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.RealEstateAPIURL = os.Getenv("REAL_ESTATE_API_URL")
	if cfg.RealEstateAPIURL == "" {
		missing = append(missing, "REAL_ESTATE_API_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.LookupTimeout = getEnvDuration("LOOKUP_TIMEOUT", 10*time.Second)
	cfg.LookupMaxBodySize = getEnvInt64("LOOKUP_MAX_BODY_SIZE", 1048576)
	cfg.LookupInterval = getEnvDuration("LOOKUP_INTERVAL", 200*time.Millisecond)
	cfg.UploadDir = getEnvString("UPLOAD_DIR", "runtime/uploads")
	cfg.ResultDir = getEnvString("RESULT_DIR", "runtime/results")
	cfg.MaxInputSize = getEnvInt64("MAX_INPUT_SIZE", MaxInputSizeDefault)
	cfg.WorkerInterval = getEnvDuration("WORKER_INTERVAL", 10*time.Second)
	cfg.WorkerMaxConcurrent = getEnvInt("WORKER_MAX_CONCURRENT", 4)
	cfg.WorkerClaimLimit = getEnvInt("WORKER_CLAIM_LIMIT", 20)
	cfg.TaskRetentionDays = getEnvInt("TASK_RETENTION_DAYS", 30)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitUpload = getEnvInt("RATE_LIMIT_UPLOAD", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
