// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ディレクトリ設定
	UploadDir string // アップロードされた動画の保存先
	OutputDir string // 変換した音声と進捗ファイルの保存先
	CacheDir  string // パイプライン結果キャッシュの保存先

	// ファイル制限
	MaxFileSize int64 // 単一ファイルの最大サイズ（バイト）

	// ジョブ/キュー設定
	QueueRedisURL       string // Asynq用Redis接続URL
	AsyncThresholdBytes int64  // 同期処理から非同期へ切り替えるサイズ閾値
	JobExpireMinutes    int    // ジョブレコードの有効期限（分）

	// メディア処理設定
	FFmpegPath            string // ffmpeg実行ファイルのパス
	FFprobePath           string // ffprobe実行ファイルのパス
	WhisperPath           string // whisper.cpp実行ファイルのパス
	WhisperModelPath      string // whisperモデルファイルのパス
	ConvertTimeoutMinutes int    // 変換処理の上限時間（分）

	// OpenAI設定
	OpenAIAPIKey string // APIキー（必須。欠落時は起動エラー）
	OpenAIModel  string // ノート生成に使用するモデル名
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "5001"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// ディレクトリ設定
		UploadDir: getEnv("UPLOAD_DIR", "uploads"),
		OutputDir: getEnv("OUTPUT_DIR", "outputs"),
		CacheDir:  getEnv("CACHE_DIR", "cache"),

		// ファイル制限
		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 2147483648), // 2GB

		// ジョブ/キュー設定
		// 未設定の場合はジョブキューを無効化し、同期処理のみで動作する
		QueueRedisURL:       getEnv("QUEUE_REDIS_URL", ""),
		AsyncThresholdBytes: getEnvAsInt64("ASYNC_THRESHOLD_BYTES", 200*1024*1024), // 200MB
		JobExpireMinutes:    getEnvAsInt("JOB_EXPIRE_MINUTES", 60),

		// メディア処理設定
		FFmpegPath:            getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:           getEnv("FFPROBE_PATH", "ffprobe"),
		WhisperPath:           getEnv("WHISPER_PATH", "whisper-cli"),
		WhisperModelPath:      getEnv("WHISPER_MODEL_PATH", "models/ggml-base.bin"),
		ConvertTimeoutMinutes: getEnvAsInt("CONVERT_TIMEOUT_MINUTES", 30),

		// OpenAI設定
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4"),
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
	// APIキーはリクエスト単位ではなく起動時に検証する
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if c.ConvertTimeoutMinutes <= 0 {
		return fmt.Errorf("CONVERT_TIMEOUT_MINUTES must be positive")
	}

	// 本番環境では外部コマンドとキューの設定も厳格にチェックする
	if c.GinMode == "release" {
		if c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required in release mode")
		}
		if c.FFmpegPath == "" {
			return fmt.Errorf("FFMPEG_PATH is required in release mode")
		}
		if c.WhisperPath == "" {
			return fmt.Errorf("WHISPER_PATH is required in release mode")
		}
		if c.WhisperModelPath == "" {
			return fmt.Errorf("WHISPER_MODEL_PATH is required in release mode")
		}
	}

	return nil
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
