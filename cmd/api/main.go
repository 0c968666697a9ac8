// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/note-forge/internal/cache"
	"github.com/yourusername/note-forge/internal/chat"
	"github.com/yourusername/note-forge/internal/config"
	"github.com/yourusername/note-forge/internal/llm"
	"github.com/yourusername/note-forge/internal/media"
	"github.com/yourusername/note-forge/internal/status"
	"github.com/yourusername/note-forge/internal/storage"
	"github.com/yourusername/note-forge/internal/transcode"
	"github.com/yourusername/note-forge/internal/transcribe"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	router.Use(cors.New(corsConfig))

	svc, err := buildMediaService(cfg)
	if err != nil {
		log.Fatalf("Failed to build media service: %v", err)
	}

	chatService := chat.NewService(cfg.OpenAIAPIKey, cfg.OpenAIModel, log.Default())

	// ルーティングの設定
	if err := setupRoutes(router, cfg, svc, chatService); err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// buildMediaService は設定からパイプライン一式を組み立てます。
func buildMediaService(cfg *config.Config) (*media.Service, error) {
	store, err := storage.NewLocal(cfg.UploadDir, cfg.OutputDir)
	if err != nil {
		return nil, err
	}

	resultCache, err := cache.New(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	textCache := cache.NewTextCache(filepath.Join(cfg.CacheDir, "llm"))

	tracker := status.NewTracker(status.NewFileStore())

	llmClient := llm.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, textCache, log.Default())
	collab := media.Collaborators{
		Transcoder:  transcode.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath, tracker, log.Default()),
		Transcriber: transcribe.NewWhisper(cfg.WhisperPath, cfg.WhisperModelPath),
		Summarizer:  llmClient,
		Notes:       llmClient,
	}

	return media.NewService(cfg, store, resultCache, tracker, collab, log.Default())
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "running",
	})
}

// setupRoutes は公開エンドポイントとジョブAPIの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, svc *media.Service, chatService *chat.Service) error {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	opts := media.HandlerOptions{
		AsyncThresholdBytes: cfg.AsyncThresholdBytes,
	}

	// ジョブキューは Redis が設定されている場合のみ有効化する
	if cfg.QueueRedisURL != "" {
		manager, err := setupJobs(cfg, svc)
		if err != nil {
			return err
		}
		manager.StartWorkers()
		opts.Scheduler = &mediaJobScheduler{manager: manager}

		api := router.Group("/api")
		{
			jobRoutes := api.Group("/jobs")
			{
				jobRoutes.GET("/:id", jobStatusHandler(manager))
				jobRoutes.GET("/:id/result", jobResultHandler(manager))
			}
		}
	}

	router.POST("/upload", media.UploadHandler(svc, opts))
	router.GET("/status/:filename", media.StatusHandler(svc))

	chatRoutes := router.Group("/chat")
	{
		chatRoutes.POST("/process", chat.ProcessHandler(chatService))
		chatRoutes.POST("/ask", chat.AskHandler(chatService))
		chatRoutes.POST("/delete", chat.DeleteHandler(chatService))
	}
	return nil
}
