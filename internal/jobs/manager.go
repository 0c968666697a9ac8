// Package jobs は非同期メディア処理ジョブの投入・実行・状態管理を提供します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/yourusername/note-forge/internal/config"
	"github.com/yourusername/note-forge/internal/media"
)

const (
	taskTypeMedia = "media:process"
)

// Manager はジョブの投入と状態管理を担います。
type Manager struct {
	cfg          *config.Config
	client       *asynq.Client
	server       *asynq.Server
	mux          *asynq.ServeMux
	store        *Store
	mediaService *media.Service
	logger       *log.Logger
}

// TaskPayload はメディア処理ジョブのペイロードです。
type TaskPayload struct {
	JobID    string `json:"jobId"`
	Filename string `json:"filename"`
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, mediaService *media.Service, store *Store, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if mediaService == nil {
		return nil, errors.New("mediaService is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				"media": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		cfg:          cfg,
		client:       client,
		server:       server,
		mux:          mux,
		store:        store,
		mediaService: mediaService,
		logger:       logger,
	}
	mux.HandleFunc(taskTypeMedia, manager.handleMediaTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			if m.logger != nil {
				m.logger.Printf("asynq server stopped with error: %v", err)
			} else {
				log.Printf("asynq server stopped with error: %v", err)
			}
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// Enqueue はジョブをキューに投入します。
func (m *Manager) Enqueue(ctx context.Context, payload *TaskPayload) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("payload is nil")
	}
	if payload.JobID == "" {
		return "", fmt.Errorf("payload.JobID is required")
	}
	if payload.Filename == "" {
		return "", fmt.Errorf("payload.Filename is required")
	}

	record := &Record{
		JobID:    payload.JobID,
		Filename: payload.Filename,
		Status:   StatusQueued,
		Progress: ProgressInfo{
			Percent: 0,
			Stage:   "queued",
		},
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(taskTypeMedia, body, asynq.Queue("media"))
	info, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(1))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

func (m *Manager) handleMediaTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload")
	}

	// 投入時のレコードを部分更新で実行中へ遷移させる。
	// 作成時刻と期限を引き継ぐため、新規レコードでの上書きはしない。
	if err := m.store.MarkRunning(ctx, payload.JobID); err != nil {
		return err
	}

	result, err := m.mediaService.RunUpload(ctx, payload.Filename, func(stage string, percent int) {
		_ = m.store.UpdateProgress(ctx, payload.JobID, ProgressInfo{
			Stage:   stage,
			Percent: percent,
		})
	})
	if err != nil {
		return m.failJobWithError(ctx, payload.JobID, err)
	}
	return m.store.MarkDone(ctx, payload.JobID, result)
}

func (m *Manager) failJob(ctx context.Context, jobID, code, message string) error {
	if err := m.store.MarkFailed(ctx, jobID, &ErrorInfo{
		Code:    code,
		Message: message,
	}); err != nil {
		return err
	}
	return nil
}

func (m *Manager) failJobWithError(ctx context.Context, jobID string, err error) error {
	var apiErr *media.Error
	if errors.As(err, &apiErr) {
		return m.failJob(ctx, jobID, apiErr.Code, apiErr.Message)
	}
	return m.failJob(ctx, jobID, "INTERNAL_ERROR", err.Error())
}
