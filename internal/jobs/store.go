package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/note-forge/internal/media"
)

const (
	jobKeyPrefix = "job:"

	// 楽観ロックの再試行上限。超過は書き込み競合の異常事態として諦める。
	maxUpdateAttempts = 5
)

// Store はジョブ状態を Redis に保存します。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get はジョブ情報を取得します。
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert はジョブ情報を保存します（存在しない場合は作成）。
func (s *Store) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.ExpiresAt.IsZero() && s.ttl > 0 {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, jobKey(record.JobID), payload, s.ttl).Err()
}

// UpdateProgress は進捗を更新します。
func (s *Store) UpdateProgress(ctx context.Context, jobID string, progress ProgressInfo) error {
	return s.updatePartial(ctx, jobID, func(record *Record) {
		record.Progress = progress
	})
}

// MarkRunning はジョブを実行中へ遷移させます。投入時に設定された
// 作成時刻と有効期限は既存レコードの部分更新により保持されます。
func (s *Store) MarkRunning(ctx context.Context, jobID string) error {
	return s.updatePartial(ctx, jobID, markRunning)
}

// MarkDone はジョブ完了時のパイプライン結果を保存します。
func (s *Store) MarkDone(ctx context.Context, jobID string, result *media.PipelineResult) error {
	return s.updatePartial(ctx, jobID, markDone(result))
}

// MarkFailed はジョブ失敗時の情報を保存します。
func (s *Store) MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo) error {
	return s.updatePartial(ctx, jobID, markFailed(errInfo))
}

func markRunning(record *Record) {
	record.Status = StatusRunning
	record.Progress = ProgressInfo{
		Percent: 0,
		Stage:   "converting",
	}
	record.Error = nil
}

func markDone(result *media.PipelineResult) func(*Record) {
	return func(record *Record) {
		record.Status = StatusSucceeded
		record.Progress = ProgressInfo{
			Percent: 100,
			Stage:   "completed",
		}
		record.Result = result
		record.Error = nil
	}
}

func markFailed(errInfo *ErrorInfo) func(*Record) {
	return func(record *Record) {
		record.Status = StatusFailed
		if errInfo != nil {
			record.Error = errInfo
		}
	}
}

// nextRecordPayload は既存レコードのJSONへ部分更新を適用して再符号化します。
// 更新対象以外のフィールド（作成時刻・期限・ファイル名など）はそのまま残ります。
func nextRecordPayload(data []byte, mutate func(*Record)) ([]byte, error) {
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	mutate(&record)
	record.UpdatedAt = time.Now().UTC()
	return json.Marshal(&record)
}

// updatePartial は WATCH による楽観ロックつきの読み出し・変更・書き戻しです。
// 競合した書き込みは TxFailedErr で検出され、再読み出しからやり直します。
func (s *Store) updatePartial(ctx context.Context, jobID string, mutate func(*Record)) error {
	key := jobKey(jobID)
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if err == redis.Nil {
					return fmt.Errorf("job not found: %s", jobID)
				}
				return err
			}
			payload, err := nextRecordPayload(data, mutate)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, s.ttl)
				return nil
			})
			return err
		}, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return fmt.Errorf("job update kept conflicting: %s", jobID)
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
