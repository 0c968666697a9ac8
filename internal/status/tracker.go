package status

import (
	"encoding/json"
	"fmt"
)

// Tracker はジョブ状態レコードの書き込みと読み取りを提供します。
type Tracker struct {
	store Store
}

// NewTracker は指定バックエンドを使う Tracker を作成します。
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

func (t *Tracker) write(key string, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode status record: %w", err)
	}
	return t.store.Put(key, payload)
}

// Begin はキーのレコードを「変換中・進捗0」で作成（または上書き）します。
func (t *Tracker) Begin(key string) error {
	return t.write(key, Record{Status: StageConverting, Progress: 0})
}

// Tick は変換の進捗を更新します。進捗は [0,100] に丸められ、
// 同一の変換中レコードに対して減少することはありません。
func (t *Tracker) Tick(key string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	if current, ok := t.Read(key); ok && current.Status == StageConverting && current.Progress > progress {
		progress = current.Progress
	}
	return t.write(key, Record{Status: StageConverting, Progress: progress})
}

// Advance は進捗値を保ったまま段階のみを進めます。
func (t *Tracker) Advance(key string, stage Stage) error {
	progress := 0
	if current, ok := t.Read(key); ok {
		progress = current.Progress
	}
	return t.write(key, Record{Status: stage, Progress: progress})
}

// Complete はレコードを「完了・進捗100」にします。
func (t *Tracker) Complete(key string) error {
	return t.write(key, Record{Status: StageCompleted, Progress: 100})
}

// Fail はレコードを失敗状態にし、エラーメッセージを記録します。
func (t *Tracker) Fail(key, message string) error {
	return t.write(key, Record{Status: StageError, Progress: 0, Error: message})
}

// Read はキーのレコードを返します。レコードが存在しない場合や、書き換えと
// 競合して内容が壊れて見える場合は不在として扱います（ベストエフォート）。
func (t *Tracker) Read(key string) (*Record, bool) {
	data, ok, err := t.store.Get(key)
	if err != nil || !ok {
		return nil, false
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, false
	}
	return &record, true
}
