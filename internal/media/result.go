package media

// Segment は文字起こしの時間揃え済み区間です。
type Segment struct {
	ID    int     `json:"id"`
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcript は文字起こし結果の本文と区間列を保持します。
type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// PipelineResult はパイプライン1回分の最終成果です。
// この構造がそのままキャッシュレコードとして永続化され、応答として返されます。
type PipelineResult struct {
	Message    string     `json:"message"`
	AudioPath  string     `json:"audio_path"`
	Transcript Transcript `json:"transcript"`
	Summary    string     `json:"summary"`
	Notes      string     `json:"notes"`
	Status     string     `json:"status"`
}

// Upload は保存済みアップロードのメタデータです。
type Upload struct {
	Filename string
	Path     string
	Size     int64
}

// StatusResponse は GET /status/<filename> の応答です。
// Step には進捗レコードの段階をそのまま通します。
type StatusResponse struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Step     string `json:"step,omitempty"`
	Error    string `json:"error,omitempty"`
}

const (
	// StatusNotFound は対象アップロードが存在しない場合の応答ステータスです。
	StatusNotFound = "not_found"
	// StatusPending は進捗レコードもキャッシュも無い場合の応答ステータスです。
	StatusPending = "pending"
	// StatusProcessing はいずれかの段階が進行中である場合の応答ステータスです。
	StatusProcessing = "processing"
	// StatusCompleted は処理完了を表します。
	StatusCompleted = "completed"
	// StatusError は処理失敗を表します。
	StatusError = "error"
)
