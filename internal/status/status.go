// Package status は実行中ジョブの進捗レコードを管理します。
// レコードは出力パスをキーとして保存され、変換を実行するプロセスが書き込み、
// 別のリクエストがポーリングで読み取ります。プロセス間の共有はストレージ
// バックエンド経由のみで、読み書きは常にレコード全体の置き換えです。
package status

// Stage はパイプラインの進行段階を表します。
type Stage string

const (
	StageConverting   Stage = "converting"
	StageTranscribing Stage = "transcribing"
	StageSummarizing  Stage = "summarizing"
	StageCompleted    Stage = "completed"
	StageError        Stage = "error"
)

// Record は1ジョブの現在状態を表します。
type Record struct {
	Status   Stage  `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

// Store はレコードの保存先を抽象化します。既定はステータスファイルですが、
// put/get の2操作に限定することでバックエンドを差し替え可能にしています。
type Store interface {
	// Put はキーに対応する値を丸ごと置き換えます。
	Put(key string, value []byte) error
	// Get はキーに対応する値を返します。存在しない場合は ok=false を返します。
	Get(key string) (value []byte, ok bool, err error)
}
