package watcher

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// BuildEvent 一次重新生成的结果
type BuildEvent struct {
	Trigger   string `json:"trigger"`
	Timestamp int64  `json:"timestamp"`
	Attempts  int    `json:"attempts"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}
