package types

import "time"

// LogLine is a single raw line read from the monitored log.
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
}

// FilePosition tracks the current read position in a file. Offset is
// monotonically non-decreasing while Inode stays the same; a rotation
// resets it to zero.
type FilePosition struct {
	Path   string `json:"path"`
	Offset int64  `json:"offset"`
	Inode  uint64 `json:"inode"`
}

// PipelineState is the lifecycle state of the log pipeline.
type PipelineState int32

const (
	StateStarting PipelineState = iota
	StateWaitingForFile
	StateRunning
	StateDraining
	StateStopped
)

func (s PipelineState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateWaitingForFile:
		return "waiting_for_file"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
