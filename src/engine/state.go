package engine

// State 周期状态
type State int32

const (
	StateIdle State = iota
	StateFetchingData
	StateSignaling
	StateSizing
	StateExecuting
	StateReconciling
)

// String 返回字符串表示
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateFetchingData:
		return "FetchingData"
	case StateSignaling:
		return "Signaling"
	case StateSizing:
		return "Sizing"
	case StateExecuting:
		return "Executing"
	case StateReconciling:
		return "Reconciling"
	default:
		return "Unknown"
	}
}
