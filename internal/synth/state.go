package synth

// State 表示引擎适配器的就绪状态。
// 状态只沿 Unloaded -> Loading -> {Ready | Failed} 单向迁移，
// 每个引擎在进程生命周期内最多经历一次 Loading。
type State int

const (
	// StateUnloaded — 已声明但模型尚未加载。
	StateUnloaded State = iota
	// StateLoading — 首次使用触发的加载正在进行。
	StateLoading
	// StateReady — 加载完成，可以合成。
	StateReady
	// StateFailed — 加载失败，本进程内不再重试。
	StateFailed
)

var stateNames = [...]string{
	"unloaded",
	"loading",
	"ready",
	"failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
