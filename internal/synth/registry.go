package synth

import (
	"fmt"
	"sync"
	"time"

	"github.com/iabetor/ttshub/internal/logger"
	"github.com/iabetor/ttshub/internal/tts"
)

// Declaration 描述一个可用引擎：ID、支持的语言、以及惰性构造函数。
// 构造函数只在第一次请求命中该引擎时执行。
type Declaration struct {
	ID        string
	Languages []string
	Default   bool
	New       func() (tts.Engine, error)
}

// entry 注册表内部的引擎条目。
// loadMu 保证构造函数全局只执行一次；statusMu 保护状态读写。
type entry struct {
	decl Declaration

	loadMu sync.Mutex

	statusMu sync.RWMutex
	state    State
	engine   tts.Engine
	loadErr  error
	loadDur  time.Duration
	loadedAt time.Time
}

// EngineStatus 单个引擎的健康快照。
type EngineStatus struct {
	ID         string   `json:"id"`
	Languages  []string `json:"languages"`
	Default    bool     `json:"default"`
	State      string   `json:"state"`
	LoadMillis int64    `json:"load_millis,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Registry 按声明顺序管理全部引擎，负责惰性加载与状态跟踪。
type Registry struct {
	order     []string
	entries   map[string]*entry
	defaultID string
}

// NewRegistry 根据声明构建注册表。此时不加载任何模型。
// 标记 Default 的声明成为默认引擎，未标记时取第一个声明。
func NewRegistry(decls []Declaration) (*Registry, error) {
	if len(decls) == 0 {
		return nil, fmt.Errorf("没有可用的引擎声明")
	}
	r := &Registry{entries: make(map[string]*entry, len(decls))}
	for _, d := range decls {
		if d.New == nil {
			return nil, fmt.Errorf("引擎 %s 缺少构造函数", d.ID)
		}
		if _, ok := r.entries[d.ID]; ok {
			return nil, fmt.Errorf("引擎 ID 重复: %s", d.ID)
		}
		r.entries[d.ID] = &entry{decl: d, state: StateUnloaded}
		r.order = append(r.order, d.ID)
		if d.Default && r.defaultID == "" {
			r.defaultID = d.ID
		}
	}
	if r.defaultID == "" {
		r.defaultID = r.order[0]
	}
	return r, nil
}

// DefaultID 返回默认引擎的 ID。
func (r *Registry) DefaultID() string { return r.defaultID }

// Has 判断引擎是否已声明。
func (r *Registry) Has(id string) bool {
	_, ok := r.entries[id]
	return ok
}

// StateOf 返回引擎当前状态；未声明的引擎返回 StateUnloaded 和 false。
func (r *Registry) StateOf(id string) (State, bool) {
	e, ok := r.entries[id]
	if !ok {
		return StateUnloaded, false
	}
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.state, true
}

// EnsureReady 返回可用的引擎实例，必要时触发一次性加载。
// 并发请求同一未加载引擎时只有一个执行构造，其余等待同一结果；
// 加载失败会被缓存，后续请求直接得到同一错误而不再重试。
func (r *Registry) EnsureReady(id string) (tts.Engine, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: 引擎 %s 未声明", ErrEngineUnavailable, id)
	}

	// 快路径：已就绪或已失败
	e.statusMu.RLock()
	switch e.state {
	case StateReady:
		eng := e.engine
		e.statusMu.RUnlock()
		return eng, nil
	case StateFailed:
		err := e.loadErr
		e.statusMu.RUnlock()
		return nil, err
	}
	e.statusMu.RUnlock()

	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	// 二次检查：等待期间可能已有人完成加载
	e.statusMu.RLock()
	switch e.state {
	case StateReady:
		eng := e.engine
		e.statusMu.RUnlock()
		return eng, nil
	case StateFailed:
		err := e.loadErr
		e.statusMu.RUnlock()
		return nil, err
	}
	e.statusMu.RUnlock()

	e.statusMu.Lock()
	e.state = StateLoading
	e.statusMu.Unlock()

	logger.Infof("开始加载引擎: %s", id)
	start := time.Now()
	eng, err := e.decl.New()
	dur := time.Since(start)

	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	e.loadDur = dur
	if err != nil {
		e.state = StateFailed
		e.loadErr = &LoadError{EngineID: id, Err: err}
		logger.Errorf("引擎 %s 加载失败 (耗时 %v): %v", id, dur, err)
		return nil, e.loadErr
	}
	e.state = StateReady
	e.engine = eng
	e.loadedAt = time.Now()
	logger.Infof("引擎 %s 加载完成, 耗时 %v", id, dur)
	return eng, nil
}

// Health 返回所有引擎的状态快照，按声明顺序排列。
// 只读操作，不触发任何加载。
func (r *Registry) Health() []EngineStatus {
	out := make([]EngineStatus, 0, len(r.order))
	for _, id := range r.order {
		e := r.entries[id]
		e.statusMu.RLock()
		s := EngineStatus{
			ID:        id,
			Languages: e.decl.Languages,
			Default:   id == r.defaultID,
			State:     e.state.String(),
		}
		if e.state == StateReady || e.state == StateFailed {
			s.LoadMillis = e.loadDur.Milliseconds()
		}
		if e.loadErr != nil {
			s.Error = e.loadErr.Error()
		}
		e.statusMu.RUnlock()
		out = append(out, s)
	}
	return out
}

// Close 释放所有已加载引擎占用的资源。
func (r *Registry) Close() {
	for _, id := range r.order {
		e := r.entries[id]
		e.statusMu.Lock()
		if e.state == StateReady {
			if c, ok := e.engine.(interface{ Close() }); ok {
				c.Close()
			}
			e.engine = nil
			e.state = StateUnloaded
		}
		e.statusMu.Unlock()
	}
}
