package synth

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyText 表示请求文本为空（或仅含空白），在任何引擎工作开始前拒绝。
	ErrEmptyText = errors.New("合成文本为空")
	// ErrEngineUnavailable 表示请求的引擎或默认引擎不存在、或已永久失败且无兜底。
	ErrEngineUnavailable = errors.New("合成引擎不可用")
)

// LoadError 表示引擎首次加载失败。
// 对该引擎是终态错误，会被缓存并原样返回给后续所有调用方。
type LoadError struct {
	EngineID string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("引擎 %s 加载失败: %v", e.EngineID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// InferenceError 表示某一次具体的合成调用失败。
// 只影响当前请求：流式响应提前终止，非流式响应整体失败。
type InferenceError struct {
	EngineID string
	// Index 失败单元的序号（流式块序号）。
	Index int
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("引擎 %s 合成第 %d 块失败: %v", e.EngineID, e.Index, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
