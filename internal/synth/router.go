package synth

import (
	"fmt"
	"strings"

	"github.com/iabetor/ttshub/internal/logger"
)

// EngineAuto 表示由语言路由自动选择引擎。
const EngineAuto = "auto"

// Router 按请求语言在注册表的引擎声明中选路。
// fallback 指定默认引擎不可用时的后备引擎，可为空。
type Router struct {
	reg      *Registry
	fallback string
}

// NewRouter 创建路由器。
func NewRouter(reg *Registry, fallback string) *Router {
	return &Router{reg: reg, fallback: fallback}
}

// Select 决定一次请求使用哪个引擎，返回引擎 ID。
// engineID 非空且非 auto 时为显式指定，跳过语言路由；
// 否则按声明顺序先找语言精确匹配，再找语系前缀匹配（如 en 匹配 en-us），
// 都没有时落到默认引擎。已知加载失败的引擎在路由阶段即被跳过，
// 不会为注定失败的请求触发推理。
func (rt *Router) Select(engineID, lang string) (string, error) {
	if engineID != "" && engineID != EngineAuto {
		return rt.resolve(engineID)
	}

	lang = normalizeLang(lang)
	if lang != "" {
		// 精确匹配
		if id, ok := rt.matchLang(lang, exactMatch); ok {
			return id, nil
		}
		// 语系匹配：en-us 与 en 互通
		if id, ok := rt.matchLang(langFamily(lang), familyMatch); ok {
			logger.Debugf("语言 %s 无精确匹配引擎, 按语系路由到 %s", lang, id)
			return id, nil
		}
		logger.Debugf("语言 %s 没有匹配的引擎, 使用默认引擎", lang)
	}

	return rt.resolve(rt.reg.DefaultID())
}

// resolve 检查目标引擎是否可用，失败时尝试后备引擎。
func (rt *Router) resolve(id string) (string, error) {
	if !rt.reg.Has(id) {
		return "", fmt.Errorf("%w: 引擎 %s 未声明", ErrEngineUnavailable, id)
	}
	if s, _ := rt.reg.StateOf(id); s != StateFailed {
		return id, nil
	}
	if rt.fallback != "" && rt.fallback != id && rt.reg.Has(rt.fallback) {
		if s, _ := rt.reg.StateOf(rt.fallback); s != StateFailed {
			logger.Warnf("引擎 %s 已失败, 切换到后备引擎 %s", id, rt.fallback)
			return rt.fallback, nil
		}
	}
	return "", fmt.Errorf("%w: 引擎 %s 加载失败且无可用后备", ErrEngineUnavailable, id)
}

type matchMode int

const (
	exactMatch matchMode = iota
	familyMatch
)

// matchLang 按声明顺序查找第一个支持该语言且未失败的引擎。
func (rt *Router) matchLang(lang string, mode matchMode) (string, bool) {
	if lang == "" {
		return "", false
	}
	for _, id := range rt.reg.order {
		e := rt.reg.entries[id]
		if s, _ := rt.reg.StateOf(id); s == StateFailed {
			continue
		}
		for _, l := range e.decl.Languages {
			l = normalizeLang(l)
			switch mode {
			case exactMatch:
				if l == lang {
					return id, true
				}
			case familyMatch:
				if langFamily(l) == lang {
					return id, true
				}
			}
		}
	}
	return "", false
}

// normalizeLang 语言标签统一为小写、下划线替换为连字符。
func normalizeLang(lang string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(lang)), "_", "-")
}

// langFamily 取语言标签的主语言部分，如 en-us -> en。
func langFamily(lang string) string {
	if i := strings.IndexByte(lang, '-'); i > 0 {
		return lang[:i]
	}
	return lang
}
