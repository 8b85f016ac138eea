package synth

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iabetor/ttshub/internal/logger"
	"github.com/iabetor/ttshub/internal/tts"
)

// Request 一次合成请求。Engine 为空或 auto 时按语言自动选路。
type Request struct {
	Text   string
	Voice  string
	Lang   string
	Speed  float32
	Engine string
}

// Chunk 合成流中的一段音频。
// Index 从 0 开始连续递增；Last 在最后一段上为 true。
type Chunk struct {
	Samples    []float32
	SampleRate int
	Index      int
	Last       bool
}

// Result 非流式合成的完整结果。
type Result struct {
	Samples    []float32
	SampleRate int
	Engine     string
}

// Service 合成服务：组合注册表、路由和切分，对外提供流式与整段两种接口。
type Service struct {
	reg         *Registry
	router      *Router
	maxChunkLen int

	defaultVoice string
	defaultLang  string
	defaultSpeed float32
}

// ServiceOptions Service 的可选参数。
type ServiceOptions struct {
	MaxChunkLen  int
	DefaultVoice string
	DefaultLang  string
	DefaultSpeed float32
}

// NewService 创建合成服务。
func NewService(reg *Registry, router *Router, opts ServiceOptions) *Service {
	if opts.MaxChunkLen <= 0 {
		opts.MaxChunkLen = DefaultMaxChunkLen
	}
	if opts.DefaultSpeed <= 0 {
		opts.DefaultSpeed = 1.0
	}
	return &Service{
		reg:          reg,
		router:       router,
		maxChunkLen:  opts.MaxChunkLen,
		defaultVoice: opts.DefaultVoice,
		defaultLang:  opts.DefaultLang,
		defaultSpeed: opts.DefaultSpeed,
	}
}

// Registry 返回底层注册表（健康检查用）。
func (s *Service) Registry() *Registry { return s.reg }

// Stream 逐段合成的拉取式音频流。
// 每次 Next 对应一个文本单元的推理，调用方拿到一段就可以立即下发，
// 不必等整篇文本完成。
type Stream struct {
	engine   tts.Engine
	engineID string
	req      Request
	units    []string

	next int
	rate int // 首段之后固定，用于一致性检查
	err  error
}

// Next 返回流中的下一段音频。
// 流结束返回 io.EOF；任何一段推理失败后流终止，后续调用重复同一错误。
// ctx 取消只在段边界生效，已提交给引擎的推理会完整执行，
// 避免中断原生推理库留下不一致状态。
func (st *Stream) Next(ctx context.Context) (Chunk, error) {
	if st.err != nil {
		return Chunk{}, st.err
	}
	if st.next >= len(st.units) {
		st.err = io.EOF
		return Chunk{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		st.err = err
		return Chunk{}, err
	}

	idx := st.next
	unit := st.units[idx]

	start := time.Now()
	samples, rate, err := st.engine.Synthesize(context.WithoutCancel(ctx), tts.Request{
		Text:  unit,
		Voice: st.req.Voice,
		Lang:  st.req.Lang,
		Speed: st.req.Speed,
	})
	if err != nil {
		st.err = &InferenceError{EngineID: st.engineID, Index: idx, Err: err}
		return Chunk{}, st.err
	}
	logger.Debugf("引擎 %s 合成第 %d 段: %d 字符 -> %d 样本, 耗时 %v",
		st.engineID, idx, len([]rune(unit)), len(samples), time.Since(start))

	if st.rate == 0 {
		st.rate = rate
	} else if rate != st.rate {
		st.err = &InferenceError{
			EngineID: st.engineID,
			Index:    idx,
			Err:      fmt.Errorf("采样率不一致: 首段 %d, 当前段 %d", st.rate, rate),
		}
		return Chunk{}, st.err
	}

	st.next++
	return Chunk{
		Samples:    samples,
		SampleRate: rate,
		Index:      idx,
		Last:       st.next >= len(st.units),
	}, nil
}

// EngineID 返回本次流实际使用的引擎。
func (st *Stream) EngineID() string { return st.engineID }

// NewStream 选路、确保引擎就绪并切分文本，返回可拉取的合成流。
// 路由和加载失败在这里返回，不会产生半截的流。
func (s *Service) NewStream(ctx context.Context, req Request) (*Stream, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	s.applyDefaults(&req)

	id, err := s.router.Select(req.Engine, req.Lang)
	if err != nil {
		return nil, err
	}
	engine, err := s.reg.EnsureReady(id)
	if err != nil {
		// 首次加载失败：若有后备引擎则重新选路一次
		id2, rerr := s.router.Select(req.Engine, req.Lang)
		if rerr != nil || id2 == id {
			return nil, err
		}
		logger.Warnf("引擎 %s 加载失败, 改用 %s: %v", id, id2, err)
		id = id2
		if engine, rerr = s.reg.EnsureReady(id); rerr != nil {
			return nil, rerr
		}
	}

	units := Split(req.Text, s.maxChunkLen)
	logger.Infof("合成请求: 引擎=%s 语言=%s 音色=%s 语速=%.2f, 文本 %d 字符切分为 %d 段",
		id, req.Lang, req.Voice, req.Speed, len([]rune(req.Text)), len(units))

	return &Stream{engine: engine, engineID: id, req: req, units: units}, nil
}

// Synthesize 整段合成：内部走同一条流式管线，把所有段拼接后返回。
func (s *Service) Synthesize(ctx context.Context, req Request) (*Result, error) {
	st, err := s.NewStream(ctx, req)
	if err != nil {
		return nil, err
	}

	var samples []float32
	rate := 0
	for {
		chunk, err := st.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		samples = append(samples, chunk.Samples...)
		rate = chunk.SampleRate
	}
	return &Result{Samples: samples, SampleRate: rate, Engine: st.EngineID()}, nil
}

func (s *Service) applyDefaults(req *Request) {
	if req.Voice == "" {
		req.Voice = s.defaultVoice
	}
	if req.Lang == "" {
		req.Lang = s.defaultLang
	}
	if req.Speed <= 0 {
		req.Speed = s.defaultSpeed
	}
}
