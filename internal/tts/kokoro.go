package tts

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/iabetor/ttshub/internal/logger"
)

// KokoroEngine 封装 sherpa-onnx 的 Kokoro-82M 离线合成模型。
// 模型加载开销大（数百 MB 权重），由注册表负责惰性创建；
// sherpa 的 OfflineTts 不是并发安全的，推理调用由互斥锁串行化。
type KokoroEngine struct {
	tts          *sherpa.OfflineTts
	speakers     map[string]int
	defaultVoice string
	mu           sync.Mutex // 串行化对 OfflineTts 的访问
}

// KokoroConfig Kokoro 引擎参数。
type KokoroConfig struct {
	Model   string // kokoro model.onnx 路径
	Voices  string // voices.bin 路径
	Tokens  string // tokens.txt 路径
	DataDir string // espeak-ng-data 目录
	Lexicon string // 可选的 lexicon 文件
	// Provider 推理后端: cpu 或 cuda。
	Provider   string
	NumThreads int
	// Speakers 音色名到 speaker id 的映射，如 af_sarah -> 0。
	Speakers map[string]int
	// DefaultVoice 未指定音色时使用的音色名。
	DefaultVoice string
}

// NewKokoroEngine 创建并加载 Kokoro 引擎。
// 加载在当前调用中同步完成，耗时会被记录。
func NewKokoroEngine(cfg KokoroConfig) (*KokoroEngine, error) {
	for _, p := range []string{cfg.Model, cfg.Voices, cfg.Tokens} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("[tts] kokoro 模型文件不存在: %s", p)
		}
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "cpu"
	}
	numThreads := cfg.NumThreads
	if numThreads <= 0 {
		numThreads = 2
	}

	logger.Infof("[tts] kokoro: 正在加载模型 (provider=%s, threads=%d)...", provider, numThreads)
	start := time.Now()

	ttsCfg := sherpa.OfflineTtsConfig{}
	ttsCfg.Model.Kokoro.Model = cfg.Model
	ttsCfg.Model.Kokoro.Voices = cfg.Voices
	ttsCfg.Model.Kokoro.Tokens = cfg.Tokens
	ttsCfg.Model.Kokoro.DataDir = cfg.DataDir
	ttsCfg.Model.Kokoro.Lexicon = cfg.Lexicon
	ttsCfg.Model.NumThreads = numThreads
	ttsCfg.Model.Provider = provider
	ttsCfg.Model.Debug = 0
	// Kokoro 只支持单句输入，切分由上层 chunker 负责
	ttsCfg.MaxNumSentences = 1

	t := sherpa.NewOfflineTts(&ttsCfg)
	if t == nil {
		return nil, fmt.Errorf("[tts] kokoro 模型加载失败: %s", cfg.Model)
	}

	logger.Infof("[tts] kokoro: 模型加载完成，耗时 %v", time.Since(start))

	speakers := cfg.Speakers
	if len(speakers) == 0 {
		speakers = map[string]int{"af_sarah": 0}
	}
	defaultVoice := cfg.DefaultVoice
	if defaultVoice == "" {
		defaultVoice = "af_sarah"
	}

	return &KokoroEngine{
		tts:          t,
		speakers:     speakers,
		defaultVoice: defaultVoice,
	}, nil
}

// Synthesize 将文本合成为单声道 float32 音频样本。
func (e *KokoroEngine) Synthesize(ctx context.Context, req Request) ([]float32, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sid := e.resolveSpeaker(req.Voice)
	speed := req.Speed
	if speed <= 0 {
		speed = 1.0
	}

	logger.Debugf("[tts] kokoro: 正在合成 %d 个字符，voice=%s sid=%d speed=%.2f",
		len([]rune(req.Text)), req.Voice, sid, speed)
	start := time.Now()

	audio := e.tts.Generate(req.Text, sid, speed)
	if audio == nil || len(audio.Samples) == 0 {
		return nil, 0, fmt.Errorf("[tts] kokoro 合成失败: 未生成音频")
	}

	logger.Debugf("[tts] kokoro: 生成 %d 个样本，耗时 %v", len(audio.Samples), time.Since(start))

	return audio.Samples, int(audio.SampleRate), nil
}

// resolveSpeaker 将音色名解析为 speaker id，未知音色退回默认音色。
func (e *KokoroEngine) resolveSpeaker(voice string) int {
	if voice == "" {
		voice = e.defaultVoice
	}
	if sid, ok := e.speakers[voice]; ok {
		return sid
	}
	logger.Warnf("[tts] kokoro: 未知音色 %s，使用默认音色 %s", voice, e.defaultVoice)
	return e.speakers[e.defaultVoice]
}

// Close 释放模型资源。
func (e *KokoroEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tts != nil {
		sherpa.DeleteOfflineTts(e.tts)
		e.tts = nil
	}
}
