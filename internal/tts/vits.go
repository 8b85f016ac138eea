package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/iabetor/ttshub/internal/logger"
)

// VitsEngine 封装 sherpa-onnx 的 VITS 离线合成模型，
// 用于加载 Meta MMS-TTS 的单语言模型（处理 Kokoro 不覆盖的语言）。
// 每个语言一个独立的 VitsEngine 实例，按需加载。
type VitsEngine struct {
	tts  *sherpa.OfflineTts
	lang string
	mu   sync.Mutex // 串行化对 OfflineTts 的访问
}

// VitsConfig VITS 引擎参数。
type VitsConfig struct {
	// ModelDir 模型目录，须包含 model.onnx 和 tokens.txt。
	ModelDir string
	// Lang 该模型对应的语言代码（仅用于日志）。
	Lang       string
	Provider   string
	NumThreads int
}

// NewVitsEngine 创建并加载 VITS 引擎。
func NewVitsEngine(cfg VitsConfig) (*VitsEngine, error) {
	modelPath := filepath.Join(cfg.ModelDir, "model.onnx")
	tokensPath := filepath.Join(cfg.ModelDir, "tokens.txt")
	for _, p := range []string{modelPath, tokensPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("[tts] vits 模型文件不存在: %s", p)
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

	logger.Infof("[tts] vits(%s): 正在加载模型 %s (provider=%s)...", cfg.Lang, cfg.ModelDir, provider)
	start := time.Now()

	ttsCfg := sherpa.OfflineTtsConfig{}
	ttsCfg.Model.Vits.Model = modelPath
	ttsCfg.Model.Vits.Tokens = tokensPath
	ttsCfg.Model.Vits.NoiseScale = 0.667
	ttsCfg.Model.Vits.NoiseScaleW = 0.8
	ttsCfg.Model.Vits.LengthScale = 1.0
	// MMS 模型自带字素前端，data_dir/lexicon 留空
	ttsCfg.Model.NumThreads = numThreads
	ttsCfg.Model.Provider = provider
	ttsCfg.Model.Debug = 0
	ttsCfg.MaxNumSentences = 1

	t := sherpa.NewOfflineTts(&ttsCfg)
	if t == nil {
		return nil, fmt.Errorf("[tts] vits 模型加载失败: %s", modelPath)
	}

	logger.Infof("[tts] vits(%s): 模型加载完成，耗时 %v", cfg.Lang, time.Since(start))

	return &VitsEngine{tts: t, lang: cfg.Lang}, nil
}

// Synthesize 将文本合成为单声道 float32 音频样本。
// MMS 模型为单说话人模型，忽略 req.Voice。
func (e *VitsEngine) Synthesize(ctx context.Context, req Request) ([]float32, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	speed := req.Speed
	if speed <= 0 {
		speed = 1.0
	}

	logger.Debugf("[tts] vits(%s): 正在合成 %d 个字符，speed=%.2f",
		e.lang, len([]rune(req.Text)), speed)

	audio := e.tts.Generate(req.Text, 0, speed)
	if audio == nil || len(audio.Samples) == 0 {
		return nil, 0, fmt.Errorf("[tts] vits(%s) 合成失败: 未生成音频", e.lang)
	}

	return audio.Samples, int(audio.SampleRate), nil
}

// Close 释放模型资源。
func (e *VitsEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tts != nil {
		sherpa.DeleteOfflineTts(e.tts)
		e.tts = nil
	}
}
