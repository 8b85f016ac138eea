package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/iabetor/ttshub/internal/audio"
	"github.com/iabetor/ttshub/internal/logger"
)

// piperSampleRate 是 piper 输出的固定采样率。
const piperSampleRate = 22050

// PiperEngine 使用 piper CLI 子进程实现语音合成，作为离线备用方案。
type PiperEngine struct {
	modelPath string
}

// NewPiperEngine 创建指定模型的 Piper TTS 引擎。
// 返回错误当 piper 可执行文件不在 PATH 中。
func NewPiperEngine(modelPath string) (*PiperEngine, error) {
	if _, err := exec.LookPath("piper"); err != nil {
		return nil, fmt.Errorf("[tts] 未找到 piper 可执行文件: %w", err)
	}
	return &PiperEngine{modelPath: modelPath}, nil
}

// Synthesize 使用 piper CLI 将文本转换为单声道 float32 音频样本。
// piper 输出 signed 16-bit LE 单声道 PCM，采样率 22050 Hz。
// req.Voice 非空时作为 --speaker 序号传入（多说话人模型）。
func (p *PiperEngine) Synthesize(ctx context.Context, req Request) ([]float32, int, error) {
	logger.Debugf("[tts] piper: 正在合成 %d 个字符，模型=%s", len([]rune(req.Text)), p.modelPath)

	args := []string{"--model", p.modelPath, "--output-raw"}
	if req.Voice != "" {
		if _, err := strconv.Atoi(req.Voice); err == nil {
			args = append(args, "--speaker", req.Voice)
		} else {
			logger.Warnf("[tts] piper: 音色须为 speaker 序号，忽略 %q", req.Voice)
		}
	}
	if req.Speed > 0 && req.Speed != 1.0 {
		// piper 用 length_scale 控制语速，与倍率互为倒数
		args = append(args, "--length_scale", fmt.Sprintf("%.3f", 1.0/req.Speed))
	}

	cmd := exec.CommandContext(ctx, "piper", args...)
	cmd.Stdin = bytes.NewReader([]byte(req.Text))

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := stderr.String()
		if stderrStr != "" {
			logger.Warnf("[tts] piper stderr: %s", stderrStr)
		}
		return nil, 0, fmt.Errorf("[tts] piper 执行失败: %w", err)
	}

	pcmData := stdout.Bytes()

	if len(pcmData) == 0 {
		return nil, 0, fmt.Errorf("[tts] piper: 未收到音频数据")
	}

	logger.Debugf("[tts] piper: 收到 %d 字节原始 PCM", len(pcmData))

	// 将 signed 16-bit LE 单声道 PCM 字节转换为 float32 样本
	samples := audio.BytesToFloat32(pcmData)

	return samples, piperSampleRate, nil
}
