package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/iabetor/ttshub/internal/logger"
)

// Player 使用 malgo (miniaudio) 管理音频播放。
type Player struct {
	ctx      *malgo.AllocatedContext
	channels uint32
	mu       sync.Mutex
	closed   bool
}

// NewPlayer 创建一个新的音频播放实例。
// channels: 声道数，通常为 1（单声道）
func NewPlayer(channels int) (*Player, error) {
	ctxConfig := malgo.ContextConfig{}
	ctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("初始化播放上下文失败: %w", err)
	}

	return &Player{
		ctx:      ctx,
		channels: uint32(channels),
	}, nil
}

// Play 通过默认扬声器播放 float32 音频样本。
// sampleRate 参数指定音频数据的采样率，播放设备将按此采样率播放。
// 阻塞直到播放完成或 ctx 被取消。
func (p *Player) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}
	return p.PlayReader(ctx, bytes.NewReader(Float32ToBytes(samples)), sampleRate)
}

// PlayReader 边读边播：从 r 中按需读取 16-bit LE 单声道 PCM 字节并播放，
// 读到 io.EOF 且缓冲播完后返回。用于流式合成的低延迟试听。
func (p *Player) PlayReader(ctx context.Context, r io.Reader, sampleRate int) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("播放器已关闭")
	}
	p.mu.Unlock()

	buf := &pcmBuffer{}
	readErr := make(chan error, 1)

	// 后台读取：网络/管道速度与设备回调解耦
	go func() {
		chunk := make([]byte, 4096)
		for {
			n, err := r.Read(chunk)
			if n > 0 {
				buf.Append(chunk[:n])
			}
			if err != nil {
				buf.Finish()
				if err == io.EOF {
					readErr <- nil
				} else {
					readErr <- err
				}
				return
			}
		}
	}()

	done := make(chan struct{})

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = p.channels
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInFrames = 512
	deviceConfig.Periods = 2

	callbacks := malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, frameCount uint32) {
			bytesNeeded := int(frameCount) * int(p.channels) * 2 // 每个 int16 采样点 2 字节
			n, drained := buf.Drain(outputSamples[:bytesNeeded])
			// 数据不够时剩余部分填零（静音）
			for i := n; i < bytesNeeded; i++ {
				outputSamples[i] = 0
			}
			if drained {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		},
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("初始化播放设备失败: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("启动播放设备失败: %w", err)
	}
	defer device.Stop()

	select {
	case <-ctx.Done():
		logger.Info("[audio] 播放被取消")
		return ctx.Err()
	case <-done:
		logger.Info("[audio] 播放完成")
		return <-readErr
	}
}

// Close 释放所有资源。
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}

// pcmBuffer 是生产者追加、设备回调消费的 PCM 字节缓冲。
type pcmBuffer struct {
	mu       sync.Mutex
	data     []byte
	pos      int
	finished bool
}

// Append 追加待播放的 PCM 字节。
func (b *pcmBuffer) Append(chunk []byte) {
	b.mu.Lock()
	b.data = append(b.data, chunk...)
	b.mu.Unlock()
}

// Finish 标记不再有新数据。
func (b *pcmBuffer) Finish() {
	b.mu.Lock()
	b.finished = true
	b.mu.Unlock()
}

// Drain 将缓冲数据拷贝到 out，返回拷贝字节数，
// 以及是否已播完（生产结束且缓冲耗尽）。
func (b *pcmBuffer) Drain(out []byte) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := copy(out, b.data[b.pos:])
	b.pos += n
	return n, b.finished && b.pos >= len(b.data)
}
