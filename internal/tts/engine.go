package tts

import "context"

// Request 是一次合成调用的参数。
type Request struct {
	// Text 待合成文本，调用方保证非空。
	Text string
	// Voice 音色标识，具体含义由引擎解释，为空时使用引擎默认音色。
	Voice string
	// Lang BCP-47 风格的语言代码，如 en-us、zh-cn。
	Lang string
	// Speed 语速倍率，1.0 为正常语速。
	Speed float32
}

// Engine 定义语音合成后端接口。
type Engine interface {
	// Synthesize 将文本转换为音频。
	// 返回单声道 float32 音频样本、采样率（Hz）和错误。
	Synthesize(ctx context.Context, req Request) ([]float32, int, error)
}
