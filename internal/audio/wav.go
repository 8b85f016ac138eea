package audio

import (
	"encoding/binary"
	"fmt"
)

// wavHeaderSize 是标准 PCM WAV 文件头的字节数。
const wavHeaderSize = 44

// EncodeWAV 将单声道 float32 样本编码为带 RIFF 头的 16-bit PCM WAV。
// 整段音频只包含一个文件头。
func EncodeWAV(samples []float32, sampleRate int) []byte {
	pcm := Float32ToBytes(samples)
	out := make([]byte, 0, wavHeaderSize+len(pcm))
	out = append(out, wavHeader(uint32(len(pcm)), sampleRate)...)
	return append(out, pcm...)
}

// StreamHeader 返回用于流式响应的 WAV 文件头。
// 总长度事先未知，长度字段按流式约定填 0xFFFFFFFF，
// 后续只追加原始 PCM 字节，不得再出现第二个文件头。
func StreamHeader(sampleRate int) []byte {
	return wavHeader(0xFFFFFFFF-36, sampleRate)
}

// wavHeader 构造 44 字节的 RIFF/WAVE 头（单声道 16-bit PCM）。
func wavHeader(dataSize uint32, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	h := make([]byte, wavHeaderSize)

	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataSize)
	copy(h[8:12], "WAVE")

	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // fmt 块大小
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM 编码
	binary.LittleEndian.PutUint16(h[22:24], channels)
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)

	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataSize)

	return h
}

// ParseWAVHeader 解析 44 字节 WAV 头，返回采样率。
// 仅支持本服务产出的单声道 16-bit PCM 格式。
func ParseWAVHeader(h []byte) (sampleRate int, err error) {
	if len(h) < wavHeaderSize {
		return 0, fmt.Errorf("WAV 头不完整: %d 字节", len(h))
	}
	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" {
		return 0, fmt.Errorf("不是有效的 WAV 数据")
	}
	if binary.LittleEndian.Uint16(h[20:22]) != 1 {
		return 0, fmt.Errorf("不支持的编码格式（仅支持 PCM）")
	}
	if ch := binary.LittleEndian.Uint16(h[22:24]); ch != 1 {
		return 0, fmt.Errorf("不支持的声道数: %d", ch)
	}
	if bits := binary.LittleEndian.Uint16(h[34:36]); bits != 16 {
		return 0, fmt.Errorf("不支持的位深: %d", bits)
	}
	return int(binary.LittleEndian.Uint32(h[24:28])), nil
}

// DecodeWAV 解码本服务产出的单声道 16-bit PCM WAV，返回样本和采样率。
func DecodeWAV(data []byte) ([]float32, int, error) {
	rate, err := ParseWAVHeader(data)
	if err != nil {
		return nil, 0, err
	}
	return BytesToFloat32(data[wavHeaderSize:]), rate, nil
}
