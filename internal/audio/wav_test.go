package audio

import (
	"encoding/binary"
	"testing"
)

func TestEncodeWAV_Header(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1.0}
	data := EncodeWAV(samples, 24000)

	if len(data) != 44+len(samples)*2 {
		t.Fatalf("total size = %d, want %d", len(data), 44+len(samples)*2)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE magic")
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != 24000 {
		t.Errorf("sample rate = %d, want 24000", got)
	}
	if got := binary.LittleEndian.Uint16(data[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint16(data[34:36]); got != 16 {
		t.Errorf("bits per sample = %d, want 16", got)
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != uint32(len(samples)*2) {
		t.Errorf("data size = %d, want %d", got, len(samples)*2)
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); got != uint32(36+len(samples)*2) {
		t.Errorf("riff size = %d, want %d", got, 36+len(samples)*2)
	}
}

func TestEncodeWAV_SingleHeaderOnly(t *testing.T) {
	// 拼接两段样本后编码，结果中只允许出现一个 RIFF 头
	part1 := []float32{0.1, 0.2, 0.3}
	part2 := []float32{0.4, 0.5}
	all := append(append([]float32{}, part1...), part2...)
	data := EncodeWAV(all, 22050)

	count := 0
	for i := 0; i+4 <= len(data); i++ {
		if string(data[i:i+4]) == "RIFF" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("found %d RIFF headers, want exactly 1", count)
	}
}

func TestDecodeWAV_RoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.99, -0.99}
	out, rate, err := DecodeWAV(EncodeWAV(in, 16000))
	if err != nil {
		t.Fatalf("DecodeWAV returned error: %v", err)
	}
	if rate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", rate)
	}
	if len(out) != len(in) {
		t.Fatalf("sample count = %d, want %d", len(out), len(in))
	}
	for i := range in {
		diff := out[i] - in[i]
		if diff < 0 {
			diff = -diff
		}
		// int16 量化误差
		if diff > 1.0/32767*2 {
			t.Errorf("index %d: got %f, want %f", i, out[i], in[i])
		}
	}
}

func TestStreamHeader(t *testing.T) {
	h := StreamHeader(24000)
	if len(h) != 44 {
		t.Fatalf("header size = %d, want 44", len(h))
	}
	rate, err := ParseWAVHeader(h)
	if err != nil {
		t.Fatalf("ParseWAVHeader returned error: %v", err)
	}
	if rate != 24000 {
		t.Errorf("sample rate = %d, want 24000", rate)
	}
	// 流式约定：RIFF 长度字段为最大值
	if got := binary.LittleEndian.Uint32(h[4:8]); got != 0xFFFFFFFF {
		t.Errorf("riff size = %#x, want 0xFFFFFFFF", got)
	}
}

func TestParseWAVHeader_Invalid(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"too short", []byte("RIFF")},
		{"bad magic", make([]byte, 44)},
	}
	for _, c := range cases {
		if _, err := ParseWAVHeader(c.data); err == nil {
			t.Errorf("%s: expected error", c.name)
		}
	}
}
