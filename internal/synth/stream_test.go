package synth

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/iabetor/ttshub/internal/tts"
)

// countingEngine 每个文本单元产出与字符数成正比的样本，便于校验拼接。
type countingEngine struct {
	rate    int
	failAt  int // 第 N 次调用返回错误，-1 表示不失败
	calls   int
	badRate bool // 第二次起返回不同采样率
}

func (e *countingEngine) Synthesize(ctx context.Context, req tts.Request) ([]float32, int, error) {
	e.calls++
	if e.failAt >= 0 && e.calls > e.failAt {
		return nil, 0, errors.New("推理失败")
	}
	rate := e.rate
	if e.badRate && e.calls > 1 {
		rate = e.rate * 2
	}
	samples := make([]float32, len([]rune(req.Text)))
	for i := range samples {
		samples[i] = float32(e.calls)
	}
	return samples, rate, nil
}

func newTestService(t *testing.T, maxChunkLen int, eng tts.Engine) *Service {
	t.Helper()
	reg, err := NewRegistry([]Declaration{{
		ID:        "fake",
		Languages: []string{"en"},
		Default:   true,
		New:       func() (tts.Engine, error) { return eng, nil },
	}})
	if err != nil {
		t.Fatal(err)
	}
	return NewService(reg, NewRouter(reg, ""), ServiceOptions{
		MaxChunkLen:  maxChunkLen,
		DefaultLang:  "en",
		DefaultSpeed: 1.0,
	})
}

func TestStream_ChunkOrdering(t *testing.T) {
	eng := &countingEngine{rate: 16000, failAt: -1}
	svc := newTestService(t, 6, eng)

	st, err := svc.NewStream(context.Background(), Request{Text: "Hello. World. Again."})
	if err != nil {
		t.Fatal(err)
	}

	var chunks []Chunk
	for {
		c, err := st.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		chunks = append(chunks, c)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.SampleRate != 16000 {
			t.Errorf("chunk %d has sample rate %d", i, c.SampleRate)
		}
		wantLast := i == len(chunks)-1
		if c.Last != wantLast {
			t.Errorf("chunk %d: Last = %v, want %v", i, c.Last, wantLast)
		}
	}

	// 流结束后重复返回 io.EOF
	if _, err := st.Next(context.Background()); err != io.EOF {
		t.Errorf("expected io.EOF after stream end, got %v", err)
	}
}

func TestSynthesize_MatchesStreamConcat(t *testing.T) {
	text := "One sentence. Another one. A third."
	mk := func() *Service {
		return newTestService(t, 10, &countingEngine{rate: 22050, failAt: -1})
	}

	res, err := mk().Synthesize(context.Background(), Request{Text: text})
	if err != nil {
		t.Fatal(err)
	}

	st, err := mk().NewStream(context.Background(), Request{Text: text})
	if err != nil {
		t.Fatal(err)
	}
	var streamed []float32
	for {
		c, err := st.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		streamed = append(streamed, c.Samples...)
	}

	if len(res.Samples) != len(streamed) {
		t.Fatalf("full synthesis produced %d samples, streaming %d", len(res.Samples), len(streamed))
	}
	for i := range streamed {
		if res.Samples[i] != streamed[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, res.Samples[i], streamed[i])
		}
	}
	if res.SampleRate != 22050 {
		t.Errorf("expected sample rate 22050, got %d", res.SampleRate)
	}
	if res.Engine != "fake" {
		t.Errorf("expected engine 'fake', got %q", res.Engine)
	}
}

func TestStream_MidStreamFailure(t *testing.T) {
	eng := &countingEngine{rate: 16000, failAt: 1}
	svc := newTestService(t, 6, eng)

	st, err := svc.NewStream(context.Background(), Request{Text: "Hello. World."})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := st.Next(context.Background()); err != nil {
		t.Fatalf("first chunk should succeed: %v", err)
	}
	_, err = st.Next(context.Background())
	var ie *InferenceError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InferenceError, got %v", err)
	}
	if ie.Index != 1 {
		t.Errorf("expected failure at chunk 1, got %d", ie.Index)
	}
	// 失败后流终止，重复同一错误
	if _, err2 := st.Next(context.Background()); !errors.Is(err2, err) && err2.Error() != err.Error() {
		t.Errorf("stream should repeat the terminal error, got %v", err2)
	}
}

func TestStream_SampleRateMismatch(t *testing.T) {
	eng := &countingEngine{rate: 16000, failAt: -1, badRate: true}
	svc := newTestService(t, 6, eng)

	st, err := svc.NewStream(context.Background(), Request{Text: "Hello. World."})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.Next(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Next(context.Background()); err == nil {
		t.Fatal("expected error on sample rate change mid-stream")
	}
}

func TestStream_EmptyText(t *testing.T) {
	svc := newTestService(t, 6, &countingEngine{rate: 16000, failAt: -1})
	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := svc.NewStream(context.Background(), Request{Text: text}); !errors.Is(err, ErrEmptyText) {
			t.Errorf("text %q: expected ErrEmptyText, got %v", text, err)
		}
	}
}

func TestStream_Cancellation(t *testing.T) {
	eng := &countingEngine{rate: 16000, failAt: -1}
	svc := newTestService(t, 6, eng)

	st, err := svc.NewStream(context.Background(), Request{Text: "Hello. World. Again."})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := st.Next(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	if _, err := st.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled at chunk boundary, got %v", err)
	}
	if eng.calls != 1 {
		t.Errorf("no inference should start after cancellation, engine called %d times", eng.calls)
	}
}

func TestStream_FailedEngineNoInference(t *testing.T) {
	reg, err := NewRegistry([]Declaration{{
		ID:        "broken",
		Languages: []string{"en"},
		Default:   true,
		New:       func() (tts.Engine, error) { return nil, errors.New("模型缺失") },
	}})
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(reg, NewRouter(reg, ""), ServiceOptions{DefaultLang: "en"})

	if _, err := svc.NewStream(context.Background(), Request{Text: "hello"}); err == nil {
		t.Fatal("expected error for failed engine")
	}
	// 失败已缓存，再次请求直接拒绝
	_, err = svc.NewStream(context.Background(), Request{Text: "hello"})
	if !errors.Is(err, ErrEngineUnavailable) {
		var le *LoadError
		if !errors.As(err, &le) {
			t.Errorf("expected unavailable or load error, got %v", err)
		}
	}
}

func TestStream_DefaultsApplied(t *testing.T) {
	var got tts.Request
	reg, err := NewRegistry([]Declaration{{
		ID:        "capture",
		Languages: []string{"en"},
		Default:   true,
		New: func() (tts.Engine, error) {
			return engineFunc(func(ctx context.Context, req tts.Request) ([]float32, int, error) {
				got = req
				return []float32{0}, 16000, nil
			}), nil
		},
	}})
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(reg, NewRouter(reg, ""), ServiceOptions{
		DefaultVoice: "af_sarah",
		DefaultLang:  "en-us",
		DefaultSpeed: 1.2,
	})

	if _, err := svc.Synthesize(context.Background(), Request{Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	if got.Voice != "af_sarah" || got.Lang != "en-us" || got.Speed != 1.2 {
		t.Errorf("defaults not applied, engine saw %+v", got)
	}
}

// engineFunc 函数式引擎适配器。
type engineFunc func(ctx context.Context, req tts.Request) ([]float32, int, error)

func (f engineFunc) Synthesize(ctx context.Context, req tts.Request) ([]float32, int, error) {
	return f(ctx, req)
}
