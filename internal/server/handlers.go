package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/iabetor/ttshub/internal/audio"
	"github.com/iabetor/ttshub/internal/cache"
	"github.com/iabetor/ttshub/internal/logger"
	"github.com/iabetor/ttshub/internal/synth"
)

// SynthesizeRequest POST /api/tts 与 /api/tts/stream 的请求体。
type SynthesizeRequest struct {
	Text   string  `json:"text"`
	Voice  string  `json:"voice,omitempty"`
	Lang   string  `json:"lang,omitempty"`
	Speed  float32 `json:"speed,omitempty"`
	Engine string  `json:"engine,omitempty"`
}

// SynthesizeResponse POST /api/tts 的响应体。
type SynthesizeResponse struct {
	URL        string `json:"url"`
	Engine     string `json:"engine"`
	SampleRate int    `json:"sample_rate"`
	DurationMS int64  `json:"duration_ms"`
	Cached     bool   `json:"cached"`
}

// ErrorResponse 错误响应体。
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse GET /api/health 的响应体。
type HealthResponse struct {
	Status  string               `json:"status"`
	Engines []synth.EngineStatus `json:"engines"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor 把合成错误映射到 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, synth.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, synth.ErrEngineUnavailable):
		return http.StatusServiceUnavailable
	default:
		var le *synth.LoadError
		if errors.As(err, &le) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}

// parseRequest 从 JSON body（POST）或查询参数（GET）解析合成请求。
func (s *Server) parseRequest(r *http.Request) (SynthesizeRequest, error) {
	var req SynthesizeRequest
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errors.New("无效的 JSON 请求体")
		}
		return req, nil
	}
	q := r.URL.Query()
	req.Text = q.Get("text")
	req.Voice = q.Get("voice")
	req.Lang = q.Get("lang")
	req.Engine = q.Get("engine")
	if v := q.Get("speed"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return req, errors.New("speed 参数无效")
		}
		req.Speed = float32(f)
	}
	return req, nil
}

func (s *Server) validate(req SynthesizeRequest) error {
	if n := len([]rune(req.Text)); s.cfg.Server.MaxTextLength > 0 && n > s.cfg.Server.MaxTextLength {
		logger.Warnf("[server] 文本超长: %d > %d", n, s.cfg.Server.MaxTextLength)
		return errors.New("文本超过最大长度限制")
	}
	return nil
}

// handleHealth GET /api/health。
// 只读快照，不触发任何模型加载。
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Engines: s.svc.Registry().Health(),
	})
}

// handleSynthesize POST /api/tts。
// 整段合成，WAV 写入输出目录，返回可下载的 URL。
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := cache.Key(req.Text, req.Voice, req.Lang, req.Speed, req.Engine)
	if name, ok := s.cache.Lookup(key); ok {
		logger.Debugf("[server] 缓存命中: %s", key)
		s.respondFile(w, name, "", true)
		return
	}

	res, err := s.svc.Synthesize(r.Context(), synth.Request{
		Text:   req.Text,
		Voice:  req.Voice,
		Lang:   req.Lang,
		Speed:  req.Speed,
		Engine: req.Engine,
	})
	if err != nil {
		logger.Errorf("[server] 合成失败: %v", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	wav := audio.EncodeWAV(res.Samples, res.SampleRate)

	var name string
	if stored, serr := s.cache.Store(key, res.Engine, wav); serr == nil {
		name = stored
	} else {
		// 缓存禁用或写入失败时直接落盘
		name = uuid.NewString() + ".wav"
		if werr := os.WriteFile(filepath.Join(s.cfg.Server.OutputDir, name), wav, 0644); werr != nil {
			logger.Errorf("[server] 写输出文件失败: %v", werr)
			writeError(w, http.StatusInternalServerError, "写输出文件失败")
			return
		}
	}

	writeJSON(w, http.StatusOK, SynthesizeResponse{
		URL:        "/output/" + name,
		Engine:     res.Engine,
		SampleRate: res.SampleRate,
		DurationMS: audio.Duration(len(res.Samples), res.SampleRate).Milliseconds(),
		Cached:     false,
	})
}

// respondFile 用缓存文件构造响应。
func (s *Server) respondFile(w http.ResponseWriter, name, engine string, cached bool) {
	resp := SynthesizeResponse{URL: "/output/" + name, Engine: engine, Cached: cached}
	if data, err := os.ReadFile(filepath.Join(s.cfg.Server.OutputDir, name)); err == nil {
		if samples, rate, derr := audio.DecodeWAV(data); derr == nil {
			resp.SampleRate = rate
			resp.DurationMS = audio.Duration(len(samples), rate).Milliseconds()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStream GET|POST /api/tts/stream。
// 响应是单个 WAV：一个头部后跟按段产出的 PCM，边合成边下发。
// 头部在首段合成完成后才写出，此前的错误还能以 JSON 返回；
// 首段之后发生的错误只能中断连接。
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := s.svc.NewStream(r.Context(), synth.Request{
		Text:   req.Text,
		Voice:  req.Voice,
		Lang:   req.Lang,
		Speed:  req.Speed,
		Engine: req.Engine,
	})
	if err != nil {
		logger.Errorf("[server] 流式合成失败: %v", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	flusher, _ := w.(http.Flusher)
	headerSent := false
	for {
		chunk, err := st.Next(r.Context())
		if err == io.EOF {
			break
		}
		if err != nil {
			if !headerSent {
				logger.Errorf("[server] 流式合成失败: %v", err)
				writeError(w, statusFor(err), err.Error())
				return
			}
			// 头部已发出，只能中断
			logger.Errorf("[server] 流式合成中断: %v", err)
			return
		}

		if !headerSent {
			w.Header().Set("Content-Type", "audio/wav")
			w.Header().Set("X-TTS-Engine", st.EngineID())
			w.Header().Set("X-TTS-Sample-Rate", strconv.Itoa(chunk.SampleRate))
			if _, err := w.Write(audio.StreamHeader(chunk.SampleRate)); err != nil {
				return
			}
			headerSent = true
		}

		if _, err := w.Write(audio.Float32ToBytes(chunk.Samples)); err != nil {
			logger.Debugf("[server] 客户端断开: %v", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
