package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 是 ttshub 的顶层配置结构。
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Engines   EnginesConfig   `yaml:"engines"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig HTTP 服务配置。
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// OutputDir 合成结果 WAV 文件的输出目录，通过 /output/ 对外提供。
	OutputDir string `yaml:"output_dir"`
	// MaxTextLength 单次请求允许的最大文本长度（rune 数）。
	MaxTextLength int `yaml:"max_text_length"`
}

// SynthesisConfig 合成编排配置。
type SynthesisConfig struct {
	// MaxChunkLen 文本切分的最大单元长度（rune 数）。
	// 值越小首块音频延迟越低，但每次推理的固定开销被支付得更频繁。
	MaxChunkLen  int     `yaml:"max_chunk_len"`
	DefaultVoice string  `yaml:"default_voice"`
	DefaultLang  string  `yaml:"default_lang"`
	DefaultSpeed float32 `yaml:"default_speed"`
}

// EnginesConfig 各合成引擎的声明与参数。
// 只有配置了必要参数的引擎才会被声明到注册表。
type EnginesConfig struct {
	// Default 默认引擎 id，语言路由无匹配时使用。
	Default string `yaml:"default"`
	// Fallback 显式指定的引擎加载失败时的兜底引擎 id，为空则不兜底。
	Fallback string        `yaml:"fallback"`
	Kokoro   KokoroConfig  `yaml:"kokoro"`
	MMS      MMSConfig     `yaml:"mms"`
	Edge     EdgeConfig    `yaml:"edge"`
	Piper    PiperConfig   `yaml:"piper"`
	Say      SayConfig     `yaml:"say"`
	Tencent  TencentConfig `yaml:"tencent"`
}

// KokoroConfig Kokoro-82M（sherpa-onnx）引擎配置。
type KokoroConfig struct {
	Model   string `yaml:"model"`
	Voices  string `yaml:"voices"`
	Tokens  string `yaml:"tokens"`
	DataDir string `yaml:"data_dir"`
	Lexicon string `yaml:"lexicon"`
	// Provider 推理后端: cpu 或 cuda。
	Provider   string `yaml:"provider"`
	NumThreads int    `yaml:"num_threads"`
	// Speakers 音色名到 speaker id 的映射，如 af_sarah: 0。
	Speakers map[string]int `yaml:"speakers"`
	// Languages 该引擎声明支持的语言代码。
	Languages []string `yaml:"languages"`
}

// MMSConfig Meta MMS（VITS/sherpa-onnx）多语言引擎配置。
// 每个语言对应一个独立模型目录，按语言惰性加载。
type MMSConfig struct {
	// Models 语言代码到模型目录的映射，目录内须有 model.onnx 和 tokens.txt。
	Models     map[string]string `yaml:"models"`
	Provider   string            `yaml:"provider"`
	NumThreads int               `yaml:"num_threads"`
}

// EdgeConfig 微软 Edge TTS 引擎配置。
type EdgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Voice   string `yaml:"voice"`
	// Languages 声明支持的语言代码；Edge 按音色决定实际语言。
	Languages []string `yaml:"languages"`
}

// PiperConfig Piper CLI 引擎配置。
type PiperConfig struct {
	ModelPath string   `yaml:"model_path"`
	Languages []string `yaml:"languages"`
}

// SayConfig macOS say 引擎配置（仅 macOS 可用）。
type SayConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Voice     string   `yaml:"voice"`
	Languages []string `yaml:"languages"`
}

// TencentConfig 腾讯云 TTS 引擎配置。
type TencentConfig struct {
	SecretID  string   `yaml:"secret_id"`
	SecretKey string   `yaml:"secret_key"`
	VoiceType int64    `yaml:"voice_type"`
	Region    string   `yaml:"region"`
	Languages []string `yaml:"languages"`
}

// CacheConfig 合成结果缓存配置。
type CacheConfig struct {
	// MaxSizeMB 缓存目录的大小上限（MB），0 表示禁用缓存。
	MaxSizeMB int64 `yaml:"max_size_mb"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	// 展开环境变量，如 ${TTSHUB_TENCENT_SECRET_KEY}
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8879"
	}
	if cfg.Server.OutputDir == "" {
		cfg.Server.OutputDir = "./output"
	}
	if cfg.Server.MaxTextLength == 0 {
		cfg.Server.MaxTextLength = 4096
	}
	if cfg.Synthesis.MaxChunkLen == 0 {
		cfg.Synthesis.MaxChunkLen = 200
	}
	if cfg.Synthesis.DefaultVoice == "" {
		cfg.Synthesis.DefaultVoice = "af_sarah"
	}
	if cfg.Synthesis.DefaultLang == "" {
		cfg.Synthesis.DefaultLang = "en-us"
	}
	if cfg.Synthesis.DefaultSpeed == 0 {
		cfg.Synthesis.DefaultSpeed = 1.0
	}
	if cfg.Engines.Kokoro.Provider == "" {
		cfg.Engines.Kokoro.Provider = "cpu"
	}
	if cfg.Engines.Kokoro.NumThreads == 0 {
		cfg.Engines.Kokoro.NumThreads = 2
	}
	if len(cfg.Engines.Kokoro.Languages) == 0 {
		cfg.Engines.Kokoro.Languages = []string{"en", "en-us", "en-gb"}
	}
	if cfg.Engines.MMS.Provider == "" {
		cfg.Engines.MMS.Provider = "cpu"
	}
	if cfg.Engines.MMS.NumThreads == 0 {
		cfg.Engines.MMS.NumThreads = 2
	}
	if cfg.Engines.Edge.Voice == "" {
		cfg.Engines.Edge.Voice = "en-US-AriaNeural"
	}
	if cfg.Engines.Tencent.Region == "" {
		cfg.Engines.Tencent.Region = "ap-guangzhou"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// 去除密钥两端可能的空白（环境变量展开后常见）
	cfg.Engines.Tencent.SecretID = strings.TrimSpace(cfg.Engines.Tencent.SecretID)
	cfg.Engines.Tencent.SecretKey = strings.TrimSpace(cfg.Engines.Tencent.SecretKey)
}
