package synth

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/iabetor/ttshub/internal/config"
	"github.com/iabetor/ttshub/internal/tts"
)

// BuildDeclarations 把配置翻译为引擎声明。
// 只声明配置齐全的引擎，声明本身不触发模型加载。
func BuildDeclarations(cfg *config.Config) []Declaration {
	var decls []Declaration

	if kc := cfg.Engines.Kokoro; kc.Model != "" {
		kc := kc
		decls = append(decls, Declaration{
			ID:        "kokoro",
			Languages: kc.Languages,
			New: func() (tts.Engine, error) {
				return tts.NewKokoroEngine(tts.KokoroConfig{
					Model:        kc.Model,
					Voices:       kc.Voices,
					Tokens:       kc.Tokens,
					DataDir:      kc.DataDir,
					Lexicon:      kc.Lexicon,
					Provider:     kc.Provider,
					NumThreads:   kc.NumThreads,
					Speakers:     kc.Speakers,
					DefaultVoice: cfg.Synthesis.DefaultVoice,
				})
			},
		})
	}

	// MMS 每个语言一个独立引擎，按语言惰性加载各自的模型
	if mc := cfg.Engines.MMS; len(mc.Models) > 0 {
		langs := make([]string, 0, len(mc.Models))
		for lang := range mc.Models {
			langs = append(langs, lang)
		}
		sort.Strings(langs)
		for _, lang := range langs {
			lang, dir := lang, mc.Models[lang]
			decls = append(decls, Declaration{
				ID:        "mms-" + lang,
				Languages: []string{lang},
				New: func() (tts.Engine, error) {
					return tts.NewVitsEngine(tts.VitsConfig{
						ModelDir:   dir,
						Lang:       lang,
						Provider:   mc.Provider,
						NumThreads: mc.NumThreads,
					})
				},
			})
		}
	}

	if ec := cfg.Engines.Edge; ec.Enabled {
		voice := ec.Voice
		decls = append(decls, Declaration{
			ID:        "edge",
			Languages: ec.Languages,
			New: func() (tts.Engine, error) {
				return tts.NewEdgeEngine(voice), nil
			},
		})
	}

	if pc := cfg.Engines.Piper; pc.ModelPath != "" {
		path := pc.ModelPath
		decls = append(decls, Declaration{
			ID:        "piper",
			Languages: pc.Languages,
			New: func() (tts.Engine, error) {
				return tts.NewPiperEngine(path)
			},
		})
	}

	if sc := cfg.Engines.Say; sc.Enabled {
		voice := sc.Voice
		decls = append(decls, Declaration{
			ID:        "say",
			Languages: sc.Languages,
			New: func() (tts.Engine, error) {
				if runtime.GOOS != "darwin" {
					return nil, fmt.Errorf("say 引擎仅在 macOS 可用, 当前系统: %s", runtime.GOOS)
				}
				return tts.NewSayEngine(voice), nil
			},
		})
	}

	if tc := cfg.Engines.Tencent; tc.SecretID != "" && tc.SecretKey != "" {
		tc := tc
		decls = append(decls, Declaration{
			ID:        "tencent",
			Languages: tc.Languages,
			New: func() (tts.Engine, error) {
				return tts.NewTencentEngine(tts.TencentConfig{
					SecretID:  tc.SecretID,
					SecretKey: tc.SecretKey,
					VoiceType: tc.VoiceType,
					Region:    tc.Region,
				})
			},
		})
	}

	// 配置指定了默认引擎时打上标记，未指定时第一个声明即默认
	if cfg.Engines.Default != "" {
		for i := range decls {
			if decls[i].ID == cfg.Engines.Default {
				decls[i].Default = true
				break
			}
		}
	}

	return decls
}
