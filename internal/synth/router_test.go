package synth

import (
	"errors"
	"testing"
)

func newTestRouter(t *testing.T, fallback string, decls ...Declaration) (*Registry, *Router) {
	t.Helper()
	r, err := NewRegistry(decls)
	if err != nil {
		t.Fatal(err)
	}
	return r, NewRouter(r, fallback)
}

func TestSelect_ExplicitEngine(t *testing.T) {
	_, rt := newTestRouter(t, "",
		decl("kokoro", []string{"en-us"}, true, &fakeEngine{}, nil),
		decl("edge", []string{"zh-cn"}, false, &fakeEngine{}, nil),
	)
	id, err := rt.Select("edge", "en-us")
	if err != nil {
		t.Fatal(err)
	}
	if id != "edge" {
		t.Errorf("explicit engine should bypass language routing, got %q", id)
	}
}

func TestSelect_ExplicitUndeclared(t *testing.T) {
	_, rt := newTestRouter(t, "", decl("kokoro", []string{"en"}, true, &fakeEngine{}, nil))
	if _, err := rt.Select("ghost", ""); !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("expected ErrEngineUnavailable, got %v", err)
	}
}

func TestSelect_ExactLanguageMatch(t *testing.T) {
	_, rt := newTestRouter(t, "",
		decl("kokoro", []string{"en", "en-us"}, true, &fakeEngine{}, nil),
		decl("mms-fra", []string{"fra"}, false, &fakeEngine{}, nil),
	)
	tests := []struct {
		lang string
		want string
	}{
		{"en-us", "kokoro"},
		{"EN-US", "kokoro"},
		{"en_US", "kokoro"},
		{"fra", "mms-fra"},
	}
	for _, tt := range tests {
		id, err := rt.Select("", tt.lang)
		if err != nil {
			t.Fatalf("lang %q: %v", tt.lang, err)
		}
		if id != tt.want {
			t.Errorf("lang %q: expected engine %q, got %q", tt.lang, tt.want, id)
		}
	}
}

func TestSelect_FamilyMatch(t *testing.T) {
	_, rt := newTestRouter(t, "",
		decl("zh", []string{"zh-cn"}, false, &fakeEngine{}, nil),
		decl("en", []string{"en-us"}, true, &fakeEngine{}, nil),
	)
	// zh 无精确匹配，应按语系落到 zh-cn 的引擎
	id, err := rt.Select("auto", "zh")
	if err != nil {
		t.Fatal(err)
	}
	if id != "zh" {
		t.Errorf("expected family match to engine 'zh', got %q", id)
	}
}

func TestSelect_UnknownLanguageFallsToDefault(t *testing.T) {
	_, rt := newTestRouter(t, "",
		decl("a", []string{"en"}, false, &fakeEngine{}, nil),
		decl("b", []string{"zh"}, true, &fakeEngine{}, nil),
	)
	id, err := rt.Select("", "sw")
	if err != nil {
		t.Fatal(err)
	}
	if id != "b" {
		t.Errorf("unknown language should route to default engine, got %q", id)
	}
}

func TestSelect_EmptyLanguageUsesDefault(t *testing.T) {
	_, rt := newTestRouter(t, "",
		decl("a", []string{"en"}, false, &fakeEngine{}, nil),
		decl("b", []string{"zh"}, true, &fakeEngine{}, nil),
	)
	id, err := rt.Select("", "")
	if err != nil {
		t.Fatal(err)
	}
	if id != "b" {
		t.Errorf("empty language should route to default engine, got %q", id)
	}
}

func TestSelect_SkipsFailedEngines(t *testing.T) {
	reg, rt := newTestRouter(t, "",
		decl("bad", []string{"en"}, false, nil, errors.New("加载失败")),
		decl("good", []string{"en"}, true, &fakeEngine{}, nil),
	)
	if _, err := reg.EnsureReady("bad"); err == nil {
		t.Fatal("expected load failure")
	}
	id, err := rt.Select("", "en")
	if err != nil {
		t.Fatal(err)
	}
	if id != "good" {
		t.Errorf("routing should skip failed engines, got %q", id)
	}
}

func TestSelect_FailedExplicitUsesFallback(t *testing.T) {
	reg, rt := newTestRouter(t, "backup",
		decl("bad", []string{"en"}, true, nil, errors.New("加载失败")),
		decl("backup", []string{"en"}, false, &fakeEngine{}, nil),
	)
	if _, err := reg.EnsureReady("bad"); err == nil {
		t.Fatal("expected load failure")
	}
	id, err := rt.Select("bad", "")
	if err != nil {
		t.Fatal(err)
	}
	if id != "backup" {
		t.Errorf("failed engine should fall back to %q, got %q", "backup", id)
	}
}

func TestSelect_FailedWithoutFallback(t *testing.T) {
	reg, rt := newTestRouter(t, "",
		decl("bad", []string{"en"}, true, nil, errors.New("加载失败")),
	)
	if _, err := reg.EnsureReady("bad"); err == nil {
		t.Fatal("expected load failure")
	}
	if _, err := rt.Select("bad", ""); !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("expected ErrEngineUnavailable, got %v", err)
	}
}

func TestNormalizeLang(t *testing.T) {
	tests := []struct{ in, want string }{
		{"EN-US", "en-us"},
		{"en_US", "en-us"},
		{" zh-CN ", "zh-cn"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeLang(tt.in); got != tt.want {
			t.Errorf("normalizeLang(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
