package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestKey_Deterministic(t *testing.T) {
	a := Key("hello", "af_sarah", "en-us", 1.0, "kokoro")
	b := Key("hello", "af_sarah", "en-us", 1.0, "kokoro")
	if a != b {
		t.Errorf("same request should produce same key: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("expected 32-char md5 hex key, got %d chars", len(a))
	}
}

func TestKey_SensitiveToAllFields(t *testing.T) {
	base := Key("hello", "af_sarah", "en-us", 1.0, "kokoro")
	variants := []string{
		Key("hello!", "af_sarah", "en-us", 1.0, "kokoro"),
		Key("hello", "af_bella", "en-us", 1.0, "kokoro"),
		Key("hello", "af_sarah", "zh-cn", 1.0, "kokoro"),
		Key("hello", "af_sarah", "en-us", 1.5, "kokoro"),
		Key("hello", "af_sarah", "en-us", 1.0, "edge"),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d should produce a different key", i)
		}
	}
}

func TestOpen_DisabledWhenZeroSize(t *testing.T) {
	c, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Fatal("zero size should disable the cache")
	}
	// nil 接收者上的所有操作都安全
	if _, ok := c.Lookup("whatever"); ok {
		t.Error("nil cache should never hit")
	}
	if n, b := c.Stats(); n != 0 || b != 0 {
		t.Error("nil cache stats should be zero")
	}
	if err := c.Close(); err != nil {
		t.Errorf("nil cache Close should succeed: %v", err)
	}
}

func TestStoreAndLookup(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, 10)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	key := Key("今天天气不错", "", "zh-cn", 1.0, "edge")
	wav := bytes.Repeat([]byte{0x01, 0x02}, 128)

	if _, ok := c.Lookup(key); ok {
		t.Fatal("lookup before store should miss")
	}

	name, err := c.Store(key, "edge", wav)
	if err != nil {
		t.Fatal(err)
	}
	if name != key+".wav" {
		t.Errorf("expected file name %s.wav, got %s", key, name)
	}

	got, ok := c.Lookup(key)
	if !ok {
		t.Fatal("lookup after store should hit")
	}
	if got != name {
		t.Errorf("lookup returned %s, want %s", got, name)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, wav) {
		t.Error("cached file content differs from stored bytes")
	}
}

func TestLookup_MissingFileInvalidatesEntry(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, 10)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	key := Key("text", "", "en", 1.0, "kokoro")
	name, err := c.Store(key, "kokoro", []byte("data"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, name)); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Lookup(key); ok {
		t.Error("lookup should miss when the file was removed externally")
	}
	if n, _ := c.Stats(); n != 0 {
		t.Errorf("stale entry should be dropped, %d entries remain", n)
	}
}

func TestEviction(t *testing.T) {
	dir := t.TempDir()
	// 上限 1 MB，每个条目 512 KB，第三个写入应触发淘汰
	c, err := Open(dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	chunk := make([]byte, 512<<10)
	keys := make([]string, 3)
	for i := range keys {
		keys[i] = Key(string(rune('a'+i)), "", "en", 1.0, "kokoro")
		if _, err := c.Store(keys[i], "kokoro", chunk); err != nil {
			t.Fatal(err)
		}
	}

	if _, ok := c.Lookup(keys[0]); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Lookup(keys[2]); !ok {
		t.Error("newest entry should survive eviction")
	}
	if _, bytes := c.Stats(); bytes > 1<<20 {
		t.Errorf("cache size %d exceeds the 1 MB limit", bytes)
	}
	if _, err := os.Stat(filepath.Join(dir, keys[0]+".wav")); !os.IsNotExist(err) {
		t.Error("evicted file should be deleted from disk")
	}
}
