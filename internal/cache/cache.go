package cache

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/iabetor/ttshub/internal/logger"
	_ "modernc.org/sqlite"
)

// Cache 合成结果缓存。
// WAV 文件落在输出目录，索引存在同目录的 SQLite 中，
// 超出大小上限时按最近使用时间淘汰最旧的条目。
type Cache struct {
	mu       sync.Mutex
	db       *sql.DB
	dir      string
	maxBytes int64
}

// Key 计算一次合成请求的缓存键。
// 相同的文本、音色、语言、语速和引擎组合产出相同的音频。
func Key(text, voice, lang string, speed float32, engine string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%s|%.3f|%s", text, voice, lang, speed, engine)))
	return hex.EncodeToString(sum[:])
}

// Open 打开或创建缓存。maxSizeMB 为 0 时返回 nil（缓存禁用）。
func Open(dir string, maxSizeMB int64) (*Cache, error) {
	if maxSizeMB <= 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建缓存目录失败: %w", err)
	}

	dbPath := filepath.Join(dir, "cache.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开缓存数据库失败: %w", err)
	}

	// WAL 模式，读写互不阻塞
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS tts_cache (
		cache_key TEXT PRIMARY KEY,
		file_name TEXT NOT NULL,
		engine TEXT NOT NULL,
		size INTEGER NOT NULL,
		hit_count INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_used DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化缓存表失败: %w", err)
	}

	logger.Infof("[cache] 缓存已打开: %s (上限 %d MB)", dir, maxSizeMB)
	return &Cache{db: db, dir: dir, maxBytes: maxSizeMB << 20}, nil
}

// Lookup 查找缓存，命中返回文件名并刷新使用时间。
// Cache 为 nil 时安全调用，始终未命中。
func (c *Cache) Lookup(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var fileName string
	err := c.db.QueryRow("SELECT file_name FROM tts_cache WHERE cache_key = ?", key).Scan(&fileName)
	if err == sql.ErrNoRows {
		return "", false
	}
	if err != nil {
		logger.Warnf("[cache] 查询失败: %v", err)
		return "", false
	}

	// 文件可能被外部删除，索引随之失效
	if _, err := os.Stat(filepath.Join(c.dir, fileName)); err != nil {
		_, _ = c.db.Exec("DELETE FROM tts_cache WHERE cache_key = ?", key)
		return "", false
	}

	_, _ = c.db.Exec(
		"UPDATE tts_cache SET hit_count = hit_count + 1, last_used = CURRENT_TIMESTAMP WHERE cache_key = ?",
		key)
	return fileName, true
}

// Store 把一次合成结果写入缓存，返回落盘的文件名（<key>.wav）。
// 写入后超出大小上限时同步淘汰最久未使用的条目。
func (c *Cache) Store(key, engine string, wav []byte) (string, error) {
	if c == nil {
		return "", fmt.Errorf("缓存未启用")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	fileName := key + ".wav"
	if err := os.WriteFile(filepath.Join(c.dir, fileName), wav, 0644); err != nil {
		return "", fmt.Errorf("写缓存文件失败: %w", err)
	}

	if _, err := c.db.Exec(`INSERT INTO tts_cache (cache_key, file_name, engine, size)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET last_used = CURRENT_TIMESTAMP`,
		key, fileName, engine, int64(len(wav))); err != nil {
		return "", fmt.Errorf("写缓存索引失败: %w", err)
	}

	c.evict()
	return fileName, nil
}

// evict 按 last_used 从旧到新删除条目，直到总大小回到上限以内。
// 调用方持有 c.mu。
func (c *Cache) evict() {
	var total int64
	if err := c.db.QueryRow("SELECT COALESCE(SUM(size), 0) FROM tts_cache").Scan(&total); err != nil {
		logger.Warnf("[cache] 统计缓存大小失败: %v", err)
		return
	}

	for total > c.maxBytes {
		var key, fileName string
		var size int64
		err := c.db.QueryRow(
			"SELECT cache_key, file_name, size FROM tts_cache ORDER BY last_used ASC, rowid ASC LIMIT 1").
			Scan(&key, &fileName, &size)
		if err != nil {
			return
		}
		if _, err := c.db.Exec("DELETE FROM tts_cache WHERE cache_key = ?", key); err != nil {
			logger.Warnf("[cache] 淘汰条目失败: %v", err)
			return
		}
		if err := os.Remove(filepath.Join(c.dir, fileName)); err != nil && !os.IsNotExist(err) {
			logger.Warnf("[cache] 删除缓存文件失败: %v", err)
		}
		logger.Debugf("[cache] 淘汰: %s (%d 字节)", fileName, size)
		total -= size
	}
}

// Stats 返回缓存条目数与总大小（字节）。
func (c *Cache) Stats() (count int64, bytes int64) {
	if c == nil {
		return 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(size), 0) FROM tts_cache").Scan(&count, &bytes)
	return count, bytes
}

// Close 关闭缓存数据库。
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}
