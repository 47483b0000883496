package service

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store 服务端持久化：译文缓存、词频和“太简单”记忆
type Store struct {
	db *sql.DB
}

// OpenStore 打开（必要时创建）sqlite 数据库并建表
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite 只允许单写者，串行化所有访问
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS translation_cache (
			key TEXT PRIMARY KEY,
			sentence TEXT NOT NULL,
			target_word TEXT NOT NULL,
			translation TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS word_frequency (
			word TEXT PRIMARY KEY,
			frequency INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS word_memory (
			word TEXT PRIMARY KEY,
			level INTEGER NOT NULL DEFAULT 1,
			suppress_until INTEGER NOT NULL
		)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// CacheKey 缓存键：md5(sentence|word)
func CacheKey(sentence, word string) string {
	sum := md5.Sum([]byte(sentence + "|" + word))
	return hex.EncodeToString(sum[:])
}

// CachedTranslation 查询缓存的译文
func (s *Store) CachedTranslation(ctx context.Context, sentence, word string) (string, bool, error) {
	var translation string
	err := s.db.QueryRowContext(ctx,
		`SELECT translation FROM translation_cache WHERE key = ?`,
		CacheKey(sentence, word)).Scan(&translation)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query cache: %w", err)
	}
	return translation, true, nil
}

// SaveTranslation 写入缓存，已存在则覆盖
func (s *Store) SaveTranslation(ctx context.Context, sentence, word, translation string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO translation_cache (key, sentence, target_word, translation, timestamp) VALUES (?, ?, ?, ?, ?)`,
		CacheKey(sentence, word), sentence, word, translation, now.Unix())
	if err != nil {
		return fmt.Errorf("failed to save translation: %w", err)
	}
	return nil
}

// Frequencies 批量查询词被选中的次数，未出现过的词为 0
func (s *Store) Frequencies(ctx context.Context, words []string) (map[string]int, error) {
	freq := make(map[string]int, len(words))
	if len(words) == 0 {
		return freq, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT word, frequency FROM word_frequency WHERE word IN (`+placeholders(len(words))+`)`,
		stringArgs(words)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query frequencies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			word string
			n    int
		)
		if err := rows.Scan(&word, &n); err != nil {
			return nil, fmt.Errorf("failed to scan frequency: %w", err)
		}
		freq[word] = n
	}
	return freq, rows.Err()
}

// IncrementFrequency 词频加一，返回新的次数
func (s *Store) IncrementFrequency(ctx context.Context, word string) (int, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO word_frequency (word, frequency) VALUES (?, 1)
		 ON CONFLICT(word) DO UPDATE SET frequency = frequency + 1`, word)
	if err != nil {
		return 0, fmt.Errorf("failed to increment frequency: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT frequency FROM word_frequency WHERE word = ?`, word).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to read frequency: %w", err)
	}
	return n, nil
}

// Suppressed 返回 words 中在 now 时仍处于抑制期的词
func (s *Store) Suppressed(ctx context.Context, words []string, now time.Time) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(words) == 0 {
		return out, nil
	}

	args := append(stringArgs(words), now.Unix())
	rows, err := s.db.QueryContext(ctx,
		`SELECT word FROM word_memory WHERE word IN (`+placeholders(len(words))+`) AND suppress_until > ?`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query word memory: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var word string
		if err := rows.Scan(&word); err != nil {
			return nil, fmt.Errorf("failed to scan word memory: %w", err)
		}
		out[word] = true
	}
	return out, rows.Err()
}

// Memory 一个词的“太简单”记录
type Memory struct {
	Word          string
	Level         int
	SuppressDays  int
	SuppressUntil time.Time
}

// MarkEasy 把词的等级加一，抑制 level² 天
func (s *Store) MarkEasy(ctx context.Context, word string, now time.Time) (*Memory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var level int
	err = tx.QueryRowContext(ctx, `SELECT level FROM word_memory WHERE word = ?`, word).Scan(&level)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read word level: %w", err)
	}

	m := &Memory{Word: word, Level: level + 1}
	m.SuppressDays = m.Level * m.Level
	m.SuppressUntil = now.Add(time.Duration(m.SuppressDays) * 24 * time.Hour)

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO word_memory (word, level, suppress_until) VALUES (?, ?, ?)`,
		word, m.Level, m.SuppressUntil.Unix()); err != nil {
		return nil, fmt.Errorf("failed to save word level: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit word level: %w", err)
	}
	return m, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(words []string) []any {
	args := make([]any, len(words))
	for i, w := range words {
		args[i] = w
	}
	return args
}
