package statestore

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

const (
	keyMarkets   = "executor/markets"
	keyCooldowns = "executor/cooldowns"
)

// Store 执行器状态 KV（badger）
// 加密由 badger 选项提供（value log + key registry），不是本包实现。
type Store struct {
	db *badger.DB
}

type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 字节；为空则不加密
	InMemory      bool
}

func Open(opts OpenOptions) (*Store, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" && !opts.InMemory {
		return nil, errors.New("statestore: path is required")
	}
	bopts := badger.DefaultOptions(path).WithLogger(nil)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	if len(opts.EncryptionKey) > 0 {
		// 加密模式下 badger 需要 index cache
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("statestore: open %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// getJSON 读取 key 并解码；不存在时返回 found=false
func (s *Store) getJSON(key string, v any) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("statestore: not opened")
	}
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if err != nil {
		return false, fmt.Errorf("statestore: get %s: %w", key, err)
	}
	return found, nil
}

func (s *Store) setJSON(key string, v any) error {
	if s == nil || s.db == nil {
		return errors.New("statestore: not opened")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("statestore: encode %s: %w", key, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	}); err != nil {
		return fmt.Errorf("statestore: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) SaveMarkets(_ context.Context, markets []string) error {
	if markets == nil {
		markets = []string{}
	}
	return s.setJSON(keyMarkets, markets)
}

func (s *Store) LoadMarkets(_ context.Context) ([]string, error) {
	var out []string
	if _, err := s.getJSON(keyMarkets, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SaveCooldowns(_ context.Context, cooldowns map[string]time.Time) error {
	if cooldowns == nil {
		cooldowns = map[string]time.Time{}
	}
	return s.setJSON(keyCooldowns, cooldowns)
}

func (s *Store) LoadCooldowns(_ context.Context) (map[string]time.Time, error) {
	out := map[string]time.Time{}
	if _, err := s.getJSON(keyCooldowns, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseKey 解析 32 字节密钥（hex 或 base64）；空输入返回 nil
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x")); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
}
