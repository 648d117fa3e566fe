package executor

import (
	"hash/fnv"
	"sync"
	"time"
)

// cooldownTable 事件冷却表：key -> 冷却截止时间，分片加锁，过期项惰性清理
type cooldownTable struct {
	shards []cooldownShard
}

type cooldownShard struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func newCooldownTable(shardCount int) *cooldownTable {
	if shardCount <= 0 {
		shardCount = 16
	}
	shards := make([]cooldownShard, shardCount)
	for i := range shards {
		shards[i].m = make(map[string]time.Time)
	}
	return &cooldownTable{shards: shards}
}

// Active 当前是否仍在冷却期
func (t *cooldownTable) Active(key string, now time.Time) bool {
	sh := t.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	until, ok := sh.m[key]
	if !ok {
		return false
	}
	if !until.After(now) {
		delete(sh.m, key)
		return false
	}
	return true
}

// Set 设置冷却截止时间
func (t *cooldownTable) Set(key string, until time.Time) {
	sh := t.shard(key)
	sh.mu.Lock()
	sh.m[key] = until
	sh.mu.Unlock()
}

// Snapshot 未过期的冷却项
func (t *cooldownTable) Snapshot(now time.Time) map[string]time.Time {
	out := make(map[string]time.Time)
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		for k, until := range sh.m {
			if until.After(now) {
				out[k] = until
			} else {
				delete(sh.m, k)
			}
		}
		sh.mu.Unlock()
	}
	return out
}

func (t *cooldownTable) shard(key string) *cooldownShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &t.shards[h.Sum32()%uint32(len(t.shards))]
}
