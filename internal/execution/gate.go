package execution

import (
	"hash/fnv"
	"sync"
)

// orderGate 按 order_id 分片：同一订单的提交与状态更新串行执行，
// 并拒绝同一 order_id 的并发重复提交。
type orderGate struct {
	shards []gateShard
}

type gateShard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func newOrderGate(shardCount int) *orderGate {
	if shardCount <= 0 {
		shardCount = 64
	}
	shards := make([]gateShard, shardCount)
	for i := range shards {
		shards[i].inFlight = make(map[string]struct{})
	}
	return &orderGate{shards: shards}
}

// tryEnter 标记订单进入提交流程；已在流程中返回 false
func (g *orderGate) tryEnter(orderID string) bool {
	sh := g.shard(orderID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.inFlight[orderID]; ok {
		return false
	}
	sh.inFlight[orderID] = struct{}{}
	return true
}

func (g *orderGate) leave(orderID string) {
	sh := g.shard(orderID)
	sh.mu.Lock()
	delete(sh.inFlight, orderID)
	sh.mu.Unlock()
}

// lock 持有订单所在分片的锁，返回解锁函数
func (g *orderGate) lock(orderID string) func() {
	sh := g.shard(orderID)
	sh.mu.Lock()
	return sh.mu.Unlock
}

func (g *orderGate) shard(key string) *gateShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &g.shards[h.Sum32()%uint32(len(g.shards))]
}
