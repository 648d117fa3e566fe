package sigchan

// Chan 合并型唤醒信号：多次 Emit 在被消费前只保留一个
type Chan struct {
	c chan struct{}
}

// New 通常 size=1
func New(size int) *Chan {
	if size < 1 {
		size = 1
	}
	return &Chan{c: make(chan struct{}, size)}
}

// Emit 非阻塞发送；已有未消费的信号时返回 false
func (c *Chan) Emit() bool {
	select {
	case c.c <- struct{}{}:
		return true
	default:
		return false
	}
}

// Drain 丢弃所有未消费的信号，返回丢弃数量
func (c *Chan) Drain() int {
	n := 0
	for {
		select {
		case <-c.c:
			n++
		default:
			return n
		}
	}
}

func (c *Chan) C() <-chan struct{} {
	return c.c
}
