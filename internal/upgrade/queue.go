package upgrade

import "sync"

// callQueue 有序、非阻塞的调用队列，由引擎循环消费
type callQueue struct {
	mu     sync.Mutex
	calls  []func()
	notify chan struct{}
}

func newCallQueue() *callQueue {
	return &callQueue{notify: make(chan struct{}, 1)}
}

func (q *callQueue) post(fn func()) {
	q.mu.Lock()
	q.calls = append(q.calls, fn)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *callQueue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	calls := q.calls
	q.calls = nil
	return calls
}

// controlQueue UPGRADE_CONTROL 半双工发送：上一帧被应答后才发送下一帧
type controlQueue struct {
	inFlight []byte
	pending  [][]byte
}

// push 返回是否可以立即发送
func (q *controlQueue) push(pkt []byte) bool {
	if q.inFlight != nil {
		q.pending = append(q.pending, pkt)
		return false
	}
	q.inFlight = pkt
	return true
}

// acked 返回被应答的帧与下一帧（无则为 nil）
func (q *controlQueue) acked() (done, next []byte) {
	done = q.inFlight
	q.inFlight = nil
	if len(q.pending) > 0 {
		next = q.pending[0]
		q.pending = q.pending[1:]
		q.inFlight = next
	}
	return done, next
}

func (q *controlQueue) idle() bool { return q.inFlight == nil }

func (q *controlQueue) reset() {
	q.inFlight = nil
	q.pending = nil
}
