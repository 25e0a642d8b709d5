package upgrade

import (
	"sync"
	"time"
)

// timers 引擎定时器：到期后把回调投递到引擎循环；cancelAll 之后已到期未执行的回调也会被丢弃
type timers struct {
	mu   sync.Mutex
	next uint64
	set  map[uint64]*time.Timer
	post func(func())
}

func newTimers(post func(func())) *timers {
	return &timers{set: make(map[uint64]*time.Timer), post: post}
}

func (t *timers) after(d time.Duration, fn func()) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	id := t.next
	t.set[id] = time.AfterFunc(d, func() {
		t.post(func() {
			if t.take(id) {
				fn()
			}
		})
	})
	return id
}

func (t *timers) take(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.set[id]; !ok {
		return false
	}
	delete(t.set, id)
	return true
}

func (t *timers) cancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, tm := range t.set {
		tm.Stop()
		delete(t.set, id)
	}
}

func (t *timers) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.set)
}
