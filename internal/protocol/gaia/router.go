package gaia

import "sync"

type Handler func(*Frame) error

// Table 按命令码（含应答位）分发帧，厂商ID不匹配的帧不分发
type Table struct {
	mu     sync.RWMutex
	vendor uint16
	m      map[uint16]Handler
}

func NewTable(vendorID uint16) *Table {
	return &Table{vendor: vendorID, m: make(map[uint16]Handler)}
}

func (t *Table) Register(commandID uint16, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[commandID] = h
}

// Route 返回帧是否有对应处理器
func (t *Table) Route(f *Frame) (bool, error) {
	if f.VendorID != t.vendor {
		return false, nil
	}
	t.mu.RLock()
	h := t.m[f.CommandID]
	t.mu.RUnlock()
	if h == nil {
		return false, nil
	}
	return true, h(f)
}
