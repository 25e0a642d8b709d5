package link

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPDialer 通过 TCP 连接设备（串口服务器、仿真器等）
type TCPDialer struct {
	Addr         string
	Timeout      time.Duration
	ReadTimeout  time.Duration // 0 表示不设读超时
	WriteTimeout time.Duration
}

func (d *TCPDialer) Dial(ctx context.Context, onRead func([]byte)) (Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	c, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s: %w", d.Addr, err)
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	sc := newStreamConn(c, d.ReadTimeout, d.WriteTimeout, onRead)
	sc.start()
	return sc, nil
}
