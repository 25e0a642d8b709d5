package link

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrConnClosed   = errors.New("connection closed")
	ErrWriteTimeout = errors.New("write queue timeout")
)

// Dialer 建立到设备的字节流连接；onRead 在读循环 goroutine 中按到达顺序调用
type Dialer interface {
	Dial(ctx context.Context, onRead func([]byte)) (Conn, error)
}

// Conn 已建立的字节流连接
type Conn interface {
	Write(b []byte) error
	Close() error
	// Done 连接结束（对端关闭、读写失败或本地 Close）后关闭
	Done() <-chan struct{}
	// Err 连接结束原因，本地 Close 时为 nil
	Err() error
}

type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// streamConn 为字节流提供读/写循环
type streamConn struct {
	rw           io.ReadWriteCloser
	dl           deadliner // 可选
	readTimeout  time.Duration
	writeTimeout time.Duration
	onRead       func([]byte)

	writeC chan []byte
	stopC  chan struct{}
	doneC  chan struct{}
	closed int32
	once   sync.Once

	errMu sync.Mutex
	err   error
}

func newStreamConn(rw io.ReadWriteCloser, readTimeout, writeTimeout time.Duration, onRead func([]byte)) *streamConn {
	sc := &streamConn{
		rw:           rw,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		onRead:       onRead,
		writeC:       make(chan []byte, 128),
		stopC:        make(chan struct{}),
		doneC:        make(chan struct{}),
	}
	if d, ok := rw.(deadliner); ok {
		sc.dl = d
	}
	return sc
}

// Write 异步写入，受写队列与写超时影响
func (sc *streamConn) Write(b []byte) error {
	if atomic.LoadInt32(&sc.closed) == 1 {
		return ErrConnClosed
	}
	// 复制一份，避免调用方复用底层切片
	dup := make([]byte, len(b))
	copy(dup, b)
	to := sc.writeTimeout
	if to <= 0 {
		to = 5 * time.Second
	}
	timer := time.NewTimer(to)
	defer timer.Stop()
	select {
	case sc.writeC <- dup:
		return nil
	case <-sc.stopC:
		return ErrConnClosed
	case <-timer.C:
		return ErrWriteTimeout
	}
}

// Close 关闭连接，读写循环随之退出
func (sc *streamConn) Close() error {
	return sc.closeWith(nil)
}

func (sc *streamConn) closeWith(cause error) error {
	var err error
	sc.once.Do(func() {
		atomic.StoreInt32(&sc.closed, 1)
		sc.errMu.Lock()
		sc.err = cause
		sc.errMu.Unlock()
		close(sc.stopC)
		err = sc.rw.Close()
	})
	return err
}

func (sc *streamConn) Done() <-chan struct{} { return sc.doneC }

func (sc *streamConn) Err() error {
	sc.errMu.Lock()
	defer sc.errMu.Unlock()
	return sc.err
}

// start 启动读/写循环，连接结束后关闭 doneC
func (sc *streamConn) start() {
	doneW := make(chan struct{})
	go func() {
		defer close(doneW)
		for {
			select {
			case <-sc.stopC:
				return
			case msg := <-sc.writeC:
				if sc.dl != nil && sc.writeTimeout > 0 {
					_ = sc.dl.SetWriteDeadline(time.Now().Add(sc.writeTimeout))
				}
				if _, err := sc.rw.Write(msg); err != nil {
					_ = sc.closeWith(err)
					return
				}
			}
		}
	}()

	go func() {
		defer close(sc.doneC)
		buf := make([]byte, 4096)
		for {
			if sc.dl != nil && sc.readTimeout > 0 {
				_ = sc.dl.SetReadDeadline(time.Now().Add(sc.readTimeout))
			}
			n, err := sc.rw.Read(buf)
			if n > 0 && sc.onRead != nil {
				sc.onRead(buf[:n])
			}
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() && atomic.LoadInt32(&sc.closed) == 0 {
					// 读超时，刷新 deadline 继续
					continue
				}
				if atomic.LoadInt32(&sc.closed) == 0 {
					if errors.Is(err, io.EOF) {
						err = io.ErrUnexpectedEOF
					}
					_ = sc.closeWith(err)
				}
				break
			}
		}
		<-doneW
	}()
}
