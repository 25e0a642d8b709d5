package link

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/taoyao-code/gaia-upgrader/internal/metrics"
	"github.com/taoyao-code/gaia-upgrader/internal/protocol/gaia"
)

// Options 链路客户端参数
type Options struct {
	VendorID    uint16
	Checksum    bool // 发送帧带校验字节
	SendRate    int  // 每秒帧数，0 不限
	SendBurst   int
	EventBuffer int
	Logger      *zap.Logger
	Metrics     *metrics.AppMetrics
}

// Client GAIA 链路客户端：管理单个传输连接，解帧后以事件形式投递
type Client struct {
	dialer  Dialer
	opts    Options
	log     *zap.Logger
	appm    *metrics.AppMetrics
	limiter *RateLimiter
	events  chan Event

	mu      sync.Mutex
	conn    Conn
	dialing bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(d Dialer, opts Options) *Client {
	if opts.VendorID == 0 {
		opts.VendorID = gaia.VendorCSR
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		dialer:  d,
		opts:    opts,
		log:     log.Named("link"),
		appm:    opts.Metrics,
		limiter: NewRateLimiter(opts.SendRate, opts.SendBurst),
		events:  make(chan Event, opts.EventBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Events 链路事件通道，单一消费者
func (c *Client) Events() <-chan Event { return c.events }

// VendorID 发送帧使用的厂商ID
func (c *Client) VendorID() uint16 { return c.opts.VendorID }

// Connected 当前是否有可用连接
func (c *Client) Connected() bool {
	return c.current() != nil
}

func (c *Client) current() Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Connect 建立连接；成功投递 EventConnected，失败投递 ErrorConnectionFailed
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil || c.dialing {
		c.mu.Unlock()
		return newError(ErrorAlreadyConnected, NoCommand, nil)
	}
	c.dialing = true
	c.mu.Unlock()

	// EventConnected 投递前不处理入站数据
	ready := make(chan struct{})
	dec := gaia.NewStreamDecoder()
	conn, err := c.dialer.Dial(ctx, func(p []byte) {
		select {
		case <-ready:
		case <-c.ctx.Done():
			return
		}
		c.onBytes(dec, p)
	})

	c.mu.Lock()
	c.dialing = false
	if err != nil {
		c.mu.Unlock()
		close(ready)
		lerr := newError(ErrorConnectionFailed, NoCommand, err)
		c.log.Warn("connect failed", zap.Error(err))
		c.emit(Event{Kind: EventError, Err: lerr})
		return lerr
	}
	c.conn = conn
	c.mu.Unlock()

	if c.appm != nil {
		c.appm.LinkConnected.Set(1)
	}
	c.log.Info("connected")
	c.emit(Event{Kind: EventConnected})
	close(ready)
	go c.watch(conn)
	return nil
}

func (c *Client) watch(conn Conn) {
	<-conn.Done()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	if c.appm != nil {
		c.appm.LinkConnected.Set(0)
	}
	var lerr *Error
	if err := conn.Err(); err != nil {
		lerr = newError(ErrorTransport, NoCommand, err)
		c.log.Warn("disconnected", zap.Error(err))
	} else {
		c.log.Info("disconnected")
	}
	c.emit(Event{Kind: EventDisconnected, Err: lerr})
}

// Disconnect 关闭当前连接，EventDisconnected 随后投递
func (c *Client) Disconnect() error {
	conn := c.current()
	if conn == nil {
		return newError(ErrorNotConnected, NoCommand, nil)
	}
	return conn.Close()
}

// Close 关闭连接并停止投递事件
func (c *Client) Close() error {
	c.cancel()
	if conn := c.current(); conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Client) onBytes(dec *gaia.StreamDecoder, p []byte) {
	if c.appm != nil {
		c.appm.LinkBytesReceived.Add(float64(len(p)))
	}
	frames, err := dec.Feed(p)
	if err != nil {
		for _, e := range splitErrors(err) {
			reason := frameErrorReason(e)
			if c.appm != nil {
				c.appm.LinkFrameErrors.WithLabelValues(reason).Inc()
			}
			c.log.Warn("frame rejected", zap.String("reason", reason), zap.Error(e))
			c.emit(Event{Kind: EventError, Err: newError(ErrorFraming, NoCommand, e)})
		}
	}
	for _, fr := range frames {
		if c.appm != nil {
			c.appm.LinkFramesRx.WithLabelValues(gaia.HexCommand(fr.CommandID)).Inc()
		}
		c.log.Debug("frame received",
			zap.String("cmd", gaia.CommandName(fr.CommandID)),
			zap.Bool("ack", fr.IsAck()),
			zap.Int("len", len(fr.Payload)),
		)
		c.emit(Event{Kind: EventFrame, Frame: fr})
	}
}

func splitErrors(err error) []error {
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		return u.Unwrap()
	}
	return []error{err}
}

func frameErrorReason(err error) string {
	switch {
	case errors.Is(err, gaia.ErrChecksumMismatch):
		return "checksum"
	case errors.Is(err, gaia.ErrFrameTooLong):
		return "oversized"
	default:
		return "malformed"
	}
}

// SendPacket 发送带载荷的命令帧
func (c *Client) SendPacket(commandID uint16, payload []byte) error {
	conn := c.current()
	if conn == nil {
		return newError(ErrorNotConnected, int(commandID), nil)
	}
	var flags uint8 = gaia.DefaultFlags
	if c.opts.Checksum {
		flags = gaia.FlagCheck
	}
	raw, err := gaia.Encode(c.opts.VendorID, commandID, payload, flags)
	if err != nil {
		return newError(ErrorSendFailed, int(commandID), err)
	}
	if err := c.limiter.Wait(c.ctx); err != nil {
		return newError(ErrorSendFailed, int(commandID), err)
	}
	if err := conn.Write(raw); err != nil {
		c.log.Warn("send failed", zap.String("cmd", gaia.CommandName(commandID)), zap.Error(err))
		return newError(ErrorSendFailed, int(commandID), err)
	}
	if c.appm != nil {
		c.appm.LinkFramesTx.WithLabelValues(gaia.HexCommand(commandID)).Inc()
		c.appm.LinkBytesSent.Add(float64(len(raw)))
	}
	c.log.Debug("frame sent", zap.String("cmd", gaia.CommandName(commandID)), zap.Int("len", len(payload)))
	return nil
}

// SendCommand 发送命令，参数按字节依次放入载荷
func (c *Client) SendCommand(commandID uint16, params ...byte) error {
	return c.SendPacket(commandID, params)
}

// SendAck 应答设备发来的命令
func (c *Client) SendAck(commandID uint16, status gaia.Status, params ...byte) error {
	payload := make([]byte, 0, len(params)+1)
	payload = append(payload, byte(status))
	payload = append(payload, params...)
	return c.SendPacket(commandID|gaia.AckMask, payload)
}

// SendRaw 写出未分帧的原始数据，并投递 EventStreamProgress
func (c *Client) SendRaw(b []byte) error {
	conn := c.current()
	if conn == nil {
		return newError(ErrorNotConnected, NoCommand, nil)
	}
	if err := conn.Write(b); err != nil {
		return newError(ErrorSendFailed, NoCommand, err)
	}
	if c.appm != nil {
		c.appm.LinkBytesSent.Add(float64(len(b)))
	}
	// 进度事件可丢弃，不阻塞调用方
	select {
	case c.events <- Event{Kind: EventStreamProgress, Bytes: len(b)}:
	default:
	}
	return nil
}

// RegisterNotification 订阅事件通知
func (c *Client) RegisterNotification(ev gaia.EventID) error {
	return c.SendCommand(gaia.CommandRegisterNotification, byte(ev))
}

// CancelNotification 取消事件通知
func (c *Client) CancelNotification(ev gaia.EventID) error {
	return c.SendCommand(gaia.CommandCancelNotification, byte(ev))
}

// GetNotification 查询事件通知状态
func (c *Client) GetNotification(ev gaia.EventID) error {
	return c.SendCommand(gaia.CommandGetNotification, byte(ev))
}

// SendStats 发送节流统计
func (c *Client) SendStats() RateLimiterStats { return c.limiter.Stats() }
