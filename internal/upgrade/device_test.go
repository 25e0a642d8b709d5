package upgrade

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/gaia-upgrader/internal/link"
	"github.com/taoyao-code/gaia-upgrader/internal/protocol/gaia"
	"github.com/taoyao-code/gaia-upgrader/internal/protocol/vmu"
)

// fakeDevice 模拟支持 VM 升级的设备：应答全部命令，按协议回应升级包
type fakeDevice struct {
	t *testing.T

	mu      sync.Mutex
	dials   int
	refuse  bool
	current *fakeConn

	// 设备持久状态
	resume vmu.ResumePoint
	syncID []byte
	store  []byte

	chunk           uint32 // 每次请求的数据长度
	notReady        int    // 回复 APP_NOT_READY 的次数，<0 表示始终
	validationPolls int    // 校验未完成的次数
	dropAfterData   int    // 收到第 n 个 DATA 时断开传输，0 不断开
	sendOffset      bool   // 下一个 DATA_BYTES_REQ 携带已存数据长度作为偏移

	// 返回 true 表示已处理，跳过默认行为
	hook func(d *fakeDevice, c *fakeConn, pkt vmu.Packet) bool

	cmds    []uint16
	acks    []*gaia.Frame
	ops     []vmu.OpCode
	packets []vmu.Packet
	markers []byte
	data    int
}

func newFakeDevice(t *testing.T) *fakeDevice {
	return &fakeDevice{t: t, chunk: 100, syncID: make([]byte, vmu.SyncReqLength)}
}

func (d *fakeDevice) Dial(ctx context.Context, onRead func([]byte)) (link.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.refuse {
		return nil, errors.New("connection refused")
	}
	c := &fakeConn{
		dev:    d,
		onRead: onRead,
		inbox:  make(chan []byte, 256),
		doneC:  make(chan struct{}),
	}
	d.current = c
	go c.serve()
	return c, nil
}

func (d *fakeDevice) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDevice) commands() []uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint16(nil), d.cmds...)
}

func (d *fakeDevice) opCount(op vmu.OpCode) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, o := range d.ops {
		if o == op {
			n++
		}
	}
	return n
}

func (d *fakeDevice) lastPacket(op vmu.OpCode) (vmu.Packet, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.packets) - 1; i >= 0; i-- {
		if d.packets[i].Op() == op {
			return d.packets[i], true
		}
	}
	return vmu.Packet{}, false
}

func (d *fakeDevice) stored() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.store...)
}

func (d *fakeDevice) dataMarkers() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.markers...)
}

func (d *fakeDevice) hostAcks() []*gaia.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*gaia.Frame(nil), d.acks...)
}

func (d *fakeDevice) connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current != nil && !d.current.isClosed()
}

func (d *fakeDevice) handle(c *fakeConn, f *gaia.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f.IsAck() {
		d.acks = append(d.acks, f)
		return
	}
	d.cmds = append(d.cmds, f.CommandID)

	if f.CommandID != gaia.CommandVMUpgradeControl {
		c.ack(f.CommandID)
		return
	}
	pkt := vmu.Decode(f.Payload)
	d.ops = append(d.ops, pkt.Op())
	d.packets = append(d.packets, pkt)

	if pkt.Op() == vmu.OpData {
		d.data++
		if d.dropAfterData > 0 && d.data == d.dropAfterData {
			d.dropAfterData = 0
			d.sendOffset = true
			c.drop()
			return
		}
	}
	c.ack(f.CommandID)
	if d.hook != nil && d.hook(d, c, pkt) {
		return
	}
	d.respond(c, pkt)
}

func (d *fakeDevice) respond(c *fakeConn, pkt vmu.Packet) {
	switch pkt.Op() {
	case vmu.OpSyncReq:
		if isZero(d.syncID) {
			d.syncID = append([]byte(nil), pkt.Data...)
			c.event(vmu.OpSyncCfm, append(append([]byte{byte(d.resume)}, make([]byte, vmu.SyncReqLength)...), 3))
			return
		}
		c.event(vmu.OpSyncCfm, append(append([]byte{byte(d.resume)}, d.syncID...), 3))
	case vmu.OpStartReq:
		if d.notReady != 0 {
			if d.notReady > 0 {
				d.notReady--
			}
			c.event(vmu.OpStartCfm, []byte{vmu.StartCfmAppNotReady})
			return
		}
		c.event(vmu.OpStartCfm, []byte{vmu.StartCfmSuccess})
	case vmu.OpStartDataReq:
		d.requestData(c)
	case vmu.OpData:
		d.markers = append(d.markers, pkt.Data[0])
		d.store = append(d.store, pkt.Data[1:]...)
		if pkt.Data[0] == vmu.DataLastPacket {
			d.resume = vmu.ResumeValidation
			return
		}
		d.requestData(c)
	case vmu.OpIsValidationDoneReq:
		if d.validationPolls > 0 {
			d.validationPolls--
			c.event(vmu.OpIsValidationDoneCfm, []byte{0x00, 0x05})
			return
		}
		d.resume = vmu.ResumeTransferComplete
		c.event(vmu.OpTransferCompleteInd, nil)
	case vmu.OpTransferCompleteRes:
		if pkt.Data[0] == vmu.ResponseContinue {
			d.resume = vmu.ResumeCommit
			c.event(vmu.OpCommitReq, nil)
		}
	case vmu.OpInProgressRes:
		c.event(vmu.OpCommitReq, nil)
	case vmu.OpCommitCfm:
		if pkt.Data[0] == vmu.ResponseContinue {
			// 新固件生效，设备清除断点
			d.resume = vmu.ResumeDataTransfer
			d.syncID = make([]byte, vmu.SyncReqLength)
			c.event(vmu.OpCompleteInd, nil)
		}
	case vmu.OpAbortReq:
		d.reset()
		c.event(vmu.OpAbortCfm, nil)
	}
}

func (d *fakeDevice) requestData(c *fakeConn) {
	req := make([]byte, vmu.DataBytesReqLength)
	putUint32(req[0:4], d.chunk)
	if d.sendOffset {
		d.sendOffset = false
		putUint32(req[4:8], uint32(len(d.store)))
	}
	c.event(vmu.OpDataBytesReq, req)
}

func (d *fakeDevice) reset() {
	d.resume = vmu.ResumeDataTransfer
	d.syncID = make([]byte, vmu.SyncReqLength)
	d.store = nil
	d.markers = nil
}

func putUint32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// fakeConn 在独立 goroutine 中处理主机写入
type fakeConn struct {
	dev    *fakeDevice
	onRead func([]byte)
	inbox  chan []byte

	mu     sync.Mutex
	closed bool
	err    error
	doneC  chan struct{}
}

func (c *fakeConn) Write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return link.ErrConnClosed
	}
	c.inbox <- append([]byte(nil), b...)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeWith(nil)
	return nil
}

func (c *fakeConn) drop() { c.closeWith(io.ErrUnexpectedEOF) }

func (c *fakeConn) closeWith(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.err = cause
	close(c.doneC)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Done() <-chan struct{} { return c.doneC }

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeConn) serve() {
	dec := gaia.NewStreamDecoder()
	for {
		select {
		case <-c.doneC:
			return
		case b := <-c.inbox:
			frames, err := dec.Feed(b)
			if err != nil {
				c.dev.t.Errorf("device decode: %v", err)
			}
			for _, f := range frames {
				if c.isClosed() {
					return
				}
				c.dev.handle(c, f)
			}
		}
	}
}

func (c *fakeConn) send(raw []byte) {
	if c.isClosed() {
		return
	}
	c.onRead(raw)
}

func (c *fakeConn) ack(cmd uint16) {
	raw, err := gaia.EncodeAck(gaia.VendorCSR, cmd, gaia.StatusSuccess, gaia.DefaultFlags)
	if err != nil {
		c.dev.t.Errorf("encode ack: %v", err)
		return
	}
	c.send(raw)
}

func (c *fakeConn) command(vendor, cmd uint16, payload []byte) {
	raw, err := gaia.Encode(vendor, cmd, payload, gaia.DefaultFlags)
	if err != nil {
		c.dev.t.Errorf("encode command: %v", err)
		return
	}
	c.send(raw)
}

func (c *fakeConn) event(op vmu.OpCode, data []byte) {
	payload := append([]byte{byte(gaia.EventVMUPacket)}, vmu.Encode(op, data)...)
	raw, err := gaia.Encode(gaia.VendorCSR, gaia.CommandEventNotification, payload, gaia.DefaultFlags)
	if err != nil {
		c.dev.t.Errorf("encode event: %v", err)
		return
	}
	c.send(raw)
}

// record 监听回调的记录
type record struct {
	phases    []string
	decisions []DecisionKind
	errs      []*Error
	progress  []float64
	completed bool
}

// recorder 记录监听回调，并按配置自动回复决策
type recorder struct {
	mu      sync.Mutex
	engine  *Engine
	answers map[DecisionKind]bool
	rec     record
}

func newRecorder() *recorder {
	return &recorder{answers: map[DecisionKind]bool{
		DecisionTransferComplete: true,
		DecisionCommit:           true,
		DecisionEraseSQIF:        true,
		DecisionBatteryLow:       true,
	}}
}

func (r *recorder) answer(kind DecisionKind, accept bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers[kind] = accept
}

func (r *recorder) OnProgress(percent float64, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rec.progress = append(r.rec.progress, percent)
}

func (r *recorder) OnPhaseChanged(rp *vmu.ResumePoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rec.phases = append(r.rec.phases, vmu.Label(rp))
}

func (r *recorder) OnDecisionRequired(kind DecisionKind) {
	r.mu.Lock()
	r.rec.decisions = append(r.rec.decisions, kind)
	accept, ok := r.answers[kind]
	r.mu.Unlock()
	if ok {
		r.engine.Resolve(kind, accept)
	}
}

func (r *recorder) OnError(err *Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rec.errs = append(r.rec.errs, err)
}

func (r *recorder) OnComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rec.completed = true
}

func (r *recorder) snapshot() record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return record{
		phases:    append([]string(nil), r.rec.phases...),
		decisions: append([]DecisionKind(nil), r.rec.decisions...),
		errs:      append([]*Error(nil), r.rec.errs...),
		progress:  append([]float64(nil), r.rec.progress...),
		completed: r.rec.completed,
	}
}

func (r record) errorKinds() []ErrorKind {
	kinds := make([]ErrorKind, 0, len(r.errs))
	for _, e := range r.errs {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type harness struct {
	dev    *fakeDevice
	client *link.Client
	engine *Engine
	rec    *recorder
}

func testOptions() Options {
	return Options{
		StartRetryDelay:        5 * time.Millisecond,
		ValidationPollInterval: 5 * time.Millisecond,
		ReconnectAttempts:      3,
		ReconnectDelay:         10 * time.Millisecond,
	}
}

func newHarness(t *testing.T, dev *fakeDevice, opts Options) *harness {
	t.Helper()
	client := link.NewClient(dev, link.Options{})
	rec := newRecorder()
	opts.Listener = rec
	e := NewEngine(client, opts)
	rec.engine = e

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = client.Close()
	})
	return &harness{dev: dev, client: client, engine: e, rec: rec}
}

func (h *harness) waitState(t *testing.T, state string) Status {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.engine.Status().State == state
	}, 3*time.Second, 5*time.Millisecond, "state %s not reached, last %+v", state, h.engine.Status())
	return h.engine.Status()
}

func testImage(n int) []byte {
	img := make([]byte, n)
	for i := range img {
		img[i] = byte(i*7 + 3)
	}
	return img
}
