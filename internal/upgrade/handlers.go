package upgrade

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/gaia-upgrader/internal/protocol/gaia"
	"github.com/taoyao-code/gaia-upgrader/internal/protocol/vmu"
)

func ackStatus(f *gaia.Frame) gaia.Status {
	st, ok := f.Status()
	if !ok {
		return gaia.StatusInvalidParameter
	}
	return st
}

func (e *Engine) onConnectAck(f *gaia.Frame) error {
	if e.sess == nil || !e.life.is(StateConnecting) {
		e.log.Debug("stale upgrade connect ack")
		return nil
	}
	if st := ackStatus(f); st != gaia.StatusSuccess {
		e.fail(commandError(KindCommandFailed, gaia.CommandVMUpgradeConnect, "upgrade connection failed: "+st.String()))
		return nil
	}
	e.channelOpen = true
	e.life.fire(evChannelOpen)
	e.log.Info("upgrade channel open", zap.String("session", e.sess.id))
	e.registerAndSync()
	return nil
}

func (e *Engine) onDisconnectAck(f *gaia.Frame) error {
	e.channelOpen = false
	e.log.Info("upgrade channel closed", zap.Stringer("status", ackStatus(f)))
	if e.forceLinkDisconnect {
		e.forceLinkDisconnect = false
		return e.link.Disconnect()
	}
	return nil
}

func (e *Engine) onControlAck(f *gaia.Frame) error {
	if st := ackStatus(f); st != gaia.StatusSuccess {
		e.ctrl.reset()
		if e.disconnectAfterAck {
			e.disconnectAfterAck = false
			e.disconnectUpgrade()
			return nil
		}
		if e.sess != nil && e.life.active() {
			e.sess.pendingLast = false
			err := commandError(KindCommandFailed, gaia.CommandVMUpgradeControl, "upgrade command failed: "+st.String())
			e.report(err)
			e.abort(err)
		}
		return nil
	}

	done, next := e.ctrl.acked()
	if next != nil {
		e.writeControl(next)
	}
	if isLastData(done) && e.sess != nil && e.sess.pendingLast {
		e.sess.pendingLast = false
		e.lis.OnProgress(100, 0)
		e.setResume(resumePtr(vmu.ResumeValidation))
		e.sendControl(vmu.Encode(vmu.OpIsValidationDoneReq, nil))
	}
	if e.disconnectAfterAck && e.ctrl.idle() {
		e.disconnectAfterAck = false
		e.disconnectUpgrade()
	}
	return nil
}

func isLastData(pkt []byte) bool {
	return len(pkt) > vmu.HeaderSize && vmu.OpCode(pkt[0]) == vmu.OpData && pkt[vmu.HeaderSize] == vmu.DataLastPacket
}

func (e *Engine) onRegisterAck(f *gaia.Frame) error {
	st := ackStatus(f)
	if st == gaia.StatusSuccess {
		return nil
	}
	if e.sess != nil && e.life.active() {
		e.fail(commandError(KindCommandFailed, gaia.CommandRegisterNotification, "notification registration failed: "+st.String()))
		e.disconnectUpgrade()
	}
	return nil
}

func (e *Engine) onCancelAck(f *gaia.Frame) error {
	e.log.Debug("notification cancelled", zap.Stringer("status", ackStatus(f)))
	return nil
}

func (e *Engine) onEvent(f *gaia.Frame) error {
	pkt, ok := vmu.FromEvent(f)
	if !ok {
		ev, _ := f.Event()
		e.log.Debug("event ignored", zap.Stringer("event", ev))
		return nil
	}
	if !pkt.Valid() {
		if e.appm != nil {
			e.appm.UpgradeErrors.WithLabelValues(KindFraming.String()).Inc()
		}
		e.log.Warn("malformed vmu packet", zap.Binary("payload", f.Payload))
		return nil
	}
	if e.sess == nil || !e.life.active() {
		e.log.Debug("vmu packet without session", zap.Stringer("op", pkt.Op()))
		return nil
	}
	if e.life.is(StateAborting) && pkt.Op() != vmu.OpAbortCfm && pkt.Op() != vmu.OpErrorWarnInd {
		e.log.Debug("vmu packet ignored while aborting", zap.Stringer("op", pkt.Op()))
		return nil
	}
	e.log.Debug("vmu packet received", zap.Stringer("op", pkt.Op()), zap.Uint16("len", pkt.Length))
	e.handlePacket(pkt)
	return nil
}

func (e *Engine) handlePacket(pkt vmu.Packet) {
	switch pkt.Op() {
	case vmu.OpSyncCfm:
		e.onSyncCfm(pkt)
	case vmu.OpStartCfm:
		e.onStartCfm(pkt)
	case vmu.OpDataBytesReq:
		e.onDataBytesReq(pkt)
	case vmu.OpAbortCfm:
		e.onAbortCfm()
	case vmu.OpErrorWarnInd:
		e.onErrorWarnInd(pkt)
	case vmu.OpIsValidationDoneCfm:
		e.onValidationDoneCfm(pkt)
	case vmu.OpTransferCompleteInd:
		e.setResume(resumePtr(vmu.ResumeTransferComplete))
		e.ask(DecisionTransferComplete)
	case vmu.OpCommitReq:
		e.setResume(resumePtr(vmu.ResumeCommit))
		e.ask(DecisionCommit)
	case vmu.OpEraseSQIFReq:
		e.setResume(resumePtr(vmu.ResumeCommit))
		e.ask(DecisionEraseSQIF)
	case vmu.OpCompleteInd:
		e.onCompleteInd()
	default:
		e.log.Debug("unexpected vmu packet", zap.Stringer("op", pkt.Op()), zap.Bool("deprecated", pkt.Op().Deprecated()))
	}
}

func inboundError(kind ErrorKind, op vmu.OpCode, msg string) *Error {
	return &Error{Kind: kind, Code: Unknown, OpCode: int(op), Command: int(gaia.CommandEventNotification), Message: msg}
}

func (e *Engine) onSyncCfm(pkt vmu.Packet) {
	sc := vmu.ParseSyncConfirm(pkt.Data)
	if sc.IDDiffers(e.sess.syncID) {
		e.restartClean("device holds a different upgrade")
		return
	}
	e.setResume(sc.ResumePoint)
	e.sendStartReq()
}

func (e *Engine) onStartCfm(pkt vmu.Packet) {
	s := e.sess
	if len(pkt.Data) == 0 {
		s.startAttempts = 0
		err := inboundError(KindDesync, vmu.OpStartCfm, "the device sent an empty start confirmation, abort and try again")
		e.report(err)
		e.abort(err)
		return
	}

	switch pkt.Data[0] {
	case vmu.StartCfmSuccess:
		s.startAttempts = 0
		e.resumeFrom(s.resume)
	case vmu.StartCfmAppNotReady:
		s.startAttempts++
		if s.startAttempts >= e.opts.MaxStartAttempts {
			s.startAttempts = 0
			err := inboundError(KindStartFailed, vmu.OpStartCfm, "the device is not ready to start an upgrade")
			e.report(err)
			e.abort(err)
			return
		}
		e.log.Info("device not ready, retrying start", zap.Int("attempt", s.startAttempts), zap.Duration("delay", e.opts.StartRetryDelay))
		e.timers.after(e.opts.StartRetryDelay, e.sendStartReq)
	default:
		s.startAttempts = 0
		err := inboundError(KindStartFailed, vmu.OpStartCfm, fmt.Sprintf("start refused with status 0x%02X", pkt.Data[0]))
		e.report(err)
		e.abort(err)
	}
}

// resumeFrom 按设备记录的断点继续
func (e *Engine) resumeFrom(rp *vmu.ResumePoint) {
	if rp == nil {
		e.setResume(resumePtr(vmu.ResumeDataTransfer))
		e.sendControl(vmu.Encode(vmu.OpStartDataReq, nil))
		return
	}
	switch *rp {
	case vmu.ResumeValidation:
		e.sendControl(vmu.Encode(vmu.OpIsValidationDoneReq, nil))
	case vmu.ResumeTransferComplete:
		e.ask(DecisionTransferComplete)
	case vmu.ResumeInProgress:
		e.sendControl(vmu.ResponsePacket(vmu.OpInProgressRes, true))
	case vmu.ResumeCommit:
		e.ask(DecisionCommit)
	default:
		e.setResume(resumePtr(vmu.ResumeDataTransfer))
		e.sendControl(vmu.Encode(vmu.OpStartDataReq, nil))
	}
}

func (e *Engine) onDataBytesReq(pkt vmu.Packet) {
	s := e.sess
	req, err := vmu.ParseDataBytesRequest(pkt.Data)
	if err != nil {
		derr := inboundError(KindDesync, vmu.OpDataBytesReq, "the device sent a malformed data request, abort and try again")
		e.report(derr)
		e.abort(derr)
		return
	}

	percent, eta := s.progress(time.Now())
	e.lis.OnProgress(percent, eta)

	chunk, last := s.nextChunk(req, e.chunkLimit())
	e.sendControl(vmu.DataPacket(last, chunk))
	if e.appm != nil {
		e.appm.UpgradeBytesSent.Add(float64(len(chunk)))
	}
	if last {
		e.log.Info("last data packet sent", zap.String("session", s.id), zap.Int("size", len(s.file)))
	}
}

func (e *Engine) onValidationDoneCfm(pkt vmu.Packet) {
	delay := e.opts.ValidationPollInterval
	// 设备可在确认中给出建议等待时间（毫秒）
	if len(pkt.Data) >= 2 {
		if ms := binary.BigEndian.Uint16(pkt.Data[:2]); ms > 0 {
			delay = time.Duration(ms) * time.Millisecond
		}
	}
	e.timers.after(delay, func() {
		if e.sess != nil {
			e.sendControl(vmu.Encode(vmu.OpIsValidationDoneReq, nil))
		}
	})
}

func (e *Engine) onAbortCfm() {
	s := e.sess
	if s.restartAfterAbort {
		e.timers.cancelAll()
		e.setResume(nil)
		s.restart()
		e.life.fire(evRestart)
		e.registerAndSync()
		return
	}
	e.disconnectUpgrade()
	e.finish(s.abortCause)
}

func (e *Engine) onErrorWarnInd(pkt vmu.Packet) {
	s := e.sess
	code, ok := vmu.ParseErrorCode(pkt.Data)
	severity := vmu.SeverityFatal
	if ok {
		severity = code.Classify()
	}
	// 中止过程中只处理致命错误
	if severity != vmu.SeverityFatal && e.life.is(StateAborting) {
		e.log.Info("warning ignored while aborting", zap.String("session", s.id), zap.Stringer("code", code))
		return
	}

	switch severity {
	case vmu.SeverityRestart:
		e.restartClean("sync id is different")
	case vmu.SeverityBatteryLow:
		warn := inboundError(KindDeviceWarning, vmu.OpErrorWarnInd, e.opts.Messages.Message(code))
		warn.Code = int(code)
		e.report(warn)
		e.ask(DecisionBatteryLow)
	default:
		msg := e.opts.Messages.Message(code)
		if msg == "" {
			msg = fmt.Sprintf("unknown return code %s", code)
		}
		ferr := inboundError(KindDeviceFatal, vmu.OpErrorWarnInd, msg)
		ferr.Code = int(code)
		e.report(ferr)
		e.log.Warn("fatal device error, tearing down", zap.String("session", s.id), zap.Stringer("code", code))
		// 回显返回码，应答后断开升级通道，再断开传输
		e.sendControl(vmu.ErrorWarnResponse(code))
		e.disconnectAfterAck = true
		e.forceLinkDisconnect = true
		e.finish(ferr)
	}
}

func (e *Engine) onCompleteInd() {
	e.log.Info("upgrade complete", zap.String("session", e.sess.id))
	e.lis.OnComplete()
	e.disconnectUpgrade()
	e.end(evComplete)
}
