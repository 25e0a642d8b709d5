package upgrade

import (
	"crypto/md5"
	"time"

	"github.com/google/uuid"

	"github.com/taoyao-code/gaia-upgrader/internal/protocol/vmu"
)

// FileChecksum 固件镜像的 MD5 摘要
func FileChecksum(image []byte) []byte {
	sum := md5.Sum(image)
	return sum[:]
}

// session 一次升级会话；传输断开后保留，完成、中止或致命错误后销毁
type session struct {
	id     string
	file   []byte // 只读
	syncID []byte // MD5 末4字节

	resume        *vmu.ResumePoint
	offset        int
	pendingLast   bool
	startAttempts int
	awaiting      *DecisionKind

	restartAfterAbort bool
	abortCause        *Error

	startedAt       time.Time
	transferStarted time.Time
}

func newSession(file, checksum []byte) *session {
	return &session{
		id:        uuid.NewString(),
		file:      file,
		syncID:    vmu.SyncRequest(checksum),
		startedAt: time.Now(),
	}
}

// resetTransfer 传输断开后主机侧偏移归零，由设备在 DATA_BYTES_REQ 中给出续传偏移
func (s *session) resetTransfer() {
	s.offset = 0
	s.pendingLast = false
	s.transferStarted = time.Time{}
	s.awaiting = nil
}

// restart 设备确认中止后从头开始
func (s *session) restart() {
	s.resetTransfer()
	s.resume = nil
	s.startAttempts = 0
	s.abortCause = nil
}

// progress 当前百分比与按已用时间估算的剩余时间
func (s *session) progress(now time.Time) (float64, time.Duration) {
	total := len(s.file)
	percent := float64(s.offset) * 100 / float64(total)
	if s.offset <= 0 {
		return percent, 0
	}
	if s.transferStarted.IsZero() {
		s.transferStarted = now
	}
	elapsed := now.Sub(s.transferStarted)
	eta := time.Duration(int64(elapsed) * int64(total-s.offset) / int64(s.offset))
	return percent, eta
}

// nextChunk 按设备请求切出下一块数据
// 请求长度超过 limit 时截断；偏移增量仅在为正且不越界时生效
func (s *session) nextChunk(req vmu.DataBytesRequest, limit int) ([]byte, bool) {
	length := limit
	if uint64(req.Length) < uint64(limit) {
		length = int(req.Length)
	}
	if req.Offset > 0 && uint64(s.offset)+uint64(req.Offset) < uint64(len(s.file)) {
		s.offset += int(req.Offset)
	}

	remaining := len(s.file) - s.offset
	last := remaining <= length
	n := length
	if n > remaining {
		n = remaining
	}
	chunk := s.file[s.offset : s.offset+n]
	if last {
		s.pendingLast = true
	} else {
		s.offset += length
	}
	return chunk, last
}

func resumePtr(r vmu.ResumePoint) *vmu.ResumePoint { return &r }

func sameResume(a, b *vmu.ResumePoint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
