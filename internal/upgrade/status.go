package upgrade

import "github.com/taoyao-code/gaia-upgrader/internal/protocol/vmu"

// Status 引擎状态快照
type Status struct {
	SessionID         string  `json:"session_id,omitempty"`
	State             string  `json:"state"`
	Phase             string  `json:"phase"`
	Offset            int     `json:"offset"`
	Total             int     `json:"total"`
	Percent           float64 `json:"percent"`
	Awaiting          string  `json:"awaiting,omitempty"`
	StartAttempts     int     `json:"start_attempts"`
	ReconnectAttempts int     `json:"reconnect_attempts"`
	LinkConnected     bool    `json:"link_connected"`
	ChannelOpen       bool    `json:"channel_open"`
	LastError         string  `json:"last_error,omitempty"`
}

// Active 会话进行中
func (s Status) Active() bool {
	for _, st := range activeStates {
		if s.State == st {
			return true
		}
	}
	return false
}

// Status 返回最近一次循环结束时的状态
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

func (e *Engine) publish() {
	st := Status{
		SessionID:         e.lastSession,
		State:             e.life.current(),
		Phase:             vmu.LabelInitialisation,
		ReconnectAttempts: e.policy.Attempts(),
		LinkConnected:     e.linkUp,
		ChannelOpen:       e.channelOpen,
	}
	if e.lastError != nil {
		st.LastError = e.lastError.Error()
	}
	if s := e.sess; s != nil {
		st.Phase = vmu.Label(s.resume)
		st.Offset = s.offset
		st.Total = len(s.file)
		st.Percent = float64(s.offset) * 100 / float64(len(s.file))
		st.StartAttempts = s.startAttempts
		if s.awaiting != nil {
			st.Awaiting = s.awaiting.String()
		}
	}
	e.statusMu.Lock()
	e.status = st
	e.statusMu.Unlock()
}
