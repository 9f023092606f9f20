package delivery

import (
	"fmt"

	"github.com/BaSui01/agentdesk/hitl"
)

// Phase 投递循环所处阶段
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDisplaying
	PhaseSubmitting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDisplaying:
		return "displaying"
	case PhaseSubmitting:
		return "submitting"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// StatusLevel 状态消息级别
type StatusLevel string

const (
	StatusInfo  StatusLevel = "info"
	StatusWarn  StatusLevel = "warn"
	StatusError StatusLevel = "error"
)

// StatusMessage 是展示给用户的状态提示。
type StatusMessage struct {
	Level StatusLevel
	Text  string
}

const (
	msgNoLongerActive = "request no longer active"
	msgSubmitting     = "sending response..."
	msgCancelling     = "cancelling request..."
	msgSent           = "response sent"
	msgCancelled      = "request cancelled"
)

type action int

const (
	actionNone action = iota
	actionSubmit
	actionCancel
)

// State 投递循环的完整状态。Reduce 不修改传入的 State，Retired 按写时复制处理。
type State struct {
	Phase   Phase
	Current *hitl.Request
	// Retired 记录本地已处理的请求 ID 及退役时最近一次拉取的序号。
	Retired map[string]uint64
	Polling bool
	PollSeq uint64
	Status  StatusMessage

	action action
}

// IsRetired 报告请求 ID 是否已在本地退役。
func (s State) IsRetired(id string) bool {
	_, ok := s.Retired[id]
	return ok
}

// ===== 输入 =====

type input interface{ isInput() }

type evTick struct{}

type evPollSucceeded struct {
	Seq      uint64
	Requests []*hitl.Request
}

type evPollFailed struct {
	Seq uint64
	Err error
}

type cmdSubmit struct {
	RequestID string
	Input     Input
}

type cmdCancel struct {
	RequestID string
}

type evSendSucceeded struct{ RequestID string }

type evSendNotFound struct{ RequestID string }

type evSendFailed struct {
	RequestID string
	Err       error
}

func (evTick) isInput()          {}
func (evPollSucceeded) isInput() {}
func (evPollFailed) isInput()    {}
func (cmdSubmit) isInput()       {}
func (cmdCancel) isInput()       {}
func (evSendSucceeded) isInput() {}
func (evSendNotFound) isInput()  {}
func (evSendFailed) isInput()    {}

// ===== 副作用 =====

type effect interface{ isEffect() }

type effStartPoll struct{ Seq uint64 }

type effRender struct {
	Request    *hitl.Request
	Affordance Affordance
}

type effClear struct{}

type effSend struct{ Response hitl.Response }

type effStatus struct{ Message StatusMessage }

type effLogPollError struct{ Err error }

func (effStartPoll) isEffect()    {}
func (effRender) isEffect()       {}
func (effClear) isEffect()        {}
func (effSend) isEffect()         {}
func (effStatus) isEffect()       {}
func (effLogPollError) isEffect() {}

// Reduce 是投递循环的纯状态转换函数。
func Reduce(state State, in input) (State, []effect) {
	switch ev := in.(type) {
	case evTick:
		return startPoll(state, nil)
	case evPollSucceeded:
		return reducePollSucceeded(state, ev)
	case evPollFailed:
		if ev.Seq != state.PollSeq {
			return state, nil
		}
		state.Polling = false
		return state, []effect{effLogPollError{Err: ev.Err}}
	case cmdSubmit:
		return reduceSend(state, ev.RequestID, func(req *hitl.Request) hitl.Response {
			return hitl.Response{RequestID: req.ID, Value: ExtractValue(req, ev.Input)}
		}, actionSubmit)
	case cmdCancel:
		return reduceSend(state, ev.RequestID, func(req *hitl.Request) hitl.Response {
			return hitl.Response{RequestID: req.ID, Cancelled: true}
		}, actionCancel)
	case evSendSucceeded:
		text := msgSent
		if state.action == actionCancel {
			text = msgCancelled
		}
		return reduceSendDone(state, ev.RequestID, StatusMessage{Level: StatusInfo, Text: text})
	case evSendNotFound:
		return reduceSendDone(state, ev.RequestID, StatusMessage{Level: StatusWarn, Text: msgNoLongerActive})
	case evSendFailed:
		return reduceSendFailed(state, ev)
	default:
		return state, nil
	}
}

// startPoll 在没有拉取进行中时发起新一轮拉取。
func startPoll(state State, effects []effect) (State, []effect) {
	if state.Polling {
		return state, effects
	}
	state.Polling = true
	state.PollSeq++
	return state, append(effects, effStartPoll{Seq: state.PollSeq})
}

func reducePollSucceeded(state State, ev evPollSucceeded) (State, []effect) {
	if ev.Seq != state.PollSeq {
		return state, nil
	}
	state.Polling = false

	present := make(map[string]struct{}, len(ev.Requests))
	for _, req := range ev.Requests {
		present[req.ID] = struct{}{}
	}

	// 拉取在退役之后发起且结果中已不含该 ID，说明服务端已确认移除
	for id, retiredAt := range state.Retired {
		if _, ok := present[id]; !ok && ev.Seq > retiredAt {
			state.Retired = withoutRetired(state.Retired, id)
		}
	}

	var effects []effect
	switch state.Phase {
	case PhaseSubmitting:
		return state, nil
	case PhaseDisplaying:
		if _, ok := present[state.Current.ID]; ok {
			return state, nil
		}
		// 请求已在别处被处理
		state = retireCurrent(state)
		state.Status = StatusMessage{Level: StatusWarn, Text: msgNoLongerActive}
		effects = append(effects, effClear{}, effStatus{Message: state.Status})
	}

	for _, req := range ev.Requests {
		if state.IsRetired(req.ID) {
			continue
		}
		state.Phase = PhaseDisplaying
		state.Current = req
		effects = append(effects, effRender{Request: req, Affordance: AffordanceFor(req.Kind)})
		break
	}
	return state, effects
}

func reduceSend(state State, requestID string, build func(*hitl.Request) hitl.Response, act action) (State, []effect) {
	if state.Phase != PhaseDisplaying || state.Current == nil || state.Current.ID != requestID {
		return state, nil
	}
	state.Phase = PhaseSubmitting
	state.action = act
	text := msgSubmitting
	if act == actionCancel {
		text = msgCancelling
	}
	state.Status = StatusMessage{Level: StatusInfo, Text: text}
	return state, []effect{
		effStatus{Message: state.Status},
		effSend{Response: build(state.Current)},
	}
}

func reduceSendDone(state State, requestID string, status StatusMessage) (State, []effect) {
	if state.Phase != PhaseSubmitting || state.Current == nil || state.Current.ID != requestID {
		return state, nil
	}
	state = retireCurrent(state)
	state.Status = status
	return startPoll(state, []effect{effClear{}, effStatus{Message: status}})
}

func reduceSendFailed(state State, ev evSendFailed) (State, []effect) {
	if state.Phase != PhaseSubmitting || state.Current == nil || state.Current.ID != ev.RequestID {
		return state, nil
	}
	verb := "send response"
	if state.action == actionCancel {
		verb = "cancel request"
	}
	state.Phase = PhaseDisplaying
	state.action = actionNone
	state.Status = StatusMessage{
		Level: StatusError,
		Text:  fmt.Sprintf("failed to %s: %v (try again)", verb, ev.Err),
	}
	return state, []effect{
		effStatus{Message: state.Status},
		effRender{Request: state.Current, Affordance: AffordanceFor(state.Current.Kind)},
	}
}

func retireCurrent(state State) State {
	state.Retired = withRetired(state.Retired, state.Current.ID, state.PollSeq)
	state.Phase = PhaseIdle
	state.Current = nil
	state.action = actionNone
	return state
}

func withRetired(retired map[string]uint64, id string, seq uint64) map[string]uint64 {
	next := make(map[string]uint64, len(retired)+1)
	for k, v := range retired {
		next[k] = v
	}
	next[id] = seq
	return next
}

func withoutRetired(retired map[string]uint64, id string) map[string]uint64 {
	next := make(map[string]uint64, len(retired))
	for k, v := range retired {
		if k != id {
			next[k] = v
		}
	}
	return next
}
