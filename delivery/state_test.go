package delivery

import (
	"errors"
	"fmt"
	"testing"

	"github.com/BaSui01/agentdesk/hitl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func req(id string, kind hitl.Kind, options ...string) *hitl.Request {
	return &hitl.Request{ID: id, Kind: kind, Prompt: "prompt " + id, Options: options, Status: hitl.StatusPending}
}

// poll 驱动一轮完整的拉取：tick 后立即以给定结果完成。
func poll(t *testing.T, state State, reqs ...*hitl.Request) (State, []effect) {
	t.Helper()
	state, effects := Reduce(state, evTick{})
	require.True(t, state.Polling)
	require.Contains(t, effects, effStartPoll{Seq: state.PollSeq})
	return Reduce(state, evPollSucceeded{Seq: state.PollSeq, Requests: reqs})
}

func findEffect[T effect](effects []effect) (T, bool) {
	for _, e := range effects {
		if v, ok := e.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func TestReduce_DisplaysFirstUnseenOnly(t *testing.T) {
	state, effects := poll(t, State{}, req("a", hitl.KindTextInput), req("b", hitl.KindLogin))

	assert.Equal(t, PhaseDisplaying, state.Phase)
	assert.Equal(t, "a", state.Current.ID)
	render, ok := findEffect[effRender](effects)
	require.True(t, ok)
	assert.Equal(t, "a", render.Request.ID)
	assert.Equal(t, AffordanceText, render.Affordance)

	// 后续拉取不会抢占当前展示
	state, effects = poll(t, state, req("c", hitl.KindConfirmation), req("a", hitl.KindTextInput), req("b", hitl.KindLogin))
	assert.Equal(t, "a", state.Current.ID)
	assert.Empty(t, effects)
}

func TestReduce_TickWhilePollingIsNoop(t *testing.T) {
	state, _ := Reduce(State{}, evTick{})
	next, effects := Reduce(state, evTick{})
	assert.Equal(t, state.PollSeq, next.PollSeq)
	assert.Empty(t, effects)
}

func TestReduce_SelectionScenario(t *testing.T) {
	state, _ := poll(t, State{}, req("sel", hitl.KindSelection, "A", "B"))
	require.Equal(t, "sel", state.Current.ID)

	choice := "B"
	state, effects := Reduce(state, cmdSubmit{RequestID: "sel", Input: Input{Choice: &choice}})
	assert.Equal(t, PhaseSubmitting, state.Phase)
	send, ok := findEffect[effSend](effects)
	require.True(t, ok)
	assert.Equal(t, hitl.Response{RequestID: "sel", Value: "B"}, send.Response)

	state, effects = Reduce(state, evSendSucceeded{RequestID: "sel"})
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.Nil(t, state.Current)
	assert.True(t, state.IsRetired("sel"))
	assert.Equal(t, msgSent, state.Status.Text)
	_, ok = findEffect[effClear](effects)
	assert.True(t, ok)
	_, ok = findEffect[effStartPoll](effects)
	assert.True(t, ok, "a successful send triggers an immediate poll")

	// 服务端已移除，退役记录被清理
	state, effects = Reduce(state, evPollSucceeded{Seq: state.PollSeq})
	assert.False(t, state.IsRetired("sel"))
	assert.Empty(t, effects)
}

func TestReduce_ConfirmationUnsetSubmitsFalse(t *testing.T) {
	state, _ := poll(t, State{}, req("c", hitl.KindConfirmation))
	_, effects := Reduce(state, cmdSubmit{RequestID: "c"})
	send, ok := findEffect[effSend](effects)
	require.True(t, ok)
	assert.Equal(t, false, send.Response.Value)
}

func TestReduce_CancelFlow(t *testing.T) {
	state, _ := poll(t, State{}, req("x", hitl.KindLogin))

	state, effects := Reduce(state, cmdCancel{RequestID: "x"})
	send, ok := findEffect[effSend](effects)
	require.True(t, ok)
	assert.True(t, send.Response.Cancelled)
	assert.Equal(t, msgCancelling, state.Status.Text)

	state, _ = Reduce(state, evSendSucceeded{RequestID: "x"})
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.Equal(t, msgCancelled, state.Status.Text)
	assert.True(t, state.IsRetired("x"))
}

func TestReduce_SendFailureKeepsRequest(t *testing.T) {
	state, _ := poll(t, State{}, req("t", hitl.KindTextInput))
	state, _ = Reduce(state, cmdSubmit{RequestID: "t", Input: Input{Text: "hello"}})

	state, effects := Reduce(state, evSendFailed{RequestID: "t", Err: errors.New("connection refused")})
	assert.Equal(t, PhaseDisplaying, state.Phase)
	assert.Equal(t, "t", state.Current.ID)
	assert.False(t, state.IsRetired("t"))
	assert.Equal(t, StatusError, state.Status.Level)
	assert.Contains(t, state.Status.Text, "connection refused")
	_, ok := findEffect[effRender](effects)
	assert.True(t, ok, "form is shown again for retry")
	_, ok = findEffect[effSend](effects)
	assert.False(t, ok, "no automatic retry")

	// 用户重试
	state, effects = Reduce(state, cmdSubmit{RequestID: "t", Input: Input{Text: "hello"}})
	assert.Equal(t, PhaseSubmitting, state.Phase)
	send, ok := findEffect[effSend](effects)
	require.True(t, ok)
	assert.Equal(t, "hello", send.Response.Value)
}

func TestReduce_NotFoundRetiresQuietly(t *testing.T) {
	state, _ := poll(t, State{}, req("r", hitl.KindConfirmation))
	state, _ = Reduce(state, cmdSubmit{RequestID: "r", Input: Input{Toggle: true}})

	state, _ = Reduce(state, evSendNotFound{RequestID: "r"})
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.True(t, state.IsRetired("r"))
	assert.Equal(t, StatusMessage{Level: StatusWarn, Text: msgNoLongerActive}, state.Status)
}

func TestReduce_DisplayedRequestVanishes(t *testing.T) {
	state, _ := poll(t, State{}, req("gone", hitl.KindTextInput), req("next", hitl.KindLogin))

	state, effects := poll(t, state, req("next", hitl.KindLogin))
	assert.Equal(t, msgNoLongerActive, state.Status.Text)
	assert.True(t, state.IsRetired("gone"))
	_, ok := findEffect[effClear](effects)
	assert.True(t, ok)
	require.NotNil(t, state.Current)
	assert.Equal(t, "next", state.Current.ID)
}

func TestReduce_StaleCommandsIgnored(t *testing.T) {
	state, _ := poll(t, State{}, req("a", hitl.KindTextInput))

	next, effects := Reduce(state, cmdSubmit{RequestID: "other"})
	assert.Equal(t, state, next)
	assert.Empty(t, effects)

	next, effects = Reduce(State{}, cmdCancel{RequestID: "a"})
	assert.Equal(t, PhaseIdle, next.Phase)
	assert.Empty(t, effects)

	next, effects = Reduce(state, evSendSucceeded{RequestID: "a"})
	assert.Equal(t, state, next)
	assert.Empty(t, effects)
}

func TestReduce_PollFailureIsLogged(t *testing.T) {
	state, _ := poll(t, State{}, req("a", hitl.KindTextInput))
	state, _ = Reduce(state, evTick{})

	next, effects := Reduce(state, evPollFailed{Seq: state.PollSeq, Err: errors.New("timeout")})
	assert.False(t, next.Polling)
	assert.Equal(t, "a", next.Current.ID)
	logEff, ok := findEffect[effLogPollError](effects)
	require.True(t, ok)
	assert.EqualError(t, logEff.Err, "timeout")
}

func TestReduce_RetiredNotRedisplayedFromStalePoll(t *testing.T) {
	state, _ := poll(t, State{}, req("a", hitl.KindTextInput))
	state, _ = Reduce(state, cmdSubmit{RequestID: "a"})

	// 提交过程中发起的拉取仍然看到 a
	state, _ = Reduce(state, evTick{})
	inflight := state.PollSeq
	state, _ = Reduce(state, evSendSucceeded{RequestID: "a"})

	state, effects := Reduce(state, evPollSucceeded{Seq: inflight, Requests: []*hitl.Request{req("a", hitl.KindTextInput)}})
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.True(t, state.IsRetired("a"))
	assert.Empty(t, effects)
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	state, _ := poll(t, State{}, req("a", hitl.KindTextInput))
	state, _ = Reduce(state, cmdSubmit{RequestID: "a"})
	before := state

	after, _ := Reduce(state, evSendSucceeded{RequestID: "a"})
	assert.Empty(t, before.Retired)
	assert.Len(t, after.Retired, 1)
}

// 任意拉取、提交、结果的交错下，最多只有一个请求处于展示状态，
// 展示顺序遵循创建顺序，已退役的请求不会被再次展示。
func TestProperty_SingleActiveDisplay(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var state State
		var pending []*hitl.Request
		nextID := 0
		displayed := make(map[string]bool)
		var lastShownSeq int

		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			var in input
			switch rapid.IntRange(0, 5).Draw(rt, "event") {
			case 0:
				nextID++
				pending = append(pending, req(fmt.Sprintf("r%03d", nextID), hitl.KindTextInput))
				continue
			case 1:
				in = evTick{}
			case 2:
				if !state.Polling {
					continue
				}
				in = evPollSucceeded{Seq: state.PollSeq, Requests: append([]*hitl.Request(nil), pending...)}
			case 3:
				if state.Current == nil {
					continue
				}
				in = cmdSubmit{RequestID: state.Current.ID, Input: Input{Text: "v"}}
			case 4:
				if state.Phase != PhaseSubmitting {
					continue
				}
				id := state.Current.ID
				pending = removeRequest(pending, id)
				in = evSendSucceeded{RequestID: id}
			case 5:
				if state.Phase != PhaseSubmitting {
					continue
				}
				in = evSendFailed{RequestID: state.Current.ID, Err: errors.New("boom")}
			}

			var effects []effect
			state, effects = Reduce(state, in)

			renders := 0
			for _, e := range effects {
				if r, ok := e.(effRender); ok {
					renders++
					if !displayed[r.Request.ID] {
						var seq int
						fmt.Sscanf(r.Request.ID, "r%03d", &seq)
						assert.Greater(rt, seq, lastShownSeq, "requests surface in creation order")
						lastShownSeq = seq
						displayed[r.Request.ID] = true
					} else {
						assert.Equal(rt, state.Current.ID, r.Request.ID, "only the current request is re-rendered")
					}
				}
			}
			assert.LessOrEqual(rt, renders, 1)

			switch state.Phase {
			case PhaseIdle:
				assert.Nil(rt, state.Current)
			default:
				require.NotNil(rt, state.Current)
				assert.False(rt, state.IsRetired(state.Current.ID))
			}
		}
	})
}

func removeRequest(reqs []*hitl.Request, id string) []*hitl.Request {
	out := reqs[:0:0]
	for _, r := range reqs {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}
