package delivery_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentdesk/delivery"
	"github.com/BaSui01/agentdesk/hitl"
	"github.com/BaSui01/agentdesk/testutil"
	"github.com/BaSui01/agentdesk/testutil/fixtures"
	"github.com/BaSui01/agentdesk/testutil/mocks"
	"github.com/BaSui01/agentdesk/types"
)

func startLoop(t *testing.T, transport delivery.Transport, renderer delivery.Renderer) *delivery.Loop {
	t.Helper()
	loop := delivery.NewLoop(transport, renderer, delivery.LoopConfig{
		PollInterval:   10 * time.Millisecond,
		RequestTimeout: time.Second,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop
}

func waitDisplaying(t *testing.T, loop *delivery.Loop, id string) {
	t.Helper()
	testutil.AssertEventuallyTrue(t, func() bool {
		s := loop.Snapshot()
		return s.Phase == delivery.PhaseDisplaying && s.Current != nil && s.Current.ID == id
	}, 2*time.Second)
}

// 每种类型依次展示并按类型约定提交值，挂起集合最终清空。
func TestScenario_AnswersEveryKindInOrder(t *testing.T) {
	kinds := fixtures.AllKinds()
	transport := mocks.NewMockTransport()
	ids := make([]string, len(kinds))
	for i, opts := range kinds {
		ids[i] = "req-" + string(opts.Kind)
		transport.WithPending(fixtures.PendingRequest(ids[i], opts))
	}
	renderer := mocks.NewRecordingRenderer()
	loop := startLoop(t, transport, renderer)

	choice := "us-east"
	inputs := []delivery.Input{
		{Text: "  v1.2.0 "},
		{},
		{Toggle: true},
		{Choice: &choice},
		{},
	}
	for i, id := range ids {
		waitDisplaying(t, loop, id)
		require.True(t, loop.Submit(id, inputs[i]))
	}

	testutil.AssertEventuallyTrue(t, func() bool { return transport.PendingCount() == 0 }, 2*time.Second)

	got := make(map[string]any)
	for _, r := range transport.Responses() {
		got[r.RequestID] = r.Value
	}
	testutil.AssertJSONEqual(t, map[string]any{
		"req-text_input":   "  v1.2.0 ",
		"req-login":        "completed",
		"req-confirmation": true,
		"req-selection":    "us-east",
		"req-file_upload":  "acknowledged",
	}, got)

	assert.Equal(t, ids, uniqueInOrder(renderer.Shown()))
	assert.True(t, renderer.HasStatus("response sent"))
}

// 提交失败时请求保持展示、不退役；恢复后可以再次提交。
func TestScenario_TransportFailureKeepsRequest(t *testing.T) {
	req := fixtures.PendingRequest("req-confirm", fixtures.Confirmation())
	transport := mocks.NewMockTransport().
		WithPending(req).
		WithRespondError(types.NewTransportError("connection refused", errors.New("dial tcp")))
	renderer := mocks.NewRecordingRenderer()
	loop := startLoop(t, transport, renderer)

	waitDisplaying(t, loop, req.ID)
	require.True(t, loop.Submit(req.ID, delivery.Input{Toggle: true}))

	testutil.AssertEventuallyTrue(t, func() bool {
		for _, s := range renderer.Statuses() {
			if s.Level == delivery.StatusError && strings.Contains(s.Text, "try again") {
				return true
			}
		}
		return false
	}, 2*time.Second)
	waitDisplaying(t, loop, req.ID)
	assert.Empty(t, transport.Responses())
	assert.Equal(t, 1, transport.PendingCount())

	transport.WithRespondError(nil)
	require.True(t, loop.Submit(req.ID, delivery.Input{Toggle: false}))

	testutil.AssertEventuallyTrue(t, func() bool { return len(transport.Responses()) == 1 }, 2*time.Second)
	assert.Equal(t, hitl.Response{RequestID: req.ID, Value: false}, transport.Responses()[0])
}

// 请求被其他前端处理后，本地在下一次拉取时退役并回到空闲。
func TestScenario_RetiredElsewhere(t *testing.T) {
	first := fixtures.PendingRequest("req-first", fixtures.TextInput())
	second := fixtures.PendingRequest("req-second", fixtures.Selection())
	transport := mocks.NewMockTransport().WithPending(first, second)
	renderer := mocks.NewRecordingRenderer()
	loop := startLoop(t, transport, renderer)

	waitDisplaying(t, loop, first.ID)
	transport.Retire(first.ID)

	waitDisplaying(t, loop, second.ID)
	assert.True(t, renderer.HasStatus("request no longer active"))
	assert.Empty(t, transport.Responses())
}

// 取消时已不存在的请求按已处理对待，不报告错误。
func TestScenario_CancelNotFound(t *testing.T) {
	req := fixtures.PendingRequest("req-login", fixtures.Login())
	transport := mocks.NewMockTransport().
		WithPending(req).
		WithCancelError(types.NewNotFoundError(req.ID))
	renderer := mocks.NewRecordingRenderer()
	loop := startLoop(t, transport, renderer)

	waitDisplaying(t, loop, req.ID)
	require.True(t, loop.Cancel(req.ID))

	testutil.AssertEventuallyTrue(t, func() bool {
		return loop.Snapshot().Phase == delivery.PhaseIdle && renderer.HasStatus("request no longer active")
	}, 2*time.Second)
	for _, s := range renderer.Statuses() {
		assert.NotEqual(t, delivery.StatusError, s.Level)
	}
}

// 拉取失败不终止循环，恢复后继续展示。
func TestScenario_PollFailureRecovers(t *testing.T) {
	transport := mocks.NewMockTransport().WithListError(errors.New("server down"))
	loop := startLoop(t, transport, mocks.NewRecordingRenderer())

	testutil.AssertEventuallyTrue(t, func() bool { return transport.ListCalls() >= 3 }, 2*time.Second)
	assert.Equal(t, delivery.PhaseIdle, loop.Snapshot().Phase)

	req := fixtures.PendingRequest("req-late", fixtures.Confirmation())
	transport.WithPending(req).WithListError(nil)
	waitDisplaying(t, loop, req.ID)
}

// 两个客户端同时展示同一请求：先提交者成功，后提交者得到"不再活跃"而非错误。
func TestScenario_TwoClientsRace(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := hitl.NewMemoryStore()
	id, err := store.Create(ctx, hitl.CreateOptions{
		Kind:    hitl.KindSelection,
		Prompt:  "Pick one",
		Options: []string{"A", "B"},
	})
	require.NoError(t, err)

	newClient := func() (*delivery.Loop, *mocks.RecordingRenderer) {
		renderer := mocks.NewRecordingRenderer()
		loop := delivery.NewLoop(delivery.NewStoreTransport(store), renderer, delivery.LoopConfig{
			PollInterval:   time.Hour,
			RequestTimeout: time.Second,
		}, nil)
		runCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = loop.Run(runCtx)
		}()
		t.Cleanup(func() {
			cancel()
			<-done
		})
		return loop, renderer
	}
	first, _ := newClient()
	second, secondRenderer := newClient()
	waitDisplaying(t, first, id)
	waitDisplaying(t, second, id)

	choice := "B"
	require.True(t, first.Submit(id, delivery.Input{Choice: &choice}))
	outcome, err := store.Await(testutil.TestContextWithTimeout(t, 2*time.Second), id)
	require.NoError(t, err)

	other := "A"
	require.True(t, second.Submit(id, delivery.Input{Choice: &other}))
	testutil.AssertEventuallyTrue(t, func() bool {
		return second.Snapshot().Phase == delivery.PhaseIdle && secondRenderer.HasStatus("request no longer active")
	}, 2*time.Second)
	for _, s := range secondRenderer.Statuses() {
		assert.NotEqual(t, delivery.StatusError, s.Level)
	}

	wire := testutil.MustParseJSON[map[string]any](testutil.MustJSON(outcome))
	assert.Equal(t, "B", wire["value"])
	assert.Equal(t, "answered", wire["status"])

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// 已取消的上下文使循环立即返回，不留下周期任务。
func TestScenario_RunReturnsOnCancelledContext(t *testing.T) {
	loop := delivery.NewLoop(mocks.NewMockTransport(), nil, delivery.LoopConfig{}, nil)

	done := make(chan error, 1)
	go func() { done <- loop.Run(testutil.CancelledContext()) }()

	err, ok := testutil.WaitForChannel(done, 2*time.Second)
	require.True(t, ok, "loop did not stop")
	assert.NoError(t, err)
	assert.False(t, loop.Submit("late", delivery.Input{}))
}

func uniqueInOrder(ids []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
