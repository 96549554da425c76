package mediator

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iambrandonn/parley/internal/answerqueue"
	"github.com/iambrandonn/parley/internal/journal"
	"github.com/iambrandonn/parley/internal/ledger"
	"github.com/iambrandonn/parley/internal/protocol"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []protocol.Notification
}

func (r *recordingNotifier) Notify(n protocol.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, n)
}

func (r *recordingNotifier) byKind(kind protocol.NotificationKind) []protocol.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.Notification
	for _, n := range r.msgs {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func newTestMediator(t *testing.T) (*Mediator, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	m := New(answerqueue.New(), ledger.New(0), ledger.NewHistory(0), slog.New(slog.DiscardHandler))
	m.SetNotifier(notifier)
	return m, notifier
}

func submitAsync(m *Mediator, req *protocol.Request) <-chan protocol.Result {
	ch := make(chan protocol.Result, 1)
	go func() {
		ch <- m.Submit(context.Background(), req)
	}()
	return ch
}

func waitActive(t *testing.T, m *Mediator, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.ActiveID() == id
	}, time.Second, time.Millisecond, "request %s never became active", id)
}

func waitDepth(t *testing.T, m *Mediator, depth int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.BacklogDepth() == depth
	}, time.Second, time.Millisecond, "backlog never reached depth %d", depth)
}

func TestSubmitOccupiesFreeSlot(t *testing.T) {
	m, notifier := newTestMediator(t)

	done := submitAsync(m, &protocol.Request{ID: "a", Question: "Deploy to staging?"})
	waitActive(t, m, "a")

	opened := notifier.byKind(protocol.NotifyRequestOpened)
	require.Len(t, opened, 1)
	require.Equal(t, "a", opened[0].RequestID)
	require.Equal(t, "Deploy to staging?", opened[0].Prompt)
	require.True(t, opened[0].Approval)

	require.True(t, m.Resolve("a", "yes", nil))
	res := <-done
	require.Equal(t, "yes", res.Value)
	require.False(t, res.Cancelled)
	require.False(t, res.Queue)
}

func TestSingleActiveInvariant(t *testing.T) {
	m, _ := newTestMediator(t)

	dones := make([]<-chan protocol.Result, 3)
	ids := []string{"a", "b", "c"}
	dones[0] = submitAsync(m, &protocol.Request{ID: "a", Question: "first?"})
	waitActive(t, m, "a")
	dones[1] = submitAsync(m, &protocol.Request{ID: "b", Question: "second?"})
	waitDepth(t, m, 1)
	dones[2] = submitAsync(m, &protocol.Request{ID: "c", Question: "third?"})
	waitDepth(t, m, 2)

	// only one active at a time, promoted strictly in arrival order
	for i, id := range ids {
		require.Equal(t, id, m.ActiveID())
		require.Equal(t, len(ids)-i-1, m.BacklogDepth())
		require.True(t, m.Resolve(id, "answer "+id, nil))
		res := <-dones[i]
		require.Equal(t, "answer "+id, res.Value)
	}
	require.Equal(t, "", m.ActiveID())
}

func TestExactlyOnceResolution(t *testing.T) {
	m, _ := newTestMediator(t)

	done := submitAsync(m, &protocol.Request{ID: "a", Question: "ok?"})
	waitActive(t, m, "a")

	require.True(t, m.Resolve("a", "yes", nil))
	<-done
	require.False(t, m.Resolve("a", "again", nil), "terminal id must be a no-op")

	entries := m.SessionEntries()
	require.Len(t, entries, 1)
	require.Equal(t, "yes", entries[0].Response)
	require.Equal(t, ledger.StatusCompleted, entries[0].Status)
}

func TestResolveStaleIDIgnored(t *testing.T) {
	m, _ := newTestMediator(t)

	doneA := submitAsync(m, &protocol.Request{ID: "a", Question: "first?"})
	waitActive(t, m, "a")
	doneB := submitAsync(m, &protocol.Request{ID: "b", Question: "second?"})
	waitDepth(t, m, 1)

	// only the active request is resolvable
	require.False(t, m.Resolve("b", "early", nil))
	require.False(t, m.Resolve("missing", "x", nil))

	require.True(t, m.Resolve("a", "one", nil))
	<-doneA
	waitActive(t, m, "b")
	require.True(t, m.Resolve("b", "two", nil))
	require.Equal(t, "two", (<-doneB).Value)
}

func TestAutoConsumePrecedence(t *testing.T) {
	m, notifier := newTestMediator(t)

	m.EnqueueAnswer("use postgres", nil)
	m.EnqueueAnswer("skip the migration", []string{"notes.txt"})
	m.SetQueueEnabled(true)

	res := m.Submit(context.Background(), &protocol.Request{Question: "Which database?"})
	require.True(t, res.Queue)
	require.Equal(t, "use postgres", res.Value)

	res = m.Submit(context.Background(), &protocol.Request{Question: "Run migration?"})
	require.True(t, res.Queue)
	require.Equal(t, "skip the migration", res.Value)
	require.Equal(t, []string{"notes.txt"}, res.Attachments)

	// queue-satisfied requests never reach the channel
	require.Empty(t, notifier.byKind(protocol.NotifyRequestOpened))
	require.Equal(t, "", m.ActiveID())

	entries := m.SessionEntries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.True(t, e.ViaQueue)
		require.Equal(t, ledger.StatusCompleted, e.Status)
	}
}

func TestQueuePausedNotConsumed(t *testing.T) {
	m, _ := newTestMediator(t)

	m.EnqueueAnswer("staged", nil)
	m.SetQueueEnabled(true)
	m.SetQueuePaused(true)

	done := submitAsync(m, &protocol.Request{ID: "a", Question: "anything?"})
	waitActive(t, m, "a")

	require.True(t, m.Resolve("a", "live answer", nil))
	res := <-done
	require.False(t, res.Queue)

	state := m.QueueState()
	require.Len(t, state.Items, 1, "staged item untouched")
	require.Equal(t, "staged", state.Items[0].Text)
}

func TestPromoteReChecksQueue(t *testing.T) {
	m, notifier := newTestMediator(t)

	doneA := submitAsync(m, &protocol.Request{ID: "a", Question: "first?"})
	waitActive(t, m, "a")
	doneB := submitAsync(m, &protocol.Request{ID: "b", Question: "second?"})
	waitDepth(t, m, 1)

	// answers queued while a is on screen satisfy b at promotion time
	m.EnqueueAnswer("queued for b", nil)
	m.SetQueueEnabled(true)

	require.True(t, m.Resolve("a", "live", nil))
	<-doneA

	resB := <-doneB
	require.True(t, resB.Queue)
	require.Equal(t, "queued for b", resB.Value)
	require.Equal(t, "", m.ActiveID())

	opened := notifier.byKind(protocol.NotifyRequestOpened)
	require.Len(t, opened, 1, "b must never be shown")
}

func TestResolveSurvivesSessionBoundWithBacklog(t *testing.T) {
	// bound the session ledger below the number of in-flight requests;
	// resolving must still find every live entry
	m := New(answerqueue.New(), ledger.New(1), ledger.NewHistory(0), slog.New(slog.DiscardHandler))
	m.SetNotifier(&recordingNotifier{})

	doneA := submitAsync(m, &protocol.Request{ID: "a", Question: "first?"})
	waitActive(t, m, "a")
	doneB := submitAsync(m, &protocol.Request{ID: "b", Question: "second?"})
	waitDepth(t, m, 1)

	require.True(t, m.Resolve("a", "yes", nil))
	resA := <-doneA
	require.Equal(t, "yes", resA.Value)

	waitActive(t, m, "b")
	require.True(t, m.Resolve("b", "no", nil))
	resB := <-doneB
	require.Equal(t, "no", resB.Value)

	hist := m.HistoryEntries()
	require.Len(t, hist, 2)
	require.Equal(t, "a", hist[0].ID)
	require.Equal(t, "b", hist[1].ID)
}

func TestQueueConsumeAtPromotionSurvivesSessionBound(t *testing.T) {
	m := New(answerqueue.New(), ledger.New(1), ledger.NewHistory(0), slog.New(slog.DiscardHandler))
	m.SetNotifier(&recordingNotifier{})

	doneA := submitAsync(m, &protocol.Request{ID: "a", Question: "first?"})
	waitActive(t, m, "a")
	doneB := submitAsync(m, &protocol.Request{ID: "b", Question: "second?"})
	waitDepth(t, m, 1)

	m.EnqueueAnswer("queued for b", nil)
	m.SetQueueEnabled(true)

	require.True(t, m.Resolve("a", "live", nil))
	<-doneA

	resB := <-doneB
	require.True(t, resB.Queue)
	require.Equal(t, "queued for b", resB.Value)

	hist := m.HistoryEntries()
	require.Len(t, hist, 2)
	require.Equal(t, "b", hist[1].ID)
	require.True(t, hist[1].ViaQueue)
}

func TestCancelDrainsBacklog(t *testing.T) {
	m, notifier := newTestMediator(t)

	dones := []<-chan protocol.Result{
		submitAsync(m, &protocol.Request{ID: "a", Question: "one?"}),
	}
	waitActive(t, m, "a")
	dones = append(dones, submitAsync(m, &protocol.Request{ID: "b", Question: "two?"}))
	waitDepth(t, m, 1)
	dones = append(dones, submitAsync(m, &protocol.Request{ID: "c", Question: "three?"}))
	waitDepth(t, m, 2)

	require.True(t, m.CancelActive())

	for _, done := range dones {
		res := <-done
		require.True(t, res.Cancelled)
		require.Equal(t, protocol.SentinelOperatorCancelled, res.Value)
	}
	require.Equal(t, "", m.ActiveID())
	require.Equal(t, 0, m.BacklogDepth())

	for _, e := range m.SessionEntries() {
		require.Equal(t, ledger.StatusCancelled, e.Status)
	}
	require.Empty(t, m.HistoryEntries(), "cancelled entries never reach history")

	// every caller learns its request is gone, drained backlog included
	closed := notifier.byKind(protocol.NotifyRequestClosed)
	require.Len(t, closed, 3)
	seen := make(map[string]bool)
	for _, n := range closed {
		require.Equal(t, string(ledger.StatusCancelled), n.Status)
		seen[n.RequestID] = true
	}
	require.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, seen)
}

func TestCancelActiveNoSlot(t *testing.T) {
	m, _ := newTestMediator(t)
	require.False(t, m.CancelActive())
}

func TestCallerAbandonInBacklog(t *testing.T) {
	m, _ := newTestMediator(t)

	doneA := submitAsync(m, &protocol.Request{ID: "a", Question: "one?"})
	waitActive(t, m, "a")

	ctx, cancel := context.WithCancel(context.Background())
	doneB := make(chan protocol.Result, 1)
	go func() {
		doneB <- m.Submit(ctx, &protocol.Request{ID: "b", Question: "two?"})
	}()
	waitDepth(t, m, 1)

	cancel()
	resB := <-doneB
	require.True(t, resB.Cancelled)
	require.Equal(t, protocol.SentinelCallerAbandoned, resB.Value)
	waitDepth(t, m, 0)

	// the active request is untouched
	require.True(t, m.Resolve("a", "still fine", nil))
	require.Equal(t, "still fine", (<-doneA).Value)
}

func TestCallerAbandonActivePromotesNext(t *testing.T) {
	m, _ := newTestMediator(t)

	ctx, cancel := context.WithCancel(context.Background())
	doneA := make(chan protocol.Result, 1)
	go func() {
		doneA <- m.Submit(ctx, &protocol.Request{ID: "a", Question: "one?"})
	}()
	waitActive(t, m, "a")
	doneB := submitAsync(m, &protocol.Request{ID: "b", Question: "two?"})
	waitDepth(t, m, 1)

	cancel()
	require.True(t, (<-doneA).Cancelled)
	waitActive(t, m, "b")

	require.True(t, m.Resolve("b", "promoted", nil))
	require.Equal(t, "promoted", (<-doneB).Value)
}

func TestSubmitAfterClose(t *testing.T) {
	m, _ := newTestMediator(t)
	require.NoError(t, m.Close())

	res := m.Submit(context.Background(), &protocol.Request{Question: "too late?"})
	require.True(t, res.Cancelled)
	require.Equal(t, protocol.SentinelShutdown, res.Value)
}

func TestCloseDrainsOutstandingWaiters(t *testing.T) {
	m, _ := newTestMediator(t)

	doneA := submitAsync(m, &protocol.Request{ID: "a", Question: "one?"})
	waitActive(t, m, "a")
	doneB := submitAsync(m, &protocol.Request{ID: "b", Question: "two?"})
	waitDepth(t, m, 1)

	require.NoError(t, m.Close())

	for _, done := range []<-chan protocol.Result{doneA, doneB} {
		res := <-done
		require.True(t, res.Cancelled)
		require.Equal(t, protocol.SentinelShutdown, res.Value)
	}
}

func TestEnqueueImplicitEnable(t *testing.T) {
	m, _ := newTestMediator(t)

	// free text with no active request turns auto-consumption on
	m.EnqueueAnswer("for later", nil)
	require.True(t, m.QueueState().Enabled)

	res := m.Submit(context.Background(), &protocol.Request{Question: "next step?"})
	require.True(t, res.Queue)
	require.Equal(t, "for later", res.Value)
}

func TestEnqueueWithActiveKeepsDisabled(t *testing.T) {
	m, _ := newTestMediator(t)

	done := submitAsync(m, &protocol.Request{ID: "a", Question: "busy?"})
	waitActive(t, m, "a")

	m.EnqueueAnswer("staged while busy", nil)
	require.False(t, m.QueueState().Enabled)

	require.True(t, m.Resolve("a", "done", nil))
	<-done
}

func TestMultiQuestionResolution(t *testing.T) {
	m, notifier := newTestMediator(t)

	done := submitAsync(m, &protocol.Request{
		ID: "m1",
		SubQuestions: []protocol.SubQuestion{
			{Header: "Database", Question: "Which engine?", Options: []protocol.Option{{Label: "Postgres"}, {Label: "MySQL"}}},
			{Header: "Region", Question: "Where?", AllowFreeform: true},
		},
	})
	waitActive(t, m, "m1")

	opened := notifier.byKind(protocol.NotifyRequestOpened)
	require.Len(t, opened, 1)
	require.Len(t, opened[0].SubQuestions, 2)
	require.Empty(t, opened[0].Choices, "multi-question requests skip extraction")
	require.False(t, opened[0].Approval)

	answers := []protocol.SubAnswer{
		{Header: "Database", Selected: []string{"Postgres"}},
		{Header: "Region", Freeform: "us-east-1"},
	}
	require.True(t, m.ResolveMulti("m1", answers, false))

	res := <-done
	require.Equal(t, answers, res.SubAnswers)
	require.Equal(t, "Database: Postgres\nRegion: us-east-1", res.Value)
}

func TestMultiQuestionDeclined(t *testing.T) {
	m, _ := newTestMediator(t)

	done := submitAsync(m, &protocol.Request{
		ID:           "m1",
		SubQuestions: []protocol.SubQuestion{{Header: "H", Question: "q?"}},
	})
	waitActive(t, m, "m1")

	require.True(t, m.ResolveMulti("m1", nil, true))
	res := <-done
	require.True(t, res.Cancelled)
	require.Equal(t, protocol.SentinelOperatorCancelled, res.Value)
}

func TestMultiQuestionCapBeforeNotify(t *testing.T) {
	m, notifier := newTestMediator(t)

	var subs []protocol.SubQuestion
	for i := 0; i < 15; i++ {
		subs = append(subs, protocol.SubQuestion{Question: "q?"})
	}
	done := submitAsync(m, &protocol.Request{ID: "m1", SubQuestions: subs})
	waitActive(t, m, "m1")

	opened := notifier.byKind(protocol.NotifyRequestOpened)
	require.Len(t, opened, 1)
	require.Len(t, opened[0].SubQuestions, protocol.MaxSubQuestions)

	require.True(t, m.ResolveMulti("m1", nil, true))
	<-done
}

func TestExplicitChoicesSkipExtraction(t *testing.T) {
	m, notifier := newTestMediator(t)

	explicit := []protocol.Choice{{Label: "Keep", Value: "keep"}, {Label: "Drop", Value: "drop"}}
	done := submitAsync(m, &protocol.Request{
		ID:              "a",
		Question:        "Pick one:\n1. Something\n2. Else",
		ExplicitChoices: explicit,
	})
	waitActive(t, m, "a")

	opened := notifier.byKind(protocol.NotifyRequestOpened)
	require.Len(t, opened, 1)
	require.Equal(t, explicit, opened[0].Choices)

	require.True(t, m.Resolve("a", "keep", nil))
	<-done
}

func TestOpenedNotificationExtractsChoices(t *testing.T) {
	m, notifier := newTestMediator(t)

	done := submitAsync(m, &protocol.Request{
		ID:       "a",
		Question: "Pick a database:\n1. Postgres\n2. MySQL\n3. SQLite",
	})
	waitActive(t, m, "a")

	opened := notifier.byKind(protocol.NotifyRequestOpened)
	require.Len(t, opened, 1)
	require.Len(t, opened[0].Choices, 3)
	require.Equal(t, "1", opened[0].Choices[0].Value)
	require.Equal(t, "Postgres", opened[0].Choices[0].Label)
	require.False(t, opened[0].Approval, "choices and approval are mutually exclusive")

	require.True(t, m.Resolve("a", "1", nil))
	<-done
}

func TestBacklogDepthNotifications(t *testing.T) {
	m, notifier := newTestMediator(t)

	doneA := submitAsync(m, &protocol.Request{ID: "a", Question: "one?"})
	waitActive(t, m, "a")
	doneB := submitAsync(m, &protocol.Request{ID: "b", Question: "two?"})
	waitDepth(t, m, 1)

	depths := notifier.byKind(protocol.NotifyBacklogDepth)
	require.NotEmpty(t, depths)
	require.Equal(t, 1, depths[len(depths)-1].Depth)

	require.True(t, m.Resolve("a", "x", nil))
	<-doneA
	waitActive(t, m, "b")

	depths = notifier.byKind(protocol.NotifyBacklogDepth)
	require.Equal(t, 0, depths[len(depths)-1].Depth)

	require.True(t, m.Resolve("b", "y", nil))
	<-doneB
}

func TestProcessingIndicatorSelfClears(t *testing.T) {
	m, notifier := newTestMediator(t)
	m.SetProcessingTimeout(20 * time.Millisecond)

	m.SetProcessing(true)

	require.Eventually(t, func() bool {
		msgs := notifier.byKind(protocol.NotifyProcessing)
		return len(msgs) == 2 && !msgs[1].Processing
	}, time.Second, 5*time.Millisecond, "indicator never self-cleared")
}

func TestRestoreRecancelsPending(t *testing.T) {
	m, _ := newTestMediator(t)

	m.Restore(journal.Snapshot{
		AnswerQueue: answerqueue.State{Enabled: true, Items: []answerqueue.Item{{ID: "q1", Text: "staged"}}},
		Session: []ledger.Entry{
			{ID: "old1", Prompt: "answered", Status: ledger.StatusCompleted, Response: "yes"},
			{ID: "old2", Prompt: "orphaned", Status: ledger.StatusPending},
		},
		History: []ledger.Entry{{ID: "h1", Prompt: "ancient", Status: ledger.StatusCompleted}},
	})

	entries := m.SessionEntries()
	require.Len(t, entries, 2)
	require.Equal(t, ledger.StatusCompleted, entries[0].Status)
	require.Equal(t, ledger.StatusCancelled, entries[1].Status)
	require.Equal(t, protocol.SentinelRestartInterrupt, entries[1].Response)

	// the recovered pending entry must not leak into history
	for _, e := range m.HistoryEntries() {
		require.NotEqual(t, "old2", e.ID)
	}

	// restored queue state is live
	res := m.Submit(context.Background(), &protocol.Request{Question: "next?"})
	require.True(t, res.Queue)
	require.Equal(t, "staged", res.Value)
}

func TestCompletedEntriesMergeIntoHistory(t *testing.T) {
	m, _ := newTestMediator(t)

	done := submitAsync(m, &protocol.Request{ID: "a", Question: "merge me?"})
	waitActive(t, m, "a")
	require.True(t, m.Resolve("a", "yes", nil))
	<-done

	hist := m.HistoryEntries()
	require.Len(t, hist, 1)
	require.Equal(t, "a", hist[0].ID)
	require.Equal(t, "yes", hist[0].Response)
}

func TestClearSessionKeepsHistory(t *testing.T) {
	m, _ := newTestMediator(t)

	done := submitAsync(m, &protocol.Request{ID: "a", Question: "done?"})
	waitActive(t, m, "a")
	require.True(t, m.Resolve("a", "yes", nil))
	<-done

	m.ClearSession()
	require.Empty(t, m.SessionEntries())
	require.Len(t, m.HistoryEntries(), 1)
}
