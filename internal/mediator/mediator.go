// Package mediator arbitrates many concurrent askers against one human.
// At most one request is ever active; later arrivals wait in a FIFO backlog,
// and pre-authored answers from the answer queue satisfy requests without
// human interaction.
package mediator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iambrandonn/parley/internal/answerqueue"
	"github.com/iambrandonn/parley/internal/choices"
	"github.com/iambrandonn/parley/internal/eventlog"
	"github.com/iambrandonn/parley/internal/journal"
	"github.com/iambrandonn/parley/internal/ledger"
	"github.com/iambrandonn/parley/internal/protocol"
)

// DefaultProcessingTimeout clears a processing indicator the caller never
// closed. It does not cancel the underlying request.
const DefaultProcessingTimeout = 5 * time.Minute

// Notifier pushes notifications to every channel endpoint. Implementations
// must not block.
type Notifier interface {
	Notify(protocol.Notification)
}

// Auditor appends events to the audit trail
type Auditor interface {
	Record(eventlog.Event)
}

// waiter pairs a request with its suspended caller. The channel is buffered
// so delivery never blocks the mediator.
type waiter struct {
	req  *protocol.Request
	done chan protocol.Result
}

// Mediator composes the pending slot, the backlog, the answer queue, and the
// ledgers. One mutex guards every mutation; each externally-triggered
// operation runs to completion under it.
type Mediator struct {
	logger *slog.Logger

	mu      sync.Mutex
	active  *waiter
	backlog []*waiter
	// waiters tracks every suspended caller by request id. An id is inserted
	// once on suspend and removed once on resolution; it is never reinserted.
	waiters map[string]*waiter
	queue   *answerqueue.Queue
	session *ledger.Ledger
	history *ledger.History
	closed  bool

	journal  *journal.Journal
	audit    Auditor
	notifier Notifier

	processing        bool
	processingTimer   *time.Timer
	processingTimeout time.Duration
}

// New creates a mediator over the given queue and ledgers
func New(queue *answerqueue.Queue, session *ledger.Ledger, history *ledger.History, logger *slog.Logger) *Mediator {
	return &Mediator{
		logger:            logger,
		waiters:           make(map[string]*waiter),
		queue:             queue,
		session:           session,
		history:           history,
		processingTimeout: DefaultProcessingTimeout,
	}
}

// SetJournal sets the persistence journal for dirty-marking
func (m *Mediator) SetJournal(j *journal.Journal) {
	m.journal = j
}

// SetAuditor sets the audit event sink
func (m *Mediator) SetAuditor(a Auditor) {
	m.audit = a
}

// SetNotifier sets the channel notification sink
func (m *Mediator) SetNotifier(n Notifier) {
	m.notifier = n
}

// SetProcessingTimeout overrides the processing indicator's self-clear delay
func (m *Mediator) SetProcessingTimeout(d time.Duration) {
	if d > 0 {
		m.processingTimeout = d
	}
}

// Restore loads persisted state before the mediator starts serving. Entries
// still pending in the snapshot belonged to waiters of a previous process and
// come back cancelled.
func (m *Mediator) Restore(snap journal.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue.Restore(snap.AnswerQueue)
	m.session.Load(snap.Session)
	m.history.Load(snap.History)
}

// Snapshot captures the persistable state. It is the journal's SnapshotFunc.
func (m *Mediator) Snapshot() journal.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return journal.Snapshot{
		AnswerQueue: m.queue.Snapshot(),
		Session:     m.session.Entries(),
		History:     m.history.Entries(),
	}
}

// Submit accepts a request and suspends until it terminates. Cancellation is
// reported in the result, never as an error. If the caller's ctx is done
// before resolution, the request is withdrawn and a cancelled result returned.
func (m *Mediator) Submit(ctx context.Context, req *protocol.Request) protocol.Result {
	protocol.NormalizeRequest(req)
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return protocol.Result{Cancelled: true, Value: protocol.SentinelShutdown}
	}

	m.record(eventlog.Event{Type: eventlog.TypeRequestAccepted, RequestID: req.ID})
	m.logger.Info("request accepted",
		"request_id", req.ID,
		"kind", req.Kind)

	// A consumable answer queue satisfies the request before it ever touches
	// the slot. No notification is sent for queue-satisfied requests.
	if item, ok := m.queue.Consume(); ok {
		m.session.Append(req.ID, promptText(req), req.Context)
		m.session.Complete(req.ID, item.Text, item.Attachments, true)
		m.history.Add(*m.session.Get(req.ID))
		m.record(eventlog.Event{Type: eventlog.TypeQueueConsumed, RequestID: req.ID, Detail: item.ID})
		m.record(eventlog.Event{Type: eventlog.TypeRequestCompleted, RequestID: req.ID})
		m.markDirty()
		m.mu.Unlock()
		return protocol.Result{Value: item.Text, Queue: true, Attachments: item.Attachments}
	}

	w := &waiter{req: req, done: make(chan protocol.Result, 1)}
	m.waiters[req.ID] = w
	m.session.Append(req.ID, promptText(req), req.Context)

	if m.active == nil {
		m.active = w
		m.record(eventlog.Event{Type: eventlog.TypeRequestActivated, RequestID: req.ID})
		m.notifyOpened(req)
	} else {
		m.backlog = append(m.backlog, w)
		m.depthChanged(len(m.backlog))
	}
	m.markDirty()
	m.mu.Unlock()

	return m.wait(ctx, w)
}

func (m *Mediator) wait(ctx context.Context, w *waiter) protocol.Result {
	select {
	case res := <-w.done:
		return res
	case <-ctx.Done():
	}

	m.abandon(w)

	// A resolution may have been delivered while we were withdrawing; it wins
	select {
	case res := <-w.done:
		return res
	default:
		return protocol.Result{Cancelled: true, Value: protocol.SentinelCallerAbandoned}
	}
}

// abandon withdraws a waiter whose caller stopped waiting
func (m *Mediator) abandon(w *waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.waiters[w.req.ID] != w {
		return
	}
	delete(m.waiters, w.req.ID)
	m.session.Cancel(w.req.ID, protocol.SentinelCallerAbandoned)
	m.record(eventlog.Event{Type: eventlog.TypeRequestCancelled, RequestID: w.req.ID, Detail: protocol.SentinelCallerAbandoned})
	m.logger.Info("caller abandoned request", "request_id", w.req.ID)

	if m.active == w {
		m.active = nil
		m.notifyClosed(w.req.ID, string(ledger.StatusCancelled))
		m.promote()
	} else {
		for i, bw := range m.backlog {
			if bw == w {
				m.backlog = append(m.backlog[:i], m.backlog[i+1:]...)
				break
			}
		}
		m.depthChanged(len(m.backlog))
	}
	m.markDirty()
}

// Resolve completes the active request with the human's answer. Only the
// active request can be resolved; a stale or repeated id is ignored.
func (m *Mediator) Resolve(id, answer string, attachments []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.active
	if w == nil || w.req.ID != id {
		return false
	}
	m.finishActive(w, protocol.Result{Value: answer, Attachments: attachments})
	return true
}

// ResolveMulti completes the active multi-question request with structured
// answers, or cancels just that request when the human declined it.
func (m *Mediator) ResolveMulti(id string, answers []protocol.SubAnswer, cancelled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.active
	if w == nil || w.req.ID != id {
		return false
	}
	if cancelled {
		m.finishActive(w, protocol.Result{Cancelled: true, Value: protocol.SentinelOperatorCancelled})
		return true
	}
	m.finishActive(w, protocol.Result{Value: formatSubAnswers(answers), SubAnswers: answers})
	return true
}

// finishActive terminates the active waiter, frees the slot, and promotes.
// Caller holds the lock.
func (m *Mediator) finishActive(w *waiter, res protocol.Result) {
	id := w.req.ID
	delete(m.waiters, id)

	if res.Cancelled {
		m.session.Cancel(id, res.Value)
		m.record(eventlog.Event{Type: eventlog.TypeRequestCancelled, RequestID: id, Detail: res.Value})
	} else {
		m.session.Complete(id, res.Value, res.Attachments, false)
		m.history.Add(*m.session.Get(id))
		m.record(eventlog.Event{Type: eventlog.TypeRequestCompleted, RequestID: id})
	}
	w.done <- res

	m.active = nil
	m.clearProcessing()
	status := ledger.StatusCompleted
	if res.Cancelled {
		status = ledger.StatusCancelled
	}
	m.notifyClosed(id, string(status))
	m.promote()
	m.markDirty()
}

// CancelActive cancels the active request and drains the entire backlog.
// Partial cancellation would strand backlog waiters with no way to be
// re-notified.
func (m *Mediator) CancelActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return false
	}

	w := m.active
	m.active = nil
	m.clearProcessing()
	m.cancelWaiter(w, protocol.SentinelOperatorCancelled)
	m.notifyClosed(w.req.ID, string(ledger.StatusCancelled))

	drained := m.backlog
	m.backlog = nil
	for _, bw := range drained {
		m.cancelWaiter(bw, protocol.SentinelOperatorCancelled)
		m.notifyClosed(bw.req.ID, string(ledger.StatusCancelled))
	}
	if len(drained) > 0 {
		m.depthChanged(0)
	}
	m.logger.Info("operator cancelled active request",
		"request_id", w.req.ID,
		"backlog_drained", len(drained))
	m.markDirty()
	return true
}

// cancelWaiter terminates one waiter with a sentinel. Caller holds the lock.
func (m *Mediator) cancelWaiter(w *waiter, sentinel string) {
	delete(m.waiters, w.req.ID)
	m.session.Cancel(w.req.ID, sentinel)
	m.record(eventlog.Event{Type: eventlog.TypeRequestCancelled, RequestID: w.req.ID, Detail: sentinel})
	w.done <- protocol.Result{Cancelled: true, Value: sentinel}
}

// promote moves the oldest backlog waiter into the freed slot, re-checking
// the answer queue first: the human may have queued answers while the
// previous request was active. Caller holds the lock.
func (m *Mediator) promote() {
	for len(m.backlog) > 0 {
		w := m.backlog[0]
		m.backlog = m.backlog[1:]
		m.depthChanged(len(m.backlog))

		if item, ok := m.queue.Consume(); ok {
			delete(m.waiters, w.req.ID)
			m.session.Complete(w.req.ID, item.Text, item.Attachments, true)
			m.history.Add(*m.session.Get(w.req.ID))
			m.record(eventlog.Event{Type: eventlog.TypeQueueConsumed, RequestID: w.req.ID, Detail: item.ID})
			m.record(eventlog.Event{Type: eventlog.TypeRequestCompleted, RequestID: w.req.ID})
			w.done <- protocol.Result{Value: item.Text, Queue: true, Attachments: item.Attachments}
			continue
		}

		m.active = w
		m.record(eventlog.Event{Type: eventlog.TypeRequestActivated, RequestID: w.req.ID})
		m.notifyOpened(w.req)
		return
	}
}

// EnqueueAnswer stages a pre-authored answer. Free text arriving with no
// active request implicitly enables auto-consumption rather than being
// discarded.
func (m *Mediator) EnqueueAnswer(text string, attachments []string) answerqueue.Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.queue.Push(text, attachments)
	if m.active == nil && !m.queue.Enabled() {
		m.queue.SetEnabled(true)
	}
	m.record(eventlog.Event{Type: eventlog.TypeAnswerQueued, Detail: item.ID})
	m.markDirty()
	return item
}

// SetQueueEnabled toggles answer queue auto-consumption
func (m *Mediator) SetQueueEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue.SetEnabled(enabled)
	m.markDirty()
}

// SetQueuePaused toggles the answer queue's independent pause flag
func (m *Mediator) SetQueuePaused(paused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue.SetPaused(paused)
	m.markDirty()
}

// QueueState returns a copy of the answer queue's state
func (m *Mediator) QueueState() answerqueue.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Snapshot()
}

// SetProcessing sets the "agent is processing" indicator. It self-clears
// after the timeout in case the caller never closes it; the underlying
// request is untouched either way.
func (m *Mediator) SetProcessing(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.processingTimer != nil {
		m.processingTimer.Stop()
		m.processingTimer = nil
	}
	m.processing = on
	if on {
		m.processingTimer = time.AfterFunc(m.processingTimeout, func() {
			m.SetProcessing(false)
		})
	}
	m.notify(protocol.Notification{Kind: protocol.NotifyProcessing, Processing: on})
}

// clearProcessing resets the indicator when the slot frees. Caller holds the
// lock.
func (m *Mediator) clearProcessing() {
	if !m.processing {
		return
	}
	if m.processingTimer != nil {
		m.processingTimer.Stop()
		m.processingTimer = nil
	}
	m.processing = false
	m.notify(protocol.Notification{Kind: protocol.NotifyProcessing, Processing: false})
}

// SessionEntries returns the session ledger's entries, oldest first
func (m *Mediator) SessionEntries() []ledger.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Entries()
}

// HistoryEntries returns the durable cross-restart history, oldest first
func (m *Mediator) HistoryEntries() []ledger.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Entries()
}

// ClearSession drops the session ledger (operator-initiated). History is
// untouched.
func (m *Mediator) ClearSession() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session.Clear()
	m.markDirty()
}

// ActiveID returns the active request's id, or "" when the slot is free
func (m *Mediator) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return ""
	}
	return m.active.req.ID
}

// BacklogDepth returns the number of waiting backlog requests
func (m *Mediator) BacklogDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.backlog)
}

// Close drains every outstanding waiter with a shutdown sentinel and flushes
// state synchronously. Submissions after Close resolve immediately cancelled.
func (m *Mediator) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true

	if m.processingTimer != nil {
		m.processingTimer.Stop()
		m.processingTimer = nil
	}

	if m.active != nil {
		m.cancelWaiter(m.active, protocol.SentinelShutdown)
		m.active = nil
	}
	for _, w := range m.backlog {
		m.cancelWaiter(w, protocol.SentinelShutdown)
	}
	m.backlog = nil
	m.markDirty()
	m.mu.Unlock()

	if m.journal != nil {
		return m.journal.Flush()
	}
	return nil
}

// notifyOpened pushes the active request to the channel. Explicit choices
// win over extraction; multi-question requests carry their sub-questions and
// skip classification entirely.
func (m *Mediator) notifyOpened(req *protocol.Request) {
	n := protocol.Notification{
		Kind:      protocol.NotifyRequestOpened,
		RequestID: req.ID,
		Prompt:    promptText(req),
		Context:   req.Context,
	}
	switch {
	case req.Kind == protocol.KindMultiQuestion:
		n.SubQuestions = req.SubQuestions
	case len(req.ExplicitChoices) > 0:
		n.Choices = req.ExplicitChoices
	default:
		c := choices.Classify(req.Question)
		n.Choices = c.Choices
		n.Approval = c.Approval
	}
	m.notify(n)
}

func (m *Mediator) notifyClosed(id, status string) {
	m.notify(protocol.Notification{
		Kind:      protocol.NotifyRequestClosed,
		RequestID: id,
		Status:    status,
	})
}

func (m *Mediator) depthChanged(depth int) {
	m.record(eventlog.Event{Type: eventlog.TypeBacklogDepth, Depth: depth})
	m.notify(protocol.Notification{Kind: protocol.NotifyBacklogDepth, Depth: depth})
}

func (m *Mediator) notify(n protocol.Notification) {
	if m.notifier == nil {
		return
	}
	n.OccurredAt = time.Now().UTC()
	m.notifier.Notify(n)
}

func (m *Mediator) record(evt eventlog.Event) {
	if m.audit != nil {
		m.audit.Record(evt)
	}
}

func (m *Mediator) markDirty() {
	if m.journal != nil {
		m.journal.MarkDirty()
	}
}

// promptText flattens a request into the ledger's prompt field
func promptText(req *protocol.Request) string {
	if req.Kind != protocol.KindMultiQuestion {
		return req.Question
	}
	headers := make([]string, len(req.SubQuestions))
	for i, sq := range req.SubQuestions {
		headers[i] = sq.Header
	}
	return strings.Join(headers, "; ")
}

// formatSubAnswers serializes structured answers into the single response
// string handed back to the caller
func formatSubAnswers(answers []protocol.SubAnswer) string {
	var b strings.Builder
	for i, a := range answers {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(a.Header)
		b.WriteString(": ")
		parts := append([]string(nil), a.Selected...)
		if a.Freeform != "" {
			parts = append(parts, a.Freeform)
		}
		b.WriteString(strings.Join(parts, ", "))
	}
	return b.String()
}
