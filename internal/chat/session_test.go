package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chathistory/internal/clientstore"
	"chathistory/internal/models"
	"chathistory/internal/worker"
)

type manualScheduler struct {
	mu        sync.Mutex
	jobs      []worker.Job
	delays    []time.Duration
	cancelled []string
}

func (m *manualScheduler) SubmitAfter(delay time.Duration, job worker.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	m.delays = append(m.delays, delay)
}

func (m *manualScheduler) CancelClient(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, clientID)
}

func (m *manualScheduler) drain() []worker.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := m.jobs
	m.jobs = nil
	return jobs
}

func (m *manualScheduler) runAll() {
	for _, job := range m.drain() {
		job.Task(context.Background())
	}
}

type fixedReplier struct {
	text string
	err  error
}

func (f fixedReplier) Reply(string) (string, error) {
	return f.text, f.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, store clientstore.Store, sched Scheduler) *Session {
	t.Helper()
	s := NewSession("client-1", Config{
		Store:      store,
		Scheduler:  sched,
		Replier:    fixedReplier{text: "canned"},
		ReplyDelay: time.Second,
		Clock:      fixedClock(testNow),
	})
	require.NoError(t, s.Load(context.Background()))
	return s
}

func storedMessages(t *testing.T, store clientstore.Store) []models.ChatMessage {
	t.Helper()
	raw, err := store.Get(context.Background(), "client-1", models.ChatHistoryKey)
	require.NoError(t, err)
	var out []models.ChatMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestAppendRejectsEmptyText(t *testing.T) {
	store := clientstore.NewMemoryStore()
	sched := &manualScheduler{}
	s := newTestSession(t, store, sched)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := s.Append(context.Background(), text)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, sched.drain())
	_, err := store.Get(context.Background(), "client-1", models.ChatHistoryKey)
	assert.ErrorIs(t, err, clientstore.ErrNotFound)
}

func TestAppendSchedulesReplyAndMarksSent(t *testing.T) {
	store := clientstore.NewMemoryStore()
	sched := &manualScheduler{}
	s := newTestSession(t, store, sched)

	msg, err := s.Append(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSending, msg.Status)
	assert.Equal(t, models.SenderUser, msg.Sender)
	assert.Equal(t, []time.Duration{time.Second}, sched.delays)

	saved := storedMessages(t, store)
	require.Len(t, saved, 1)
	assert.Equal(t, models.StatusSending, saved[0].Status)

	sched.runAll()

	messages := s.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, models.StatusSent, messages[0].Status)
	assert.Equal(t, models.SenderAssistant, messages[1].Sender)
	assert.Equal(t, "canned", messages[1].Text)
	assert.Equal(t, models.StatusNone, messages[1].Status)

	saved = storedMessages(t, store)
	require.Len(t, saved, 2)
	assert.Equal(t, models.StatusSent, saved[0].Status)
}

func TestIDsUniqueWithinSameMillisecond(t *testing.T) {
	s := newTestSession(t, clientstore.NewMemoryStore(), &manualScheduler{})

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		msg, err := s.Append(context.Background(), "burst")
		require.NoError(t, err)
		assert.False(t, seen[msg.ID], "duplicate id %s", msg.ID)
		seen[msg.ID] = true
	}
	messages := s.Messages()
	assert.Equal(t, "1714564800000", messages[0].ID)
	assert.Equal(t, "1714564800004", messages[4].ID)
}

func TestLoadRestoresSavedHistory(t *testing.T) {
	store := clientstore.NewMemoryStore()
	sched := &manualScheduler{}
	first := newTestSession(t, store, sched)
	_, err := first.Append(context.Background(), "remember me")
	require.NoError(t, err)
	sched.runAll()

	second := newTestSession(t, store, &manualScheduler{})
	want := first.Messages()
	got := second.Messages()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Text, got[i].Text)
		assert.Equal(t, want[i].Sender, got[i].Sender)
		assert.Equal(t, want[i].Status, got[i].Status)
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
	}

	// ids continue past the loaded ones
	next, err := second.Append(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, "1714564800002", next.ID)
}

func TestLoadMalformedHistoryStartsEmpty(t *testing.T) {
	store := clientstore.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), "client-1", models.ChatHistoryKey, "{not json"))

	s := newTestSession(t, store, &manualScheduler{})
	assert.Equal(t, 0, s.Len())
}

func TestClearRequiresConfirmation(t *testing.T) {
	store := clientstore.NewMemoryStore()
	sched := &manualScheduler{}
	s := newTestSession(t, store, sched)
	_, err := s.Append(context.Background(), "keep me")
	require.NoError(t, err)

	assert.ErrorIs(t, s.Clear(context.Background(), false), ErrConfirmationRequired)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Clear(context.Background(), true))
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, []string{"client-1"}, sched.cancelled)

	raw, err := store.Get(context.Background(), "client-1", models.ChatHistoryKey)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	// the reply scheduled before the clear is discarded
	sched.runAll()
	assert.Equal(t, 0, s.Len())
}

type flakyStore struct {
	clientstore.Store
	failSet bool
}

func (f *flakyStore) Set(ctx context.Context, clientID, key, value string) error {
	if f.failSet {
		return errors.New("storage unavailable")
	}
	return f.Store.Set(ctx, clientID, key, value)
}

func TestClearKeepsHistoryWhenSaveFails(t *testing.T) {
	store := &flakyStore{Store: clientstore.NewMemoryStore()}
	sched := &manualScheduler{}
	s := newTestSession(t, store, sched)
	_, err := s.Append(context.Background(), "keep me")
	require.NoError(t, err)
	before := storedMessages(t, store)

	store.failSet = true
	assert.Error(t, s.Clear(context.Background(), true))
	assert.Equal(t, 1, s.Len())
	assert.Empty(t, sched.cancelled)
	assert.Equal(t, before, storedMessages(t, store))

	// the pending reply still lands once storage recovers
	store.failSet = false
	sched.runAll()
	got := s.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, models.StatusSent, got[0].Status)
}

func TestDroppedReplyMarksError(t *testing.T) {
	sched := &manualScheduler{}
	s := newTestSession(t, clientstore.NewMemoryStore(), sched)
	_, err := s.Append(context.Background(), "lost")
	require.NoError(t, err)

	jobs := sched.drain()
	require.Len(t, jobs, 1)
	jobs[0].OnDrop(worker.ErrDispatcherBusy)

	messages := s.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, models.StatusError, messages[0].Status)

	// a late completion cannot move an errored message back to sent
	jobs[0].Task(context.Background())
	assert.Equal(t, models.StatusError, s.Messages()[0].Status)
}

func TestReplierFailureMarksError(t *testing.T) {
	sched := &manualScheduler{}
	s := NewSession("client-1", Config{
		Store:     clientstore.NewMemoryStore(),
		Scheduler: sched,
		Replier:   fixedReplier{err: errors.New("boom")},
		Clock:     fixedClock(testNow),
	})
	_, err := s.Append(context.Background(), "hi")
	require.NoError(t, err)
	sched.runAll()

	messages := s.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, models.StatusError, messages[0].Status)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	sched := &manualScheduler{}
	s := newTestSession(t, clientstore.NewMemoryStore(), sched)
	events, cancel := s.Subscribe()
	defer cancel()

	_, err := s.Append(context.Background(), "ping")
	require.NoError(t, err)
	sched.runAll()
	require.NoError(t, s.Clear(context.Background(), true))

	var got []models.SessionEventType
	for i := 0; i < 4; i++ {
		select {
		case ev := <-events:
			got = append(got, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("missing event %d", i)
		}
	}
	assert.Equal(t, []models.SessionEventType{
		models.EventAppended, models.EventUpdated, models.EventAppended, models.EventCleared,
	}, got)
}

func TestSessionWithDispatcher(t *testing.T) {
	d := worker.NewDispatcher(worker.DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 8})
	defer d.Stop()

	s := NewSession("client-1", Config{
		Store:      clientstore.NewMemoryStore(),
		Scheduler:  d,
		Replier:    fixedReplier{text: "async"},
		ReplyDelay: 10 * time.Millisecond,
	})
	_, err := s.Append(context.Background(), "hi")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return s.Len() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, models.StatusSent, s.Messages()[0].Status)
}
