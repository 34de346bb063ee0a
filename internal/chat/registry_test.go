package chat

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chathistory/internal/clientstore"
	"chathistory/internal/models"
)

func TestRegistryCachesPerClient(t *testing.T) {
	store := clientstore.NewMemoryStore()
	reg := NewRegistry(Config{Store: store, Scheduler: &manualScheduler{}}, nil)

	a, err := reg.Session(context.Background(), "a")
	require.NoError(t, err)
	again, err := reg.Session(context.Background(), "a")
	require.NoError(t, err)
	b, err := reg.Session(context.Background(), "b")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)

	_, err = a.Append(context.Background(), "only for a")
	require.NoError(t, err)
	assert.Equal(t, 0, b.Len())
}

func TestRegistryEvictReloads(t *testing.T) {
	store := clientstore.NewMemoryStore()
	sched := &manualScheduler{}
	reg := NewRegistry(Config{Store: store, Scheduler: sched, Replier: fixedReplier{text: "r"}}, nil)
	ctx := context.Background()

	s, err := reg.Session(ctx, "a")
	require.NoError(t, err)
	events, _ := s.Subscribe()
	_, err = s.Append(ctx, "first")
	require.NoError(t, err)

	// the reply of "first" is still pending when the session is evicted
	reg.Evict("a")
	for range events {
	}
	_, err = s.Append(ctx, "late")
	assert.ErrorIs(t, err, ErrSessionRetired)

	reloaded, err := reg.Session(ctx, "a")
	require.NoError(t, err)
	assert.NotSame(t, s, reloaded)
	require.Equal(t, 1, reloaded.Len())
	assert.Equal(t, "first", reloaded.Messages()[0].Text)
	assert.Equal(t, models.StatusError, reloaded.Messages()[0].Status)

	_, err = reloaded.Append(ctx, "second")
	require.NoError(t, err)
	sched.runAll()

	var saved []models.ChatMessage
	raw, err := store.Get(ctx, "a", models.ChatHistoryKey)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(raw), &saved))
	require.Len(t, saved, 3)
	assert.Equal(t, "first", saved[0].Text)
	assert.Equal(t, models.StatusError, saved[0].Status)
	assert.Equal(t, "second", saved[1].Text)
	assert.Equal(t, models.StatusSent, saved[1].Status)
	assert.Equal(t, models.SenderAssistant, saved[2].Sender)
	assert.Equal(t, "r", saved[2].Text)
}

func TestRegistryFailsStaleSendingOnLoad(t *testing.T) {
	store := clientstore.NewMemoryStore()
	ctx := context.Background()
	seeded := []models.ChatMessage{
		{ID: "1", Text: "lost", Sender: models.SenderUser, Timestamp: testNow.Add(-time.Hour), Status: models.StatusSending},
		{ID: "2", Text: "in flight", Sender: models.SenderUser, Timestamp: testNow, Status: models.StatusSending},
	}
	data, err := json.Marshal(seeded)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "a", models.ChatHistoryKey, string(data)))

	reg := NewRegistry(Config{Store: store, Scheduler: &manualScheduler{}, Clock: fixedClock(testNow)}, nil)
	s, err := reg.Session(ctx, "a")
	require.NoError(t, err)

	got := s.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, models.StatusError, got[0].Status)
	assert.Equal(t, models.StatusSending, got[1].Status)

	var saved []models.ChatMessage
	raw, err := store.Get(ctx, "a", models.ChatHistoryKey)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(raw), &saved))
	assert.Equal(t, models.StatusError, saved[0].Status)
}

func TestCannedReplierSubstitutesMessage(t *testing.T) {
	r := NewCannedReplier([]string{`This is a simulated response to: "{message}"`}, 1)
	reply, err := r.Reply("tacos?")
	require.NoError(t, err)
	assert.Equal(t, `This is a simulated response to: "tacos?"`, reply)

	def := NewCannedReplier(nil, 42)
	reply, err = def.Reply("x")
	require.NoError(t, err)
	assert.True(t, strings.TrimSpace(reply) != "")
}
