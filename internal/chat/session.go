// Package chat implements the per-client chat session store: an ordered,
// persisted message list with simulated assistant replies.
package chat

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"chathistory/internal/clientstore"
	"chathistory/internal/models"
	"chathistory/internal/worker"
)

var (
	ErrEmptyMessage         = errors.New("message text is empty")
	ErrConfirmationRequired = errors.New("clearing chat history requires confirmation")
	ErrSessionRetired       = errors.New("chat session was reloaded, retry")
)

const (
	DefaultReplyDelay = time.Second
	subscriberBuffer  = 32
	orphanGrace       = time.Minute
)

// Scheduler runs reply jobs after a delay.
type Scheduler interface {
	SubmitAfter(delay time.Duration, job worker.Job)
	CancelClient(clientID string)
}

// Config carries the collaborators shared by all sessions.
type Config struct {
	Store      clientstore.Store
	Scheduler  Scheduler
	Replier    Replier
	ReplyDelay time.Duration
	Clock      func() time.Time
	// OnSaved is called after every successful save, with the session lock held.
	OnSaved func(clientID string, cleared bool)
}

func (c Config) withDefaults() Config {
	if c.Scheduler == nil {
		c.Scheduler = timerScheduler{}
	}
	if c.Replier == nil {
		c.Replier = NewCannedReplier(nil, 0)
	}
	if c.ReplyDelay < 0 {
		c.ReplyDelay = 0
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Session is the ordered message history of one client.
type Session struct {
	clientID string
	cfg      Config

	mu         sync.Mutex
	messages   []models.ChatMessage
	lastID     int64
	generation uint64
	retired    bool
	subs       map[int]chan models.SessionEvent
	nextSub    int
}

func NewSession(clientID string, cfg Config) *Session {
	return &Session{
		clientID: clientID,
		cfg:      cfg.withDefaults(),
		subs:     make(map[int]chan models.SessionEvent),
	}
}

func (s *Session) ClientID() string {
	return s.clientID
}

// Load replaces the in-memory list with the stored snapshot. A missing or
// malformed snapshot leaves the session empty.
func (s *Session) Load(ctx context.Context) error {
	raw, err := s.cfg.Store.Get(ctx, s.clientID, models.ChatHistoryKey)
	if err != nil && !errors.Is(err, clientstore.ErrNotFound) {
		return errors.Wrap(err, "load chat history")
	}

	var messages []models.ChatMessage
	if err == nil && strings.TrimSpace(raw) != "" {
		if decodeErr := json.Unmarshal([]byte(raw), &messages); decodeErr != nil {
			log.Warn().Err(decodeErr).Str("client_id", s.clientID).Msg("failed to parse saved messages, starting empty")
			messages = nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = messages
	for _, m := range messages {
		if id, err := strconv.ParseInt(m.ID, 10, 64); err == nil && id > s.lastID {
			s.lastID = id
		}
	}
	return nil
}

// Save writes the full list to client storage.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, false)
}

func (s *Session) saveLocked(ctx context.Context, cleared bool) error {
	return s.writeLocked(ctx, s.messages, cleared)
}

func (s *Session) writeLocked(ctx context.Context, messages []models.ChatMessage, cleared bool) error {
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return errors.Wrap(err, "encode chat history")
	}
	if err := s.cfg.Store.Set(ctx, s.clientID, models.ChatHistoryKey, string(data)); err != nil {
		return errors.Wrap(err, "save chat history")
	}
	if s.cfg.OnSaved != nil {
		s.cfg.OnSaved(s.clientID, cleared)
	}
	return nil
}

// Messages returns a copy of the ordered history.
func (s *Session) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Append records a user message in the sending state and schedules the
// synthetic reply. Whitespace-only text is rejected without touching the session.
func (s *Session) Append(ctx context.Context, text string) (models.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.retired {
		s.mu.Unlock()
		return models.ChatMessage{}, ErrSessionRetired
	}
	msg := models.ChatMessage{
		ID:        s.nextIDLocked(),
		Text:      text,
		Sender:    models.SenderUser,
		Timestamp: s.cfg.Clock().UTC(),
		Status:    models.StatusSending,
	}
	s.messages = append(s.messages, msg)
	if err := s.saveLocked(ctx, false); err != nil {
		s.messages = s.messages[:len(s.messages)-1]
		s.mu.Unlock()
		return models.ChatMessage{}, err
	}
	gen := s.generation
	s.publishLocked(models.SessionEvent{Type: models.EventAppended, Message: &msg})
	s.mu.Unlock()

	s.cfg.Scheduler.SubmitAfter(s.cfg.ReplyDelay, worker.Job{
		Type:     worker.Run,
		ClientID: s.clientID,
		Task: func(ctx context.Context) {
			s.completeReply(ctx, gen, msg.ID, text)
		},
		OnDrop: func(err error) {
			s.failReply(gen, msg.ID, err)
		},
	})
	return msg, nil
}

// Clear empties the session. It refuses to run without confirmation.
func (s *Session) Clear(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired {
		return ErrSessionRetired
	}
	if err := s.writeLocked(ctx, nil, true); err != nil {
		return err
	}
	s.messages = nil
	s.generation++
	s.cfg.Scheduler.CancelClient(s.clientID)
	s.publishLocked(models.SessionEvent{Type: models.EventCleared})
	return nil
}

func (s *Session) completeReply(ctx context.Context, gen uint64, userMsgID, text string) {
	reply, replyErr := s.cfg.Replier.Reply(text)
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	idx := s.indexLocked(userMsgID)
	if idx < 0 || s.messages[idx].Status != models.StatusSending {
		return
	}
	if replyErr != nil {
		log.Warn().Err(replyErr).Str("client_id", s.clientID).Msg("reply failed")
		s.setStatusLocked(ctx, idx, models.StatusError)
		return
	}

	s.messages[idx].Status = models.StatusSent
	updated := s.messages[idx]
	assistant := models.ChatMessage{
		ID:        s.nextIDLocked(),
		Text:      reply,
		Sender:    models.SenderAssistant,
		Timestamp: s.cfg.Clock().UTC(),
	}
	s.messages = append(s.messages, assistant)
	if err := s.saveLocked(ctx, false); err != nil {
		log.Error().Err(err).Str("client_id", s.clientID).Msg("save after reply failed")
	}
	s.publishLocked(models.SessionEvent{Type: models.EventUpdated, Message: &updated})
	s.publishLocked(models.SessionEvent{Type: models.EventAppended, Message: &assistant})
}

func (s *Session) failReply(gen uint64, userMsgID string, cause error) {
	log.Warn().Err(cause).Str("client_id", s.clientID).Str("message_id", userMsgID).Msg("reply dropped")
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	if idx := s.indexLocked(userMsgID); idx >= 0 {
		s.setStatusLocked(context.Background(), idx, models.StatusError)
	}
}

func (s *Session) setStatusLocked(ctx context.Context, idx int, next models.Status) {
	if !s.messages[idx].Status.CanTransition(next) {
		return
	}
	s.messages[idx].Status = next
	if err := s.saveLocked(ctx, false); err != nil {
		log.Error().Err(err).Str("client_id", s.clientID).Msg("save status failed")
	}
	updated := s.messages[idx]
	s.publishLocked(models.SessionEvent{Type: models.EventUpdated, Message: &updated})
}

func (s *Session) indexLocked(id string) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// nextIDLocked derives an id from the clock in milliseconds, bumped past the
// previous id so two messages in the same millisecond never collide.
func (s *Session) nextIDLocked() string {
	ms := s.cfg.Clock().UnixMilli()
	if ms <= s.lastID {
		ms = s.lastID + 1
	}
	s.lastID = ms
	return strconv.FormatInt(ms, 10)
}

// Subscribe returns a channel receiving every change to the session. Slow
// subscribers miss events rather than block writers.
func (s *Session) Subscribe() (<-chan models.SessionEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan models.SessionEvent, subscriberBuffer)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) publishLocked(ev models.SessionEvent) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// failOrphaned marks as error the sending messages whose reply can no longer
// arrive: those listed in discarded, plus any older than the reply delay and
// orphanGrace, which no live job would still be holding.
func (s *Session) failOrphaned(ctx context.Context, discarded map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	staleBefore := s.cfg.Clock().Add(-(s.cfg.ReplyDelay + orphanGrace))
	var changed []int
	for i := range s.messages {
		m := s.messages[i]
		if m.Status != models.StatusSending {
			continue
		}
		if discarded[m.ID] || m.Timestamp.Before(staleBefore) {
			s.messages[i].Status = models.StatusError
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return
	}
	log.Info().Str("client_id", s.clientID).Int("count", len(changed)).Msg("marking orphaned messages as error")
	if err := s.saveLocked(ctx, false); err != nil {
		log.Error().Err(err).Str("client_id", s.clientID).Msg("save orphaned status failed")
	}
	for _, i := range changed {
		updated := s.messages[i]
		s.publishLocked(models.SessionEvent{Type: models.EventUpdated, Message: &updated})
	}
}

// retire detaches an evicted session: later writes are refused and
// subscribers are closed. It returns the ids of messages whose pending reply
// is discarded.
func (s *Session) retire() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retired = true
	s.generation++
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	discarded := make(map[string]bool)
	for _, m := range s.messages {
		if m.Status == models.StatusSending {
			discarded[m.ID] = true
		}
	}
	return discarded
}

// timerScheduler runs jobs on their own timer goroutine.
type timerScheduler struct{}

func (timerScheduler) SubmitAfter(delay time.Duration, job worker.Job) {
	time.AfterFunc(delay, func() {
		if job.Task != nil {
			job.Task(context.Background())
		}
	})
}

func (timerScheduler) CancelClient(string) {}
