package chat

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Replier produces the assistant's answer to a user message.
type Replier interface {
	Reply(text string) (string, error)
}

// messagePlaceholder is substituted with the user's text in canned replies.
const messagePlaceholder = "{message}"

// DefaultReplies is the fixed list synthetic replies are drawn from.
var DefaultReplies = []string{
	`This is a simulated response to: "{message}"`,
	"Thanks for your message! A food truck expert will be with you shortly.",
	"Great question. Most trucks post their weekly locations every Monday.",
	"You can save trucks to your favorites to find them again quickly.",
	"Noted! Is there a cuisine you are in the mood for?",
}

// CannedReplier picks pseudo-randomly from a fixed list of replies.
type CannedReplier struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	replies []string
}

func NewCannedReplier(replies []string, seed int64) *CannedReplier {
	if len(replies) == 0 {
		replies = DefaultReplies
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &CannedReplier{
		rnd:     rand.New(rand.NewSource(seed)),
		replies: append([]string(nil), replies...),
	}
}

func (c *CannedReplier) Reply(text string) (string, error) {
	c.mu.Lock()
	tpl := c.replies[c.rnd.Intn(len(c.replies))]
	c.mu.Unlock()
	return strings.ReplaceAll(tpl, messagePlaceholder, text), nil
}
