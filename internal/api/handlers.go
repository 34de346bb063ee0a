package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"chathistory/internal/account"
	"chathistory/internal/auth"
	"chathistory/internal/chat"
	"chathistory/internal/models"
)

// replyGrace is how long a send request waits past the reply delay.
const replyGrace = 30 * time.Second

// Handler wires HTTP routes to the chat sessions and the account service.
type Handler struct {
	sessions   *chat.Registry
	accounts   *account.Service
	auth       *auth.Service
	limiter    *RateLimiter
	replyDelay time.Duration
	origins    []string
}

// Options tunes optional Handler behaviour.
type Options struct {
	ReplyDelay     time.Duration
	RateLimiter    *RateLimiter
	AllowedOrigins []string
}

// NewHandler constructs a Handler instance.
func NewHandler(sessions *chat.Registry, accounts *account.Service, authService *auth.Service, opts Options) *Handler {
	return &Handler{
		sessions:   sessions,
		accounts:   accounts,
		auth:       authService,
		limiter:    opts.RateLimiter,
		replyDelay: opts.ReplyDelay,
		origins:    opts.AllowedOrigins,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.Use(h.auth.ClientMiddleware())

	chatRoutes := api.Group("/chat")
	chatRoutes.GET("/history", h.getHistory)
	if h.limiter != nil {
		chatRoutes.POST("/messages", h.limiter.Middleware(), h.sendMessage)
	} else {
		chatRoutes.POST("/messages", h.sendMessage)
	}
	chatRoutes.DELETE("/history", h.clearHistory)
	chatRoutes.GET("/ws", h.sessionFeed)

	prefs := api.Group("/preferences")
	prefs.GET("/theme", h.getTheme)
	prefs.PUT("/theme", h.setTheme)
	prefs.POST("/theme/toggle", h.toggleTheme)

	api.POST("/users/signup", h.signup)
	api.POST("/users/login", h.login)
	api.GET("/users/me", h.currentUser)
	api.POST("/users/logout", h.logout)

	favorites := api.Group("/favorites")
	favorites.Use(h.auth.Middleware(), h.auth.CSRFMiddleware())
	favorites.GET("", h.listFavorites)
	favorites.POST("/:truck_id", h.toggleFavorite)
	favorites.DELETE("/:truck_id", h.removeFavorite)
}

func (h *Handler) clientSession(c *gin.Context) (*chat.Session, bool) {
	session, err := h.sessions.Session(c.Request.Context(), auth.ClientIDFromContext(c))
	if err != nil {
		log.Error().Err(err).Msg("load session failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load chat history failed"})
		return nil, false
	}
	return session, true
}

func (h *Handler) getHistory(c *gin.Context) {
	session, ok := h.clientSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": session.Messages()})
}

type sendRequest struct {
	Text string `json:"text"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	session, ok := h.clientSession(c)
	if !ok {
		return
	}

	// subscribe before appending so the reply cannot be missed
	events, unsubscribe := session.Subscribe()
	defer unsubscribe()

	message, err := session.Append(c.Request.Context(), req.Text)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, chat.ErrSessionRetired) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// SSE Request construction
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	if err := sendEvent("ack", gin.H{"message": message}); err != nil {
		return
	}

	waitCtx, cancel := context.WithTimeout(c.Request.Context(), h.replyDelay+replyGrace)
	defer cancel()
	updated, reply, err := awaitReply(waitCtx, events, message.ID)
	if err != nil {
		_ = sendEvent("error", gin.H{"message": err.Error(), "user_message": updated})
		return
	}
	_ = sendEvent("done", gin.H{"user_message": updated, "reply": reply})
}

// awaitReply waits for the user message to leave the sending state and, on
// success, for the assistant reply that follows it.
func awaitReply(ctx context.Context, events <-chan models.SessionEvent, messageID string) (*models.ChatMessage, *models.ChatMessage, error) {
	var updated *models.ChatMessage
	for {
		select {
		case <-ctx.Done():
			return updated, nil, errors.New("timed out waiting for reply")
		case ev, ok := <-events:
			if !ok {
				return updated, nil, errors.New("session closed")
			}
			switch ev.Type {
			case models.EventCleared:
				return nil, nil, errors.New("chat history cleared")
			case models.EventUpdated:
				if ev.Message == nil || ev.Message.ID != messageID {
					continue
				}
				updated = ev.Message
				if updated.Status == models.StatusError {
					return updated, nil, errors.New("reply failed")
				}
			case models.EventAppended:
				if updated != nil && ev.Message != nil && ev.Message.Sender == models.SenderAssistant {
					return updated, ev.Message, nil
				}
			}
		}
	}
}

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handler) clearHistory(c *gin.Context) {
	var req clearRequest
	// a missing body means no confirmation
	_ = c.ShouldBindJSON(&req)
	if c.Query("confirm") == "true" {
		req.Confirm = true
	}
	session, ok := h.clientSession(c)
	if !ok {
		return
	}
	if err := session.Clear(c.Request.Context(), req.Confirm); err != nil {
		if errors.Is(err, chat.ErrConfirmationRequired) || errors.Is(err, chat.ErrSessionRetired) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
