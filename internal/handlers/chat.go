package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chatrelay/backend/internal/middleware"
	"github.com/chatrelay/backend/internal/services"
	"github.com/chatrelay/backend/pkg/logger"
	"github.com/chatrelay/backend/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ChatHandler relays chat turns between clients and the session broker
// over Server-Sent Events.
type ChatHandler struct {
	authService *services.AuthService
	broker      *services.SessionBroker
}

func NewChatHandler(authService *services.AuthService, broker *services.SessionBroker) *ChatHandler {
	return &ChatHandler{
		authService: authService,
		broker:      broker,
	}
}

// fragmentPayload is the wire shape of one streamed text delta.
type fragmentPayload struct {
	Text string `json:"text"`
}

// Stream handles one chat turn as an SSE stream. EventSource cannot set
// headers, so the access token may arrive as a query parameter instead
// of a Bearer header. Disconnecting mid-turn abandons the generation
// but keeps the session alive for reconnect.
// GET /api/chat/stream?token=...&message=...
func (h *ChatHandler) Stream(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		response.Unauthorized(c, "Unauthorized")
		return
	}

	claims, err := h.authService.Verify(token)
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		return
	}

	message := c.Query("message")
	if message == "" {
		response.BadRequest(c, "message is required")
		return
	}

	ctx := c.Request.Context()
	fragments, err := h.broker.Send(ctx, userID, message)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionBusy):
			response.Conflict(c, "a turn is already in progress")
		case errors.Is(err, services.ErrEngineFailure):
			response.ServerError(c, "generation engine unavailable")
		default:
			response.ServerError(c, "failed to start turn")
		}
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	logger.Info().
		Str("client_id", clientID).
		Uint("user_id", userID).
		Msg("chat stream connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case frag, ok := <-fragments:
			if !ok {
				return false
			}
			switch {
			case frag.Err != nil:
				fmt.Fprintf(w, "event: error\ndata: {\"error\": %q}\n\n", "generation failed")
				c.Writer.Flush()
				return false
			case frag.Final:
				fmt.Fprint(w, "event: done\ndata: {}\n\n")
				c.Writer.Flush()
				return false
			default:
				data, err := json.Marshal(fragmentPayload{Text: frag.Text})
				if err != nil {
					logger.Error().Err(err).Msg("fragment marshal error")
					return true
				}
				fmt.Fprintf(w, "data: %s\n\n", data)
				c.Writer.Flush()
				return true
			}
		case <-ctx.Done():
			logger.Info().Str("client_id", clientID).Msg("chat stream disconnected")
			return false
		}
	})
}

// Complete ends the caller's conversation and releases its session.
// POST /api/chat/complete
func (h *ChatHandler) Complete(c *gin.Context) {
	userID := middleware.GetUserID(c)

	if err := h.broker.Complete(userID); err != nil {
		if errors.Is(err, services.ErrInvalidOperation) {
			response.BadRequest(c, "no active session")
			return
		}
		response.ServerError(c, "failed to complete session")
		return
	}

	response.Success(c, gin.H{"message": "session completed"})
}
