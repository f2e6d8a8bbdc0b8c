package chat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"mentorlink/internal/room"
	"mentorlink/pkg/interfaces"
	"mentorlink/pkg/types"

	appErrors "mentorlink/pkg/errors"
)

// Config bounds what a sender may submit.
type Config struct {
	MaxBodyLength int
	RateLimit     int
}

func DefaultConfig() Config {
	return Config{MaxBodyLength: 5000, RateLimit: 100}
}

// Pipeline persists chat messages and read receipts and fans them out to
// the assignment room.
type Pipeline struct {
	gate    interfaces.Authorizer
	rooms   *room.Manager
	store   interfaces.MessageStore
	limiter *RateLimiter
	config  Config
	logger  *zap.Logger
}

func NewPipeline(g interfaces.Authorizer, rooms *room.Manager, store interfaces.MessageStore, limiter *RateLimiter, config Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxBodyLength <= 0 {
		config.MaxBodyLength = DefaultConfig().MaxBodyLength
	}
	if limiter == nil {
		limiter = NewRateLimiter(config.RateLimit, 0)
	}
	return &Pipeline{
		gate:    g,
		rooms:   rooms,
		store:   store,
		limiter: limiter,
		config:  config,
		logger:  logger,
	}
}

// SendMessage validates and persists body, then broadcasts the stored
// message to every room member, the sender included.
func (p *Pipeline) SendMessage(ctx context.Context, conn interfaces.Connection, assignmentID, body string) (*types.AssignmentMessage, error) {
	identity := conn.Identity()

	if _, err := p.gate.Authorize(ctx, identity, assignmentID); err != nil {
		return nil, err
	}

	normalized, err := types.NormalizeBody(body, p.config.MaxBodyLength)
	if err != nil {
		if errors.Is(err, types.ErrMessageBodyTooLong) {
			return nil, appErrors.ErrMessageTooLong
		}
		return nil, appErrors.ErrEmptyMessage
	}

	if !p.limiter.Allow(identity.UserID) {
		return nil, appErrors.ErrRateLimited
	}

	var message *types.AssignmentMessage
	err = p.rooms.Sequence(assignmentID, func() error {
		stored, err := p.store.CreateMessage(ctx, assignmentID, identity.UserID, normalized)
		if err != nil {
			return appErrors.Internal(err)
		}
		message = stored

		p.rooms.Broadcast(assignmentID, types.NewEvent(types.EventChatMessage, types.ChatMessageEvent{
			AssignmentID: assignmentID,
			Message:      stored,
		}), "")
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Debug("chat message sent",
		zap.String("user_id", identity.UserID),
		zap.String("assignment_id", assignmentID),
		zap.String("message_id", message.ID))
	return message, nil
}

// MarkRead adds userID to the readBy set of each message and broadcasts the
// receipt. Callers may only mark for themselves unless they are admins.
func (p *Pipeline) MarkRead(ctx context.Context, conn interfaces.Connection, assignmentID string, messageIDs []string, userID string) error {
	identity := conn.Identity()

	messageIDs = dedupe(messageIDs)
	if len(messageIDs) == 0 || userID == "" {
		return appErrors.Invalid("messageIds and userId are required")
	}
	if userID != identity.UserID && !identity.IsAdmin() {
		return appErrors.ErrUnauthorized
	}

	if _, err := p.gate.Authorize(ctx, identity, assignmentID); err != nil {
		return err
	}

	return p.rooms.Sequence(assignmentID, func() error {
		if err := p.store.MarkMessagesRead(ctx, assignmentID, messageIDs, userID); err != nil {
			return appErrors.Internal(err)
		}

		p.rooms.Broadcast(assignmentID, types.NewEvent(types.EventMessageRead, types.MessageReadEvent{
			AssignmentID: assignmentID,
			MessageIDs:   messageIDs,
			UserID:       userID,
		}), "")
		return nil
	})
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
