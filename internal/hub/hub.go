package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"mentorlink/internal/chat"
	"mentorlink/internal/collab"
	"mentorlink/internal/gate"
	"mentorlink/internal/metrics"
	"mentorlink/internal/room"
	"mentorlink/internal/websocket"
	"mentorlink/pkg/interfaces"
	"mentorlink/pkg/types"

	appErrors "mentorlink/pkg/errors"
)

// DefaultRequestTimeout bounds the store work done for a single event.
const DefaultRequestTimeout = 10 * time.Second

type handlerFunc func(ctx context.Context, conn interfaces.Connection, data json.RawMessage) (assignmentID string, err error)

// Hub decodes inbound frames, routes them to the owning pipeline and turns
// failures into a single error event for the sender. Frames of one
// connection are handled synchronously, in arrival order.
type Hub struct {
	registry *websocket.Registry
	rooms    *room.Manager
	gate     *gate.Gate
	chat     *chat.Pipeline
	collab   *collab.Pipeline
	validate *validator.Validate
	logger   *zap.Logger
	metrics  *metrics.Metrics

	handlers       map[string]handlerFunc
	requestTimeout time.Duration

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Config groups the collaborators of the hub.
type Config struct {
	Registry       *websocket.Registry
	Rooms          *room.Manager
	Gate           *gate.Gate
	Chat           *chat.Pipeline
	Collab         *collab.Pipeline
	Validate       *validator.Validate
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
}

func NewHub(cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Validate == nil {
		cfg.Validate = validator.New()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	cfg.Validate.RegisterTagNameFunc(jsonFieldName)

	h := &Hub{
		registry:       cfg.Registry,
		rooms:          cfg.Rooms,
		gate:           cfg.Gate,
		chat:           cfg.Chat,
		collab:         cfg.Collab,
		validate:       cfg.Validate,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		requestTimeout: cfg.RequestTimeout,
		ctx:            context.Background(),
	}
	h.handlers = map[string]handlerFunc{
		types.EventJoinAssignment:      h.handleJoin,
		types.EventLeaveAssignment:     h.handleLeave,
		types.EventChatMessage:         h.handleChatMessage,
		types.EventCollaborationUpdate: h.handleCollaborationUpdate,
		types.EventTyping:              h.typingHandler(types.EventTyping),
		types.EventStopTyping:          h.typingHandler(types.EventStopTyping),
		types.EventMessageRead:         h.handleMessageRead,
		types.EventPing:                h.handlePing,
	}
	return h
}

// Start marks the hub as running. Work started by events afterwards is
// cancelled when ctx ends or Stop is called.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.ctx, h.cancel = context.WithCancel(ctx)
	h.running = true
	h.logger.Info("hub started")
	return nil
}

// Stop cancels in-flight event work.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.cancel()
	h.running = false
	h.logger.Info("hub stopped")
	return nil
}

func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *Hub) baseContext() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctx
}

// HandleMessage implements websocket.Dispatcher.
func (h *Hub) HandleMessage(conn *websocket.Connection, data []byte) {
	h.Dispatch(conn, data)
}

// HandleDisconnect implements websocket.Dispatcher.
func (h *Hub) HandleDisconnect(conn *websocket.Connection) {
	h.Disconnect(conn)
}

// Dispatch handles one inbound frame from conn.
func (h *Hub) Dispatch(conn interfaces.Connection, data []byte) {
	start := time.Now()

	var inbound types.InboundEvent
	if err := json.Unmarshal(data, &inbound); err != nil || inbound.Name == "" {
		h.metrics.ObserveEvent("malformed", true, time.Since(start))
		h.fail(conn, "malformed", "", appErrors.ErrInvalidPayload)
		return
	}

	handler, ok := h.handlers[inbound.Name]
	if !ok {
		h.metrics.ObserveEvent("unknown", true, time.Since(start))
		h.fail(conn, inbound.Name, "", appErrors.Invalid("Unknown event: "+inbound.Name))
		return
	}

	ctx, cancel := context.WithTimeout(h.baseContext(), h.requestTimeout)
	defer cancel()

	assignmentID, err := handler(ctx, conn, inbound.Data)
	h.metrics.ObserveEvent(inbound.Name, err != nil, time.Since(start))
	if err != nil {
		h.fail(conn, inbound.Name, assignmentID, err)
	}
}

// Disconnect removes conn from every room and from the registry, then
// closes it. A superseded connection does not evict its replacement.
func (h *Hub) Disconnect(conn interfaces.Connection) {
	left := h.rooms.LeaveAll(conn)
	h.registry.Unregister(conn)
	_ = conn.Close()

	h.logger.Debug("connection cleaned up",
		zap.String("user_id", conn.Identity().UserID),
		zap.String("conn_id", conn.ID()),
		zap.Strings("rooms", left))
}

func (h *Hub) fail(conn interfaces.Connection, action, assignmentID string, err error) {
	appErr := appErrors.FromError(err)
	fields := []zap.Field{
		zap.String("user_id", conn.Identity().UserID),
		zap.String("assignment_id", assignmentID),
		zap.String("action", action),
	}

	if appErr.Kind == appErrors.KindInternal {
		h.logger.Error("event failed", append(fields, zap.Error(appErr.Err))...)
	} else {
		h.logger.Debug("event rejected", append(fields, zap.String("reason", appErr.Message))...)
	}

	if sendErr := conn.Send(types.NewEvent(types.EventError, types.ErrorEvent{Message: appErr.Message})); sendErr != nil {
		h.logger.Debug("failed to deliver error event", zap.String("conn_id", conn.ID()), zap.Error(sendErr))
	}
}

// decode unmarshals data into dst and runs its validate tags.
func (h *Hub) decode(data json.RawMessage, dst interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return appErrors.ErrInvalidPayload
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return appErrors.ErrInvalidPayload
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return appErrors.Invalid(describe(verrs[0]))
		}
		return appErrors.ErrInvalidPayload
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must not be empty", fe.Field())
	case "oneof":
		return fmt.Sprintf("Invalid %s", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return field.Name
	}
	return name
}

func (h *Hub) handleJoin(ctx context.Context, conn interfaces.Connection, data json.RawMessage) (string, error) {
	var req types.AssignmentRef
	if err := h.decode(data, &req); err != nil {
		return "", err
	}
	return req.AssignmentID, h.gate.Join(ctx, conn, req.AssignmentID)
}

func (h *Hub) handleLeave(ctx context.Context, conn interfaces.Connection, data json.RawMessage) (string, error) {
	var req types.AssignmentRef
	if err := h.decode(data, &req); err != nil {
		return "", err
	}
	return req.AssignmentID, h.gate.Leave(ctx, conn, req.AssignmentID)
}

func (h *Hub) handleChatMessage(ctx context.Context, conn interfaces.Connection, data json.RawMessage) (string, error) {
	var req types.ChatMessageRequest
	if err := h.decode(data, &req); err != nil {
		return "", err
	}
	_, err := h.chat.SendMessage(ctx, conn, req.AssignmentID, req.Message)
	return req.AssignmentID, err
}

func (h *Hub) handleCollaborationUpdate(ctx context.Context, conn interfaces.Connection, data json.RawMessage) (string, error) {
	var req types.CollaborationUpdateRequest
	if err := h.decode(data, &req); err != nil {
		return "", err
	}
	_, err := h.collab.UpdateTaskStatus(ctx, conn, req.AssignmentID, req.Section, *req.Completed)
	return req.AssignmentID, err
}

func (h *Hub) handleMessageRead(ctx context.Context, conn interfaces.Connection, data json.RawMessage) (string, error) {
	var req types.MessageReadRequest
	if err := h.decode(data, &req); err != nil {
		return "", err
	}
	return req.AssignmentID, h.chat.MarkRead(ctx, conn, req.AssignmentID, req.MessageIDs, req.UserID)
}

// typingHandler relays typing indicators to the rest of the room. The sender
// is stamped from the connection identity and nothing is persisted.
func (h *Hub) typingHandler(event string) handlerFunc {
	return func(ctx context.Context, conn interfaces.Connection, data json.RawMessage) (string, error) {
		var req types.TypingPayload
		if err := h.decode(data, &req); err != nil {
			return "", err
		}
		if err := h.gate.RequireMember(conn, req.AssignmentID); err != nil {
			return req.AssignmentID, err
		}

		identity := conn.Identity()
		req.UserID = identity.UserID
		if req.FirstName == "" {
			req.FirstName = identity.FirstName
		}
		h.rooms.Broadcast(req.AssignmentID, types.NewEvent(event, req), conn.ID())
		return req.AssignmentID, nil
	}
}

func (h *Hub) handlePing(ctx context.Context, conn interfaces.Connection, data json.RawMessage) (string, error) {
	if err := conn.Send(types.NewEvent(types.EventPong, nil)); err != nil {
		h.logger.Debug("failed to send pong", zap.String("conn_id", conn.ID()), zap.Error(err))
	}
	return "", nil
}
