package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pcahill/chartroom/internal/chat"
)

const defaultHistoryLimit = 1000

// Realtime actions handled by the session layer itself. Anything else is
// passed through to the room's message handlers.
const (
	actionLogin       = "login"
	actionGetMessages = "getMessages"
	actionSetNickname = "setNickname"
)

// envelope is the wire form of every client-to-server frame.
type envelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type loginArgs struct {
	Token string `json:"token"`
	// Nickname, when set, is used as the display name on first join.
	// Returning participants keep their stored nickname.
	Nickname string `json:"nickname"`
}

type participantView struct {
	*chat.Participant
	IsActive bool `json:"isActive"`
}

type loginResult struct {
	Type         string            `json:"type"`
	Title        string            `json:"title"`
	Nickname     string            `json:"nickname"`
	IsFirstLogin bool              `json:"isFirstLogin"`
	Users        []participantView `json:"users"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// RealtimeHandler serves the per-conversation websocket endpoint. Each
// connection must authenticate with a login frame before any other action.
type RealtimeHandler struct {
	directory    *chat.Directory
	registry     *chat.SessionRegistry
	participants chat.ParticipantStore
	messages     chat.MessageStore
	tokens       TokenService
	logger       *zap.Logger
	historyLimit int
	idleTimeout  time.Duration
}

// wsConn adapts a fiber websocket connection to chat.Conn. Writes are
// serialized; the underlying connection forbids concurrent writers.
type wsConn struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) SendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// requireUpgrade rejects plain HTTP requests to websocket routes.
func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handler returns the fiber handler for /ws/:conversation-id.
func (h *RealtimeHandler) Handler() fiber.Handler {
	return websocket.New(h.serve)
}

func (h *RealtimeHandler) serve(c *websocket.Conn) {
	conn := &wsConn{id: uuid.NewString(), conn: c}
	defer conn.Close()

	roomID := c.Params("conversation-id")
	ctx := context.Background()

	room, err := h.directory.GetOrLoad(ctx, roomID)
	if err != nil {
		h.logger.Info("websocket rejected",
			zap.String("room_id", roomID),
			zap.Error(err),
		)
		h.sendError(conn, "Invalid conversation id: "+roomID)
		return
	}
	defer h.handleClose(conn, room, roomID)

	h.readLoop(ctx, conn, c, room)
}

func (h *RealtimeHandler) readLoop(ctx context.Context, conn chat.Conn, c *websocket.Conn, room *chat.ActiveRoom) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("websocket handler panicked",
				zap.String("conn_id", conn.ID()),
				zap.Any("panic", r),
			)
		}
	}()

	for {
		if h.idleTimeout > 0 {
			if err := c.SetReadDeadline(time.Now().Add(h.idleTimeout)); err != nil {
				return
			}
		}
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.sendError(conn, "could not read message")
			continue
		}

		if err := h.dispatch(ctx, conn, room, env); err != nil {
			h.sendError(conn, errorMessage(err))
			if isAuthError(err) {
				return
			}
		}
	}
}

// dispatch routes one frame. The first frame on a connection must be a
// login; every later frame acts as the participant the login established.
func (h *RealtimeHandler) dispatch(ctx context.Context, conn chat.Conn, room *chat.ActiveRoom, env envelope) error {
	p := h.registry.Get(conn.ID())
	if p == nil {
		if env.Action != actionLogin {
			return chat.ErrLoginRequired
		}
		return h.login(ctx, conn, room, env.Data)
	}

	switch env.Action {
	case actionGetMessages:
		return h.sendHistory(ctx, conn, p.RoomID)
	case actionSetNickname:
		return h.setNickname(ctx, room, p, env.Data)
	default:
		return room.HandleMessage(ctx, p, env.Action, env.Data)
	}
}

func (h *RealtimeHandler) login(ctx context.Context, conn chat.Conn, room *chat.ActiveRoom, data json.RawMessage) error {
	var args loginArgs
	if err := json.Unmarshal(data, &args); err != nil || args.Token == "" {
		return chat.ErrLoginRequired
	}
	user, err := h.tokens.Verify(ctx, args.Token)
	if err != nil {
		return err
	}

	nickname := user.Username
	if args.Nickname != "" {
		if err := ValidateNickname(args.Nickname); err != nil {
			return err
		}
		nickname = args.Nickname
	}

	roomID := room.Room().ID
	existing, err := h.participants.List(ctx, roomID)
	if err != nil {
		return err
	}
	isFirstLogin := true
	for _, other := range existing {
		if other.UserID == user.ID {
			isFirstLogin = false
			break
		}
	}

	p, err := h.participants.Upsert(ctx, roomID, user.ID, nickname)
	if err != nil {
		return err
	}
	h.registry.Put(conn.ID(), p)
	room.HandleSessionOpen(conn, p)

	if isFirstLogin {
		existing = append(existing, p)
	}
	users := make([]participantView, 0, len(existing))
	for _, other := range existing {
		users = append(users, participantView{
			Participant: other,
			IsActive:    room.IsActive(other.ID, 0),
		})
	}

	return conn.SendJSON(loginResult{
		Type:         actionLogin,
		Title:        room.Room().Title,
		Nickname:     p.Nickname,
		IsFirstLogin: isFirstLogin,
		Users:        users,
	})
}

func (h *RealtimeHandler) sendHistory(ctx context.Context, conn chat.Conn, roomID string) error {
	limit := h.historyLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	history, err := h.messages.History(ctx, roomID, limit)
	if err != nil {
		return err
	}
	return conn.SendJSON(fiber.Map{"type": actionGetMessages, "data": history})
}

func (h *RealtimeHandler) setNickname(ctx context.Context, room *chat.ActiveRoom, p *chat.Participant, data json.RawMessage) error {
	var nickname string
	if err := json.Unmarshal(data, &nickname); err != nil {
		return chat.Validationf("could not read nickname")
	}
	if err := ValidateNickname(nickname); err != nil {
		return err
	}
	if err := h.participants.UpdateNickname(ctx, p.ID, nickname); err != nil {
		return err
	}
	p.Nickname = nickname
	room.HandleNicknameChange(p)
	return nil
}

// handleClose tears down the session and schedules eviction when the room
// has emptied. The participant is nil when the connection never logged in.
func (h *RealtimeHandler) handleClose(conn chat.Conn, room *chat.ActiveRoom, roomID string) {
	p := h.registry.Remove(conn.ID())
	if room.HandleSessionClose(conn.ID(), p) {
		h.directory.ScheduleEviction(roomID)
	}
}

func (h *RealtimeHandler) sendError(conn chat.Conn, msg string) {
	if err := conn.SendJSON(errorFrame{Type: "error", Message: msg}); err != nil {
		h.logger.Debug("failed to send error frame",
			zap.String("conn_id", conn.ID()),
			zap.Error(err),
		)
	}
}

func isAuthError(err error) bool {
	return errors.Is(err, chat.ErrLoginRequired) || errors.Is(err, chat.ErrInvalidToken)
}

func errorMessage(err error) string {
	if isAuthError(err) {
		return "Unauthenticated: " + err.Error()
	}
	return err.Error()
}
