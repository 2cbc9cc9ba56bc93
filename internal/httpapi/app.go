// Package httpapi exposes the chartroom REST and websocket surface on top of
// the chat core and the postgres repositories.
package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"github.com/pcahill/chartroom/internal/chat"
	"github.com/pcahill/chartroom/internal/config"
	"github.com/pcahill/chartroom/internal/storage/postgres"
)

const headerAccessToken = "X-Access-Token"

// UserStore is the account persistence surface required by the API.
type UserStore interface {
	Create(ctx context.Context, username, password string) (postgres.User, error)
	CreateGuest(ctx context.Context) (postgres.User, error)
	Authenticate(ctx context.Context, username, password string) (postgres.User, error)
}

// ConversationStore is the conversation persistence surface required by the API.
type ConversationStore interface {
	Create(ctx context.Context, owner *chat.User, title, nickname string, isPrivate bool, tags []string) (*chat.Room, *chat.Participant, error)
	Delete(ctx context.Context, id, userID string) error
	ListForUser(ctx context.Context, userID string) ([]postgres.ConversationSummary, error)
	ListForUserByTag(ctx context.Context, userID, tag string) ([]postgres.ConversationSummary, error)
}

// TokenService mints and verifies access tokens.
type TokenService interface {
	Mint(userID string) (string, error)
	Verify(ctx context.Context, token string) (*chat.User, error)
}

// Refresher re-imports the question bank from its upstream source.
type Refresher interface {
	Refresh(ctx context.Context) (int, error)
}

// Deps carries everything the API needs. All fields are required except
// Importer, which may be nil when no sheet source is configured.
type Deps struct {
	Logger        *zap.Logger
	Users         UserStore
	Conversations ConversationStore
	Participants  chat.ParticipantStore
	Messages      chat.MessageStore
	Tokens        TokenService
	Directory     *chat.Directory
	Registry      *chat.SessionRegistry
	Importer      Refresher
	Game          config.GameConfig
	WSIdleTimeout time.Duration
}

type server struct {
	logger   *zap.Logger
	users    UserStore
	convs    ConversationStore
	tokens   TokenService
	importer Refresher
}

// New builds the fiber application with all routes registered.
//
// Postcondition: The returned app is ready to listen; no background work has
// been started.
func New(deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(deps.Logger),
	})
	app.Use(cors.New())

	s := &server{
		logger:   deps.Logger,
		users:    deps.Users,
		convs:    deps.Conversations,
		tokens:   deps.Tokens,
		importer: deps.Importer,
	}
	rt := &RealtimeHandler{
		directory:    deps.Directory,
		registry:     deps.Registry,
		participants: deps.Participants,
		messages:     deps.Messages,
		tokens:       deps.Tokens,
		logger:       deps.Logger,
		historyLimit: deps.Game.HistoryLimit,
		idleTimeout:  deps.WSIdleTimeout,
	}

	app.Post("/u", s.createUser)
	app.Post("/login", s.login)
	app.Post("/guest", s.createGuest)

	app.Get("/me", s.requireAuth, s.me)
	app.Get("/g", s.requireAuth, s.listConversations)
	app.Get("/g/:tag", s.requireAuth, s.listConversationsByTag)
	app.Post("/g", s.requireAuth, s.createConversation)
	app.Delete("/g", s.requireAuth, s.deleteConversations)
	app.Get("/guessr/questions/refresh", s.requireAuth, s.refreshQuestions)

	app.Use("/ws", requireUpgrade)
	app.Get("/ws/:conversation-id", rt.Handler())

	return app
}

// requireAuth resolves the access token into a user and stores it in the
// request locals under "user".
func (s *server) requireAuth(c *fiber.Ctx) error {
	token := c.Get(headerAccessToken)
	if token == "" {
		return unauthenticated(c, "Missing access token")
	}
	user, err := s.tokens.Verify(c.UserContext(), token)
	if err != nil {
		return unauthenticated(c, "Invalid access token")
	}
	c.Locals("user", user)
	return c.Next()
}

func currentUser(c *fiber.Ctx) *chat.User {
	user, _ := c.Locals("user").(*chat.User)
	return user
}

func unauthenticated(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"message": "Unauthenticated: " + msg,
	})
}

// errorHandler maps domain errors returned by handlers onto HTTP statuses.
func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		switch {
		case chat.IsValidation(err):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
		case errors.Is(err, postgres.ErrUserExists),
			errors.Is(err, postgres.ErrUserNotFound),
			errors.Is(err, chat.ErrRoomNotFound):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
		case errors.Is(err, postgres.ErrInvalidCredentials),
			errors.Is(err, postgres.ErrNotOwner):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": "Forbidden: " + err.Error(),
			})
		case errors.Is(err, chat.ErrInvalidToken):
			return unauthenticated(c, "Invalid access token")
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{"message": fiberErr.Message})
		}

		logger.Error("unhandled request error",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Internal server error",
		})
	}
}
