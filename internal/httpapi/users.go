package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pcahill/chartroom/internal/chat"
)

type credentialsArgs struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResult struct {
	Success  bool   `json:"success"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

func (s *server) sessionResult(c *fiber.Ctx, id, username string) error {
	token, err := s.tokens.Mint(id)
	if err != nil {
		return err
	}
	return c.JSON(sessionResult{Success: true, UserID: id, Username: username, Token: token})
}

// createUser registers a password account and returns a fresh token.
func (s *server) createUser(c *fiber.Ctx) error {
	var args credentialsArgs
	if err := c.BodyParser(&args); err != nil {
		return chat.Validationf("could not read credentials")
	}
	if err := ValidateUsername(args.Username); err != nil {
		return err
	}
	if err := ValidatePassword(args.Password); err != nil {
		return err
	}
	user, err := s.users.Create(c.UserContext(), args.Username, args.Password)
	if err != nil {
		return err
	}
	return s.sessionResult(c, user.ID, user.Username)
}

// login authenticates a password account and returns a fresh token.
func (s *server) login(c *fiber.Ctx) error {
	var args credentialsArgs
	if err := c.BodyParser(&args); err != nil {
		return chat.Validationf("could not read credentials")
	}
	user, err := s.users.Authenticate(c.UserContext(), args.Username, args.Password)
	if err != nil {
		return err
	}
	return s.sessionResult(c, user.ID, user.Username)
}

// createGuest provisions a throwaway guest account and returns its token.
func (s *server) createGuest(c *fiber.Ctx) error {
	user, err := s.users.CreateGuest(c.UserContext())
	if err != nil {
		return err
	}
	return s.sessionResult(c, user.ID, user.Username)
}

// me returns the authenticated user's identity.
func (s *server) me(c *fiber.Ctx) error {
	return c.JSON(currentUser(c))
}
