package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pcahill/chartroom/internal/chat"
	"github.com/pcahill/chartroom/internal/storage/postgres"
)

type createConversationArgs struct {
	Title     string   `json:"title"`
	Nickname  string   `json:"nickname"`
	IsPrivate bool     `json:"isPrivate"`
	Tags      []string `json:"tags"`
}

type deleteConversationsArgs struct {
	IDs []string `json:"ids"`
}

type conversationView struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	IsPrivate     bool             `json:"isPrivate"`
	Nickname      string           `json:"nickname"`
	Tags          []string         `json:"tags"`
	LastMessageAt *chat.UnixMillis `json:"lastMessageAt,omitempty"`
}

func newConversationView(s postgres.ConversationSummary) conversationView {
	v := conversationView{
		ID:        s.Room.ID,
		Title:     s.Room.Title,
		IsPrivate: s.Room.IsPrivate,
		Nickname:  s.Nickname,
		Tags:      s.Tags,
	}
	if s.LastMessageAt != nil {
		at := chat.UnixMillis(*s.LastMessageAt)
		v.LastMessageAt = &at
	}
	return v
}

// createConversation opens a new conversation owned by the caller.
func (s *server) createConversation(c *fiber.Ctx) error {
	var args createConversationArgs
	if err := c.BodyParser(&args); err != nil {
		return chat.Validationf("could not read conversation arguments")
	}
	if err := ValidateTitle(args.Title); err != nil {
		return err
	}
	if err := ValidateNickname(args.Nickname); err != nil {
		return err
	}
	for _, tag := range args.Tags {
		if err := ValidateTag(tag); err != nil {
			return err
		}
	}

	room, participant, err := s.convs.Create(
		c.UserContext(), currentUser(c), args.Title, args.Nickname, args.IsPrivate, args.Tags,
	)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":        true,
		"conversationId": room.ID,
		"title":          room.Title,
		"nickname":       participant.Nickname,
	})
}

// listConversations returns every conversation the caller participates in.
func (s *server) listConversations(c *fiber.Ctx) error {
	summaries, err := s.convs.ListForUser(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(conversationListResult(summaries))
}

// listConversationsByTag narrows the listing to a single tag.
func (s *server) listConversationsByTag(c *fiber.Ctx) error {
	tag := c.Params("tag")
	summaries, err := s.convs.ListForUserByTag(c.UserContext(), currentUser(c).ID, tag)
	if err != nil {
		return err
	}
	return c.JSON(conversationListResult(summaries))
}

func conversationListResult(summaries []postgres.ConversationSummary) fiber.Map {
	views := make([]conversationView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, newConversationView(s))
	}
	return fiber.Map{"success": true, "conversations": views}
}

// deleteConversations removes every listed conversation the caller owns.
// The batch stops at the first conversation that is missing or not owned
// by the caller.
func (s *server) deleteConversations(c *fiber.Ctx) error {
	var args deleteConversationsArgs
	if err := c.BodyParser(&args); err != nil {
		return chat.Validationf("could not read conversation ids")
	}
	if len(args.IDs) == 0 {
		return chat.Validationf("no conversation ids given")
	}
	user := currentUser(c)
	for _, id := range args.IDs {
		if err := s.convs.Delete(c.UserContext(), id, user.ID); err != nil {
			return err
		}
	}
	return c.JSON(fiber.Map{"success": true})
}
