package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcahill/chartroom/internal/chat"
	"github.com/pcahill/chartroom/internal/storage/postgres"
	"github.com/pcahill/chartroom/internal/testutil"
)

type convFixture struct {
	users *postgres.UserRepository
	convs *postgres.ConversationRepository
	msgs  *postgres.MessageRepository
	ctx   context.Context
}

func newConvFixture(t *testing.T) *convFixture {
	t.Helper()
	pool := testutil.NewPool(t)
	return &convFixture{
		users: postgres.NewUserRepository(pool),
		convs: postgres.NewConversationRepository(pool),
		msgs:  postgres.NewMessageRepository(pool),
		ctx:   context.Background(),
	}
}

func (f *convFixture) user(t *testing.T, name string) *chat.User {
	t.Helper()
	u, err := f.users.Create(f.ctx, name, "a-fine-password")
	require.NoError(t, err)
	return u.Chat()
}

func TestConversationRepository_CreateAndGet(t *testing.T) {
	f := newConvFixture(t)
	owner := f.user(t, "alice")

	room, participant, err := f.convs.Create(f.ctx, owner, "standup", "al", false, []string{"work", "daily"})
	require.NoError(t, err)
	assert.Len(t, room.ID, 6)
	assert.Equal(t, "standup", room.Title)
	assert.True(t, participant.IsOwner)
	assert.Equal(t, "al", participant.Nickname)

	got, err := f.convs.GetByID(f.ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.Title, got.Title)

	_, err = f.convs.GetByID(f.ctx, "nosuch")
	assert.ErrorIs(t, err, chat.ErrRoomNotFound)
}

func TestConversationRepository_ListForUser(t *testing.T) {
	f := newConvFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	room1, p1, err := f.convs.Create(f.ctx, alice, "first", "al", false, []string{"work"})
	require.NoError(t, err)
	_, _, err = f.convs.Create(f.ctx, alice, "second", "al", true, nil)
	require.NoError(t, err)
	_, _, err = f.convs.Create(f.ctx, bob, "bobs place", "bob", false, nil)
	require.NoError(t, err)

	list, err := f.convs.ListForUser(f.ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 2, "only the caller's conversations")

	_, err = f.msgs.Send(f.ctx, p1, "message", json.RawMessage(`{"text":"hi"}`), time.Now())
	require.NoError(t, err)

	list, err = f.convs.ListForUser(f.ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, room1.ID, list[0].Room.ID, "conversation with newest message sorts first")
	require.NotNil(t, list[0].LastMessageAt)
	assert.ElementsMatch(t, []string{"work"}, list[0].Tags)
}

func TestConversationRepository_ListForUserByTag(t *testing.T) {
	f := newConvFixture(t)
	alice := f.user(t, "alice")

	tagged, _, err := f.convs.Create(f.ctx, alice, "tagged", "al", false, []string{"games"})
	require.NoError(t, err)
	_, _, err = f.convs.Create(f.ctx, alice, "untagged", "al", false, nil)
	require.NoError(t, err)

	list, err := f.convs.ListForUserByTag(f.ctx, alice.ID, "games")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tagged.ID, list[0].Room.ID)

	list, err = f.convs.ListForUserByTag(f.ctx, alice.ID, "nosuch")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConversationRepository_Delete(t *testing.T) {
	f := newConvFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	room, _, err := f.convs.Create(f.ctx, alice, "doomed", "al", false, nil)
	require.NoError(t, err)
	_, err = f.convs.Upsert(f.ctx, room.ID, bob.ID, "bob")
	require.NoError(t, err)

	err = f.convs.Delete(f.ctx, room.ID, bob.ID)
	assert.ErrorIs(t, err, postgres.ErrNotOwner)

	err = f.convs.Delete(f.ctx, room.ID, alice.ID)
	require.NoError(t, err)

	_, err = f.convs.GetByID(f.ctx, room.ID)
	assert.ErrorIs(t, err, chat.ErrRoomNotFound)

	err = f.convs.Delete(f.ctx, room.ID, alice.ID)
	assert.ErrorIs(t, err, chat.ErrRoomNotFound)
}

func TestConversationRepository_UpsertKeepsNickname(t *testing.T) {
	f := newConvFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	room, _, err := f.convs.Create(f.ctx, alice, "room", "al", false, nil)
	require.NoError(t, err)

	first, err := f.convs.Upsert(f.ctx, room.ID, bob.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", first.Nickname)
	assert.False(t, first.IsOwner)

	require.NoError(t, f.convs.UpdateNickname(f.ctx, first.ID, "bobby"))

	again, err := f.convs.Upsert(f.ctx, room.ID, bob.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "re-joining must not mint a new participant")
	assert.Equal(t, "bobby", again.Nickname, "re-joining must keep the chosen nickname")
}

func TestConversationRepository_FindAndList(t *testing.T) {
	f := newConvFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	room, _, err := f.convs.Create(f.ctx, alice, "room", "al", false, nil)
	require.NoError(t, err)

	found, err := f.convs.Find(f.ctx, room.ID, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.IsOwner)

	missing, err := f.convs.Find(f.ctx, room.ID, bob.ID)
	require.NoError(t, err)
	assert.Nil(t, missing, "never-joined users have no participant")

	_, err = f.convs.Upsert(f.ctx, room.ID, bob.ID, "bob")
	require.NoError(t, err)

	all, err := f.convs.List(f.ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
