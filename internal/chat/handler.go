package chat

import (
	"context"
	"encoding/json"
)

// MessageHandler is one stage of a room's handler chain. Realtime actions are
// offered to each stage in order until one claims them; presence transitions
// are fanned out to every stage.
type MessageHandler interface {
	// OnMessage handles an incoming action. It returns true when the action
	// was claimed, whether or not handling succeeded; later stages do not
	// see claimed actions.
	OnMessage(ctx context.Context, p *Participant, action string, data json.RawMessage) (bool, error)
	// OnParticipantEnter is called after a participant transitions from
	// absent to present.
	OnParticipantEnter(p *Participant)
	// OnParticipantExit is called after a participant's last connection
	// closes.
	OnParticipantExit(p *Participant)
}

// BroadcastHandler is the chain's terminal stage: it persists any action it
// sees verbatim and broadcasts the stored record to the room. It claims
// everything, so it must be last.
type BroadcastHandler struct {
	room *ActiveRoom
}

// NewBroadcastHandler constructs the terminal handler stage for room.
func NewBroadcastHandler(room *ActiveRoom) *BroadcastHandler {
	return &BroadcastHandler{room: room}
}

// OnMessage persists the action as a message and broadcasts the stored
// record. Always claims.
func (h *BroadcastHandler) OnMessage(ctx context.Context, p *Participant, action string, data json.RawMessage) (bool, error) {
	if err := h.room.Publish(ctx, p, action, data); err != nil {
		return true, err
	}
	return true, nil
}

// OnParticipantEnter is a no-op; the realtime layer already announced the
// presence change.
func (h *BroadcastHandler) OnParticipantEnter(p *Participant) {}

// OnParticipantExit is a no-op.
func (h *BroadcastHandler) OnParticipantExit(p *Participant) {}
