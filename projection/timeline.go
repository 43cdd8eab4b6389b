// Package projection builds a client side view of a match room from the frames it receives.
// Handles ordering and deduplication of messages.
// Does not send frames or render anything.
package projection

import (
	"encoding/json"
	"sort"

	"match-chat/domain"
	"match-chat/infrastructure/wire"
)

// Timeline holds what one connection knows about its room.
type Timeline struct {
	Room     string
	Members  []domain.Identity
	Messages []wire.Message
	seen     map[string]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[string]struct{})}
}

// Apply folds one outbound frame into the timeline.
// Frames that carry no room state (errors, pongs) are ignored.
func (t *Timeline) Apply(frame wire.Frame) error {
	switch frame.Type {
	case "joined", "memberArrived", "memberDeparted":
		var p wire.MembershipPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		if frame.Type == "joined" && p.RoomID != t.Room {
			t.reset(p.RoomID)
		}
		t.Members = p.Membership
	case "newMessage":
		var p wire.NewMessagePayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		t.add(p.Message)
	case "history":
		var p wire.HistoryPagePayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		for _, post := range p.Messages {
			t.add(wire.Message{
				ID:        post.ID,
				RoomID:    p.RoomID,
				Author:    domain.Identity{ID: post.AuthorID},
				Content:   post.Content,
				Category:  post.Category,
				Language:  post.Language,
				CreatedAt: post.CreatedAt,
			})
		}
	}
	return nil
}

func (t *Timeline) reset(room string) {
	t.Room = room
	t.Members = nil
	t.Messages = nil
	t.seen = make(map[string]struct{})
}

// add keeps messages sorted by creation time, a message seen twice is kept once.
func (t *Timeline) add(m wire.Message) {
	if _, ok := t.seen[m.ID]; ok {
		return
	}
	t.seen[m.ID] = struct{}{}
	i := sort.Search(len(t.Messages), func(i int) bool { return t.Messages[i].CreatedAt.After(m.CreatedAt) })
	t.Messages = append(t.Messages, wire.Message{})
	copy(t.Messages[i+1:], t.Messages[i:])
	t.Messages[i] = m
}
