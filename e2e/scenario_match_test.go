package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"match-chat/domain"
	"match-chat/infrastructure/httpapi"
	"match-chat/infrastructure/wire"

	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type testMatchChatSuite struct {
	BaseSuite
}

func TestMatchChatSuite(t *testing.T) {
	suite.Run(t, &testMatchChatSuite{})
}

func memberIDs(p wire.MembershipPayload) []string {
	return lo.Map(p.Membership, func(m domain.Identity, _ int) string { return m.ID })
}

// TestMatchRoomFlow follows Alice on gRPC and Bob on WebSocket through match M1.
func (s *testMatchChatSuite) TestMatchRoomFlow() {
	t := s.T()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	alice := s.GrpcSession(ctx, Alice.ID)
	bob := s.WebSocket(ctx, Bob.ID)

	var membership wire.MembershipPayload
	aliceRecv := func(want string) wire.Frame {
		frame, err := alice.Recv()
		s.Require().NoError(err)
		s.Require().Equal(want, frame.Type, string(frame.Payload))
		return *frame
	}
	bobRecv := func(want string) wire.Frame {
		frame := s.ReadFrame(ctx, bob)
		s.Require().Equal(want, frame.Type, string(frame.Payload))
		return frame
	}

	s.Step(t, "Step 1: Alice joins M1 over gRPC")
	s.Require().NoError(alice.Send(&wire.Frame{Type: wire.TypeJoin, RequestID: "a1",
		Payload: Payload(wire.JoinPayload{RoomID: "M1", IdentityID: Alice.ID})}))
	s.Require().NoError(json.Unmarshal(aliceRecv("joined").Payload, &membership))
	s.Require().Len(membership.Membership, 1)
	s.Require().Equal(Alice.ID, membership.Membership[0].ID)

	s.Step(t, "Step 2: Bob joins M1 over WebSocket")
	s.WriteFrame(ctx, bob, wire.Frame{Type: wire.TypeJoin, RequestID: "b1",
		Payload: Payload(wire.JoinPayload{RoomID: "M1", IdentityID: Bob.ID})})
	s.Require().NoError(json.Unmarshal(bobRecv("joined").Payload, &membership))
	s.Require().Equal([]string{Alice.ID, Bob.ID}, memberIDs(membership))

	s.Require().NoError(json.Unmarshal(aliceRecv("memberArrived").Payload, &membership))
	s.Require().Equal(Bob.ID, membership.Member.ID)
	s.Require().Equal(Bob.AvatarRef, membership.Member.AvatarRef)
	s.Require().Equal([]string{Alice.ID, Bob.ID}, memberIDs(membership))

	s.Step(t, "Step 3: Bob posts, both receive the moderated message")
	s.WriteFrame(ctx, bob, wire.Frame{Type: wire.TypeSend, RequestID: "b2",
		Payload: Payload(wire.SendPayload{Content: "  that keeper is a clown  ", Category: "insight"})})
	var fromAlice, fromBob wire.NewMessagePayload
	s.Require().NoError(json.Unmarshal(aliceRecv("newMessage").Payload, &fromAlice))
	s.Require().NoError(json.Unmarshal(bobRecv("newMessage").Payload, &fromBob))
	s.Require().Equal(fromAlice, fromBob)
	s.Require().Equal("that keeper is a *****", fromAlice.Message.Content)
	s.Require().Equal("insight", fromAlice.Message.Category)
	s.Require().Equal(Bob.DisplayName, fromAlice.Message.Author.DisplayName)

	s.Step(t, "Step 4: a blank message is refused")
	s.Require().NoError(alice.Send(&wire.Frame{Type: wire.TypeSend, RequestID: "a2",
		Payload: Payload(wire.SendPayload{Content: "   "})}))
	var failure wire.ErrorPayload
	frame := aliceRecv("error")
	s.Require().Equal("a2", frame.RequestID)
	s.Require().NoError(json.Unmarshal(frame.Payload, &failure))
	s.Require().Equal("InvalidContent", failure.Kind)

	s.Step(t, "Step 5: presence and history over HTTP and over the stream")
	resp, err := http.Get(s.URL("/matches/M1/presence"))
	s.Require().NoError(err)
	var presence httpapi.PresenceResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&presence))
	_ = resp.Body.Close()
	s.Require().Len(presence.Membership, 2)

	s.Require().NoError(alice.Send(&wire.Frame{Type: wire.TypeHistory, RequestID: "a3"}))
	var page wire.HistoryPagePayload
	frame = aliceRecv("history")
	s.Require().Equal("a3", frame.RequestID)
	s.Require().NoError(json.Unmarshal(frame.Payload, &page))
	s.Require().Len(page.Messages, 1)
	s.Require().Equal(Bob.ID, page.Messages[0].AuthorID)
	s.Require().Nil(page.Cursor)

	s.Step(t, "Step 6: Bob leaves, Alice sees the departure")
	s.WriteFrame(ctx, bob, wire.Frame{Type: wire.TypeLeave})
	s.Require().NoError(json.Unmarshal(aliceRecv("memberDeparted").Payload, &membership))
	s.Require().Equal(Bob.ID, membership.Member.ID)
	s.Require().Equal([]string{Alice.ID}, memberIDs(membership))
}

func (s *testMatchChatSuite) TestJoinRules() {
	t := s.T()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stream := s.GrpcSession(ctx, Bob.ID)

	expect := func(requestID, kind string) {
		frame, err := stream.Recv()
		s.Require().NoError(err)
		s.Require().Equal("error", frame.Type)
		s.Require().Equal(requestID, frame.RequestID)
		var p wire.ErrorPayload
		s.Require().NoError(json.Unmarshal(frame.Payload, &p))
		s.Require().Equal(kind, p.Kind)
	}

	s.Step(t, "Joining as somebody else is forbidden")
	s.Require().NoError(stream.Send(&wire.Frame{Type: wire.TypeJoin, RequestID: "1",
		Payload: Payload(wire.JoinPayload{RoomID: "M1", IdentityID: Alice.ID})}))
	expect("1", "Forbidden")

	s.Step(t, "Joining a match that does not exist")
	s.Require().NoError(stream.Send(&wire.Frame{Type: wire.TypeJoin, RequestID: "2",
		Payload: Payload(wire.JoinPayload{RoomID: "M404", IdentityID: Bob.ID})}))
	expect("2", "UnknownRoom")

	s.Step(t, "Sending before joining")
	s.Require().NoError(stream.Send(&wire.Frame{Type: wire.TypeSend, RequestID: "3",
		Payload: Payload(wire.SendPayload{Content: "anyone?"})}))
	expect("3", "NotJoined")
}
