package runtime

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"match-chat/domain"
	"match-chat/domain/event"
	"match-chat/errors"
	"match-chat/mocks"

	"github.com/abadojack/whatlanggo"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	coordinator *Coordinator
	identities  *mocks.MockIdentityResolver
	store       *mocks.MockMessageStore
}

func newFixture(t *testing.T) fixture {
	ctrl := gomock.NewController(t)
	identities := mocks.NewMockIdentityResolver(ctrl)
	store := mocks.NewMockMessageStore(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	coordinator := NewCoordinator(log, NewRegistry(), NewMembershipTable(), identities, store, CoordinatorConfig{
		MaxContentLength: 20,
		PersistTimeout:   50 * time.Millisecond,
		LookupTimeout:    50 * time.Millisecond,
		HistoryLimit:     10,
	})
	return fixture{coordinator: coordinator, identities: identities, store: store}
}

func (f fixture) known(identities ...domain.Identity) {
	for _, identity := range identities {
		f.identities.EXPECT().ResolveIdentity(gomock.Any(), identity.ID).Return(identity, nil).AnyTimes()
	}
}

func (f fixture) join(t *testing.T, room domain.RoomID, identity domain.Identity) (domain.ConnectionID, *Sink) {
	sink := &Sink{}
	conn := f.coordinator.Open(sink)
	require.NoError(t, f.coordinator.HandleJoin(context.Background(), conn, domain.JoinCommand{Room: room, IdentityID: identity.ID}))
	return conn, sink
}

func failureKind(t *testing.T, sink *Sink) errors.Kind {
	failures := sink.OfType(event.FailureType)
	require.Len(t, failures, 1)
	return errors.Kind(failures[0].(event.Failure).Kind)
}

func TestCoordinator_Join_Snapshot_Contains_Joiner_Once(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.known(alice)

	// When alice joins M1
	_, sink := f.join(t, "M1", alice)

	// Then she receives the membership with herself only
	joined := sink.OfType(event.JoinedType)
	req.Len(joined, 1)
	req.Equal([]domain.Identity{alice}, joined[0].(event.Joined).Membership)
	req.Equal([]domain.Identity{alice}, f.coordinator.Snapshot("M1"))
	req.Empty(sink.OfType(event.MemberArrivedType))
}

func TestCoordinator_Second_Connection_Same_Identity_No_Arrival(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.known(alice, bob)

	// Given bob and alice are in M1
	_, bobSink := f.join(t, "M1", bob)
	f.join(t, "M1", alice)
	req.Len(bobSink.OfType(event.MemberArrivedType), 1)

	// When alice opens a second connection into M1
	f.join(t, "M1", alice)

	// Then bob is not told again
	req.Len(bobSink.OfType(event.MemberArrivedType), 1)
	req.Equal([]domain.Identity{bob, alice}, f.coordinator.Snapshot("M1"))
}

func TestCoordinator_Last_Connection_Leaving_Departs_Once(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.known(alice, bob)

	_, bobSink := f.join(t, "M1", bob)
	c1, _ := f.join(t, "M1", alice)
	c2, _ := f.join(t, "M1", alice)

	// When alice's first connection leaves, nothing is announced
	f.coordinator.HandleLeave(c1)
	req.Empty(bobSink.OfType(event.MemberDepartedType))
	req.Len(f.coordinator.Snapshot("M1"), 2)

	// When her last connection disconnects, bob sees one departure
	f.coordinator.HandleDisconnect(c2)
	f.coordinator.HandleDisconnect(c2)
	departed := bobSink.OfType(event.MemberDepartedType)
	req.Len(departed, 1)
	req.Equal(alice, departed[0].(event.MemberDeparted).Member)
	req.Equal([]domain.Identity{bob}, departed[0].(event.MemberDeparted).Membership)
}

func TestCoordinator_Leave_Alone_No_Notification(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.known(alice)

	conn, sink := f.join(t, "M1", alice)

	f.coordinator.HandleLeave(conn)

	req.Empty(sink.OfType(event.MemberDepartedType))
	req.Empty(f.coordinator.Snapshot("M1"))
	req.Zero(f.coordinator.Rooms())

	// And leaving again is harmless
	f.coordinator.HandleLeave(conn)
}

func TestCoordinator_Join_Already_Joined(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.known(alice)
	conn, sink := f.join(t, "M1", alice)

	err := f.coordinator.HandleJoin(context.Background(), conn, domain.JoinCommand{Room: "M2", IdentityID: alice.ID})

	req.ErrorIs(err, errors.ErrAlreadyJoined)
	req.Equal(errors.KindAlreadyJoined, failureKind(t, sink))
	req.Equal([]domain.Identity{alice}, f.coordinator.Snapshot("M1"))
	req.Empty(f.coordinator.Snapshot("M2"))
}

func TestCoordinator_Join_Unknown_Identity(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.identities.EXPECT().ResolveIdentity(gomock.Any(), "ghost").Return(domain.Identity{}, errors.ErrUnknownIdentity)
	sink := &Sink{}
	conn := f.coordinator.Open(sink)

	err := f.coordinator.HandleJoin(context.Background(), conn, domain.JoinCommand{RequestID: "r1", Room: "M1", IdentityID: "ghost"})

	req.ErrorIs(err, errors.ErrUnknownIdentity)
	req.Equal(errors.KindUnknownIdentity, failureKind(t, sink))
	req.Equal("r1", sink.OfType(event.FailureType)[0].(event.Failure).RequestID)
	_, bound := f.coordinator.Binding(conn)
	req.False(bound)
	req.Zero(f.coordinator.Rooms())
}

func TestCoordinator_Join_Lookup_Failure_Is_Unavailable(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.identities.EXPECT().ResolveIdentity(gomock.Any(), "alice").
		DoAndReturn(func(ctx context.Context, _ string) (domain.Identity, error) {
			<-ctx.Done()
			return domain.Identity{}, ctx.Err()
		})
	sink := &Sink{}
	conn := f.coordinator.Open(sink)

	err := f.coordinator.HandleJoin(context.Background(), conn, domain.JoinCommand{Room: "M1", IdentityID: "alice"})

	req.ErrorIs(err, errors.ErrUnavailable)
	req.Equal(errors.KindUnavailable, failureKind(t, sink))
}

func TestCoordinator_Join_Invalid_Request(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	sink := &Sink{}
	conn := f.coordinator.Open(sink)

	err := f.coordinator.HandleJoin(context.Background(), conn, domain.JoinCommand{Room: "  ", IdentityID: "alice"})

	req.ErrorIs(err, errors.ErrInvalidRequest)
	req.Equal(errors.KindInvalidRequest, failureKind(t, sink))
}

func TestCoordinator_Join_Unknown_Room(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.known(alice)
	matches := mocks.NewMockMatchDirectory(gomock.NewController(t))
	matches.EXPECT().MatchExists(gomock.Any(), domain.RoomID("M9")).Return(false, nil)
	f.coordinator.WithMatchDirectory(matches)
	sink := &Sink{}
	conn := f.coordinator.Open(sink)

	err := f.coordinator.HandleJoin(context.Background(), conn, domain.JoinCommand{Room: "M9", IdentityID: alice.ID})

	req.ErrorIs(err, errors.ErrUnknownRoom)
	req.Equal(errors.KindUnknownRoom, failureKind(t, sink))
}

func TestCoordinator_Send_Without_Join(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.known(bob)
	_, bobSink := f.join(t, "M1", bob)
	sink := &Sink{}
	conn := f.coordinator.Open(sink)

	// When an unjoined connection sends
	err := f.coordinator.HandleSend(context.Background(), conn, domain.SendCommand{Content: "hello"})

	// Then it gets NotJoined and nobody gets a message
	req.ErrorIs(err, errors.ErrNotJoined)
	req.Equal(errors.KindNotJoined, failureKind(t, sink))
	req.Empty(bobSink.OfType(event.NewMessageType))
}

func TestCoordinator_Send_Invalid_Content(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		category domain.Category
	}{
		{name: "empty", content: ""},
		{name: "blank", content: "   \n"},
		{name: "too long", content: strings.Repeat("é", 21)},
		{name: "unknown category", content: "hello", category: "rant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			f.known(alice, bob)
			conn, sink := f.join(t, "M1", alice)
			_, bobSink := f.join(t, "M1", bob)

			err := f.coordinator.HandleSend(context.Background(), conn, domain.SendCommand{Content: tt.content, Category: tt.category})

			req.ErrorIs(err, errors.ErrInvalidContent)
			req.Equal(errors.KindInvalidContent, failureKind(t, sink))
			req.Empty(bobSink.OfType(event.NewMessageType))
			req.Empty(bobSink.OfType(event.FailureType))
		})
	}
}

func TestCoordinator_Send_Max_Length_Accepted(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.known(alice)
	conn, sink := f.join(t, "M1", alice)
	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(domain.StoredMessage{ID: "p1"}, nil)

	err := f.coordinator.HandleSend(context.Background(), conn, domain.SendCommand{Content: strings.Repeat("é", 20)})

	req.NoError(err)
	req.Len(sink.OfType(event.NewMessageType), 1)
}

func TestCoordinator_Send_Persistence_Failure_No_Broadcast(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.known(alice, bob)
	conn, sink := f.join(t, "M1", alice)
	_, bobSink := f.join(t, "M1", bob)
	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ domain.Draft) (domain.StoredMessage, error) {
			<-ctx.Done()
			return domain.StoredMessage{}, ctx.Err()
		})

	err := f.coordinator.HandleSend(context.Background(), conn, domain.SendCommand{Content: "nice goal"})

	req.ErrorIs(err, errors.ErrPersistenceFailed)
	req.Equal(errors.KindPersistenceFailed, failureKind(t, sink))
	req.Empty(sink.OfType(event.NewMessageType))
	req.Empty(bobSink.OfType(event.NewMessageType))
}

func TestCoordinator_Send_Moderated(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.known(alice)
	moderator := mocks.NewMockModerator(gomock.NewController(t))
	moderator.EXPECT().Censor("you donkey").Return("you ******", []string{"donkey"})
	f.coordinator.WithModerator(moderator)
	conn, sink := f.join(t, "M1", alice)
	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, draft domain.Draft) (domain.StoredMessage, error) {
			req.Equal("you ******", draft.Content)
			return domain.StoredMessage{ID: "p1"}, nil
		})

	req.NoError(f.coordinator.HandleSend(context.Background(), conn, domain.SendCommand{Content: "you donkey"}))

	msg := sink.OfType(event.NewMessageType)[0].(event.NewMessage).Message
	req.Equal("you ******", msg.Content)
}

func TestCoordinator_Messages_Same_Order_For_Everyone(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.known(alice, bob)
	aliceConn, aliceSink := f.join(t, "M1", alice)
	bobConn, bobSink := f.join(t, "M1", bob)
	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, draft domain.Draft) (domain.StoredMessage, error) {
			return domain.StoredMessage{ID: draft.Content, CreatedAt: time.Now()}, nil
		}).Times(3)

	req.NoError(f.coordinator.HandleSend(context.Background(), aliceConn, domain.SendCommand{Content: "one"}))
	req.NoError(f.coordinator.HandleSend(context.Background(), bobConn, domain.SendCommand{Content: "two"}))
	req.NoError(f.coordinator.HandleSend(context.Background(), aliceConn, domain.SendCommand{Content: "three"}))

	order := func(s *Sink) []string {
		var res []string
		for _, e := range s.OfType(event.NewMessageType) {
			res = append(res, e.(event.NewMessage).Message.ID)
		}
		return res
	}
	req.Equal([]string{"one", "two", "three"}, order(aliceSink))
	req.Equal(order(aliceSink), order(bobSink))
}

// Scenario on match M1: A joins, B joins, A posts, A drops.
func TestCoordinator_Scenario_M1(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	a := domain.Identity{ID: "A", DisplayName: "A"}
	b := domain.Identity{ID: "B", DisplayName: "B"}
	f.known(a, b)
	createdAt := time.Date(2026, 6, 11, 21, 3, 0, 0, time.UTC)

	// A joins M1 and sees only themself
	aConn, aSink := f.join(t, "M1", a)
	req.Equal([]domain.Identity{a}, aSink.OfType(event.JoinedType)[0].(event.Joined).Membership)

	// B joins, A sees the arrival
	_, bSink := f.join(t, "M1", b)
	req.Equal([]domain.Identity{a, b}, bSink.OfType(event.JoinedType)[0].(event.Joined).Membership)
	arrivals := aSink.OfType(event.MemberArrivedType)
	req.Len(arrivals, 1)
	req.Equal(b, arrivals[0].(event.MemberArrived).Member)
	req.Equal([]domain.Identity{a, b}, arrivals[0].(event.MemberArrived).Membership)

	// A posts banter, both receive the same message
	f.store.EXPECT().CreateMessage(gomock.Any(), domain.Draft{
		Room: "M1", AuthorID: "A", Content: "nice goal", Category: domain.CategoryBanter,
		Language: whatlanggo.Detect("nice goal").Lang.Iso6391(),
	}).Return(domain.StoredMessage{ID: "post-1", CreatedAt: createdAt}, nil)
	req.NoError(f.coordinator.HandleSend(context.Background(), aConn, domain.SendCommand{Content: "nice goal", Category: domain.CategoryBanter}))

	for _, s := range []*Sink{aSink, bSink} {
		messages := s.OfType(event.NewMessageType)
		req.Len(messages, 1)
		msg := messages[0].(event.NewMessage).Message
		req.Equal("post-1", msg.ID)
		req.Equal(a, msg.Author)
		req.Equal(createdAt, msg.CreatedAt)
	}

	// A's transport fails, B sees the departure
	f.coordinator.HandleDisconnect(aConn)
	departures := bSink.OfType(event.MemberDepartedType)
	req.Len(departures, 1)
	req.Equal(a, departures[0].(event.MemberDeparted).Member)
	req.Equal([]domain.Identity{b}, departures[0].(event.MemberDeparted).Membership)
	req.Equal([]domain.Identity{b}, f.coordinator.Snapshot("M1"))
	req.Equal(1, f.coordinator.Connections())
}

func TestCoordinator_History(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.known(alice)
	history := mocks.NewMockMessageHistory(gomock.NewController(t))
	next := "cursor-2"
	history.EXPECT().GetMessages(gomock.Any(), domain.RoomID("M1"), nil, 10).
		Return([]domain.Post{{ID: "p2"}, {ID: "p1"}}, &next, nil)
	f.coordinator.WithHistory(history)
	conn, sink := f.join(t, "M1", alice)

	req.NoError(f.coordinator.HandleHistory(context.Background(), conn, domain.HistoryCommand{RequestID: "h1"}))

	pages := sink.OfType(event.HistoryType)
	req.Len(pages, 1)
	page := pages[0].(event.History)
	req.Equal("h1", page.RequestID)
	req.Len(page.Posts, 2)
	req.Equal(&next, page.Cursor)
}

func TestCoordinator_Observer_Receives_Room_Events(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.known(alice)
	observer := make(chan event.DomainEvent, 1)
	f.coordinator.WithObserver(observer)

	// When the observer buffer is full, joins still succeed
	f.join(t, "M1", alice)
	conn, _ := f.join(t, "M2", alice)
	f.coordinator.HandleDisconnect(conn)

	req.Len(observer, 1)
	req.Equal(event.MemberArrivedType, (<-observer).Type())
}
