package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"match-chat/contract"
	"match-chat/domain"
	"match-chat/domain/event"
	"match-chat/errors"

	"github.com/abadojack/whatlanggo"
	"github.com/go-playground/validator/v10"
)

type CoordinatorConfig struct {
	MaxContentLength int
	PersistTimeout   time.Duration
	LookupTimeout    time.Duration
	HistoryLimit     int
}

// Coordinator applies join, leave, send and disconnect requests coming from
// connections and delivers the resulting events to the connections of a room.
//
// Every mutation of the registry or of the membership table, and the events
// derived from it, happens under a single lock, so all connections of a room
// observe arrivals, departures and messages in the same order.
// Collaborators (identity lookup, persistence) are called outside that lock.
// Delivery only enqueues into each connection sink and never blocks.
type Coordinator struct {
	mu         sync.Mutex
	log        *slog.Logger
	registry   *Registry
	membership *MembershipTable
	identities contract.IdentityResolver
	store      contract.MessageStore
	matches    contract.MatchDirectory
	history    contract.MessageHistory
	moderator  contract.Moderator
	observer   chan<- event.DomainEvent
	validate   *validator.Validate
	cfg        CoordinatorConfig
}

func NewCoordinator(
	log *slog.Logger,
	registry *Registry,
	membership *MembershipTable,
	identities contract.IdentityResolver,
	store contract.MessageStore,
	cfg CoordinatorConfig,
) *Coordinator {
	return &Coordinator{
		log:        log,
		registry:   registry,
		membership: membership,
		identities: identities,
		store:      store,
		validate:   validator.New(),
		cfg:        cfg,
	}
}

// WithMatchDirectory enables the room existence check on join.
func (c *Coordinator) WithMatchDirectory(matches contract.MatchDirectory) *Coordinator {
	c.matches = matches
	return c
}

func (c *Coordinator) WithHistory(history contract.MessageHistory) *Coordinator {
	c.history = history
	return c
}

// WithModerator censors message content before it is persisted.
func (c *Coordinator) WithModerator(moderator contract.Moderator) *Coordinator {
	c.moderator = moderator
	return c
}

// WithObserver publishes a copy of every room event to the channel.
// A full channel drops the event.
func (c *Coordinator) WithObserver(observer chan<- event.DomainEvent) *Coordinator {
	c.observer = observer
	return c
}

// Open registers a new connection.
func (c *Coordinator) Open(sink contract.EventSink) domain.ConnectionID {
	return c.registry.Attach(sink)
}

// HandleJoin binds the connection to a room.
// The joiner receives the membership, the other connections of the room
// are told about the arrival when the identity was not present yet.
func (c *Coordinator) HandleJoin(ctx context.Context, conn domain.ConnectionID, cmd domain.JoinCommand) error {
	cmd.Room = cmd.Room.Normalize()
	cmd.IdentityID = strings.TrimSpace(cmd.IdentityID)
	log := c.log.With("conn_id", conn, "room_id", cmd.Room, "identity_id", cmd.IdentityID)

	if !c.registry.Contains(conn) {
		return errors.ErrUnknownConnection
	}
	if err := c.validate.Struct(cmd); err != nil {
		return c.Fail(conn, cmd.Room, cmd.RequestID, fmt.Errorf("%w: %s", errors.ErrInvalidRequest, err))
	}
	if b, ok := c.registry.Binding(conn); ok {
		return c.Fail(conn, cmd.Room, cmd.RequestID, fmt.Errorf("%w: %s", errors.ErrAlreadyJoined, b.Room))
	}

	identity, err := c.resolve(ctx, cmd)
	if err != nil {
		log.Debug("Join rejected", "error", err)
		return c.Fail(conn, cmd.Room, cmd.RequestID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.registry.Bind(conn, identity, cmd.Room); err != nil {
		return c.Fail(conn, cmd.Room, cmd.RequestID, err)
	}
	membership, arrived := c.membership.Join(cmd.Room, identity, conn)

	c.deliver(conn, event.Joined{Room: cmd.Room, Membership: membership})
	if arrived {
		evt := event.MemberArrived{Room: cmd.Room, Member: identity, Membership: membership}
		c.broadcast(cmd.Room, evt, conn)
		c.publish(evt)
	}
	log.Debug("Connection joined", "arrived", arrived, "members", len(membership))
	return nil
}

func (c *Coordinator) resolve(ctx context.Context, cmd domain.JoinCommand) (domain.Identity, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()

	identity, err := c.identities.ResolveIdentity(lookupCtx, cmd.IdentityID)
	switch {
	case stderrors.Is(err, errors.ErrUnknownIdentity):
		return domain.Identity{}, fmt.Errorf("%w: %s", errors.ErrUnknownIdentity, cmd.IdentityID)
	case err != nil:
		c.log.Warn("Identity lookup failed", "identity_id", cmd.IdentityID, "error", err)
		return domain.Identity{}, fmt.Errorf("%w: identity lookup", errors.ErrUnavailable)
	}

	if c.matches == nil {
		return identity, nil
	}
	exists, err := c.matches.MatchExists(lookupCtx, cmd.Room)
	if err != nil {
		c.log.Warn("Match lookup failed", "room_id", cmd.Room, "error", err)
		return domain.Identity{}, fmt.Errorf("%w: match lookup", errors.ErrUnavailable)
	}
	if !exists {
		return domain.Identity{}, fmt.Errorf("%w: %s", errors.ErrUnknownRoom, cmd.Room)
	}
	return identity, nil
}

// HandleLeave unbinds the connection from its room.
// It is a no-op for a connection that is not joined.
func (c *Coordinator) HandleLeave(conn domain.ConnectionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaveLocked(conn)
}

func (c *Coordinator) leaveLocked(conn domain.ConnectionID) {
	b, ok := c.registry.Unbind(conn)
	if !ok {
		return
	}
	departed, remaining := c.membership.Leave(b.Room, b.Identity.ID, conn)
	c.log.Debug("Connection left",
		"conn_id", conn, "room_id", b.Room, "identity_id", b.Identity.ID, "departed", departed)
	if !departed {
		return
	}
	evt := event.MemberDeparted{Room: b.Room, Member: b.Identity, Membership: remaining}
	c.broadcast(b.Room, evt, "")
	c.publish(evt)
}

// HandleDisconnect runs the leave path and forgets the connection.
// Every transport calls it on closure, whatever the reason. It is idempotent.
func (c *Coordinator) HandleDisconnect(conn domain.ConnectionID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.leaveLocked(conn)
	c.registry.Detach(conn)
}

// HandleSend validates, persists and broadcasts a message to the room
// the connection joined, sender included.
// Nothing is broadcast when persistence fails.
func (c *Coordinator) HandleSend(ctx context.Context, conn domain.ConnectionID, cmd domain.SendCommand) error {
	b, ok := c.registry.Binding(conn)
	if !ok {
		return c.Fail(conn, "", cmd.RequestID, errors.ErrNotJoined)
	}
	log := c.log.With("conn_id", conn, "room_id", b.Room, "identity_id", b.Identity.ID)

	draft, err := c.draft(b, cmd)
	if err != nil {
		return c.Fail(conn, b.Room, cmd.RequestID, err)
	}

	persistCtx, cancel := context.WithTimeout(ctx, c.cfg.PersistTimeout)
	defer cancel()
	stored, err := c.store.CreateMessage(persistCtx, draft)
	if err != nil {
		log.Warn("Message not persisted", "error", err)
		return c.Fail(conn, b.Room, cmd.RequestID, fmt.Errorf("%w: try again", errors.ErrPersistenceFailed))
	}

	evt := event.NewMessage{Message: domain.ChatMessage{
		ID:        stored.ID,
		Room:      b.Room,
		Author:    b.Identity,
		Content:   draft.Content,
		Category:  draft.Category,
		Language:  draft.Language,
		CreatedAt: stored.CreatedAt,
	}}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcast(b.Room, evt, "")
	c.publish(evt)
	log.Debug("Message broadcast", "message_id", stored.ID, "category", draft.Category)
	return nil
}

func (c *Coordinator) draft(b Binding, cmd domain.SendCommand) (domain.Draft, error) {
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		return domain.Draft{}, fmt.Errorf("%w: content is empty", errors.ErrInvalidContent)
	}
	if n := utf8.RuneCountInString(content); n > c.cfg.MaxContentLength {
		return domain.Draft{}, fmt.Errorf("%w: %d characters, at most %d allowed",
			errors.ErrInvalidContent, n, c.cfg.MaxContentLength)
	}

	category := cmd.Category
	if category == "" {
		category = domain.DefaultCategory
	}
	if !category.Valid() {
		return domain.Draft{}, fmt.Errorf("%w: unknown category %q", errors.ErrInvalidContent, category)
	}

	if c.moderator != nil {
		censored, words := c.moderator.Censor(content)
		if len(words) > 0 {
			c.log.Info("Message censored", "identity_id", b.Identity.ID, "room_id", b.Room, "words", len(words))
		}
		content = censored
	}

	return domain.Draft{
		Room:     b.Room,
		AuthorID: b.Identity.ID,
		Content:  content,
		Category: category,
		Language: whatlanggo.Detect(content).Lang.Iso6391(),
	}, nil
}

// HandleHistory replies with one page of persisted posts of the joined room.
func (c *Coordinator) HandleHistory(ctx context.Context, conn domain.ConnectionID, cmd domain.HistoryCommand) error {
	b, ok := c.registry.Binding(conn)
	if !ok {
		return c.Fail(conn, "", cmd.RequestID, errors.ErrNotJoined)
	}
	if c.history == nil {
		return c.Fail(conn, b.Room, cmd.RequestID, fmt.Errorf("%w: history", errors.ErrUnsupported))
	}
	if err := c.validate.Struct(cmd); err != nil {
		return c.Fail(conn, b.Room, cmd.RequestID, fmt.Errorf("%w: %s", errors.ErrInvalidRequest, err))
	}
	limit := cmd.Limit
	if limit == 0 {
		limit = c.cfg.HistoryLimit
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()
	posts, next, err := c.history.GetMessages(lookupCtx, b.Room, cmd.Cursor, limit)
	if err != nil {
		c.log.Warn("History lookup failed", "room_id", b.Room, "error", err)
		return c.Fail(conn, b.Room, cmd.RequestID, fmt.Errorf("%w: history lookup", errors.ErrUnavailable))
	}

	c.deliver(conn, event.History{Room: b.Room, RequestID: cmd.RequestID, Posts: posts, Cursor: next})
	return nil
}

// Ping records the connection as alive and answers it.
func (c *Coordinator) Ping(conn domain.ConnectionID, requestID string) {
	c.Touch(conn)
	c.deliver(conn, event.Pong{RequestID: requestID})
}

// Fail reports err to the connection only and returns it.
func (c *Coordinator) Fail(conn domain.ConnectionID, room domain.RoomID, requestID string, err error) error {
	c.deliver(conn, event.Failure{
		Room:      room,
		RequestID: requestID,
		Kind:      string(errors.KindOf(err)),
		Detail:    err.Error(),
	})
	return err
}

// Touch records that the connection proved to be alive.
// It is serialized with DisconnectStale so a fresh touch always wins.
func (c *Coordinator) Touch(conn domain.ConnectionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry.Touch(conn)
}

// DisconnectStale disconnects the connection only if it is still silent since
// the given instant, and reports whether it did.
func (c *Coordinator) DisconnectStale(conn domain.ConnectionID, before time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.registry.SeenBefore(conn, before) {
		return false
	}
	c.leaveLocked(conn)
	c.registry.Detach(conn)
	return true
}

func (c *Coordinator) Binding(conn domain.ConnectionID) (Binding, bool) {
	return c.registry.Binding(conn)
}

// Snapshot returns the identities present in a room.
func (c *Coordinator) Snapshot(room domain.RoomID) []domain.Identity {
	return c.membership.Snapshot(room.Normalize())
}

// Stale lists the connections silent since the given instant.
func (c *Coordinator) Stale(before time.Time) []domain.ConnectionID {
	return c.registry.Stale(before)
}

// Sink returns the outbound sink of a connection.
func (c *Coordinator) Sink(conn domain.ConnectionID) (contract.EventSink, bool) {
	return c.registry.Sink(conn)
}

// Connections returns the number of open connections, joined or not.
func (c *Coordinator) Connections() int { return c.registry.Len() }

// Rooms returns the number of rooms with at least one connection.
func (c *Coordinator) Rooms() int { return c.membership.Rooms() }

func (c *Coordinator) deliver(conn domain.ConnectionID, evt event.DomainEvent) {
	sink, ok := c.registry.Sink(conn)
	if !ok {
		return
	}
	if err := sink.Consume(context.Background(), evt); err != nil {
		c.log.Debug("Event not delivered", "conn_id", conn, "type", evt.Type(), "error", err)
	}
}

// broadcast delivers to every connection of the room except one.
func (c *Coordinator) broadcast(room domain.RoomID, evt event.DomainEvent, except domain.ConnectionID) {
	for _, conn := range c.membership.Connections(room) {
		if conn == except {
			continue
		}
		c.deliver(conn, evt)
	}
}

func (c *Coordinator) publish(evt event.DomainEvent) {
	if c.observer == nil {
		return
	}
	select {
	case c.observer <- evt:
	default:
		c.log.Debug("Observer event lost", "type", evt.Type())
	}
}
