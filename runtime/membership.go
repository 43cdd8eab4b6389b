package runtime

import (
	"sync"

	"match-chat/domain"

	"github.com/samber/lo"
)

type Set map[domain.ConnectionID]struct{}

type roomMembers struct {
	// arrival order of identities currently present
	members     []domain.Identity
	byIdentity  map[string]Set
	connections map[domain.ConnectionID]string
}

func newRoomMembers() *roomMembers {
	return &roomMembers{
		byIdentity:  make(map[string]Set),
		connections: make(map[domain.ConnectionID]string),
	}
}

func (r *roomMembers) snapshot() []domain.Identity {
	res := make([]domain.Identity, len(r.members))
	copy(res, r.members)
	return res
}

// MembershipTable keeps, per room, the de-duplicated set of present identities
// and the set of connections subscribed to it.
// A room exists only while at least one connection is in it.
type MembershipTable struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomMembers
}

func NewMembershipTable() *MembershipTable {
	return &MembershipTable{rooms: make(map[domain.RoomID]*roomMembers)}
}

// Join adds the connection to the room, creating the room on first use.
// arrived is true when the identity was not present before this call.
// The returned snapshot reflects the membership right after the add.
func (t *MembershipTable) Join(roomID domain.RoomID, identity domain.Identity, conn domain.ConnectionID) ([]domain.Identity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[roomID]
	if !ok {
		room = newRoomMembers()
		t.rooms[roomID] = room
	}

	if owner, ok := room.connections[conn]; ok && owner == identity.ID {
		return room.snapshot(), false
	}

	room.connections[conn] = identity.ID
	conns, present := room.byIdentity[identity.ID]
	if !present {
		conns = make(Set)
		room.byIdentity[identity.ID] = conns
		room.members = append(room.members, identity)
	}
	conns[conn] = struct{}{}
	return room.snapshot(), !present
}

// Leave removes the connection from the room.
// departed is true when it was the identity's last connection in the room.
// The room entry is dropped once its last connection leaves.
func (t *MembershipTable) Leave(roomID domain.RoomID, identityID string, conn domain.ConnectionID) (bool, []domain.Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[roomID]
	if !ok {
		return false, nil
	}
	owner, ok := room.connections[conn]
	if !ok || owner != identityID {
		return false, room.snapshot()
	}

	delete(room.connections, conn)
	departed := false
	if conns, ok := room.byIdentity[identityID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			departed = true
			delete(room.byIdentity, identityID)
			room.members = lo.Reject(room.members, func(m domain.Identity, _ int) bool {
				return m.ID == identityID
			})
		}
	}

	remaining := room.snapshot()
	if len(room.connections) == 0 {
		delete(t.rooms, roomID)
	}
	return departed, remaining
}

// Snapshot returns the identities present in the room, in arrival order.
// An unknown room is empty.
func (t *MembershipTable) Snapshot(roomID domain.RoomID) []domain.Identity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	room, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	return room.snapshot()
}

// Connections returns the connections currently subscribed to the room.
func (t *MembershipTable) Connections(roomID domain.RoomID) []domain.ConnectionID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	room, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	return lo.Keys(room.connections)
}

// Rooms returns the number of rooms with at least one connection.
func (t *MembershipTable) Rooms() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms)
}
