package domain

import (
	"strings"
	"time"
)

// RoomID identifies the chat room of one match.
type RoomID string

func (r RoomID) String() string { return string(r) }

// Normalize trims surrounding whitespace so " M1 " and "M1" name the same room.
func (r RoomID) Normalize() RoomID {
	return RoomID(strings.TrimSpace(string(r)))
}

// ConnectionID identifies one live transport session.
type ConnectionID string

func (c ConnectionID) String() string { return string(c) }

// Match is the football match a room is about.
type Match struct {
	ID       RoomID
	Home     string
	Away     string
	KickOff  time.Time
	Location string
}
