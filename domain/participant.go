// Package domain contains core concepts of the match chat.
// This file defines the Identity snapshot of a participant.
// No runtime, network, or UI logic should be added here.
package domain

// Identity is a read-only snapshot of a user, fetched from the
// identity collaborator when a connection joins a room.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}
