// Package domain contains core concepts of the match chat.
// This file defines chat messages and their categories.
// Messages are immutable once persisted.
package domain

import (
	"time"
)

// Category is the kind of a chat message.
type Category string

const (
	CategoryInsight    Category = "insight"
	CategoryBanter     Category = "banter"
	CategoryDiscussion Category = "discussion"
)

// DefaultCategory is applied when a client does not declare one.
const DefaultCategory = CategoryBanter

func (c Category) Valid() bool {
	switch c {
	case CategoryInsight, CategoryBanter, CategoryDiscussion:
		return true
	}
	return false
}

// Draft is a validated message waiting to be persisted.
type Draft struct {
	Room     RoomID
	AuthorID string
	Content  string
	Category Category
	Language string
}

// StoredMessage is what the persistence collaborator returns for a Draft.
type StoredMessage struct {
	ID        string
	CreatedAt time.Time
}

// ChatMessage is the broadcast view of a persisted message.
type ChatMessage struct {
	ID        string
	Room      RoomID
	Author    Identity
	Content   string
	Category  Category
	Language  string
	CreatedAt time.Time
}

// Post is a message as read back from history.
// Only the author id is stored, the display data lives with the identity.
type Post struct {
	ID        string
	Room      RoomID
	AuthorID  string
	Content   string
	Category  Category
	Language  string
	CreatedAt time.Time
}
