package domain

// JoinCommand asks to bind a connection to a match room.
type JoinCommand struct {
	RequestID  string
	Room       RoomID `validate:"required,max=128"`
	IdentityID string `validate:"required,max=128"`
}

// SendCommand asks to post a message into the joined room.
// Content limits are configuration driven and checked by the coordinator.
type SendCommand struct {
	RequestID string
	Content   string
	Category  Category
}

// HistoryCommand asks for a page of persisted posts of the joined room.
type HistoryCommand struct {
	RequestID string
	Cursor    *string
	Limit     int `validate:"gte=0,lte=200"`
}
