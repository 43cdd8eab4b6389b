package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"match-chat/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	postID        protowire.Number = 1
	postRoom      protowire.Number = 2
	postAuthorID  protowire.Number = 3
	postContent   protowire.Number = 4
	postCategory  protowire.Number = 5
	postLanguage  protowire.Number = 6
	postCreatedAt protowire.Number = 7
)

// PostRepository is the system of record for chat messages.
type PostRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewPostRepository(db *badger.DB, log *slog.Logger) *PostRepository {
	return &PostRepository{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func postPrefix(room domain.RoomID) string {
	return fmt.Sprintf("post:%s:", url.QueryEscape(room.String()))
}

// CreateMessage persists a post under "post:{escaped_room}:{unix_nano_padded}:{uuid}".
// The 19-digit padding keeps keys in chronological order and the uuid
// separates two posts of the same nanosecond.
func (p *PostRepository) CreateMessage(ctx context.Context, draft domain.Draft) (domain.StoredMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredMessage{}, err
	}
	post := domain.Post{
		ID:        uuid.NewString(),
		Room:      draft.Room,
		AuthorID:  draft.AuthorID,
		Content:   draft.Content,
		Category:  draft.Category,
		Language:  draft.Language,
		CreatedAt: p.now(),
	}
	key := fmt.Sprintf("%s%019d:%s", postPrefix(post.Room), post.CreatedAt.UnixNano(), post.ID)

	err := p.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), encodePost(post))
	})
	if err != nil {
		return domain.StoredMessage{}, err
	}
	return domain.StoredMessage{ID: post.ID, CreatedAt: post.CreatedAt}, nil
}

// GetMessages pages through the posts of a room, newest first.
// The returned cursor is nil once there is nothing older to read.
// A limit of zero or less reads everything.
func (p *PostRepository) GetMessages(ctx context.Context, roomID domain.RoomID, cursor *string, limit int) ([]domain.Post, *string, error) {
	var posts []domain.Post
	var next *string
	prefixStr := postPrefix(roomID)
	prefix := []byte(prefixStr)

	err := p.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Past the newest possible key, then walk backwards
			seekKey = append([]byte(prefixStr), []byte("9999999999999999999")...)
		default:
			seekKey = append([]byte(prefixStr), []byte(*cursor)...)
		}
		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()) == string(seekKey) {
			it.Next()
		}

		var lastKey string
		for ; it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && len(posts) == limit {
				p.log.Debug(fmt.Sprintf("Maximum of %d posts reached", limit))
				next = &lastKey
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			err := item.Value(func(val []byte) error {
				post, err := decodePost(val)
				if err != nil {
					return err
				}
				posts = append(posts, post)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return posts, next, nil
}

func encodePost(post domain.Post) []byte {
	var b []byte
	b = appendString(b, postID, post.ID)
	b = appendString(b, postRoom, post.Room.String())
	b = appendString(b, postAuthorID, post.AuthorID)
	b = appendString(b, postContent, post.Content)
	b = appendString(b, postCategory, string(post.Category))
	b = appendString(b, postLanguage, post.Language)
	b = appendTime(b, postCreatedAt, post.CreatedAt)
	return b
}

func decodePost(b []byte) (domain.Post, error) {
	f, err := decodeFields(b)
	if err != nil {
		return domain.Post{}, err
	}
	return domain.Post{
		ID:        f.str(postID),
		Room:      domain.RoomID(f.str(postRoom)),
		AuthorID:  f.str(postAuthorID),
		Content:   f.str(postContent),
		Category:  domain.Category(f.str(postCategory)),
		Language:  f.str(postLanguage),
		CreatedAt: f.time(postCreatedAt),
	}, nil
}
