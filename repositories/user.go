package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"match-chat/domain"
	"match-chat/errors"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/encoding/protowire"
)

const userPrefix = "user:"

const (
	userID          protowire.Number = 1
	userDisplayName protowire.Number = 2
	userAvatarRef   protowire.Number = 3
)

// UserRepository is the identity store of the chat.
type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

// PutUser creates or replaces an identity.
func (u *UserRepository) PutUser(ctx context.Context, identity domain.Identity) error {
	identity.ID = strings.TrimSpace(identity.ID)
	if identity.ID == "" || strings.TrimSpace(identity.DisplayName) == "" {
		return errors.ErrInvalidIdentity
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(userPrefix+identity.ID), encodeIdentity(identity))
	})
}

// ResolveIdentity returns errors.ErrUnknownIdentity when the user does not exist.
func (u *UserRepository) ResolveIdentity(ctx context.Context, id string) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, err
	}
	var identity domain.Identity
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			identity, err = decodeIdentity(val)
			return err
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Identity{}, errors.ErrUnknownIdentity
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("resolve identity %s: %w", id, err)
	}
	return identity, nil
}

// ListUsers returns every identity, ordered by id.
func (u *UserRepository) ListUsers(ctx context.Context) ([]domain.Identity, error) {
	var res []domain.Identity
	err := scanPrefix(ctx, u.db, []byte(userPrefix), func(val []byte) error {
		identity, err := decodeIdentity(val)
		if err != nil {
			return err
		}
		res = append(res, identity)
		return nil
	})
	return res, err
}

func encodeIdentity(identity domain.Identity) []byte {
	var b []byte
	b = appendString(b, userID, identity.ID)
	b = appendString(b, userDisplayName, identity.DisplayName)
	b = appendString(b, userAvatarRef, identity.AvatarRef)
	return b
}

func decodeIdentity(b []byte) (domain.Identity, error) {
	f, err := decodeFields(b)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{
		ID:          f.str(userID),
		DisplayName: f.str(userDisplayName),
		AvatarRef:   f.str(userAvatarRef),
	}, nil
}

// scanPrefix walks every value under prefix in key order.
func scanPrefix(ctx context.Context, db *badger.DB, prefix []byte, fn func(val []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}
