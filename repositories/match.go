package repositories

import (
	"context"
	stderrors "errors"

	"match-chat/domain"
	"match-chat/errors"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/encoding/protowire"
)

const matchPrefix = "match:"

const (
	matchID       protowire.Number = 1
	matchHome     protowire.Number = 2
	matchAway     protowire.Number = 3
	matchKickOff  protowire.Number = 4
	matchLocation protowire.Number = 5
)

// MatchRepository knows which matches exist, and therefore which rooms can be joined.
type MatchRepository struct {
	db *badger.DB
}

func NewMatchRepository(db *badger.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

func (m *MatchRepository) PutMatch(ctx context.Context, match domain.Match) error {
	match.ID = match.ID.Normalize()
	if match.ID == "" || match.Home == "" || match.Away == "" {
		return errors.ErrInvalidMatch
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(matchPrefix+match.ID.String()), encodeMatch(match))
	})
}

func (m *MatchRepository) MatchExists(ctx context.Context, roomID domain.RoomID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := m.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(matchPrefix + roomID.String()))
		return err
	})
	switch {
	case stderrors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (m *MatchRepository) ListMatches(ctx context.Context) ([]domain.Match, error) {
	var res []domain.Match
	err := scanPrefix(ctx, m.db, []byte(matchPrefix), func(val []byte) error {
		match, err := decodeMatch(val)
		if err != nil {
			return err
		}
		res = append(res, match)
		return nil
	})
	return res, err
}

func encodeMatch(match domain.Match) []byte {
	var b []byte
	b = appendString(b, matchID, match.ID.String())
	b = appendString(b, matchHome, match.Home)
	b = appendString(b, matchAway, match.Away)
	b = appendTime(b, matchKickOff, match.KickOff)
	b = appendString(b, matchLocation, match.Location)
	return b
}

func decodeMatch(b []byte) (domain.Match, error) {
	f, err := decodeFields(b)
	if err != nil {
		return domain.Match{}, err
	}
	return domain.Match{
		ID:       domain.RoomID(f.str(matchID)),
		Home:     f.str(matchHome),
		Away:     f.str(matchAway),
		KickOff:  f.time(matchKickOff),
		Location: f.str(matchLocation),
	}, nil
}
