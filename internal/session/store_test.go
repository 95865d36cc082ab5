package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-wager/internal/rules"
)

func seed(t *testing.T, s *Store, id, bet, conn, identity string) *Session {
	t.Helper()
	sess := New(id, bet, conn, identity, time.Now())
	err := s.Atomic(func(tx *Tx) error {
		if err := tx.Create(sess); err != nil {
			return err
		}
		return tx.BindConnection(conn, id, identity)
	})
	require.NoError(t, err)
	return sess
}

func TestCreateDuplicate(t *testing.T) {
	s := NewStore()
	seed(t, s, "game_1", "1", "c1", "")

	err := s.Create(New("game_1", "", "c2", "", time.Now()))
	assert.ErrorIs(t, err, ErrDuplicateSession)

	err = s.Create(New("game_other", "1", "c3", "", time.Now()))
	assert.ErrorIs(t, err, ErrBetTaken)
	assert.Equal(t, 1, s.Len())
}

func TestGetReturnsSnapshot(t *testing.T) {
	s := NewStore()
	seed(t, s, "game_a", "", "c1", "")

	snap, err := s.Get("game_a")
	require.NoError(t, err)
	snap.Status = StatusCompleted
	snap.Moves = append(snap.Moves, MoveRecord{From: "e2"})

	again, err := s.Get("game_a")
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, again.Status)
	assert.Empty(t, again.Moves)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveIsIdempotentAndClearsIndices(t *testing.T) {
	s := NewStore()
	seed(t, s, "game_7", "7", "c1", "0xAbC")

	id, ok := s.SessionIDForBet("7")
	require.True(t, ok)
	assert.Equal(t, "game_7", id)
	conn, ok := s.ConnectionForIdentity("0xabc")
	require.True(t, ok)
	assert.Equal(t, "c1", conn)

	s.Remove("game_7")
	s.Remove("game_7")

	_, ok = s.SessionIDForConnection("c1")
	assert.False(t, ok)
	_, ok = s.ConnectionForIdentity("0xabc")
	assert.False(t, ok)
	_, ok = s.SessionIDForBet("7")
	assert.False(t, ok)
	assert.NoError(t, s.CheckConsistency())
}

func TestListActiveIncludesEveryStatus(t *testing.T) {
	s := NewStore()
	seed(t, s, "game_a", "", "c1", "")
	b := seed(t, s, "game_b", "", "c2", "")
	require.NoError(t, s.Atomic(func(tx *Tx) error {
		live, err := tx.Get(b.ID)
		if err != nil {
			return err
		}
		live.Slots[1].ConnID = "c3"
		live.Transition(StatusActive)
		live.Transition(StatusAbandoned)
		return nil
	}))

	list := s.ListActive()
	require.Len(t, list, 2)
	statuses := []Status{list[0].Status, list[1].Status}
	assert.ElementsMatch(t, []Status{StatusWaiting, StatusAbandoned}, statuses)
}

func TestConsistencyDetectsUnseatedConnection(t *testing.T) {
	s := NewStore()
	seed(t, s, "game_a", "", "c1", "")
	require.NoError(t, s.Atomic(func(tx *Tx) error {
		return tx.BindConnection("stranger", "game_a", "")
	}))
	assert.Error(t, s.CheckConsistency())

	require.NoError(t, s.Atomic(func(tx *Tx) error {
		tx.UnbindConnection("stranger")
		return nil
	}))
	assert.NoError(t, s.CheckConsistency())
}

func TestLifecycleEdges(t *testing.T) {
	assert.True(t, CanTransition(StatusWaiting, StatusActive))
	assert.True(t, CanTransition(StatusActive, StatusCompleted))
	assert.True(t, CanTransition(StatusActive, StatusAbandoned))
	assert.False(t, CanTransition(StatusCompleted, StatusActive))
	assert.False(t, CanTransition(StatusAbandoned, StatusActive))
	assert.False(t, CanTransition(StatusWaiting, StatusCompleted))

	sess := New("game_x", "", "c1", "", time.Now())
	assert.False(t, sess.Complete(WinnerWhite, ReasonCheckmate, time.Now()))
	require.True(t, sess.Transition(StatusActive))
	require.True(t, sess.Complete(WinnerFor(rules.Black), ReasonResignation, time.Now()))
	assert.Equal(t, WinnerBlack, sess.Winner)
	assert.NotNil(t, sess.EndedAt)
	assert.False(t, sess.Complete(WinnerWhite, ReasonCheckmate, time.Now()))
}
