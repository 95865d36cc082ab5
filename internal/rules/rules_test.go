package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func play(t *testing.T, g *Game, moves ...string) (*Game, *Applied) {
	t.Helper()
	var last *Applied
	for _, mv := range moves {
		a, err := g.Apply(mv[:2], mv[2:4], mv[4:])
		if err != nil {
			t.Fatalf("apply %s: %v", mv, err)
		}
		g, last = a.Next, a
	}
	return g, last
}

func TestApplyLeavesReceiverUntouched(t *testing.T) {
	g := NewGame()
	before := g.FEN()

	a, err := g.Apply("e2", "e4", "")
	require.NoError(t, err)
	assert.Equal(t, "e4", a.SAN)
	assert.Equal(t, before, g.FEN())
	assert.Equal(t, 0, g.Ply())
	assert.Equal(t, 1, a.Next.Ply())
	assert.Equal(t, Black, a.Next.Turn())
}

func TestIllegalMoves(t *testing.T) {
	g := NewGame()
	before := g.FEN()

	_, err := g.Apply("e7", "e5", "")
	assert.ErrorIs(t, err, ErrIllegalMove)
	_, err = g.Apply("e2", "e5", "")
	assert.ErrorIs(t, err, ErrIllegalMove)
	_, err = g.Apply("e4", "e5", "")
	assert.ErrorIs(t, err, ErrNoPieceToMove)
	_, err = g.Apply("z9", "e5", "")
	assert.ErrorIs(t, err, ErrBadSquare)
	_, err = g.Apply("e2", "e4", "k")
	assert.ErrorIs(t, err, ErrBadPromotion)

	assert.Equal(t, before, g.FEN())
}

func TestFoolsMateIsCheckmate(t *testing.T) {
	_, last := play(t, NewGame(), "f2f3", "e7e5", "g2g4", "d8h4")
	assert.True(t, last.Checkmate)
	assert.False(t, last.Draw)
	assert.Equal(t, "Qh4#", last.SAN)
}

func TestCheckIsReported(t *testing.T) {
	_, last := play(t, NewGame(), "e2e4", "f7f6", "d1h5")
	assert.True(t, last.Check)
	assert.False(t, last.Checkmate)
}

func TestPromotionDefaultsToQueen(t *testing.T) {
	g, _ := play(t, NewGame(), "a2a4", "b7b5", "a4b5", "a7a6", "b5a6", "c8b7", "a6b7", "h7h6")
	a, err := g.Apply("b7", "a8", "")
	require.NoError(t, err)
	assert.Equal(t, "q", a.Promotion)
	assert.Equal(t, "r", a.Captured)
	assert.Equal(t, "b7a8q", a.UCI)

	under, err := g.Apply("b7", "a8", "n")
	require.NoError(t, err)
	assert.Equal(t, "n", under.Promotion)
}

func TestStalemateIsDraw(t *testing.T) {
	_, last := play(t, NewGame(),
		"e2e3", "a7a5", "d1h5", "a8a6", "h5a5", "h7h5", "h2h4", "a6h6",
		"a5c7", "f7f6", "c7d7", "e8f7", "d7b7", "d8d3", "b7b8", "d3h7",
		"b8c8", "f7g6", "c8e6")
	assert.True(t, last.Draw)
	assert.Equal(t, "stalemate", last.DrawMethod)
	assert.False(t, last.Checkmate)
}

func TestReplayMatchesApply(t *testing.T) {
	g, _ := play(t, NewGame(), "e2e4", "e7e5", "g1f3")
	r, err := Replay([]string{"e2e4", "e7e5", "g1f3"})
	require.NoError(t, err)
	assert.Equal(t, g.FEN(), r.FEN())

	from, to, ok := r.LastMove()
	assert.True(t, ok)
	assert.Equal(t, "g1", from)
	assert.Equal(t, "f3", to)

	_, err = Replay([]string{"e2e5"})
	assert.ErrorIs(t, err, ErrIllegalMove)
}
