package rules

import (
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Side is the colour a participant plays.
type Side string

const (
	White Side = "white"
	Black Side = "black"
)

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == White {
		return Black
	}
	return White
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrIllegalMove   = staticErr("illegal move")
	ErrBadSquare     = staticErr("malformed square")
	ErrBadPromotion  = staticErr("promotion must be one of q, r, b, n")
	ErrNoPieceToMove = staticErr("no piece on source square")
)

// Game is an immutable chess position plus its history. Apply never mutates the receiver.
type Game struct {
	g *nchess.Game
}

// Applied describes the outcome of a legal move.
type Applied struct {
	Next       *Game
	From       string
	To         string
	SAN        string
	UCI        string
	Captured   string
	Promotion  string
	Checkmate  bool
	Draw       bool
	DrawMethod string
	Check      bool
}

func NewGame() *Game { return &Game{g: nchess.NewGame()} }

// Replay rebuilds a game from UCI moves.
func Replay(moves []string) (*Game, error) {
	game := nchess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, ErrIllegalMove
		}
	}
	return &Game{g: game}, nil
}

func (g *Game) FEN() string { return g.g.FEN() }

func (g *Game) Turn() Side {
	if g.g.Position().Turn() == nchess.White {
		return White
	}
	return Black
}

func (g *Game) Ply() int { return len(g.g.Moves()) }

// Board exposes the current board for read-only use (rendering).
func (g *Game) Board() *nchess.Board { return g.g.Position().Board() }

// LastMove returns the squares of the last move, if any.
func (g *Game) LastMove() (from, to string, ok bool) {
	moves := g.g.Moves()
	if len(moves) == 0 {
		return "", "", false
	}
	last := moves[len(moves)-1]
	return last.S1().String(), last.S2().String(), true
}

// Apply validates and plays from→to on a copy of the game.
// An empty promotion on a pawn reaching the last rank promotes to a queen.
func (g *Game) Apply(from, to, promotion string) (*Applied, error) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	promotion = strings.ToLower(strings.TrimSpace(promotion))

	fromSq, err := parseSquare(from)
	if err != nil {
		return nil, err
	}
	toSq, err := parseSquare(to)
	if err != nil {
		return nil, err
	}
	if len(promotion) > 1 || (promotion != "" && !strings.Contains("qrbn", promotion)) {
		return nil, ErrBadPromotion
	}

	before := g.g.Position()
	piece := before.Board().Piece(fromSq)
	if piece == nchess.NoPiece {
		return nil, ErrNoPieceToMove
	}

	next := g.g.Clone()
	uci := from + to
	promoted := ""
	if piece.Type() == nchess.Pawn && (to[1] == '8' || to[1] == '1') {
		if promotion == "" {
			promotion = "q"
		}
		promoted = promotion
		uci += promotion
	}

	if err := next.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return nil, ErrIllegalMove
	}
	moves := next.Moves()
	if len(moves) == 0 {
		return nil, ErrIllegalMove
	}
	mv := moves[len(moves)-1]

	san := nchess.AlgebraicNotation{}.Encode(before, mv)
	out := &Applied{
		Next:      &Game{g: next},
		From:      from,
		To:        to,
		SAN:       san,
		UCI:       uci,
		Promotion: promoted,
		Check:     mv.HasTag(nchess.Check) || strings.HasSuffix(san, "+"),
	}
	switch {
	case mv.HasTag(nchess.EnPassant):
		out.Captured = "p"
	case mv.HasTag(nchess.Capture):
		out.Captured = pieceLetter(before.Board().Piece(toSq).Type())
	}

	// Threefold and fifty-move are claimable in the engine; they end the game here.
	if next.Outcome() == nchess.NoOutcome {
		for _, m := range next.EligibleDraws() {
			if m == nchess.ThreefoldRepetition || m == nchess.FiftyMoveRule {
				if err := next.Draw(m); err == nil {
					break
				}
			}
		}
	}

	switch next.Outcome() {
	case nchess.WhiteWon, nchess.BlackWon:
		out.Checkmate = next.Method() == nchess.Checkmate
	case nchess.Draw:
		out.Draw = true
		out.DrawMethod = drawMethod(next.Method())
	}
	return out, nil
}

func parseSquare(s string) (nchess.Square, error) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		var zero nchess.Square
		return zero, ErrBadSquare
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), nil
}

// ValidSquare reports whether s is an algebraic square like "e4".
func ValidSquare(s string) bool {
	_, err := parseSquare(strings.ToLower(strings.TrimSpace(s)))
	return err == nil
}

func pieceLetter(t nchess.PieceType) string {
	switch t {
	case nchess.Pawn:
		return "p"
	case nchess.Knight:
		return "n"
	case nchess.Bishop:
		return "b"
	case nchess.Rook:
		return "r"
	case nchess.Queen:
		return "q"
	case nchess.King:
		return "k"
	default:
		return ""
	}
}

func drawMethod(m nchess.Method) string {
	switch m {
	case nchess.Stalemate:
		return "stalemate"
	case nchess.InsufficientMaterial:
		return "insufficient-material"
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return "repetition"
	case nchess.FiftyMoveRule, nchess.SeventyFiveMoveRule:
		return "fifty-move-rule"
	default:
		return strings.ToLower(m.String())
	}
}
