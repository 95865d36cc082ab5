package archive

import (
	"fmt"
	"strings"
	"time"
)

// ResultToPGN maps a winner token to the PGN result marker.
func ResultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

// BuildPGN renders rec as a PGN document with numbered SAN moves.
func BuildPGN(rec Record) string {
	pgnResult := ResultToPGN(rec.Result)
	date := rec.StartedAt
	if date.IsZero() {
		date = time.Now()
	}
	var b strings.Builder
	b.WriteString("[Event \"Cheese Wager\"]\n")
	b.WriteString("[Site \"cheese-wager\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", playerTag(rec.White))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", playerTag(rec.Black))
	if rec.BetID != "" {
		fmt.Fprintf(&b, "[BetId \"%s\"]\n", sanitizePGN(rec.BetID))
	}
	if rec.Reason != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(string(rec.Reason)))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", pgnResult)

	for i := 0; i < len(rec.MovesSAN); i += 2 {
		fmt.Fprintf(&b, "%d. %s", i/2+1, strings.TrimSpace(rec.MovesSAN[i]))
		if i+1 < len(rec.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(rec.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func playerTag(addr string) string {
	if strings.TrimSpace(addr) == "" {
		return "?"
	}
	return sanitizePGN(addr)
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
