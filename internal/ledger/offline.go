package ledger

import "context"

// Offline is the local-mode ledger: matches run normally and settlement is skipped.
type Offline struct{}

func (Offline) Enabled() bool { return false }

func (Offline) GetBet(context.Context, string) (*Bet, error) { return nil, ErrDisabled }

func (Offline) DeclareWinner(context.Context, string, string) (*Receipt, error) {
	return &Receipt{Skipped: true}, nil
}

func (Offline) DeclareDraw(context.Context, string) (*Receipt, error) {
	return &Receipt{Skipped: true}, nil
}

func (Offline) PlayerStats(context.Context, string) (*PlayerStats, error) { return nil, ErrDisabled }

func (Offline) Status(context.Context) (*ChainStatus, error) { return &ChainStatus{Enabled: false}, nil }

func (Offline) AvailableBets(context.Context, int) ([]*Bet, error) { return []*Bet{}, nil }
