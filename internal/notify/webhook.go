package notify

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-wager/internal/obslog"
	"github.com/park285/cheese-wager/internal/restclient"
)

// Alert describes a settlement the operator has to look at.
type Alert struct {
	BetID     string    `json:"betId"`
	SessionID string    `json:"sessionId"`
	Kind      string    `json:"kind"`
	Winner    string    `json:"winner,omitempty"`
	Error     string    `json:"error"`
	At        time.Time `json:"at"`
}

// Webhook posts settlement failures to an operator endpoint.
type Webhook struct {
	client *restclient.Client
	path   string
}

// NewWebhook returns nil for an empty URL; a nil Webhook drops alerts.
func NewWebhook(rawURL string, opts ...restclient.Option) (*Webhook, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	u.Path, u.RawPath, u.RawQuery = "", "", ""
	opts = append([]restclient.Option{restclient.WithRetry(4), restclient.WithTimeout(5 * time.Second)}, opts...)
	return &Webhook{client: restclient.New(u.String(), opts...), path: path}, nil
}

func (w *Webhook) SettlementFailed(ctx context.Context, a Alert) error {
	if w == nil {
		return nil
	}
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	payload := map[string]any{"event": "settlementFailed", "alert": a}
	if err := w.client.PostJSON(ctx, w.path, payload, nil, true); err != nil {
		obslog.L().Warn("settlement_alert_failed", zap.String("bet_id", a.BetID), zap.Error(err))
		return err
	}
	obslog.L().Info("settlement_alert_sent", zap.String("bet_id", a.BetID))
	return nil
}
