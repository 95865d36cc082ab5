package notify

import (
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/cheese-wager/internal/restclient"
)

func TestNilWebhookDropsAlerts(t *testing.T) {
	w, err := NewWebhook("")
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.NoError(t, w.SettlementFailed(context.Background(), Alert{BetID: "1"}))
}

func TestSettlementFailedRetriesUntilAccepted(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	defer ln.Close()

	var calls int32
	var got struct {
		Event string `json:"event"`
		Alert Alert  `json:"alert"`
	}
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, "/hooks/wager", string(ctx.Path()))
		assert.Equal(t, "k=1", string(ctx.QueryArgs().QueryString()))
		if atomic.AddInt32(&calls, 1) == 1 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		assert.NoError(t, json.Unmarshal(ctx.PostBody(), &got))
		ctx.SetStatusCode(fasthttp.StatusOK)
	}}
	go func() { _ = srv.Serve(ln) }()

	hc := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	w, err := NewWebhook("http://ops.test/hooks/wager?k=1", restclient.WithHTTPClient(hc))
	require.NoError(t, err)

	err = w.SettlementFailed(context.Background(), Alert{BetID: "5", SessionID: "game_5", Kind: "winner", Error: "reverted"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, "settlementFailed", got.Event)
	assert.Equal(t, "5", got.Alert.BetID)
	assert.Equal(t, "reverted", got.Alert.Error)
	assert.False(t, got.Alert.At.IsZero())
}
