package restclient

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func serve(t *testing.T, h fasthttp.RequestHandler) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	hc := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	return New("http://wager.test/", WithHTTPClient(hc), WithTimeout(2*time.Second))
}

func TestGetJSONDecodes(t *testing.T) {
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, "/api/bet/1", string(ctx.Path()))
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"success":true,"bet":{"betId":"1"}}`)
	})
	var out struct {
		Success bool `json:"success"`
		Bet     struct {
			ID string `json:"betId"`
		} `json:"bet"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/api/bet/1", &out))
	assert.True(t, out.Success)
	assert.Equal(t, "1", out.Bet.ID)
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls int32
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		if atomic.AddInt32(&calls, 1) < 3 {
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
			return
		}
		ctx.SetBodyString(`{}`)
	})
	require.NoError(t, c.GetJSON(context.Background(), "/health", nil))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		atomic.AddInt32(&calls, 1)
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString(`{"success":false,"error":"Game not found"}`)
	})
	err := c.GetJSON(context.Background(), "/api/game/x", nil)
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 404, serr.Status)
	assert.Contains(t, serr.Body, "Game not found")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPostJSONSendsBodyAndHeaders(t *testing.T) {
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, "POST", string(ctx.Method()))
		assert.Equal(t, "application/json", string(ctx.Request.Header.ContentType()))
		assert.Equal(t, "secret", string(ctx.Request.Header.Peek("X-Wager-Token")))
		assert.JSONEq(t, `{"betId":"3"}`, string(ctx.PostBody()))
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	})
	c.headers = func() map[string]string { return map[string]string{"X-Wager-Token": "secret", " ": "skip"} }
	require.NoError(t, c.PostJSON(context.Background(), "/hook", map[string]string{"betId": "3"}, nil, false))
}

func TestBackoffIsCapped(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoffDuration(0))
	assert.Equal(t, 400*time.Millisecond, backoffDuration(3))
	assert.Equal(t, backoffDuration(6), backoffDuration(40))
}
