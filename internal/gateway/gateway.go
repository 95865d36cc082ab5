package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-wager/internal/coordinator"
	"github.com/park285/cheese-wager/internal/ledger"
	"github.com/park285/cheese-wager/internal/msgcat"
	"github.com/park285/cheese-wager/internal/obslog"
)

// Coordinator is the game surface the gateway drives.
type Coordinator interface {
	CreateSession(ctx context.Context, conn string, req coordinator.CreateRequest) (*coordinator.CreateResult, error)
	JoinSession(ctx context.Context, conn string, req coordinator.JoinRequest) (*coordinator.JoinResult, error)
	ApplyMove(ctx context.Context, conn string, req coordinator.MoveRequest) (*coordinator.MoveResult, error)
	Resign(ctx context.Context, conn string) (*coordinator.ResignResult, error)
	Disconnect(ctx context.Context, conn string) (*coordinator.DisconnectResult, error)
	HandleLedgerEvent(ev ledger.Event) *coordinator.LedgerEventResult
}

// Gateway translates websocket frames into coordinator calls and fans results out.
type Gateway struct {
	coord Coordinator
	cat   *msgcat.Catalog

	origins      []string
	pingInterval time.Duration
	callTimeout  time.Duration

	mu       sync.RWMutex
	clients  map[string]*client
	closed   bool
	handlers sync.WaitGroup

	// outcomeMu keeps a settlement notice behind the sessionOver broadcast
	// of the move that finished the game.
	outcomeMu sync.Mutex
}

type Option func(*Gateway)

// WithOriginPatterns sets the accepted Origin host patterns.
func WithOriginPatterns(p ...string) Option {
	return func(g *Gateway) { g.origins = append(g.origins, p...) }
}

func WithPingInterval(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.pingInterval = d
		}
	}
}

// WithCallTimeout bounds ledger reads done on behalf of one inbound event.
func WithCallTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.callTimeout = d
		}
	}
}

func New(coord Coordinator, cat *msgcat.Catalog, opts ...Option) *Gateway {
	if cat == nil {
		cat = msgcat.MustDefault()
	}
	g := &Gateway{
		coord:        coord,
		cat:          cat,
		pingInterval: 30 * time.Second,
		callTimeout:  15 * time.Second,
		clients:      make(map[string]*client),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  g.origins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	cl := newClient(uuid.NewString(), ws)
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		_ = ws.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}
	g.clients[cl.id] = cl
	g.handlers.Add(1)
	g.mu.Unlock()
	defer g.handlers.Done()
	obslog.L().Info("ws_connect", zap.String("conn", cl.id), zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(context.Background())
	go cl.writeLoop(ctx, g.pingInterval)

	g.readLoop(ctx, cl)

	cancel()
	g.mu.Lock()
	delete(g.clients, cl.id)
	g.mu.Unlock()
	cl.close(websocket.StatusNormalClosure, "")
	g.disconnect(cl.id)
	obslog.L().Info("ws_disconnect", zap.String("conn", cl.id))
}

func (g *Gateway) readLoop(ctx context.Context, cl *client) {
	for {
		var env Envelope
		if err := wsjson.Read(ctx, cl.ws, &env); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				obslog.L().Debug("ws_read_failed", zap.String("conn", cl.id), zap.Error(err))
			}
			return
		}
		g.dispatch(cl.id, env)
	}
}

// Close drops every connection with StatusGoingAway, refuses new ones and
// returns once each handler has reported its disconnect to the coordinator.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	clients := make([]*client, 0, len(g.clients))
	for _, cl := range g.clients {
		clients = append(clients, cl)
	}
	g.mu.Unlock()
	for _, cl := range clients {
		cl.close(websocket.StatusGoingAway, "server shutdown")
	}
	g.handlers.Wait()
}

// Connections reports how many sockets are open.
func (g *Gateway) Connections() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

func (g *Gateway) send(conn, event string, payload any) {
	g.mu.RLock()
	cl, ok := g.clients[conn]
	g.mu.RUnlock()
	if !ok {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		obslog.L().Error("ws_encode_failed", zap.String("event", event), zap.Error(err))
		return
	}
	cl.enqueue(Envelope{Event: event, Data: raw})
}

func (g *Gateway) broadcast(conns []string, event string, payload any) {
	for _, c := range conns {
		g.send(c, event, payload)
	}
}

// SettlementResolved implements coordinator.Listener.
func (g *Gateway) SettlementResolved(s coordinator.Settlement) {
	g.outcomeMu.Lock()
	defer g.outcomeMu.Unlock()
	if s.Outcome == coordinator.OutcomeFailed {
		msg := g.cat.Text("notice.settlement_failed", noticeData{BetID: s.BetID}, "Failed to settle bet on blockchain")
		errText := ""
		if s.Err != nil {
			errText = s.Err.Error()
		}
		g.broadcast(s.Recipients, EventSettlementFailed, SettlementFailedOut{BetID: s.BetID, Message: msg, Error: errText})
		return
	}
	g.broadcast(s.Recipients, EventSettlementResult, SettlementResultOut{
		BetID:         s.BetID,
		SessionID:     s.SessionID,
		WinnerAddress: s.WinnerAddress,
		Outcome:       string(s.Outcome),
		TxHash:        s.TxHash,
	})
}

// ConsumeLedgerEvents routes poller events until ctx ends or events closes.
func (g *Gateway) ConsumeLedgerEvents(ctx context.Context, events <-chan ledger.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			res := g.coord.HandleLedgerEvent(ev)
			if len(res.Recipients) == 0 {
				continue
			}
			out := LedgerEventOut{SessionID: res.SessionID, Cancelled: res.Cancelled, Event: ev}
			if ev.Kind == ledger.EventBetCompleted {
				out.Result = ev.Result.String()
			}
			g.broadcast(res.Recipients, EventLedger, out)
		}
	}
}
