package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/park285/cheese-wager/internal/coordinator"
	"github.com/park285/cheese-wager/internal/obslog"
)

// noticeData carries every field the catalog templates may reference.
type noticeData struct {
	BetID  string
	From   string
	To     string
	Detail string
	Event  string
}

func (g *Gateway) dispatch(conn string, env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), g.callTimeout)
	defer cancel()

	switch env.Event {
	case EventCreateSession:
		var in CreateSessionIn
		if !g.decode(conn, env, &in, in.validate) {
			return
		}
		g.createSession(ctx, conn, in)
	case EventJoinSession:
		var in JoinSessionIn
		if !g.decode(conn, env, &in, in.validate) {
			return
		}
		g.joinSession(ctx, conn, in)
	case EventMove:
		var in MoveIn
		if !g.decode(conn, env, &in, in.validate) {
			return
		}
		g.move(ctx, conn, in)
	case EventResign:
		g.resign(ctx, conn)
	default:
		g.notice(conn, "unknown_event", noticeData{Event: env.Event}, "unknown event")
	}
}

// decode unmarshals env.Data into dst and runs validate; failures are reported to conn.
func (g *Gateway) decode(conn string, env Envelope, dst any, validate func() error) bool {
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			g.notice(conn, "invalid_request", noticeData{Detail: "malformed payload"}, err.Error())
			return false
		}
	}
	if err := validate(); err != nil {
		g.notice(conn, "invalid_request", noticeData{Detail: err.Error()}, err.Error())
		return false
	}
	return true
}

func (g *Gateway) notice(conn, code string, data noticeData, fallback string) {
	msg := g.cat.Text("error."+code, data, fallback)
	g.send(conn, EventErrorNotice, ErrorNoticeOut{Message: msg, Code: code})
}

func (g *Gateway) fail(conn string, err error, data noticeData) {
	code := coordinator.Code(err)
	if code == "internal" {
		obslog.L().Error("ws_handler_failed", zap.String("conn", conn), zap.Error(err))
	}
	if code == "invalid_request" && data.Detail == "" {
		data.Detail = err.Error()
	}
	g.notice(conn, code, data, err.Error())
}

func (g *Gateway) createSession(ctx context.Context, conn string, in CreateSessionIn) {
	res, err := g.coord.CreateSession(ctx, conn, coordinator.CreateRequest{BetID: in.BetID, Identity: in.ExternalIdentity})
	if err != nil {
		g.fail(conn, err, noticeData{BetID: in.BetID})
		return
	}
	s := res.Session
	g.send(conn, EventSessionCreated, SessionCreatedOut{
		SessionID: s.ID,
		Side:      res.Side,
		Position:  s.Game.FEN(),
		Status:    string(s.Status),
		BetID:     s.BetID,
	})
}

func (g *Gateway) joinSession(ctx context.Context, conn string, in JoinSessionIn) {
	res, err := g.coord.JoinSession(ctx, conn, coordinator.JoinRequest{SessionID: in.SessionID, Identity: in.ExternalIdentity})
	if err != nil {
		g.fail(conn, err, noticeData{})
		return
	}
	s := res.Session
	g.send(conn, EventSessionJoined, SessionCreatedOut{
		SessionID: s.ID,
		Side:      res.Side,
		Position:  s.Game.FEN(),
		Status:    string(s.Status),
		BetID:     s.BetID,
	})
	g.send(res.CreatorConn, EventOpponentJoined, OpponentJoinedOut{OpponentIdentity: res.OpponentIdentity})
	g.broadcast(res.Recipients, EventSessionStarted, SessionStartedOut{SessionID: s.ID, BetID: s.BetID, Position: s.Game.FEN()})
}

func (g *Gateway) move(ctx context.Context, conn string, in MoveIn) {
	g.outcomeMu.Lock()
	defer g.outcomeMu.Unlock()
	res, err := g.coord.ApplyMove(ctx, conn, coordinator.MoveRequest{From: in.From, To: in.To, Promotion: in.Promotion})
	if errors.Is(err, coordinator.ErrIllegalMove) {
		msg := g.cat.Text("error.illegal_move", noticeData{From: in.From, To: in.To}, "Invalid move")
		g.send(conn, EventIllegalMove, IllegalMoveOut{AttemptedMove: in, Message: msg})
		return
	}
	if err != nil {
		g.fail(conn, err, noticeData{From: in.From, To: in.To})
		return
	}
	s := res.Session
	g.broadcast(res.Recipients, EventMoveApplied, MoveAppliedOut{
		SessionID: s.ID,
		Move:      res.Move,
		Position:  s.Game.FEN(),
		Turn:      s.Game.Turn(),
	})
	switch {
	case res.Over:
		g.broadcast(res.Recipients, EventSessionOver, sessionOver(s))
	case res.Check:
		g.broadcast(res.Recipients, EventCheck, CheckOut{SessionID: s.ID})
	}
}

func (g *Gateway) resign(ctx context.Context, conn string) {
	g.outcomeMu.Lock()
	defer g.outcomeMu.Unlock()
	res, err := g.coord.Resign(ctx, conn)
	if err != nil {
		g.fail(conn, err, noticeData{})
		return
	}
	g.broadcast(res.Recipients, EventSessionOver, sessionOver(res.Session))
}

func (g *Gateway) disconnect(conn string) {
	ctx, cancel := context.WithTimeout(context.Background(), g.callTimeout)
	defer cancel()
	g.outcomeMu.Lock()
	defer g.outcomeMu.Unlock()
	res, err := g.coord.Disconnect(ctx, conn)
	if err != nil {
		obslog.L().Warn("ws_disconnect_failed", zap.String("conn", conn), zap.Error(err))
		return
	}
	if !res.Abandoned {
		return
	}
	msg := g.cat.Text("notice.opponent_disconnected", nil, "Opponent disconnected")
	g.broadcast(res.Recipients, EventOpponentDisconnected, OpponentDisconnectedOut{SessionID: res.Session.ID, Message: msg})
}
