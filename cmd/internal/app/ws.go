package app

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"rotator/cmd/internal/lifecycle"
)

const (
	feedSubprotocolV1 = "rotator.jws.v1"

	feedWriteTimeout     = 5 * time.Second
	feedHeartbeatEvery   = 25 * time.Second
	feedHeartbeatTimeout = 10 * time.Second
)

// FeedMessage is one frame on /ws/jws.
// The first frame is a "snapshot" of the current token; every later frame is
// a "rotated" notification.
type FeedMessage struct {
	Type  string        `json:"type"`
	Token tokenResponse `json:"token"`
}

// FeedGateway pushes every newly published active token to websocket clients.
// Clients only receive; anything they send is discarded.
type FeedGateway struct {
	log  Logger
	ctrl *lifecycle.Controller

	originPatterns []string
	writeTimeout   time.Duration
	heartbeatEvery time.Duration
}

func NewFeedGateway(log Logger, ctrl *lifecycle.Controller, originPatterns []string) *FeedGateway {
	return &FeedGateway{
		log:            log,
		ctrl:           ctrl,
		originPatterns: originPatterns,
		writeTimeout:   feedWriteTimeout,
		heartbeatEvery: feedHeartbeatEvery,
	}
}

func (g *FeedGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{feedSubprotocolV1},
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if sp := conn.Subprotocol(); sp != feedSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", feedSubprotocolV1)
		_ = conn.Close(websocket.StatusPolicyViolation, "subprotocol required")
		return
	}

	// Subscribe before the snapshot so no rotation falls in between.
	updates, unsubscribe := g.ctrl.Subscribe()
	defer unsubscribe()

	// CloseRead keeps control frames (pong, close) flowing and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	if err := g.write(ctx, conn, FeedMessage{Type: "snapshot", Token: newTokenResponse(g.ctrl.Current())}); err != nil {
		g.log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
		return
	}
	g.log.Info("ws.feed.open", "remote", r.RemoteAddr)

	hb := time.NewTicker(g.heartbeatEvery)
	defer hb.Stop()

	for {
		select {
		case <-ctx.Done():
			g.log.Info("ws.feed.close", "remote", r.RemoteAddr)
			return
		case info, ok := <-updates:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "feed closed")
				return
			}
			if err := g.write(ctx, conn, FeedMessage{Type: "rotated", Token: newTokenResponse(info)}); err != nil {
				g.log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
				return
			}
		case <-hb.C:
			pctx, cancel := context.WithTimeout(ctx, feedHeartbeatTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				g.log.Info("ws.ping.fail", "err", err)
				_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

func (g *FeedGateway) write(ctx context.Context, conn *websocket.Conn, msg FeedMessage) error {
	wctx, cancel := context.WithTimeout(ctx, g.writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, msg)
}
