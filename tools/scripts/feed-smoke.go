// Package main provides a CI-friendly smoke test for the rotator token feed.
//
// It validates:
//   - handshake + subprotocol selection on /ws/jws
//   - the initial snapshot frame carries a real (non-placeholder) token
//   - /api/jws serves the same token
//   - optionally, an admin rotation is pushed as a "rotated" frame
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/pflag"

	"rotator/cmd/security/token"
)

const subprotocol = "rotator.jws.v1"

type tokenFrame struct {
	JWS         string    `json:"jws"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Placeholder bool      `json:"placeholder"`
}

type feedFrame struct {
	Type  string     `json:"type"`
	Token tokenFrame `json:"token"`
}

func main() {
	var (
		baseURL    = pflag.String("url", "http://127.0.0.1:8080", "rotator base URL")
		adminToken = pflag.String("admin-token", os.Getenv("ROTATOR_ADMIN_TOKEN"), "admin bearer token; enables the rotation step")
		timeout    = pflag.Duration("timeout", 7*time.Second, "per-step timeout")
		verbose    = pflag.BoolP("verbose", "v", false, "verbose output")
	)
	pflag.Parse()

	base, err := url.Parse(*baseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		fatalf("invalid --url %q", *baseURL)
	}

	root := context.Background()

	conn := mustConnect(root, wsURL(base), *timeout)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	snap := mustRead(root, conn, *timeout)
	if snap.Type != "snapshot" {
		fatalf("first frame type=%q want snapshot", snap.Type)
	}
	if snap.Token.Placeholder || snap.Token.JWS == "" {
		fatalf("snapshot carries no active token (placeholder=%t)", snap.Token.Placeholder)
	}
	// The server may key fingerprints with a secret, so only the shape is checked.
	if len(snap.Token.Fingerprint) != token.FingerprintLen {
		fatalf("bad fingerprint %q", snap.Token.Fingerprint)
	}
	if *verbose {
		fmt.Printf("snapshot: jws=%s fp=%s expires=%s\n", token.Redact(snap.Token.JWS), snap.Token.Fingerprint, snap.Token.ExpiresAt.Format(time.RFC3339))
	}

	api := mustGetActive(root, base, *timeout)
	if api.JWS != snap.Token.JWS {
		// A rotation may have happened in between; the feed must report it.
		next := mustRead(root, conn, *timeout)
		if next.Token.JWS != api.JWS {
			fatalf("/api/jws and feed disagree: api=%s feed=%s", token.Redact(api.JWS), token.Redact(next.Token.JWS))
		}
		snap = next
	}

	if *adminToken != "" {
		mustRotate(root, base, *adminToken, *timeout)
		rot := mustRead(root, conn, *timeout)
		if rot.Type != "rotated" {
			fatalf("frame type=%q want rotated", rot.Type)
		}
		if rot.Token.JWS == snap.Token.JWS {
			fatalf("rotation pushed the previous token")
		}
		if rot.Token.CreatedAt.Before(snap.Token.CreatedAt) {
			fatalf("rotated token is older than the snapshot")
		}
		if *verbose {
			fmt.Printf("rotated: jws=%s fp=%s\n", token.Redact(rot.Token.JWS), rot.Token.Fingerprint)
		}
	}

	fmt.Println("OK: feed smoke passed")
}

func wsURL(base *url.URL) string {
	u := *base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/jws"
	return u.String()
}

func mustConnect(parent context.Context, raw string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, raw, &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
	})
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		fatalf("dial %s: status=%d err=%v", raw, status, err)
	}
	if got := conn.Subprotocol(); got != subprotocol {
		_ = conn.CloseNow()
		fatalf("subprotocol=%q want %q", got, subprotocol)
	}
	return conn
}

func mustRead(parent context.Context, conn *websocket.Conn, stepTimeout time.Duration) feedFrame {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	var f feedFrame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			fatalf("timed out waiting for a feed frame")
		}
		fatalf("read: close_status=%v err=%v", websocket.CloseStatus(err), err)
	}
	return f
}

func mustGetActive(parent context.Context, base *url.URL, stepTimeout time.Duration) tokenFrame {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.JoinPath("/api/jws").String(), nil)
	if err != nil {
		fatalf("build request: %v", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("GET /api/jws: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		fatalf("GET /api/jws: status=%d", res.StatusCode)
	}

	var tf tokenFrame
	if err := json.NewDecoder(res.Body).Decode(&tf); err != nil {
		fatalf("decode /api/jws: %v", err)
	}
	return tf
}

func mustRotate(parent context.Context, base *url.URL, adminToken string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.JoinPath("/api/jws/rotate").String(), nil)
	if err != nil {
		fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+adminToken)

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("POST /api/jws/rotate: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		fatalf("POST /api/jws/rotate: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
