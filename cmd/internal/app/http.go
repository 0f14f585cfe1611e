package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rotator/cmd/internal/lifecycle"
)

// tokenResponse is the JSON shape of an active token on /api/jws and /ws/jws.
type tokenResponse struct {
	JWS         string    `json:"jws"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Placeholder bool      `json:"placeholder,omitempty"`
}

func newTokenResponse(info lifecycle.Info) tokenResponse {
	return tokenResponse{
		JWS:         info.Token(),
		Fingerprint: info.Fingerprint(),
		CreatedAt:   info.CreatedAt(),
		ExpiresAt:   info.ExpiresAt(),
		Placeholder: info.IsPlaceholder(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type routes struct {
	log      Logger
	cfg      Config
	clock    clockwork.Clock
	ctrl     *lifecycle.Controller
	dbPool   *pgxpool.Pool
	gatherer prometheus.Gatherer
	feed     http.Handler
}

func registerHTTP(mux *http.ServeMux, rt routes) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !rt.ctrl.Ready() {
			http.Error(w, "no active token", http.StatusServiceUnavailable)
			return
		}

		if rt.cfg.ReadinessRequireDB && rt.dbPool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if rt.dbPool != nil {
			if err := PingDB(r.Context(), rt.dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				rt.log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))

	// Readers never block on rotation: Current is a lock-free load.
	mux.HandleFunc("GET /api/jws", func(w http.ResponseWriter, _ *http.Request) {
		cur := rt.ctrl.Current()
		status := http.StatusOK
		if cur.IsPlaceholder() {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, newTokenResponse(cur))
	})

	mux.HandleFunc("GET /api/jws/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(rt.ctrl.Status(rt.clock.Now())))
	})

	mux.Handle("POST /api/jws/rotate", RequireAdmin(rt.cfg.AdminToken, rt.log,
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := rt.ctrl.ForceRotate(r.Context())
			writeAdminResult(w, rt.log, "rotate", info, err)
		})))

	mux.Handle("POST /api/jws/reset", RequireAdmin(rt.cfg.AdminToken, rt.log,
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := rt.ctrl.Reset(r.Context())
			writeAdminResult(w, rt.log, "reset", info, err)
		})))

	if rt.feed != nil {
		mux.Handle("GET /ws/jws", rt.feed)
	}
}

func writeAdminResult(w http.ResponseWriter, log Logger, op string, info lifecycle.Info, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, lifecycle.ErrSigning) {
			status = http.StatusBadGateway
		}
		log.Error("http.admin.fail", "op", op, "err", err)
		writeJSON(w, status, errorResponse{Error: op + " failed"})
		return
	}
	log.Info("http.admin.ok", "op", op, "active", info)
	writeJSON(w, http.StatusOK, newTokenResponse(info))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
