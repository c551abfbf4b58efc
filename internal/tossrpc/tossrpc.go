// Package tossrpc is tossd's admin RPC surface: a net/http + encoding/json
// API exposing read/mutate operations on the toss engine to tossctl and
// test harnesses, gated by a tossauth macaroon. dcrlnd's own admin surface
// (lnrpc) is gRPC generated from .proto files via protoc; without that
// toolchain available, this hand-authors the equivalent operations over
// plain HTTP, keeping the same macaroon-gated, error-sentinel-mapped
// shape, following the errorLogUnaryServerInterceptor logging idiom in
// dcrlnd's log.go adapted to an http.Handler middleware.
package tossrpc

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/decred/slog"
	"github.com/tossd/tossd/internal/engine"
	"github.com/tossd/tossd/internal/tossauth"
	"github.com/tossd/tossd/internal/tosserr"
	"github.com/tossd/tossd/internal/walletprovider"
	"github.com/tossd/tossd/internal/watcher"
	"golang.org/x/time/rate"
)

var log = slog.Disabled

// UseLogger directs package logging to logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// requestsPerSecond and burstSize bound how fast the admin surface accepts
// requests; the limit is shared by all callers, independent of the
// macaroon each holds.
const (
	requestsPerSecond = 20
	burstSize         = 40
)

// Server is the tossrpc HTTP handler.
type Server struct {
	engine  *engine.Engine
	wallets walletprovider.Provider
	watch   *watcher.Watcher
	auth    *tossauth.Service
	mux     *http.ServeMux
	limiter *rate.Limiter
}

// New returns a Server wiring eng/wallets/w behind macaroon auth.
func New(eng *engine.Engine, wallets walletprovider.Provider, w *watcher.Watcher, auth *tossauth.Service) *Server {
	s := &Server{
		engine:  eng,
		wallets: wallets,
		watch:   w,
		auth:    auth,
		mux:     http.NewServeMux(),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burstSize),
	}
	s.mux.HandleFunc("/v1/toss/", s.handleToss)
	s.mux.HandleFunc("/v1/wallet/", s.handleWallet)
	s.mux.HandleFunc("/v1/watcher", s.requireAuth(tossauth.ActionRead, s.handleWatcher))
	return s
}

// ServeHTTP implements http.Handler, logging every request's outcome the
// way errorLogUnaryServerInterceptor logs gRPC unary call errors.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	s.mux.ServeHTTP(rec, r)
	if rec.status >= 400 {
		log.Errorf("[%s %s]: %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
	} else {
		log.Debugf("[%s %s]: %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// macaroonFromRequest extracts the raw macaroon from the Authorization
// header ("Macaroon <binary serialization as produced by tossauth.Bake>").
func macaroonFromRequest(r *http.Request) []byte {
	auth := r.Header.Get("Authorization")
	const prefix = "Macaroon "
	if !strings.HasPrefix(auth, prefix) {
		return nil
	}
	return []byte(strings.TrimPrefix(auth, prefix))
}

func (s *Server) requireAuth(action tossauth.Action, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := macaroonFromRequest(r)
		if raw == nil {
			writeError(w, http.StatusUnauthorized, "missing macaroon")
			return
		}
		if err := s.auth.Verify(raw, action); err != nil {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a tosserr sentinel to the HTTP status tossctl and test
// harnesses should treat as authoritative.
func statusFor(err error) int {
	switch err {
	case tosserr.ErrNotFound:
		return http.StatusNotFound
	case tosserr.ErrBadState, tosserr.ErrDuplicateParticipant, tosserr.ErrInvalidOption, tosserr.ErrUnpaid, tosserr.ErrActiveTossExists:
		return http.StatusConflict
	case tosserr.ErrNotCreator:
		return http.StatusForbidden
	case tosserr.ErrNotEnoughPlayers, tosserr.ErrAmountTooLarge:
		return http.StatusBadRequest
	case tosserr.ErrProviderUnavailable, tosserr.ErrInsufficientFunds, tosserr.ErrInvalidAddress:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleToss serves GET /v1/toss/{id} and POST /v1/toss/{id}/force-close.
func (s *Server) handleToss(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/toss/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing toss id")
		return
	}

	if len(parts) == 2 && parts[1] == "force-close" {
		s.requireAuth(tossauth.ActionAdmin, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "force-close requires POST")
				return
			}
			var body struct{ Caller string }
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			t, err := s.engine.ForceClose(id, body.Caller)
			if err != nil {
				writeError(w, statusFor(err), err.Error())
				return
			}
			writeJSON(w, http.StatusOK, t)
		})(w, r)
		return
	}

	s.requireAuth(tossauth.ActionRead, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "status requires GET")
			return
		}
		t, err := s.engine.Status(id)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, t)
	})(w, r)
}

// handleWallet serves GET /v1/wallet/{userId}/balance.
func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/wallet/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[1] != "balance" {
		writeError(w, http.StatusNotFound, "unknown wallet route")
		return
	}
	userId := parts[0]

	s.requireAuth(tossauth.ActionRead, func(w http.ResponseWriter, r *http.Request) {
		bal, err := s.wallets.Balance(userId)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"userId": userId, "balance": bal.String()})
	})(w, r)
}

// watcherWalletView is the JSON projection of a watcher.MonitoredWallet.
type watcherWalletView struct {
	Address          string `json:"address"`
	TossId           string `json:"tossId"`
	LastScannedBlock uint64 `json:"lastScannedBlock"`
}

// handleWatcher serves GET /v1/watcher.
func (s *Server) handleWatcher(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "watcher list requires GET")
		return
	}
	wallets := s.watch.Wallets()
	out := make([]watcherWalletView, 0, len(wallets))
	for _, mw := range wallets {
		out = append(out, watcherWalletView{Address: mw.Address, TossId: mw.TossId, LastScannedBlock: mw.LastScannedBlock})
	}
	writeJSON(w, http.StatusOK, out)
}
