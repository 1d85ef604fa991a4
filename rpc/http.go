package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"dineledger/core"
	"dineledger/crypto"
	"dineledger/indexer"
)

const defaultMaxBodyBytes = 1 << 20

// ServerConfig tunes the HTTP API.
type ServerConfig struct {
	Auth            AuthConfig
	RateLimitPerSec float64
	RateLimitBurst  int
	MaxBodyBytes    int64
	EventBacklog    int
	AllowedOrigins  []string
}

// PaymentIndex answers the indexed history queries.
type PaymentIndex interface {
	ListPayments(ctx context.Context, filter indexer.PaymentFilter) ([]indexer.PaymentRow, error)
	ListReviews(ctx context.Context, filter indexer.ReviewFilter) ([]indexer.ReviewRow, error)
}

// Server exposes a node over HTTP/JSON.
type Server struct {
	node    *core.Node
	cfg     ServerConfig
	logger  *slog.Logger
	auth    *Authenticator
	limiter *RateLimiter
	idem    *IdempotencyStore
	index   PaymentIndex
}

// Option customises optional collaborators of the server.
type Option func(*Server)

// WithIdempotencyStore enables Idempotency-Key handling on payment writes.
func WithIdempotencyStore(store *IdempotencyStore) Option {
	return func(s *Server) { s.idem = store }
}

// WithIndex enables the /v1/index routes.
func WithIndex(index PaymentIndex) Option {
	return func(s *Server) { s.index = index }
}

// WithLogger overrides the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewServer(node *core.Node, cfg ServerConfig, opts ...Option) (*Server, error) {
	if node == nil {
		return nil, errors.New("rpc: node required")
	}
	if len(cfg.Auth.HMACSecret) == 0 {
		return nil, errors.New("rpc: auth secret required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		node:    node,
		cfg:     cfg,
		logger:  slog.Default(),
		auth:    NewAuthenticator(cfg.Auth),
		limiter: NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler builds the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(s.limiter.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/restaurants/{addr}", s.handleGetRestaurant)
		v1.Get("/restaurants/{addr}/stats", s.handleRestaurantStats)
		v1.Get("/restaurants/{addr}/reviews", s.handleRestaurantReviews)
		v1.Get("/restaurants/{addr}/payments", s.handleRestaurantPayments)
		v1.Get("/customers/{addr}/payments", s.handleCustomerPayments)
		v1.Get("/owners/{addr}/reviews", s.handleOwnerReviews)
		v1.Get("/payments/{id}", s.handleGetPayment)
		v1.Get("/stats", s.handlePaymentStats)
		v1.Get("/fees", s.handleFeeConfig)
		v1.Get("/reviews/{id}", s.handleGetReview)
		v1.Get("/reviews/{id}/metadata", s.handleReviewMetadata)
		v1.Get("/reviews/{id}/tips/{tipper}", s.handleTipsFrom)
		v1.Get("/bills/{id}/review", s.handleReviewByBill)
		v1.Get("/balances/{addr}", s.handleBalances)
		v1.Get("/admin/{module}", s.handleAdminInfo)
		v1.Get("/events/ws", s.handleEventsWS)
		v1.Get("/index/payments", s.handleIndexPayments)
		v1.Get("/index/reviews", s.handleIndexReviews)

		v1.Group(func(authed chi.Router) {
			authed.Use(s.auth.Middleware)
			authed.Post("/restaurants", s.handleRegisterRestaurant)
			authed.Post("/restaurants/{addr}/status", s.handleRestaurantStatus)
			authed.With(s.idem.Middleware(s.cfg.MaxBodyBytes)).Post("/payments", s.handleProcessPayment)
			authed.Post("/payments/quote", s.handleQuote)
			authed.Post("/payments/{id}/review", s.handleReviewBill)
			authed.Post("/reviews", s.handleCreateReview)
			authed.With(s.idem.Middleware(s.cfg.MaxBodyBytes)).Post("/reviews/{id}/tips", s.handleTipReview)
			authed.Post("/reviews/{id}/report", s.handleReportReview)
			authed.Post("/reviews/{id}/deactivate", s.handleDeactivateReview)
			authed.Post("/reviews/{id}/transfer", s.handleTransferReview)
			authed.Post("/stable/approve", s.handleApprove)
			authed.Post("/admin/payments/fee-recipient", s.handleSetFeeRecipient)
			authed.Post("/admin/payments/fee", s.handleSetPlatformFee)
			authed.Post("/admin/reviews/creator", s.handleSetAuthorizedCreator)
			authed.Post("/admin/reviews/base-uri", s.handleSetBaseImageURI)
			authed.Post("/admin/mint/stable", s.handleMintStable)
			authed.Post("/admin/mint/native", s.handleCreditNative)
			authed.Post("/admin/{module}/pause", s.handlePause(true))
			authed.Post("/admin/{module}/unpause", s.handlePause(false))
			authed.Post("/admin/{module}/transfer", s.handleTransferAdmin)
		})
	})
	return otelhttp.NewHandler(r, "dineledger.rpc")
}

// ListenAndServe runs the API until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP API", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after body", errBadRequest)
	}
	return nil
}

func caller(r *http.Request) [20]byte {
	addr, _ := callerFrom(r.Context())
	return addr
}

func addressParam(r *http.Request, name string) ([20]byte, error) {
	return parseAddress(chi.URLParam(r, name), name)
}

func parseAddress(raw, field string) ([20]byte, error) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return addr, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	return addr, nil
}

func uintParam(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an unsigned integer", errBadRequest, name)
	}
	return v, nil
}

// parseUnits reads a non-negative integer amount in base units.
func parseUnits(raw, field string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, field)
	}
	return v, nil
}
