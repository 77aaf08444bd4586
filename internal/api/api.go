// Package api provides HTTP handlers and the main API server logic for LeadLine.
//
// It exposes the inbound SMS webhook, the manual send endpoint, the takeover
// toggle, and a read-only customer listing. The API integrates with the
// engage, store, genai and sms modules.
package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/leadline/leadline/internal/engage"
	"github.com/leadline/leadline/internal/genai"
	"github.com/leadline/leadline/internal/sms"
	"github.com/leadline/leadline/internal/store"
)

// DefaultAddr is the API listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server routes HTTP requests to the orchestrator and store.
type Server struct {
	orch *engage.Orchestrator
	st   store.Store
	addr string
}

// NewServer creates an API server around an orchestrator and store.
func NewServer(orch *engage.Orchestrator, st store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{orch: orch, st: st, addr: cfg.Addr}
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.healthHandler)
	mux.HandleFunc("/webhook/sms", s.webhookHandler)
	mux.HandleFunc("/api/send-message", s.sendMessageHandler)
	mux.HandleFunc("/api/takeover", s.takeoverHandler)
	mux.HandleFunc("/api/customers", s.customersHandler)
	return mux
}

// Start runs the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	slog.Info("LeadLine API running", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

// Run constructs all collaborators from the given options and starts the
// service. Collaborators are created once here and injected into the
// orchestrator; nothing is reinitialized per request.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, smsOpts []sms.Option, engageOpts []engage.Option, apiOpts []Option) error {
	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	gen, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize GenAI client: %w", err)
	}

	sender, err := sms.NewClient(smsOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize Twilio client: %w", err)
	}

	orch := engage.NewOrchestrator(st, gen, sender, engageOpts...)
	server := NewServer(orch, st, apiOpts...)
	return server.Start()
}

// buildStore selects the store backend from the configured DSN.
func buildStore(opts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Warn("No database DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(opts...)
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", cfg.DSN)
	return store.NewSQLiteStore(opts...)
}
