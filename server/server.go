// Package server exposes the memory service over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/becomeliminal/cortex/core"
	"github.com/becomeliminal/cortex/memory"
	"github.com/becomeliminal/cortex/metrics"
)

// DefaultMaxUploadBytes caps multipart uploads.
const DefaultMaxUploadBytes = 10 << 20

// Service is the memory surface the server drives. *memory.Manager satisfies it.
type Service interface {
	ProcessTurn(ctx context.Context, scope core.Scope, prompt string) (string, error)
	IngestText(ctx context.Context, scope core.Scope, content, label string) error
	StartRepoIngestion(ctx context.Context, scope core.Scope, repoURL string) (*memory.Job, error)
	ListSources(ctx context.Context, scope core.Scope) ([]string, error)
	ListTopics(ctx context.Context) ([]string, error)
	Job(ctx context.Context, id string) (*memory.Job, error)
}

var _ Service = (*memory.Manager)(nil)

// Config configures the server.
type Config struct {
	Service Service
	Metrics *metrics.Metrics

	// DefaultOwner is used when a request names no owner.
	// Default: "default"
	DefaultOwner string

	// AllowedOrigins lists origins granted CORS access. "*" allows any.
	// Default: ["*"]
	AllowedOrigins []string

	// MaxUploadBytes caps the /upload request body.
	// Default: 10 MiB
	MaxUploadBytes int64
}

// Server routes requests to the memory service.
type Server struct {
	service      Service
	metrics      *metrics.Metrics
	defaultOwner string
	origins      map[string]bool
	anyOrigin    bool
	maxUpload    int64
	upgrader     websocket.Upgrader
	handler      http.Handler
	httpServer   *http.Server
}

// New creates a server.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("server: Service is required")
	}
	if cfg.DefaultOwner == "" {
		cfg.DefaultOwner = "default"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	s := &Server{
		service:      cfg.Service,
		metrics:      cfg.Metrics,
		defaultOwner: cfg.DefaultOwner,
		origins:      make(map[string]bool),
		maxUpload:    cfg.MaxUploadBytes,
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			s.anyOrigin = true
		}
		s.origins[o] = true
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	mux := http.NewServeMux()
	s.route(mux, "POST /chat", s.handleChat)
	s.route(mux, "POST /upload", s.handleUpload)
	s.route(mux, "POST /ingest_repo", s.handleIngestRepo)
	s.route(mux, "GET /get_sources", s.handleSources)
	s.route(mux, "GET /api/topics", s.handleTopics)
	s.route(mux, "GET /jobs/{id}", s.handleJob)
	s.route(mux, "GET /ws", s.handleWebSocket)
	s.route(mux, "GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	s.handler = s.cors(mux)
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on addr and serves until Shutdown is called.
func (s *Server) Run(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	log.Printf("[SERVER] Listening on %s", ln.Addr())
	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Printf("[SERVER] Shutting down")
	return s.httpServer.Shutdown(ctx)
}
