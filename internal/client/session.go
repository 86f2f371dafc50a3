package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mcpnrepl/internal/mcp"
)

// clientVersion is reported in the handshake clientInfo.
const clientVersion = "1.0.0"

// Session owns the handshake state, the request-id sequence, and the cached
// operation catalog for one client instance. It is single-threaded: at most
// one exchange is ever in flight, so no locking is needed.
type Session struct {
	transport mcp.Transport
	endpoint  string
	clientID  string
	logger    *zap.Logger

	requestCounter int
	initialized    bool
	catalog        *Catalog
}

// NewSession creates a session over the given transport. The request counter
// starts at 1; the catalog is empty until the first refresh.
func NewSession(transport mcp.Transport, endpoint string, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		transport:      transport,
		endpoint:       endpoint,
		clientID:       uuid.NewString(),
		logger:         logger,
		requestCounter: 1,
		catalog:        NewCatalog(nil),
	}
}

// Connect performs the fixed initialize handshake and, on success, refreshes
// the operation catalog. On handshake failure the session stays
// uninitialized, the catalog stays empty (no refresh is attempted), and the
// error is returned; the session never retries automatically. A failed
// post-handshake refresh is logged but does not fail the connect.
func (s *Session) Connect(ctx context.Context) error {
	ex := s.Exchange(ctx, "initialize", map[string]any{
		"protocolVersion": mcp.ProtocolVersion,
		"capabilities":    map[string]any{"tools": map[string]bool{"list": true, "call": true}},
		"clientInfo": map[string]string{
			"name":     "mcpnrepl",
			"version":  clientVersion,
			"instance": s.clientID,
		},
	})
	if ex.Err != nil {
		return fmt.Errorf("handshake with %s: %w", s.endpoint, ex.Err)
	}

	s.initialized = true
	s.logger.Info("connected", zap.String("endpoint", s.endpoint))

	if err := s.RefreshCatalog(ctx); err != nil {
		s.logger.Warn("initial catalog refresh failed", zap.Error(err))
	}
	return nil
}

// RefreshCatalog issues a tools/list exchange and atomically replaces the
// catalog with the parsed result. On failure the previous catalog is left
// untouched and the error is surfaced; callers must not assume the catalog is
// current after a failed refresh.
func (s *Session) RefreshCatalog(ctx context.Context) error {
	ex := s.Exchange(ctx, "tools/list", nil)
	if ex.Err != nil {
		return fmt.Errorf("list operations: %w", ex.Err)
	}

	var result struct {
		Tools []mcp.ToolSchema `json:"tools"`
	}
	if err := json.Unmarshal(ex.Result, &result); err != nil {
		return fmt.Errorf("parse operation list: %w", err)
	}

	s.catalog = ParseCatalog(result.Tools)
	s.logger.Debug("catalog refreshed", zap.Int("operations", s.catalog.Len()))
	return nil
}

// Exchange sends one request with the next request id and blocks for the
// correlated response.
func (s *Session) Exchange(ctx context.Context, method string, params any) *mcp.Exchange {
	return s.transport.Exchange(ctx, s.nextRequestID(), method, params)
}

// nextRequestID returns the current counter value and increments it. Ids are
// unique and strictly increasing within the session's lifetime.
func (s *Session) nextRequestID() int {
	id := s.requestCounter
	s.requestCounter++
	return id
}

// Initialized reports whether the handshake has completed.
func (s *Session) Initialized() bool { return s.initialized }

// Catalog returns the current operation catalog snapshot.
func (s *Session) Catalog() *Catalog { return s.catalog }

// Endpoint returns the server address the session was created for.
func (s *Session) Endpoint() string { return s.endpoint }

// Close releases the underlying transport.
func (s *Session) Close() error { return s.transport.Close() }
