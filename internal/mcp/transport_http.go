package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultHTTPTimeout bounds one network exchange. A request still pending
// after this is failed with a timeout TransportError.
const DefaultHTTPTimeout = 30 * time.Second

// HTTPTransport performs one protocol exchange per HTTP round trip: a POST of
// the request envelope to the server URL, answered by the response envelope.
type HTTPTransport struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewHTTPTransport creates an HTTP transport for the given MCP endpoint URL.
// A non-positive timeout falls back to DefaultHTTPTimeout.
func NewHTTPTransport(url string, timeout time.Duration, logger *zap.Logger) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPTransport{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Exchange posts one request and blocks for the correlated response.
func (t *HTTPTransport) Exchange(ctx context.Context, id int, method string, params any) *Exchange {
	ex := &Exchange{ID: id, Method: method, Params: params}

	body, err := json.Marshal(newRequest(id, method, params))
	if err != nil {
		ex.Err = &TransportError{Kind: TransportFrame, Cause: "marshal request", Err: err}
		return ex
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		ex.Err = &TransportError{Kind: TransportConnect, Err: err}
		return ex
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		ex.Err = classifyHTTPError(err)
		t.logger.Debug("http exchange failed",
			zap.Int("id", id), zap.String("method", method), zap.Error(err))
		return ex
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		ex.Err = &TransportError{
			Kind:  TransportFrame,
			Cause: fmt.Sprintf("server returned status %d: %s", resp.StatusCode, payload),
		}
		return ex
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		ex.Err = &TransportError{Kind: TransportFrame, Cause: "decode response", Err: err}
		return ex
	}

	ex.complete(&envelope)
	return ex
}

// Close releases idle connections. The transport itself is stateless.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func classifyHTTPError(err error) *TransportError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Kind: TransportTimeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Kind: TransportTimeout, Err: err}
	}
	return &TransportError{Kind: TransportConnect, Err: err}
}

var _ Transport = (*HTTPTransport)(nil)
