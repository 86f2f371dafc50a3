package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExchangeText(t *testing.T) {
	tests := []struct {
		name     string
		exchange *Exchange
		want     string
		ok       bool
	}{
		{
			name: "text content",
			exchange: &Exchange{
				Result: json.RawMessage(`{"content":[{"type":"text","text":"6"}]}`),
			},
			want: "6",
			ok:   true,
		},
		{
			name: "skips non-text content",
			exchange: &Exchange{
				Result: json.RawMessage(`{"content":[{"type":"image"},{"type":"text","text":"ok"}]}`),
			},
			want: "ok",
			ok:   true,
		},
		{
			name:     "raw object result",
			exchange: &Exchange{Result: json.RawMessage(`{"status":"connected"}`)},
			ok:       false,
		},
		{
			name:     "failed exchange",
			exchange: &Exchange{Err: &RPCError{Code: -32601, Message: "nope"}},
			ok:       false,
		},
		{
			name:     "nil exchange",
			exchange: nil,
			ok:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.exchange.Text()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBackendFailed(t *testing.T) {
	ok := &Exchange{Result: json.RawMessage(`{"content":[{"type":"text","text":"3"}]}`)}
	assert.False(t, BackendFailed(ok))

	failed := &Exchange{Result: json.RawMessage(`{"content":[{"type":"text","text":"` + FailureMarker + ` eval error"}]}`)}
	assert.True(t, BackendFailed(failed))

	// A transport-level failure is not a backend-reported failure.
	assert.False(t, BackendFailed(&Exchange{Err: &TransportError{Kind: TransportTimeout}}))
}

func TestExchangeFailed(t *testing.T) {
	assert.True(t, (&Exchange{Err: &RPCError{}}).Failed())
	assert.True(t, (*Exchange)(nil).Failed())
	assert.False(t, (&Exchange{Result: json.RawMessage(`{}`)}).Failed())
}
