package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// cat echoes each request frame back verbatim, which is a well-formed
// envelope with a matching id and no result payload.
func TestStdioTransportEchoExchange(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := NewStdioTransport("cat", nil)
	require.NoError(t, tr.Start())
	defer tr.Close()

	ex := tr.Exchange(context.Background(), 1, "initialize", map[string]any{"probe": true})
	require.NoError(t, ex.Err)
	assert.Equal(t, 1, ex.ID)

	ex = tr.Exchange(context.Background(), 2, "tools/list", nil)
	require.NoError(t, ex.Err)
	assert.Equal(t, 2, ex.ID)
}

func TestStdioTransportClosedStream(t *testing.T) {
	defer goleak.VerifyNone(t)

	// A child that exits immediately closes its stdout before any response
	// frame is written.
	tr := NewStdioTransport("true", nil)
	require.NoError(t, tr.Start())
	defer tr.Close()

	ex := tr.Exchange(context.Background(), 1, "initialize", nil)
	var terr *TransportError
	require.ErrorAs(t, ex.Err, &terr)
	assert.Equal(t, TransportClosed, terr.Kind)
}

func TestStdioTransportNotStarted(t *testing.T) {
	tr := NewStdioTransport("cat", nil)

	ex := tr.Exchange(context.Background(), 1, "initialize", nil)
	var terr *TransportError
	require.ErrorAs(t, ex.Err, &terr)
	assert.Equal(t, TransportClosed, terr.Kind)
}

func TestStdioTransportEmptyCommand(t *testing.T) {
	tr := NewStdioTransport("", nil)
	assert.Error(t, tr.Start())
}

func TestStdioTransportStartIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := NewStdioTransport("cat", nil)
	require.NoError(t, tr.Start())
	require.NoError(t, tr.Start())
	require.NoError(t, tr.Close())
	// Close after close is also a no-op.
	require.NoError(t, tr.Close())
}
