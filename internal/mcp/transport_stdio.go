package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// maxFrameSize bounds one newline-terminated response frame.
const maxFrameSize = 4 * 1024 * 1024

// StdioTransport speaks the protocol over a framed pipe to a child process:
// one newline-terminated JSON object written to the child's stdin, one
// newline-terminated JSON object read back from its stdout per exchange.
//
// Reads have no deadline. The child is a trusted local process; if it stops
// producing output the exchange blocks until the stream closes or the process
// is stopped.
type StdioTransport struct {
	mu sync.Mutex

	command string
	args    []string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Scanner
	started bool

	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewStdioTransport creates a stdio transport for the given command line.
// The command is split on whitespace; the process is spawned on Start.
func NewStdioTransport(command string, logger *zap.Logger) *StdioTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	fields := strings.Fields(command)
	t := &StdioTransport{logger: logger}
	if len(fields) > 0 {
		t.command = fields[0]
		t.args = fields[1:]
	}
	return t
}

// Start spawns the child process and wires up its pipes. Calling Start on a
// running transport is a no-op.
func (t *StdioTransport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil
	}
	if t.command == "" {
		return fmt.Errorf("stdio transport: empty command")
	}

	cmd := exec.Command(t.command, t.args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdio transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdio transport: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stdio transport: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("stdio transport: start %s: %w", t.command, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	t.cmd = cmd
	t.stdin = stdin
	t.stdout = scanner
	t.started = true

	// Drain stderr so the child never blocks on a full pipe; surface it in
	// the debug log.
	t.wg.Add(1)
	go t.drainStderr(stderr)

	t.logger.Info("stdio transport started",
		zap.String("command", t.command), zap.Strings("args", t.args))
	return nil
}

func (t *StdioTransport) drainStderr(r io.Reader) {
	defer t.wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		t.logger.Debug("backend stderr", zap.String("line", scanner.Text()))
	}
}

// Exchange writes one request frame, flushes, and blocks reading exactly one
// response frame. Exchanges are strictly sequential; the transport holds its
// lock for the full round trip.
func (t *StdioTransport) Exchange(ctx context.Context, id int, method string, params any) *Exchange {
	ex := &Exchange{ID: id, Method: method, Params: params}

	if err := ctx.Err(); err != nil {
		ex.Err = &TransportError{Kind: TransportClosed, Err: err}
		return ex
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		ex.Err = &TransportError{Kind: TransportClosed, Cause: "transport not started"}
		return ex
	}

	frame, err := json.Marshal(newRequest(id, method, params))
	if err != nil {
		ex.Err = &TransportError{Kind: TransportFrame, Cause: "marshal request", Err: err}
		return ex
	}

	if _, err := t.stdin.Write(append(frame, '\n')); err != nil {
		ex.Err = &TransportError{Kind: TransportClosed, Cause: "write request", Err: err}
		return ex
	}

	if !t.stdout.Scan() {
		cause := "stream closed before response"
		if err := t.stdout.Err(); err != nil {
			ex.Err = &TransportError{Kind: TransportClosed, Cause: cause, Err: err}
		} else {
			ex.Err = &TransportError{Kind: TransportClosed, Cause: cause}
		}
		return ex
	}

	var envelope rpcResponse
	if err := json.Unmarshal(t.stdout.Bytes(), &envelope); err != nil {
		ex.Err = &TransportError{Kind: TransportFrame, Cause: "decode response", Err: err}
		return ex
	}

	ex.complete(&envelope)
	return ex
}

// Close shuts the child down: stdin is closed to signal end-of-input, then
// the process is killed if it has not already exited.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return nil
	}
	t.started = false

	if t.stdin != nil {
		_ = t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
		_ = t.cmd.Wait()
	}
	t.wg.Wait()

	t.logger.Info("stdio transport closed", zap.String("command", t.command))
	return nil
}

var _ Transport = (*StdioTransport)(nil)
