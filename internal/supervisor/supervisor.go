// Package supervisor manages the lifecycle of a local backend server
// process: start with log capture, liveness polling, graceful stop, and
// health reporting. The supervised process is tracked through a pid file so
// stop and status work across supervisor invocations.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mcpnrepl/internal/render"
)

const (
	// probeTimeout bounds one liveness probe.
	probeTimeout = 2 * time.Second

	// startupPolls and startupInterval bound the post-spawn liveness wait.
	startupPolls    = 10
	startupInterval = time.Second

	// stopGrace is the window between SIGTERM and SIGKILL.
	stopGrace = 2 * time.Second
)

// Supervisor starts, stops, and inspects one backend server process.
type Supervisor struct {
	port     int
	command  []string
	env      []string
	workDir  string
	renderer render.Renderer
	logger   *zap.Logger

	out    io.Writer
	client *http.Client

	// sleep is replaceable for tests.
	sleep func(time.Duration)
}

// New creates a supervisor for a server listening on port, launched with the
// given command line. An empty command disables Start but leaves probing and
// Stop functional.
func New(port int, command []string, renderer render.Renderer, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	wd, _ := os.Getwd()
	return &Supervisor{
		port:     port,
		command:  command,
		workDir:  wd,
		renderer: renderer,
		logger:   logger,
		out:      os.Stdout,
		client:   &http.Client{Timeout: probeTimeout},
		sleep:    time.Sleep,
	}
}

// SetOutput redirects narration.
func (s *Supervisor) SetOutput(w io.Writer) { s.out = w }

// SetWorkDir changes where the log and pid files are written and where the
// server process runs.
func (s *Supervisor) SetWorkDir(dir string) { s.workDir = dir }

// SetEnv supplies extra environment entries for the spawned server.
func (s *Supervisor) SetEnv(env []string) { s.env = env }

// EndpointURL is the JSON-RPC endpoint of the supervised server.
func (s *Supervisor) EndpointURL() string {
	return fmt.Sprintf("http://localhost:%d/mcp", s.port)
}

// HealthURL is the liveness endpoint of the supervised server.
func (s *Supervisor) HealthURL() string {
	return fmt.Sprintf("http://localhost:%d/health", s.port)
}

func (s *Supervisor) logPath() string {
	return filepath.Join(s.workDir, fmt.Sprintf("server_%d.log", s.port))
}

func (s *Supervisor) pidPath() string {
	return filepath.Join(s.workDir, fmt.Sprintf("server_%d.pid", s.port))
}

// IsResponding probes the health endpoint once. Any transport failure or
// non-200 status counts as not responding.
func (s *Supervisor) IsResponding(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.HealthURL(), nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Start launches the server in the background with output captured to a log
// file, then polls the health endpoint until it responds. A server that is
// already responding is left alone. Returns an error when the server does not
// respond within the startup window.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.IsResponding(ctx) {
		fmt.Fprintln(s.out, s.renderer.Success(fmt.Sprintf("Server already running on port %d", s.port)))
		return nil
	}
	if len(s.command) == 0 {
		return fmt.Errorf("no server command configured")
	}

	fmt.Fprintln(s.out, s.renderer.Info(fmt.Sprintf("Starting server on port %d...", s.port)))

	logFile, err := os.Create(s.logPath())
	if err != nil {
		return fmt.Errorf("create server log: %w", err)
	}

	cmd := exec.Command(s.command[0], s.command[1:]...)
	cmd.Dir = s.workDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), s.env...)
	cmd.Env = append(cmd.Env, fmt.Sprintf("MCP_HTTP_PORT=%d", s.port))

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("start server: %w", err)
	}
	logFile.Close()
	pid := cmd.Process.Pid
	s.logger.Info("server spawned", zap.Int("pid", pid), zap.Int("port", s.port))

	if err := s.writePid(pid); err != nil {
		s.logger.Warn("failed to record server pid", zap.Error(err))
	}

	// Reap the child when it exits so a crashed server never lingers as a
	// zombie.
	go func() { _ = cmd.Wait() }()

	for i := 0; i < startupPolls; i++ {
		s.sleep(startupInterval)
		if s.IsResponding(ctx) {
			fmt.Fprintln(s.out, s.renderer.Success(
				fmt.Sprintf("Server started on port %d (PID: %d)", s.port, pid)))
			fmt.Fprintf(s.out, "Logs: %s\n", s.logPath())
			fmt.Fprintf(s.out, "MCP endpoint: %s\n", s.EndpointURL())
			fmt.Fprintf(s.out, "Health check: %s\n", s.HealthURL())
			return nil
		}
	}

	fmt.Fprintln(s.out, s.renderer.Error(
		fmt.Sprintf("Server failed to start within %d seconds", startupPolls)))
	return fmt.Errorf("server did not become healthy within %d seconds", startupPolls)
}

// StartForeground runs the server in the foreground, inheriting the
// supervisor's output streams, and blocks until the process exits or the
// context is canceled. Cancellation is a clean stop, not an error.
func (s *Supervisor) StartForeground(ctx context.Context) error {
	if len(s.command) == 0 {
		return fmt.Errorf("no server command configured")
	}

	cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)
	cmd.Dir = s.workDir
	cmd.Stdout = s.out
	cmd.Stderr = s.out
	cmd.Env = append(os.Environ(), s.env...)
	cmd.Env = append(cmd.Env, fmt.Sprintf("MCP_HTTP_PORT=%d", s.port))

	fmt.Fprintln(s.out, s.renderer.Info(fmt.Sprintf("Running server on port %d (foreground)...", s.port)))
	err := cmd.Run()
	if ctx.Err() != nil {
		fmt.Fprintln(s.out, s.renderer.Info("Server stopped"))
		return nil
	}
	if err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	return nil
}

// Stop terminates the recorded server process: SIGTERM, a grace period, then
// SIGKILL if it is still alive. A missing pid file or already-gone process is
// not an error.
func (s *Supervisor) Stop() error {
	pid, err := s.readPid()
	if err != nil {
		fmt.Fprintln(s.out, s.renderer.Info("No server process found"))
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil || proc.Signal(syscall.Signal(0)) != nil {
		fmt.Fprintln(s.out, s.renderer.Info("No server process found"))
		_ = os.Remove(s.pidPath())
		return nil
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("stop server pid %d: %w", pid, err)
	}
	s.sleep(stopGrace)

	if proc.Signal(syscall.Signal(0)) == nil {
		_ = proc.Kill()
		fmt.Fprintln(s.out, s.renderer.Warn(fmt.Sprintf("Force stopped server (PID: %d)", pid)))
	} else {
		fmt.Fprintln(s.out, s.renderer.Success(fmt.Sprintf("Server stopped gracefully (PID: %d)", pid)))
	}
	_ = os.Remove(s.pidPath())
	return nil
}

// Restart stops the server, waits for the port to free, and starts it again.
func (s *Supervisor) Restart(ctx context.Context) error {
	fmt.Fprintln(s.out, s.renderer.Info("Restarting server..."))
	if err := s.Stop(); err != nil {
		return err
	}
	s.sleep(stopGrace)
	return s.Start(ctx)
}

// healthPayload is the subset of the health endpoint's body we report.
type healthPayload struct {
	NreplConnected bool `json:"nrepl-connected"`
}

// Status reports the recorded pid, HTTP liveness, and the backend connection
// state from the health endpoint. Returns an error when the server is not
// both recorded and responding, so CLI callers map it to exit code 1.
func (s *Supervisor) Status(ctx context.Context) error {
	pid, pidErr := s.readPid()
	responding := s.IsResponding(ctx)

	fmt.Fprintln(s.out, "Server Status:")
	fmt.Fprintf(s.out, "   Port: %d\n", s.port)
	if pidErr == nil {
		fmt.Fprintf(s.out, "   PID: %d\n", pid)
	} else {
		fmt.Fprintln(s.out, "   PID: Not found")
	}
	if responding {
		fmt.Fprintf(s.out, "   HTTP Health: %s\n", s.renderer.Success("Responding"))
		if health, err := s.fetchHealth(ctx); err == nil {
			if health.NreplConnected {
				fmt.Fprintf(s.out, "   nREPL Connected: %s\n", s.renderer.Success("yes"))
			} else {
				fmt.Fprintf(s.out, "   nREPL Connected: %s\n", s.renderer.Error("no"))
			}
		} else {
			fmt.Fprintf(s.out, "   Health Details: %s\n", s.renderer.Error("Unable to fetch"))
		}
	} else {
		fmt.Fprintf(s.out, "   HTTP Health: %s\n", s.renderer.Error("Not responding"))
	}

	if !responding || pidErr != nil {
		return fmt.Errorf("server on port %d is not healthy", s.port)
	}
	return nil
}

func (s *Supervisor) fetchHealth(ctx context.Context) (*healthPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.HealthURL(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	var payload healthPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (s *Supervisor) writePid(pid int) error {
	return os.WriteFile(s.pidPath(), []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

func (s *Supervisor) readPid() (int, error) {
	data, err := os.ReadFile(s.pidPath())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", s.pidPath(), err)
	}
	return pid, nil
}
