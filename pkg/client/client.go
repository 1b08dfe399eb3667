// Package client provides a client for connecting to the spectrad daemon.
// It wraps the gRPC control client with typed calls and manages the daemon
// process.
package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	spectrav1 "github.com/jamesainslie/spectra/pkg/api/spectra/v1"
	"github.com/jamesainslie/spectra/pkg/daemon"
	"github.com/jamesainslie/spectra/pkg/spectra/config"
)

// Client connects to the spectrad daemon via gRPC.
type Client struct {
	conn   *grpc.ClientConn
	client *spectrav1.ControlClient
}

// DefaultSocketPath returns the default Unix socket path for spectrad.
func DefaultSocketPath() string {
	return config.DefaultSocketPath()
}

// DefaultPIDPath returns the default PID file path for spectrad.
func DefaultPIDPath() string {
	return config.DefaultPIDPath()
}

// DaemonPaths configures paths for daemon operations.
// Empty fields use defaults.
type DaemonPaths struct {
	Binary string // Path to spectrad binary (auto-discovered if empty)
	Socket string // Unix socket path
	PID    string // PID file path
	Config string // Config file handed to spectrad
}

// withDefaults returns a copy with empty fields filled with defaults.
func (p DaemonPaths) withDefaults() DaemonPaths {
	if p.Socket == "" {
		p.Socket = DefaultSocketPath()
	}
	if p.PID == "" {
		p.PID = DefaultPIDPath()
	}
	return p
}

// args returns the spectrad command line for p.
func (p DaemonPaths) args() []string {
	args := []string{"--socket", p.Socket, "--pid", p.PID}
	if p.Config != "" {
		args = append(args, "--config", p.Config)
	}
	return args
}

// Connect establishes a connection to the spectrad daemon.
// Uses a default timeout of 5 seconds.
func Connect(socketPath string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ConnectWithContext(ctx, socketPath)
}

// ConnectWithContext establishes a connection to the spectrad daemon with a custom context.
func ConnectWithContext(ctx context.Context, socketPath string) (*Client, error) {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("daemon socket not found at %s", socketPath)
	}

	//nolint:staticcheck // grpc.DialContext is deprecated but NewClient doesn't support blocking
	conn, err := grpc.DialContext(
		ctx,
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	return &Client{
		conn:   conn,
		client: spectrav1.NewControlClient(conn),
	}, nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// call performs one unary RPC. Errors keep their spectra code, so
// errors.Is against errcode sentinels works on the result.
func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := spectrav1.Encode(req)
	if err != nil {
		return err
	}
	out, err := c.client.Call(ctx, method, in)
	if err != nil {
		return fmt.Errorf("%s RPC failed: %w", method, err)
	}
	if resp == nil {
		return nil
	}
	return spectrav1.Decode(out, resp)
}

func (c *Client) statusCall(ctx context.Context, method string) (*spectrav1.Status, error) {
	var st spectrav1.Status
	if err := c.call(ctx, method, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Status returns the instrument and acquisition status.
func (c *Client) Status(ctx context.Context) (*spectrav1.Status, error) {
	return c.statusCall(ctx, spectrav1.MethodGetStatus)
}

// PumpDown starts evacuating the vented instrument.
func (c *Client) PumpDown(ctx context.Context) (*spectrav1.Status, error) {
	return c.statusCall(ctx, spectrav1.MethodPumpDown)
}

// Operate switches the instrument on.
func (c *Client) Operate(ctx context.Context) (*spectrav1.Status, error) {
	return c.statusCall(ctx, spectrav1.MethodOperate)
}

// Standby switches the instrument to standby.
func (c *Client) Standby(ctx context.Context) (*spectrav1.Status, error) {
	return c.statusCall(ctx, spectrav1.MethodStandby)
}

// Vent vents the instrument.
func (c *Client) Vent(ctx context.Context) (*spectrav1.Status, error) {
	return c.statusCall(ctx, spectrav1.MethodVent)
}

// StartAcquisition opens a session and returns its id.
func (c *Client) StartAcquisition(ctx context.Context, req spectrav1.StartAcquisitionRequest) (string, error) {
	var resp spectrav1.StartAcquisitionResponse
	if err := c.call(ctx, spectrav1.MethodStartAcquisition, req, &resp); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// StopAcquisition ends the open session.
func (c *Client) StopAcquisition(ctx context.Context) error {
	return c.call(ctx, spectrav1.MethodStopAcquisition, nil, nil)
}

// PauseAcquisition suspends scanning. With resumeOnDigitalInput the daemon
// resumes by itself when the trigger input goes high.
func (c *Client) PauseAcquisition(ctx context.Context, resumeOnDigitalInput bool) error {
	return c.call(ctx, spectrav1.MethodPauseAcquisition,
		spectrav1.PauseAcquisitionRequest{ResumeOnDigitalInput: resumeOnDigitalInput}, nil)
}

// ResumeAcquisition continues a paused session.
func (c *Client) ResumeAcquisition(ctx context.Context) error {
	return c.call(ctx, spectrav1.MethodResumeAcquisition, nil, nil)
}

// ExtendAcquisition lengthens the open session by d and returns the new
// planned duration.
func (c *Client) ExtendAcquisition(ctx context.Context, d time.Duration) (time.Duration, error) {
	var resp spectrav1.ExtendAcquisitionResponse
	if err := c.call(ctx, spectrav1.MethodExtendAcquisition,
		spectrav1.ExtendAcquisitionRequest{Seconds: d.Seconds()}, &resp); err != nil {
		return 0, err
	}
	return time.Duration(resp.TotalSeconds * float64(time.Second)), nil
}

// ListDatasets returns the dataset catalog, most recent first.
func (c *Client) ListDatasets(ctx context.Context) ([]spectrav1.Dataset, error) {
	var resp spectrav1.ListDatasetsResponse
	if err := c.call(ctx, spectrav1.MethodListDatasets, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Datasets, nil
}

// RecentLog returns up to n buffered daemon log entries, oldest first.
func (c *Client) RecentLog(ctx context.Context, n int) ([]spectrav1.LogEntry, error) {
	var resp spectrav1.RecentLogResponse
	if err := c.call(ctx, spectrav1.MethodRecentLog, spectrav1.RecentLogRequest{Count: n}, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Shutdown requests the daemon to shut down gracefully.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.call(ctx, spectrav1.MethodShutdown, nil, nil)
}

// WatchEvents subscribes to daemon events. An empty sessionID receives
// events of every session. The channel closes when the stream ends or ctx
// is cancelled.
func (c *Client) WatchEvents(ctx context.Context, sessionID string) (<-chan spectrav1.Event, error) {
	in, err := spectrav1.Encode(spectrav1.WatchEventsRequest{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	stream, err := c.client.WatchEvents(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("WatchEvents RPC failed: %w", err)
	}

	events := make(chan spectrav1.Event, 100)
	go func() {
		defer close(events)
		for {
			msg, err := stream.Recv()
			if err != nil {
				return // Stream closed or error
			}
			var ev spectrav1.Event
			if err := spectrav1.Decode(msg, &ev); err != nil {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// EnsureDaemon ensures the daemon is running, starting it if necessary.
// Idempotent: returns nil if daemon is already running.
func EnsureDaemon(paths DaemonPaths) error {
	return StartDaemon(paths)
}

// StartDaemon starts the spectrad daemon in the background.
// Idempotent: returns nil if daemon is already running.
func StartDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if IsDaemonRunning(paths.PID) {
		return nil
	}

	binary, err := resolveBinary(paths.Binary)
	if err != nil {
		return fmt.Errorf("find %s: %w", config.DaemonBinary, err)
	}

	statusPath := daemon.StatusPath(paths.Socket)
	_ = daemon.RemoveStatus(statusPath)

	// exec.Command, not CommandContext: the daemon must outlive the caller.
	cmd := exec.Command(binary, paths.args()...) //nolint:gosec // binary path is validated
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	return waitReady(paths.Socket, statusPath, 50, 100*time.Millisecond)
}

// waitReady polls for the daemon's status file, falling back to the socket
// appearing.
func waitReady(socket, statusPath string, attempts int, interval time.Duration) error {
	for range attempts {
		time.Sleep(interval)

		if status, err := daemon.ReadStatus(statusPath); err == nil {
			switch status.Status {
			case daemon.StatusReady:
				return nil
			case daemon.StatusError:
				return fmt.Errorf("daemon failed to start: %s", status.Error)
			}
		}
		if _, err := os.Stat(socket); err == nil {
			return nil
		}
	}
	return errors.New("daemon did not become ready within timeout")
}

// StopDaemon stops the daemon gracefully via RPC.
// Idempotent: returns nil if daemon is not running.
func StopDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if !IsDaemonRunning(paths.PID) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer client.Close()

	if err := client.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown daemon: %w", err)
	}

	for range 20 {
		time.Sleep(250 * time.Millisecond)
		if !IsDaemonRunning(paths.PID) {
			return nil
		}
	}

	return errors.New("daemon did not stop within timeout")
}

// RestartDaemon stops and starts the daemon.
func RestartDaemon(paths DaemonPaths) error {
	if err := StopDaemon(paths); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if err := StartDaemon(paths); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	return nil
}

// resolveBinary finds the spectrad binary path.
// Priority: configured path > same directory as executable > GOBIN/GOPATH > PATH.
func resolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured binary not found: %s", configured)
		}
		return configured, nil
	}

	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), config.DaemonBinary)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if goBinPath := config.DefaultBinaryPath(); goBinPath != "" {
		return goBinPath, nil
	}

	if path, err := exec.LookPath(config.DaemonBinary); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%s not found", config.DaemonBinary)
}

// IsDaemonRunning checks if the daemon is running based on the PID file.
func IsDaemonRunning(pidPath string) bool {
	return daemon.IsDaemonRunning(pidPath)
}
