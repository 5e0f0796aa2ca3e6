// Package client provides a client for the resweepd solver daemon.
// It wraps the gRPC client so that a connected Client satisfies
// solver.Service and can be handed straight to the sweep controller.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	solverv1 "github.com/jamesainslie/resweep/pkg/api/solver/v1"
	"github.com/jamesainslie/resweep/pkg/resweep/config"
	"github.com/jamesainslie/resweep/pkg/resweep/solver"
)

// Client connects to resweepd via gRPC.
type Client struct {
	conn   *grpc.ClientConn
	client solverv1.SolverServiceClient
}

var (
	_ solver.Service  = (*Client)(nil)
	_ solver.Releaser = (*Client)(nil)
)

// DaemonStatus represents the daemon's current status.
type DaemonStatus struct {
	Running        bool
	PID            int
	Uptime         time.Duration
	MemoryBytes    int64
	Backend        string
	Catalog        string
	CatalogModes   int
	CatalogLoaded  time.Time
	Configurations int
	Stored         int
	Runs           int64
}

// DaemonPaths configures paths for daemon operations.
// Empty fields use defaults.
type DaemonPaths struct {
	Binary string // Path to resweepd (auto-discovered if empty)
	Socket string // Unix socket path
	PID    string // PID file path
}

func (p DaemonPaths) withDefaults() DaemonPaths {
	if p.Socket == "" {
		p.Socket = config.DefaultSocketPath()
	}
	if p.PID == "" {
		p.PID = config.DefaultPIDPath()
	}
	return p
}

// Connect establishes a connection to resweepd with a 5 second timeout.
func Connect(socketPath string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ConnectWithContext(ctx, socketPath)
}

// ConnectWithContext establishes a connection to resweepd, blocking until
// the connection is up or ctx is done.
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
		client: solverv1.NewSolverServiceClient(conn),
	}, nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// CreateConfiguration registers a named configuration on the daemon.
func (c *Client) CreateConfiguration(ctx context.Context, name string, cfg solver.Configuration) (solver.Handle, error) {
	resp, err := c.client.CreateConfiguration(ctx, &solverv1.CreateConfigurationRequest{
		Name:          name,
		Configuration: cfg,
	})
	if err != nil {
		return solver.Handle{}, fmt.Errorf("CreateConfiguration RPC failed: %w", solverv1.FromStatus(err))
	}
	return solver.Handle{Name: resp.Handle}, nil
}

// Run solves a configuration and blocks until the daemon reports back.
func (c *Client) Run(ctx context.Context, h solver.Handle, res solver.ComputeResources) (solver.RunResult, error) {
	resp, err := c.client.Run(ctx, &solverv1.RunRequest{Handle: h.Name, Resources: res})
	if err != nil {
		return solver.RunResult{}, fmt.Errorf("Run RPC failed: %w", solverv1.FromStatus(err))
	}
	return solver.RunResult{Passes: resp.Passes, Converged: resp.Converged}, nil
}

// ListResultQuantities lists the quantity names of one result category.
func (c *Client) ListResultQuantities(ctx context.Context, h solver.Handle, cat solver.Category) ([]solver.QuantityName, error) {
	resp, err := c.client.ListResultQuantities(ctx, &solverv1.ListResultQuantitiesRequest{
		Handle:   h.Name,
		Category: cat,
	})
	if err != nil {
		return nil, fmt.Errorf("ListResultQuantities RPC failed: %w", solverv1.FromStatus(err))
	}
	return resp.Quantities, nil
}

// QuantityValue reads the final-pass value of one quantity.
func (c *Client) QuantityValue(ctx context.Context, h solver.Handle, q solver.QuantityName) (float64, error) {
	resp, err := c.client.QuantityValue(ctx, &solverv1.QuantityValueRequest{Handle: h.Name, Quantity: q})
	if err != nil {
		return 0, fmt.Errorf("QuantityValue RPC failed: %w", solverv1.FromStatus(err))
	}
	return resp.Value, nil
}

// Release drops a configuration and its results on the daemon.
func (c *Client) Release(ctx context.Context, h solver.Handle) error {
	if _, err := c.client.Release(ctx, &solverv1.ReleaseRequest{Handle: h.Name}); err != nil {
		return fmt.Errorf("Release RPC failed: %w", solverv1.FromStatus(err))
	}
	return nil
}

// Status returns the current status of the daemon.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	resp, err := c.client.Status(ctx, &solverv1.StatusRequest{})
	if err != nil {
		return nil, fmt.Errorf("Status RPC failed: %w", solverv1.FromStatus(err))
	}

	st := &DaemonStatus{
		Running:        resp.Running,
		PID:            resp.PID,
		Uptime:         time.Duration(resp.UptimeSeconds) * time.Second,
		MemoryBytes:    resp.MemoryBytes,
		Backend:        resp.Backend,
		Catalog:        resp.Catalog,
		CatalogModes:   resp.CatalogModes,
		Configurations: resp.Configurations,
		Stored:         resp.Stored,
		Runs:           resp.Runs,
	}
	if resp.CatalogLoaded > 0 {
		st.CatalogLoaded = time.Unix(resp.CatalogLoaded, 0)
	}
	return st, nil
}

// Clear drops every configuration the daemon holds and returns how many
// were dropped.
func (c *Client) Clear(ctx context.Context) (int, error) {
	resp, err := c.client.Clear(ctx, &solverv1.ClearRequest{})
	if err != nil {
		return 0, fmt.Errorf("Clear RPC failed: %w", solverv1.FromStatus(err))
	}
	return resp.Released, nil
}

// Shutdown requests the daemon to shut down gracefully.
func (c *Client) Shutdown(ctx context.Context) error {
	resp, err := c.client.Shutdown(ctx, &solverv1.ShutdownRequest{})
	if err != nil {
		return fmt.Errorf("Shutdown RPC failed: %w", solverv1.FromStatus(err))
	}
	if !resp.Success {
		return errors.New("shutdown request was not successful")
	}
	return nil
}

// StatusPath returns the startup status file that sits next to socket.
func StatusPath(socket string) string {
	return strings.TrimSuffix(socket, ".sock") + ".status"
}

// StartDaemon starts resweepd in the background.
// Idempotent: returns nil if the daemon is already running.
func StartDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if IsDaemonRunning(paths.PID) {
		return nil
	}

	binary, err := resolveBinary(paths.Binary)
	if err != nil {
		return fmt.Errorf("find %s: %w", config.DaemonBinary, err)
	}

	statusPath := StatusPath(paths.Socket)
	_ = os.Remove(statusPath)

	// exec.Command, not CommandContext: the daemon must outlive the caller.
	cmd := exec.Command(binary, "--socket", paths.Socket, "--pid", paths.PID) //nolint:gosec // binary path is validated
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	for range 50 {
		time.Sleep(100 * time.Millisecond)

		if _, err := os.Stat(paths.Socket); err == nil {
			return nil
		}

		if status, err := readStatusFile(statusPath); err == nil {
			switch status.Status {
			case "ready":
				return nil
			case "error":
				return fmt.Errorf("daemon failed to start: %s", status.Error)
			}
		}
	}

	return errors.New("daemon did not become ready within timeout")
}

// StopDaemon stops the daemon gracefully via RPC.
// Idempotent: returns nil if the daemon is not running.
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

// resolveBinary finds resweepd.
// Priority: configured path > next to the executable > GOBIN/GOPATH > PATH.
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

	return "", errors.New(config.DaemonBinary + " not found")
}

// IsDaemonRunning checks if the daemon is running based on the PID file.
func IsDaemonRunning(pidPath string) bool {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 checks for existence.
	return process.Signal(syscall.Signal(0)) == nil
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// statusFile mirrors the startup status written by resweepd.
type statusFile struct {
	Status string `json:"status"`
	PID    int    `json:"pid,omitempty"`
	Error  string `json:"error,omitempty"`
}

func readStatusFile(path string) (*statusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status statusFile
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
