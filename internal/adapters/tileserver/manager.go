package tileserver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/Amund211/atlas/internal/adapters/tileprovider"
	"github.com/Amund211/atlas/internal/constants"
)

const (
	ContainerImage = "overv/openstreetmap-tile-server"
	commandTimeout = 10 * time.Second
)

var ErrStartFailed = errors.New("failed to start tile server")

// StartArgs runs the tile server with its database exposed for the building importer
var StartArgs = []string{
	"run",
	"-p", "8080:80",
	"-p", "5432:5432",
	"-e", "THREADS=16",
	"-v", "osm-data:/data/database",
	"-v", "osm-tiles:/data/tiles",
	"-d", ContainerImage,
	"run",
}

type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Manager controls the openstreetmap-tile-server docker container
type Manager struct {
	runner      Runner
	httpClient  tileprovider.HttpClient
	urlTemplate string
	logger      *slog.Logger
}

func NewManager(runner Runner, httpClient tileprovider.HttpClient, urlTemplate string, logger *slog.Logger) *Manager {
	return &Manager{
		runner:      runner,
		httpClient:  httpClient,
		urlTemplate: urlTemplate,
		logger:      logger.With(slog.String("component", "tileserver")),
	}
}

// IsRunning reports whether docker lists the tile server container as up
func (m *Manager) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	stdout, _, err := m.runner.Run(ctx, "docker", "ps")
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to list containers", "error", err.Error())
		return false
	}

	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, ContainerImage) && strings.Contains(line, "Up") {
			return true
		}
	}
	return false
}

// MaybeStart starts the container unless it is already running
func (m *Manager) MaybeStart(ctx context.Context) error {
	if m.IsRunning(ctx) {
		m.logger.InfoContext(ctx, "Tile server is already running")
		return nil
	}

	m.logger.InfoContext(ctx, "Starting tile server", "command", "docker "+strings.Join(StartArgs, " "))

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	_, stderr, err := m.runner.Run(ctx, "docker", StartArgs...)
	if err != nil {
		return fmt.Errorf("%w: %w: %s", ErrStartFailed, err, strings.TrimSpace(string(stderr)))
	}
	if len(bytes.TrimSpace(stderr)) > 0 {
		return fmt.Errorf("%w: %s", ErrStartFailed, strings.TrimSpace(string(stderr)))
	}
	return nil
}

// Poll reports whether the tile server serves the world tile
func (m *Manager) Poll(ctx context.Context) bool {
	url := strings.NewReplacer("{z}", "0", "{x}", "0", "{y}", "0").Replace(m.urlTemplate)

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to create poll request", "error", err.Error())
		return false
	}
	req.Header.Set("User-Agent", constants.USER_AGENT)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.InfoContext(ctx, "Unable to contact tile server", "error", err.Error())
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		m.logger.InfoContext(ctx, "Tile server not ready", "status", resp.StatusCode)
		return false
	}
	return true
}

// WaitUntilReady polls every interval until the tile server responds or ctx is done
func (m *Manager) WaitUntilReady(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if m.Poll(ctx) {
			m.logger.InfoContext(ctx, "Tile server is ready")
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("tile server did not become ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
