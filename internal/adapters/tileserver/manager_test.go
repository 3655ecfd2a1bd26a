package tileserver_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/Amund211/atlas/internal/adapters/tileserver"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

type mockedRunner struct {
	calls  []call
	stdout map[string]string
	stderr map[string]string
	err    map[string]error
}

func (r *mockedRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.calls = append(r.calls, call{name: name, args: args})
	sub := args[0]
	return []byte(r.stdout[sub]), []byte(r.stderr[sub]), r.err[sub]
}

type mockedHttpClient struct {
	urls   []string
	status int
	err    error
}

func (c *mockedHttpClient) Do(req *http.Request) (*http.Response, error) {
	c.urls = append(c.urls, req.URL.String())
	if c.err != nil {
		return nil, c.err
	}
	return &http.Response{StatusCode: c.status, Body: io.NopCloser(bytes.NewBufferString("png"))}, nil
}

const psRunning = `CONTAINER ID   IMAGE                             COMMAND                  CREATED        STATUS        PORTS                                        NAMES
3f2a1b9c8d7e   overv/openstreetmap-tile-server   "/run.sh run"            2 hours ago    Up 2 hours    0.0.0.0:5432->5432/tcp, 0.0.0.0:8080->80/tcp   eager_hopper
`

const psExited = `CONTAINER ID   IMAGE                             COMMAND                  CREATED        STATUS        PORTS     NAMES
`

const template = "http://localhost:8080/tile/{z}/{x}/{y}.png"

func newManager(runner *mockedRunner, client *mockedHttpClient) *tileserver.Manager {
	return tileserver.NewManager(runner, client, template, slog.New(slog.DiscardHandler))
}

func TestIsRunning(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		stdout string
		err    error
		want   bool
	}{
		{name: "running", stdout: psRunning, want: true},
		{name: "not running", stdout: psExited, want: false},
		{name: "docker missing", err: errors.New("executable file not found"), want: false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			runner := &mockedRunner{stdout: map[string]string{"ps": c.stdout}, err: map[string]error{"ps": c.err}}
			require.Equal(t, c.want, newManager(runner, &mockedHttpClient{}).IsRunning(t.Context()))
			require.Equal(t, []call{{name: "docker", args: []string{"ps"}}}, runner.calls)
		})
	}
}

func TestMaybeStart(t *testing.T) {
	t.Parallel()

	t.Run("already running", func(t *testing.T) {
		t.Parallel()

		runner := &mockedRunner{stdout: map[string]string{"ps": psRunning}}
		require.NoError(t, newManager(runner, &mockedHttpClient{}).MaybeStart(t.Context()))
		require.Len(t, runner.calls, 1)
	})

	t.Run("starts the container", func(t *testing.T) {
		t.Parallel()

		runner := &mockedRunner{stdout: map[string]string{"ps": psExited, "run": "3f2a1b9c8d7e\n"}}
		require.NoError(t, newManager(runner, &mockedHttpClient{}).MaybeStart(t.Context()))
		require.Len(t, runner.calls, 2)
		require.Equal(t, tileserver.StartArgs, runner.calls[1].args)
		require.Contains(t, runner.calls[1].args, "overv/openstreetmap-tile-server")
	})

	t.Run("stderr output fails", func(t *testing.T) {
		t.Parallel()

		runner := &mockedRunner{
			stdout: map[string]string{"ps": psExited},
			stderr: map[string]string{"run": "port is already allocated\n"},
		}
		err := newManager(runner, &mockedHttpClient{}).MaybeStart(t.Context())
		require.ErrorIs(t, err, tileserver.ErrStartFailed)
		require.ErrorContains(t, err, "port is already allocated")
	})

	t.Run("command error fails", func(t *testing.T) {
		t.Parallel()

		runner := &mockedRunner{
			stdout: map[string]string{"ps": psExited},
			err:    map[string]error{"run": errors.New("exit status 125")},
		}
		err := newManager(runner, &mockedHttpClient{}).MaybeStart(t.Context())
		require.ErrorIs(t, err, tileserver.ErrStartFailed)
	})
}

func TestPoll(t *testing.T) {
	t.Parallel()

	t.Run("ready", func(t *testing.T) {
		t.Parallel()

		client := &mockedHttpClient{status: 200}
		require.True(t, newManager(&mockedRunner{}, client).Poll(t.Context()))
		require.Equal(t, []string{"http://localhost:8080/tile/0/0/0.png"}, client.urls)
	})

	t.Run("still rendering", func(t *testing.T) {
		t.Parallel()

		require.False(t, newManager(&mockedRunner{}, &mockedHttpClient{status: 503}).Poll(t.Context()))
	})

	t.Run("unreachable", func(t *testing.T) {
		t.Parallel()

		require.False(t, newManager(&mockedRunner{}, &mockedHttpClient{err: errors.New("connection refused")}).Poll(t.Context()))
	})

	t.Run("wait gives up with the context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
		defer cancel()

		client := &mockedHttpClient{status: 503}
		err := newManager(&mockedRunner{}, client).WaitUntilReady(ctx, 10*time.Millisecond)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.NotEmpty(t, client.urls)
	})

	t.Run("wait returns once ready", func(t *testing.T) {
		t.Parallel()

		require.NoError(t, newManager(&mockedRunner{}, &mockedHttpClient{status: 200}).WaitUntilReady(t.Context(), time.Hour))
	})
}
