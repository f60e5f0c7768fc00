package control

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewfead/sprintexport/internal/export"
)

// socketPath returns a path short enough for a Unix socket.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "sectl")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func startServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	path := socketPath(t)
	srv := NewServer(path)

	srv.Handle(MethodExportSprintData, func(ctx context.Context, params json.RawMessage) (any, error) {
		var req ExportRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, err
		}
		if req.SprintID == "" {
			return &ExportResult{Fault: &export.Fault{Kind: export.KindMissingInput, Message: "sprint ID is required"}}, nil
		}
		return &ExportResult{SprintID: req.SprintID, Body: "csv", Filename: "sprint_" + req.SprintID + "_export.csv", Rows: 1}, nil
	})
	srv.Handle(MethodResolveSprint, func(ctx context.Context, params json.RawMessage) (any, error) {
		return nil, errors.New("no future or active sprint found")
	})
	srv.Handle(MethodStatus, func(ctx context.Context, params json.RawMessage) (any, error) {
		panic("status exploded")
	})

	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })

	client, err := NewClient(path)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return srv, client
}

func TestExportRoundTrip(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	res, err := client.ExportSprintData(ctx, "42")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "sprint_42_export.csv", res.Filename)
	assert.Equal(t, "csv", res.Body)

	res, err = client.ExportSprintData(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, res.Fault)
	assert.Equal(t, export.KindMissingInput, res.Fault.Kind)
}

func TestHandlerErrorsAndUnknownMethods(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	_, err := client.ResolveSprint(ctx, "PROJ")
	assert.EqualError(t, err, "no future or active sprint found")

	resp, err := client.Call(ctx, "bogus", nil)
	require.NoError(t, err)
	assert.Equal(t, "unknown method: bogus", resp.Error)
}

func TestPanickingHandlerKeepsConnection(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	_, err := client.Status(ctx)
	assert.ErrorContains(t, err, "internal error in status")

	// The connection survives for the next call.
	res, err := client.ExportSprintData(ctx, "1")
	require.NoError(t, err)
	assert.True(t, res.OK())
}

func TestBroadcast(t *testing.T) {
	srv, client := startServer(t)

	// Make sure the server has registered the connection.
	_, err := client.ExportSprintData(context.Background(), "1")
	require.NoError(t, err)

	srv.Broadcast(Event{Type: EventExportFinished, Payload: ExportFinished{SprintID: "1", Rows: 3}})

	select {
	case ev := <-client.Events():
		assert.Equal(t, EventExportFinished, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestStopDisconnectsClients(t *testing.T) {
	srv, client := startServer(t)
	_, err := client.ExportSprintData(context.Background(), "1")
	require.NoError(t, err)

	require.NoError(t, srv.Stop())

	require.Eventually(t, func() bool {
		_, err := client.ExportSprintData(context.Background(), "1")
		return errors.Is(err, ErrClosed)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCallHonoursContext(t *testing.T) {
	path := socketPath(t)
	srv := NewServer(path)
	block := make(chan struct{})
	srv.Handle("slow", func(ctx context.Context, params json.RawMessage) (any, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, nil
	})
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		close(block)
		srv.Stop()
	})

	client, err := NewClient(path)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Call(ctx, "slow", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
