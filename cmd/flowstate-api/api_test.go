package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/flowstate/pkg/graph"
	"github.com/dukex/flowstate/pkg/persistence/sqlite"
	"github.com/dukex/flowstate/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestStore(t *testing.T) *sqlite.Persistence {
	t.Helper()

	ctx := context.Background()

	store, err := sqlite.NewPersistence(ctx, testLogger(), filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(ctx) })

	return store
}

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	store := setupTestStore(t)

	engine, err := workflow.New(store, workflow.WithLogger(testLogger()))
	require.NoError(t, err)

	return NewAPI(testLogger(), store, engine).App()
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	status, body := get(t, setupTestApp(t), "/")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Flowstate API", body)
}

func TestAPI_LivenessAndReadiness(t *testing.T) {
	app := setupTestApp(t)

	for _, path := range []string{"/livez", "/readyz"} {
		status, body := get(t, app, path)
		assert.Equal(t, http.StatusOK, status, path)
		assert.Equal(t, "OK", body, path)
	}
}

func TestAPI_RoutesAreMounted(t *testing.T) {
	app := setupTestApp(t)

	status, body := get(t, app, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "healthy")

	status, _ = get(t, app, "/instances/missing")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestImportDiagrams(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`
id: minimal
nodes:
  - {id: start, type: start}
  - {id: done, type: end}
connections:
  - {source: start, target: done}
`), 0o600))

	require.NoError(t, importDiagrams(ctx, graph.NewLoader(), store, []string{valid}, testLogger()))

	nodes, err := store.Graph().Nodes(ctx, "minimal")
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("id: broken\nnodes: [{id: a, type: loop}]"), 0o600))

	err = importDiagrams(ctx, graph.NewLoader(), store, []string{invalid}, testLogger())
	require.ErrorIs(t, err, graph.ErrInvalidDiagram)
	assert.Contains(t, err.Error(), "invalid.yaml")

	err = importDiagrams(ctx, graph.NewLoader(), store, []string{filepath.Join(dir, "missing.yaml")}, testLogger())
	assert.Error(t, err)
}
