package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	return root.Execute()
}

func TestVisitRange_InclusiveDays(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Bucharest")
	require.NoError(t, err)

	from, to, err := visitRange("2026-03-01", "2026-03-02", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, loc), to)

	from, to, err = visitRange("", "", loc)
	require.NoError(t, err)
	assert.True(t, from.IsZero())
	assert.True(t, to.IsZero())

	_, _, err = visitRange("03/01/2026", "", loc)
	assert.Error(t, err)
}

func TestSeedThenExportVisits(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("REGISTER_STORE_DRIVER", "sqlite")
	t.Setenv("REGISTER_SQLITE_PATH", filepath.Join(dir, "data", "register.db"))
	t.Setenv("REGISTER_LOG_LEVEL", "error")

	require.NoError(t, run(t, "migrate"))
	require.NoError(t, run(t, "seed"))
	// A second seed finds everything in place.
	require.NoError(t, run(t, "seed"))

	out := filepath.Join(dir, "visits.csv")
	require.NoError(t, run(t, "export", "visits", "--kind", "employee", "--from", "2026-03-01", "--out", out))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("\ufeff")))
	assert.Contains(t, string(raw), "Type")
}

func TestSeedThenExportRoster(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("REGISTER_STORE_DRIVER", "sqlite")
	t.Setenv("REGISTER_SQLITE_PATH", filepath.Join(dir, "data", "register.db"))
	t.Setenv("REGISTER_LOG_LEVEL", "error")

	require.NoError(t, run(t, "migrate"))
	require.NoError(t, run(t, "seed"))

	out := filepath.Join(dir, "employees.csv")
	require.NoError(t, run(t, "export", "roster", "--kind", "employee", "--out", out))
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("\ufeff")))
	assert.Contains(t, string(raw), "ID,Name,Department,Location,Status")

	assert.Error(t, run(t, "export", "roster", "--kind", "all"))
}

func TestExportVisits_RejectsBadFormat(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REGISTER_STORE_DRIVER", "memory")
	t.Setenv("REGISTER_LOG_LEVEL", "error")

	assert.Error(t, run(t, "export", "visits", "--format", "pdf"))
	assert.Error(t, run(t, "export", "visits", "--location", "NOWHERE"))
}

func TestServe_GRPCFailureStopsHTTP(t *testing.T) {
	t.Chdir(t.TempDir())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpAddr := lis.Addr().String()
	require.NoError(t, lis.Close())

	t.Setenv("REGISTER_STORE_DRIVER", "memory")
	t.Setenv("REGISTER_LOG_LEVEL", "error")
	t.Setenv("REGISTER_HTTP_ADDR", httpAddr)
	t.Setenv("REGISTER_GRPC_ADDR", "not:a:valid:addr")

	done := make(chan error, 1)
	go func() { done <- run(t, "serve") }()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "grpc listen")
	case <-time.After(10 * time.Second):
		t.Fatal("serve kept running after the gRPC listener failed")
	}

	// The HTTP listener has been released.
	lis, err = net.Listen("tcp", httpAddr)
	require.NoError(t, err)
	require.NoError(t, lis.Close())
}
