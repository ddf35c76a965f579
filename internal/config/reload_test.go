package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhangyunhao116/cmdpolicy"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestReloader(t *testing.T, dir string, onReload func(*cmdpolicy.Engine)) *Reloader {
	t.Helper()
	r, err := NewReloader(ReloaderOptions{
		Load:     isolated(dir),
		Logger:   slog.New(slog.DiscardHandler),
		Debounce: 10 * time.Millisecond,
		OnReload: onReload,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestReloaderInitialLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".cmdpolicy.toml"), "max_depth = 10\n")

	var calls atomic.Int32
	r := newTestReloader(t, dir, func(*cmdpolicy.Engine) { calls.Add(1) })
	assert.Equal(t, 10, r.Engine().Policy().MaxDepth)
	assert.Equal(t, int32(1), calls.Load())
}

func TestReloaderInitialLoadError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".cmdpolicy.toml"), "max_depth = -1\n")

	_, err := NewReloader(ReloaderOptions{Load: isolated(dir)})
	require.ErrorIs(t, err, cmdpolicy.ErrPolicyInvalid)
}

func TestReloaderKeepsEngineOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, ".cmdpolicy.toml"), "max_depth = 10\n")
	r := newTestReloader(t, dir, nil)
	before := r.Engine()

	require.NoError(t, os.WriteFile(path, []byte("bogus = true\n"), 0o644))
	require.ErrorIs(t, r.Reload(), ErrUnknownKeys)
	assert.Same(t, before, r.Engine())

	require.NoError(t, os.WriteFile(path, []byte("max_depth = 12\n"), 0o644))
	require.NoError(t, r.Reload())
	assert.Equal(t, 12, r.Engine().Policy().MaxDepth)
}

func TestReloaderWatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, ".cmdpolicy.toml"), "max_depth = 10\n")
	r := newTestReloader(t, dir, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Start(ctx))
	require.Error(t, r.Start(ctx), "second Start")

	// Unrelated files in the same directory are ignored.
	writeFile(t, filepath.Join(dir, "notes.txt"), "max_depth = 2\n")

	require.NoError(t, os.WriteFile(path, []byte("max_depth = 12\n[extend]\nalways_deny = [\"halt\"]\n"), 0o644))
	require.Eventually(t, func() bool {
		return r.Engine().Policy().MaxDepth == 12
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, cmdpolicy.Blocked, r.Engine().Decide("halt"))

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}

func TestReloaderEngineOptions(t *testing.T) {
	r, err := NewReloader(ReloaderOptions{
		Load:          isolated(t.TempDir()),
		EngineOptions: []cmdpolicy.Option{cmdpolicy.WithAllowlist("make build")},
	})
	require.NoError(t, err)
	assert.Equal(t, cmdpolicy.Auto, r.Engine().Decide("make build"))
	assert.NoError(t, r.Close())
}

func TestReloaderStartNothingToWatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	r := newTestReloader(t, dir, nil)

	err := r.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no policy directory could be watched")
	assert.Contains(t, err.Error(), dir)
	require.NoError(t, r.Close())
}

func TestReloaderRelativeConfigPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "p.toml"), "max_depth = 10\n")
	t.Chdir(dir)

	opts := isolated(dir)
	opts.ConfigPath = "p.toml"
	r, err := NewReloader(ReloaderOptions{
		Load:     opts,
		Logger:   slog.New(slog.DiscardHandler),
		Debounce: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 10, r.Engine().Policy().MaxDepth)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Start(ctx))

	require.NoError(t, os.WriteFile("p.toml", []byte("max_depth = 5\n"), 0o644))
	require.Eventually(t, func() bool {
		return r.Engine().Policy().MaxDepth == 5
	}, 5*time.Second, 20*time.Millisecond)
}
