package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/posh-debugger/pkg/logging"
	"github.com/dd0wney/posh-debugger/pkg/plan"
	"github.com/dd0wney/posh-debugger/pkg/plan/xposh"
)

const planV1 = `<Plan><ActionPatterns><ActionPattern name="ap"><Action name="a"/></ActionPattern></ActionPatterns></Plan>`
const planV2 = `<Plan><ActionPatterns><ActionPattern name="ap"><Action name="a"/><Action name="b"/></ActionPattern></ActionPatterns></Plan>`

func setup(t *testing.T) (string, *plan.Registry, *Watcher, chan uint64) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.xposh")
	require.NoError(t, os.WriteFile(path, []byte(planV1), 0o644))

	reg := plan.NewRegistry()
	loader := xposh.NewLoader(reg, xposh.WithLogger(logging.NewNopLogger()))
	_, err := loader.LoadFile(path)
	require.NoError(t, err)

	reloaded := make(chan uint64, 8)
	w, err := New(loader, Config{
		Path:     path,
		Debounce: 30 * time.Millisecond,
		Logger:   logging.NewNopLogger(),
		OnReload: func(res *xposh.Result) { reloaded <- res.Generation },
	})
	require.NoError(t, err)
	return path, reg, w, reloaded
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path, reg, w, reloaded := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(planV2), 0o644))

	select {
	case gen := <-reloaded:
		assert.Equal(t, uint64(2), gen)
	case <-time.After(5 * time.Second):
		t.Fatal("plan was not reloaded")
	}

	ap, ok := reg.Current().FindActionPattern("ap")
	require.True(t, ok)
	assert.Len(t, ap.Actions, 2)
	assert.Equal(t, 1, w.Stats().Reloads)
}

func TestWatcherKeepsGraphOnBadReload(t *testing.T) {
	path, reg, w, _ := setup(t)
	defer w.Stop()
	before := reg.Current()

	require.NoError(t, os.WriteFile(path, []byte("<Plan>"), 0o644))
	w.Reload()

	assert.Same(t, before, reg.Current())
	stats := w.Stats()
	assert.Equal(t, 1, stats.FailedReloads)
	assert.NotEmpty(t, stats.LastError)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	path, _, w, reloaded := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	other := filepath.Join(filepath.Dir(path), "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("hello"), 0o644))

	select {
	case <-reloaded:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, 0, w.Stats().Events)
}

func TestWatcherStopIdempotent(t *testing.T) {
	_, _, w, _ := setup(t)
	require.NoError(t, w.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Stop()
		}()
	}
	wg.Wait()
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)
}
