package devsync

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/devsync/internal/livereload"
	"github.com/hupe1980/devsync/internal/logging"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

type project struct {
	src   string
	build string
	log   string
}

// buildCount returns how often the build command ran.
func (p project) buildCount(t *testing.T) int {
	t.Helper()

	data, err := os.ReadFile(p.log)
	if os.IsNotExist(err) {
		return 0
	}

	require.NoError(t, err)

	return strings.Count(string(data), "built\n")
}

func newProject(t *testing.T) project {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("build command uses sh")
	}

	root := t.TempDir()
	p := project{
		src:   filepath.Join(root, "src"),
		build: filepath.Join(root, "build"),
		log:   filepath.Join(root, "builds.log"),
	}

	require.NoError(t, os.MkdirAll(p.src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(p.src, "index.js"), []byte("export default 1;\n"), 0o644))

	return p
}

func newOrchestrator(t *testing.T, p project, out *syncBuffer) *Orchestrator {
	t.Helper()

	o := New(Options{
		Src:      p.src,
		BuildDir: p.build,
		Command:  "echo built >> " + p.log,
		JSGlobs:  []string{"static/js/*.js"},
		CSSGlobs: []string{"static/css/*.css"},
		Addr:     "127.0.0.1:0",
		Logger:   logging.Discard(),
		Out:      out,
	})

	t.Cleanup(func() { _ = o.Stop(context.Background()) })

	return o
}

func appendFile(t *testing.T, path, data string) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)

	_, err = f.WriteString(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestOrchestrator_Lifecycle(t *testing.T) {
	p := newProject(t)
	o := newOrchestrator(t, p, &syncBuffer{})

	assert.Equal(t, Idle, o.State())
	assert.Empty(t, o.URL())

	require.NoError(t, o.Start(context.Background()))
	assert.Equal(t, Watching, o.State())
	assert.NotEmpty(t, o.URL())

	assert.Error(t, o.Start(context.Background()), "second start must fail")

	require.NoError(t, o.Stop(context.Background()))
	assert.Equal(t, Stopped, o.State())
	require.NoError(t, o.Stop(context.Background()), "stop is idempotent")
}

func TestOrchestrator_StopBeforeStart(t *testing.T) {
	o := New(Options{})

	require.NoError(t, o.Stop(context.Background()))
	assert.Equal(t, Stopped, o.State())
	assert.Error(t, o.Start(context.Background()))
}

func TestOrchestrator_MissingSourceDir(t *testing.T) {
	p := newProject(t)
	p.src = filepath.Join(p.src, "nope")

	o := newOrchestrator(t, p, &syncBuffer{})

	err := o.Start(context.Background())
	require.ErrorContains(t, err, "watching sources")
	assert.Equal(t, Stopped, o.State())
}

func TestOrchestrator_RunStopsOnCancel(t *testing.T) {
	p := newProject(t)
	out := &syncBuffer{}
	o := newOrchestrator(t, p, out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool { return o.State() == Watching }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, Stopped, o.State())
	assert.Contains(t, out.String(), "Shutting down...")
}

// ---------------------------------------------------------------------------
// Rebuild loop
// ---------------------------------------------------------------------------

func TestOrchestrator_InitialBuildThenRebuildOnChange(t *testing.T) {
	p := newProject(t)
	out := &syncBuffer{}
	o := newOrchestrator(t, p, out)

	require.NoError(t, o.Start(context.Background()))
	assert.Equal(t, 1, p.buildCount(t), "initial build runs before Start returns")
	assert.Contains(t, out.String(), "Building app...")

	appendFile(t, filepath.Join(p.src, "index.js"), "export const x = 2;\n")

	require.Eventually(t, func() bool { return o.Rebuilds() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, p.buildCount(t))
	assert.Contains(t, out.String(), "change index.js")

	// No further rebuilds without further events.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, o.Rebuilds())
}

func TestOrchestrator_DotfilesDoNotRebuild(t *testing.T) {
	p := newProject(t)
	o := newOrchestrator(t, p, &syncBuffer{})

	require.NoError(t, o.Start(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(p.src, ".index.js.swx"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(p.src, ".eslintrc"), []byte("{}"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, o.Rebuilds())
	assert.Equal(t, 1, p.buildCount(t))
}

func TestOrchestrator_FailingBuildKeepsWatching(t *testing.T) {
	p := newProject(t)
	out := &syncBuffer{}

	o := New(Options{
		Src:      p.src,
		BuildDir: p.build,
		Command:  "echo broken >&2; exit 3",
		Addr:     "127.0.0.1:0",
		Logger:   logging.Discard(),
		Out:      out,
	})
	t.Cleanup(func() { _ = o.Stop(context.Background()) })

	require.NoError(t, o.Start(context.Background()))
	assert.Equal(t, Watching, o.State())
	assert.Contains(t, out.String(), "broken")

	appendFile(t, filepath.Join(p.src, "index.js"), "//\n")
	require.Eventually(t, func() bool { return o.Rebuilds() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, Watching, o.State())
}

// ---------------------------------------------------------------------------
// Reload loop
// ---------------------------------------------------------------------------

func TestOrchestrator_ArtifactChangePushesReload(t *testing.T) {
	p := newProject(t)
	out := &syncBuffer{}
	o := newOrchestrator(t, p, out)

	require.NoError(t, o.Start(context.Background()))

	url := "ws" + strings.TrimPrefix(o.URL(), "http") + livereload.SocketPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	defer conn.Close()

	var msg livereload.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, livereload.TypeHello, msg.Type)

	jsDir := filepath.Join(p.build, "static", "js")
	require.NoError(t, os.MkdirAll(jsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(jsDir, "index.js"), []byte("console.log(2);"), 0o644))

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, livereload.Message{Type: livereload.TypeReload, Path: "static/js/index.js"}, msg)
	assert.Contains(t, out.String(), "Reloading js...")

	// Artifact changes never rebuild.
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, o.Rebuilds())
	assert.Equal(t, 1, p.buildCount(t))
}

func TestOrchestrator_ReloadAfterBuildDirRecreated(t *testing.T) {
	p := newProject(t)
	out := &syncBuffer{}
	o := newOrchestrator(t, p, out)

	require.NoError(t, o.Start(context.Background()))

	url := "ws" + strings.TrimPrefix(o.URL(), "http") + livereload.SocketPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	defer conn.Close()

	var msg livereload.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, livereload.TypeHello, msg.Type)

	// Build tools commonly wipe the output directory before writing.
	require.NoError(t, os.RemoveAll(p.build))

	jsDir := filepath.Join(p.build, "static", "js")
	require.NoError(t, os.MkdirAll(jsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(jsDir, "index.js"), []byte("console.log(3);"), 0o644))

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, livereload.Message{Type: livereload.TypeReload, Path: "static/js/index.js"}, msg)
	assert.Contains(t, out.String(), "Reloading js...")
}

func TestOrchestrator_NoRebuildAfterStop(t *testing.T) {
	p := newProject(t)
	out := &syncBuffer{}

	o := New(Options{
		Src:      p.src,
		BuildDir: p.build,
		Command:  "echo built >> " + p.log,
		Addr:     "127.0.0.1:0",
		Debounce: 200 * time.Millisecond,
		Logger:   logging.Discard(),
		Out:      out,
	})

	require.NoError(t, o.Start(context.Background()))
	require.Equal(t, 1, p.buildCount(t))

	appendFile(t, filepath.Join(p.src, "index.js"), "export const late = 1;\n")
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, o.Stop(context.Background()))

	stopped := out.String()

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, p.buildCount(t))
	assert.Equal(t, stopped, out.String())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "starting", Starting.String())
	assert.Equal(t, "watching", Watching.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "state(9)", State(9).String())
}
