package render

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover_monitor/internal/config"
	"rover_monitor/internal/models"
	"rover_monitor/internal/spatial"
)

type fakeSurface struct {
	mu     sync.Mutex
	frames []Frame
	fail   int
}

func (f *fakeSurface) Name() string { return "fake" }

func (f *fakeSurface) Render(frame Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("backend indisponível")
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSurface) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeSurface) last() Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames[len(f.frames)-1]
}

func newLoop(t *testing.T) (*Loop, *spatial.Store, *fakeSurface) {
	t.Helper()
	trigger := spatial.NewTrigger()
	store := spatial.NewStore(trigger)
	loop := NewLoop(config.RenderConfig{Interval: time.Hour}, store, trigger)
	surface := &fakeSurface{}
	loop.AddSurface(surface)
	return loop, store, surface
}

func TestTickWithoutChangesDoesNotRedraw(t *testing.T) {
	loop, _, surface := newLoop(t)
	assert.False(t, loop.tick())
	assert.Equal(t, 0, surface.count())
	assert.Equal(t, uint64(0), loop.Redraws())
}

func TestCoalescedRedraw(t *testing.T) {
	loop, store, surface := newLoop(t)

	store.AddTrailPoint(models.Position{X: 1, Y: 1})
	store.AddTrailPoint(models.Position{X: 2, Y: 1})
	store.AddObstacle(models.Position{X: 3, Y: 1}, models.Red, models.Wall)

	assert.True(t, loop.tick())
	assert.False(t, loop.tick())

	require.Equal(t, 1, surface.count())
	frame := surface.last()
	assert.Len(t, frame.Snapshot.Trail, 2)
	assert.Len(t, frame.Snapshot.Obstacles, 1)
	assert.Equal(t, uint64(1), loop.Redraws())
}

func TestRedrawReplacesPreviousFrame(t *testing.T) {
	loop, store, surface := newLoop(t)

	store.AddTrailPoint(models.Position{X: 1, Y: 1})
	store.AddObstacle(models.Position{X: 2, Y: 2}, models.Green, models.Hill)
	loop.tick()

	store.Clear()
	loop.tick()

	require.Equal(t, 2, surface.count())
	assert.True(t, surface.last().Snapshot.Empty())
}

func TestSurfaceErrorRetriesNextTick(t *testing.T) {
	loop, store, surface := newLoop(t)
	surface.fail = 1

	store.AddTrailPoint(models.Position{X: 5, Y: 5})
	assert.True(t, loop.tick())
	assert.Equal(t, 0, surface.count())
	assert.Equal(t, uint64(1), loop.Failures())

	var surfErr *SurfaceError
	require.ErrorAs(t, loop.LastError(), &surfErr)
	assert.Equal(t, "fake", surfErr.Surface)

	// sem mutação nova, mas o quadro anterior falhou
	assert.True(t, loop.tick())
	require.Equal(t, 1, surface.count())
	assert.Equal(t, []models.Position{{X: 5, Y: 5}}, surface.last().Snapshot.Trail)

	assert.False(t, loop.tick())
}

func TestStatusLineIsIncluded(t *testing.T) {
	loop, store, surface := newLoop(t)
	loop.SetStatusFunc(func() string { return "mqtt: conectado" })

	store.AddTrailPoint(models.Position{})
	loop.tick()
	assert.Equal(t, "mqtt: conectado", surface.last().Status)
}

func TestResizeForcesImmediateRedraw(t *testing.T) {
	loop, _, surface := newLoop(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// primeiro quadro na entrada do laço
	require.Eventually(t, func() bool { return surface.count() == 1 }, time.Second, time.Millisecond)

	// intervalo de uma hora: só o redimensionamento pode provocar novo quadro
	loop.Resize()
	require.Eventually(t, func() bool { return surface.count() == 2 }, time.Second, time.Millisecond)
}

func TestStartStop(t *testing.T) {
	trigger := spatial.NewTrigger()
	store := spatial.NewStore(trigger)
	loop := NewLoop(config.RenderConfig{Interval: 5 * time.Millisecond}, store, trigger)
	surface := &fakeSurface{}
	loop.AddSurface(surface)

	require.NoError(t, loop.Start())
	assert.True(t, loop.IsRunning())

	store.AddTrailPoint(models.Position{X: 7, Y: 7})
	require.Eventually(t, func() bool {
		return surface.count() >= 2 && len(surface.last().Snapshot.Trail) == 1
	}, time.Second, time.Millisecond)

	loop.Stop()
	loop.Stop()
	assert.False(t, loop.IsRunning())

	// parado: mutações não geram quadros
	n := surface.count()
	store.AddTrailPoint(models.Position{X: 8, Y: 8})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, surface.count())
}

func TestProjectAndBounds(t *testing.T) {
	snap := spatial.Snapshot{Trail: []models.Position{{X: 0, Y: 0}, {X: 10, Y: 10}}}
	b := ComputeBounds(snap)
	assert.Equal(t, Bounds{MinX: -1, MaxX: 11, MinY: -1, MaxY: 11}, b)

	col, row := Project(models.Position{X: -1, Y: -1}, b, 13, 13)
	assert.Equal(t, 0, col)
	assert.Equal(t, 12, row)

	col, row = Project(models.Position{X: 11, Y: 11}, b, 13, 13)
	assert.Equal(t, 12, col)
	assert.Equal(t, 0, row)

	// fora da janela fica preso à borda
	col, row = Project(models.Position{X: 100, Y: -100}, b, 13, 13)
	assert.Equal(t, 12, col)
	assert.Equal(t, 12, row)

	assert.Equal(t, Bounds{MinX: -5, MaxX: 5, MinY: -5, MaxY: 5}, ComputeBounds(spatial.Snapshot{}))
}
