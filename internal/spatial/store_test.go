package spatial

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover_monitor/internal/models"
)

func pos(x, y float64) models.Position {
	return models.Position{X: x, Y: y}
}

func obstacleRecord(p models.Position, color models.Color) models.TelemetryRecord {
	return models.TelemetryRecord{
		ObstaclePosition: p,
		ObstacleType:     models.BigRock,
		ObstacleColor:    color,
		HasObstacle:      true,
	}
}

func TestAddTrailPointIsIdempotent(t *testing.T) {
	s := NewStore(nil)
	s.AddTrailPoint(pos(1, 5))
	s.AddTrailPoint(pos(1, 5))

	trail, obstacles := s.Counts()
	assert.Equal(t, 1, trail)
	assert.Equal(t, 0, obstacles)
	assert.True(t, s.Contains(pos(1, 5)))
	assert.False(t, s.Contains(pos(5, 1)))
}

func TestAddObstacleLastWriteWins(t *testing.T) {
	s := NewStore(nil)
	p := pos(3, 3)
	s.AddObstacle(p, models.Red, models.Wall)
	s.AddObstacle(p, models.Blue, models.Wall)

	snap := s.Snapshot()
	require.Len(t, snap.Obstacles, 1)
	assert.Equal(t, models.Blue, snap.Obstacles[0].Obstacle.Color)

	o, ok := s.ObstacleAt(p)
	require.True(t, ok)
	assert.Equal(t, models.Obstacle{Type: models.Wall, Color: models.Blue}, o)
}

func TestNoCrossContamination(t *testing.T) {
	s := NewStore(nil)
	s.AddTrailPoint(pos(0, 0))
	s.AddObstacle(pos(1, 0), models.Green, models.Hill)

	snap := s.Snapshot()
	assert.Equal(t, []models.Position{pos(0, 0)}, snap.Trail)
	require.Len(t, snap.Obstacles, 1)
	assert.Equal(t, pos(1, 0), snap.Obstacles[0].Position)

	// explicitamente nas duas coleções
	s.AddTrailPoint(pos(1, 0))
	snap = s.Snapshot()
	assert.Equal(t, []models.Position{pos(0, 0), pos(1, 0)}, snap.Trail)
	assert.Len(t, snap.Obstacles, 1)
}

func TestApplyOrderSensitivity(t *testing.T) {
	p := pos(2, 7)
	r1 := obstacleRecord(p, models.Red)
	r2 := obstacleRecord(p, models.Blue)

	forward := NewStore(nil)
	forward.Apply(r1)
	forward.Apply(r2)
	o, _ := forward.ObstacleAt(p)
	assert.Equal(t, models.Blue, o.Color)

	reverse := NewStore(nil)
	reverse.Apply(r2)
	reverse.Apply(r1)
	o, _ = reverse.ObstacleAt(p)
	assert.Equal(t, models.Red, o.Color)
}

func TestApplyBothCollections(t *testing.T) {
	trigger := NewTrigger()
	s := NewStore(trigger)

	rec := obstacleRecord(pos(4, 4), models.White)
	rec.RobotPosition = pos(4, 3)
	rec.HasRobotPosition = true

	assert.True(t, s.Apply(rec))
	assert.True(t, s.Contains(pos(4, 3)))
	assert.True(t, s.Contains(pos(4, 4)))
	assert.True(t, trigger.Consume())

	// registro sem trilha nem obstáculo não muda nada nem notifica
	assert.False(t, s.Apply(models.TelemetryRecord{RobotStatus: models.Idle}))
	assert.False(t, trigger.Pending())
}

func TestClearEmptiesAndNotifies(t *testing.T) {
	trigger := NewTrigger()
	s := NewStore(trigger)
	s.AddTrailPoint(pos(1, 1))
	s.AddObstacle(pos(2, 2), models.Black, models.Cliff)
	trigger.Consume()

	before := s.Seq()
	s.Clear()

	assert.True(t, s.Snapshot().Empty())
	assert.False(t, s.Contains(pos(1, 1)))
	assert.Greater(t, s.Seq(), before)
	assert.True(t, trigger.Consume())
}

func TestSnapshotIsSortedCopy(t *testing.T) {
	s := NewStore(nil)
	for _, p := range []models.Position{pos(3, 1), pos(-1, 2), pos(3, 0), pos(0, 0)} {
		s.AddTrailPoint(p)
	}
	s.AddObstacle(pos(9, 9), models.Red, models.Wall)
	s.AddObstacle(pos(-9, 0), models.Green, models.Hill)

	snap := s.Snapshot()
	want := Snapshot{
		Seq:   6,
		Trail: []models.Position{pos(-1, 2), pos(0, 0), pos(3, 0), pos(3, 1)},
		Obstacles: []models.ObstacleEntry{
			{Position: pos(-9, 0), Obstacle: models.Obstacle{Type: models.Hill, Color: models.Green}},
			{Position: pos(9, 9), Obstacle: models.Obstacle{Type: models.Wall, Color: models.Red}},
		},
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("snapshot inesperado (-want +got):\n%s", diff)
	}

	// alterar a cópia não afeta o estado
	snap.Trail[0] = pos(100, 100)
	assert.False(t, s.Contains(pos(100, 100)))
	require.NoError(t, Verify(s.Snapshot()))
}

func TestRestore(t *testing.T) {
	s := NewStore(nil)
	s.AddTrailPoint(pos(0, 0))
	s.Restore(
		[]models.Position{pos(1, 1), pos(0, 0)},
		[]models.ObstacleEntry{{Position: pos(2, 2), Obstacle: models.Obstacle{Type: models.Wall, Color: models.Red}}},
	)

	trail, obstacles := s.Counts()
	assert.Equal(t, 2, trail)
	assert.Equal(t, 1, obstacles)
}

func TestVerifyDetectsDuplicates(t *testing.T) {
	assert.NoError(t, Verify(Snapshot{}))

	err := Verify(Snapshot{Trail: []models.Position{pos(1, 1), pos(1, 1)}})
	assert.ErrorIs(t, err, ErrStateCorruption)

	err = Verify(Snapshot{Obstacles: []models.ObstacleEntry{
		{Position: pos(2, 2), Obstacle: models.Obstacle{Color: models.Red}},
		{Position: pos(2, 2), Obstacle: models.Obstacle{Color: models.Blue}},
	}})
	assert.ErrorIs(t, err, ErrStateCorruption)
}

// Um escritor e vários leitores ao mesmo tempo; rodar com -race.
func TestConcurrentMutationAndSnapshot(t *testing.T) {
	const writes = 2000
	s := NewStore(NewTrigger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			// cada registro toca as duas coleções na mesma posição X
			s.Apply(models.TelemetryRecord{
				RobotPosition:    pos(float64(i), 0),
				HasRobotPosition: true,
				ObstaclePosition: pos(float64(i), 1),
				ObstacleColor:    models.Red,
				ObstacleType:     models.Wall,
				HasObstacle:      true,
			})
		}
	}()

	errs := make(chan error, 4)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				snap := s.Snapshot()
				if err := Verify(snap); err != nil {
					errs <- err
					return
				}
				// Apply é atômico: as duas coleções têm sempre o mesmo tamanho
				if len(snap.Trail) != len(snap.Obstacles) {
					errs <- assert.AnError
					return
				}
				s.Contains(pos(float64(i), 0))
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("leitura inconsistente: %v", err)
	}

	trail, obstacles := s.Counts()
	assert.Equal(t, writes, trail)
	assert.Equal(t, writes, obstacles)
}
