package plc

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover_monitor/internal/config"
	"rover_monitor/internal/models"
)

type fakeWriter struct {
	mutex  sync.Mutex
	blocks [][]byte
	db     int
	fail   error
}

func (f *fakeWriter) WriteDataBlock(dbNumber, startOffset int, data []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.db = dbNumber
	f.blocks = append(f.blocks, append([]byte(nil), data...))
	return nil
}

func (f *fakeWriter) ReadDataBlock(dbNumber, startOffset, size int) ([]byte, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	if len(f.blocks) == 0 {
		return make([]byte, size), nil
	}
	return f.blocks[len(f.blocks)-1][startOffset : startOffset+size], nil
}

func (f *fakeWriter) GetLastError() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.fail
}

func (f *fakeWriter) count() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.blocks)
}

type fixedCounter struct{ trail, obstacles int }

func (c fixedCounter) Counts() (int, int) { return c.trail, c.obstacles }

func TestMirrorDataLayout(t *testing.T) {
	rec := models.TelemetryRecord{
		RobotPosition:    models.Position{X: 1.5, Y: -2},
		RobotStatus:      models.Moving,
		ObstaclePosition: models.Position{X: 3, Y: 4},
		ObstacleType:     models.BigRock,
		ObstacleColor:    models.Green,
		HasRobotPosition: true,
		HasObstacle:      true,
	}
	d := NewMirrorData(rec, 7, 2)
	buf := d.Encode()
	require.Len(t, buf, BlockSize)

	// REAL 1.5 = 0x3FC00000
	assert.Equal(t, []byte{0x3F, 0xC0, 0x00, 0x00}, buf[0:4])
	// DINT 7 em trail_count
	assert.Equal(t, []byte{0, 0, 0, 7}, buf[22:26])

	back, err := DecodeMirrorData(buf)
	require.NoError(t, err)
	if diff := cmp.Diff(d, back); diff != "" {
		t.Errorf("bloco decodificado difere (-esperado +obtido):\n%s", diff)
	}
}

func TestMirrorDataMissingFieldsUseSentinel(t *testing.T) {
	d := NewMirrorData(models.TelemetryRecord{}, 0, 0)
	assert.Equal(t, float32(models.Sentinel), d.RobotX)
	assert.Equal(t, float32(models.Sentinel), d.ObstacleY)

	_, err := DecodeMirrorData(make([]byte, BlockSize-1))
	assert.Error(t, err)
}

func newTestService(w *fakeWriter) *PLCService {
	s := NewPLCService(config.PLCConfig{Enabled: true, DBNumber: 42, UpdateRate: time.Hour}, fixedCounter{trail: 3, obstacles: 1})
	s.device = w
	return s
}

func TestFlushWritesOnlyWhenDirty(t *testing.T) {
	w := &fakeWriter{}
	s := newTestService(w)

	assert.False(t, s.flush(), "sem registro não escreve")

	rec := models.TelemetryRecord{RobotPosition: models.Position{X: 1, Y: 1}, HasRobotPosition: true}
	s.lastRecord = &rec
	s.dirty = true

	assert.True(t, s.flush())
	assert.False(t, s.flush(), "registro já espelhado")
	require.Equal(t, 1, w.count())
	assert.Equal(t, 42, w.db)

	d, err := DecodeMirrorData(w.blocks[0])
	require.NoError(t, err)
	assert.Equal(t, int32(3), d.TrailCount)
	assert.Equal(t, int32(1), d.ObstacleCount)

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Writes)
	assert.Equal(t, uint64(0), stats.Failures)
	assert.Empty(t, stats.LastError)

	mirror, err := s.ReadMirror()
	require.NoError(t, err)
	assert.Equal(t, d, mirror)
}

func TestFlushRetriesAfterFailure(t *testing.T) {
	w := &fakeWriter{fail: errors.New("sem conexão")}
	s := newTestService(w)

	rec := models.TelemetryRecord{}
	s.lastRecord = &rec
	s.dirty = true

	assert.False(t, s.flush())
	assert.Equal(t, "sem conexão", s.Stats().LastError)
	_, err := s.ReadMirror()
	assert.Error(t, err)

	w.fail = nil
	assert.True(t, s.flush())

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Writes)
	assert.Equal(t, uint64(1), stats.Failures)
}

func TestHandleRecordFeedsLoop(t *testing.T) {
	w := &fakeWriter{}
	s := newTestService(w)
	s.config.UpdateRate = 5 * time.Millisecond

	require.NoError(t, s.Start())
	defer s.Stop()

	s.HandleRecord(models.TelemetryRecord{RobotPosition: models.Position{X: 2, Y: 2}, HasRobotPosition: true})
	assert.Eventually(t, func() bool { return w.count() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestDisabledServiceIgnoresRecords(t *testing.T) {
	s := NewPLCService(config.PLCConfig{Enabled: false}, nil)
	require.NoError(t, s.Start())
	assert.False(t, s.IsRunning())
	s.HandleRecord(models.TelemetryRecord{})
	assert.Len(t, s.records, 0)

	_, err := s.ReadMirror()
	assert.ErrorIs(t, err, ErrDisabled)
	assert.False(t, s.Stats().Enabled)
}
