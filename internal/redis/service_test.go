package redis

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover_monitor/internal/config"
	"rover_monitor/internal/models"
)

func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestKeyUsesPrefix(t *testing.T) {
	c := NewClient(config.RedisConfig{Prefix: "mapa"})
	assert.Equal(t, "mapa:trail", c.Key("trail"))
	assert.Equal(t, "mapa:a:b", c.Key("a", "b"))

	def := NewClient(config.RedisConfig{})
	assert.Equal(t, "rover_map:obstacles", def.Key("obstacles"))
}

func TestDisabledServiceIsNoop(t *testing.T) {
	s, err := NewService(config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	defer s.Shutdown()

	assert.False(t, s.IsConnected())
	assert.NoError(t, s.WriteRecord(models.TelemetryRecord{HasRobotPosition: true}))
	assert.NoError(t, s.WriteStatus(models.ConnectionStatus{Status: "conectado"}))
	assert.NoError(t, s.ClearState())

	_, _, err = s.LoadState()
	assert.ErrorIs(t, err, ErrOffline)
	_, err = s.GetLastRecord()
	assert.ErrorIs(t, err, ErrOffline)
	assert.ErrorIs(t, s.Ping(), ErrOffline)

	// handlers não fazem nada com o serviço desabilitado
	s.HandleRecord(models.TelemetryRecord{})
	s.HandleStatus(models.ConnectionStatus{})
}

func TestUnreachableRedisRunsOffline(t *testing.T) {
	s, err := NewService(config.RedisConfig{
		Enabled: true,
		Host:    "127.0.0.1",
		Port:    closedPort(t),
	})
	require.NoError(t, err)
	defer s.Shutdown()

	assert.False(t, s.IsConnected())
	assert.NoError(t, s.WriteRecord(models.TelemetryRecord{HasRobotPosition: true}))
	_, _, err = s.LoadState()
	assert.ErrorIs(t, err, ErrOffline)
	assert.Error(t, s.Ping())
}

func startMiniredis(t *testing.T) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	s, err := NewService(config.RedisConfig{
		Enabled: true,
		Host:    mr.Host(),
		Port:    port,
		Prefix:  "teste",
	})
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	require.True(t, s.IsConnected())
	return s
}

func obstacleRecord(x float64, color models.Color, at time.Time) models.TelemetryRecord {
	return models.TelemetryRecord{
		ReceivedAt:       at,
		RobotPosition:    models.Position{X: x, Y: 0},
		HasRobotPosition: true,
		ObstaclePosition: models.Position{X: x, Y: 1},
		ObstacleType:     models.Wall,
		ObstacleColor:    color,
		HasObstacle:      true,
	}
}

func TestHandleRecordKeepsArrivalOrder(t *testing.T) {
	s := startMiniredis(t)
	base := time.Now()

	const positions = 200
	for i := 0; i < positions; i++ {
		s.HandleRecord(obstacleRecord(float64(i), models.Red, base))
		s.HandleRecord(obstacleRecord(float64(i), models.Blue, base.Add(time.Millisecond)))
	}
	require.Zero(t, s.Dropped())

	require.Eventually(t, func() bool {
		_, obstacles, err := s.LoadState()
		if err != nil || len(obstacles) != positions {
			return false
		}
		for _, o := range obstacles {
			if o.Obstacle.Color != models.Blue {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	rec, err := s.GetLastRecord()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.Position{X: positions - 1, Y: 1}, rec.ObstaclePosition)
	assert.Equal(t, models.Blue, rec.ObstacleColor)
}

func TestHandleClearRunsAfterPendingWrites(t *testing.T) {
	s := startMiniredis(t)
	now := time.Now()

	s.HandleRecord(obstacleRecord(1, models.Green, now))
	s.HandleClear()
	s.HandleRecord(obstacleRecord(2, models.Red, now))

	require.Eventually(t, func() bool {
		trail, obstacles, err := s.LoadState()
		return err == nil && len(trail) == 1 && len(obstacles) == 1 &&
			trail[0] == models.Position{X: 2, Y: 0}
	}, 5*time.Second, 20*time.Millisecond)

	trail, obstacles, err := s.LoadState()
	require.NoError(t, err)
	assert.Equal(t, models.Position{X: 2, Y: 0}, trail[0])
	assert.Equal(t, models.Position{X: 2, Y: 1}, obstacles[0].Position)
	assert.NoError(t, s.Ping())
}
