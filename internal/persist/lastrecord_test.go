package persist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover_monitor/internal/models"
)

func TestWriteOverwritesWithIndentedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "data.json")
	w, err := NewLastRecordWriter(path)
	require.NoError(t, err)

	first := models.TelemetryRecord{
		Shape:            "extended",
		ReceivedAt:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		RobotPosition:    models.Position{X: 1, Y: 2},
		HasRobotPosition: true,
	}
	require.NoError(t, w.Write(first))

	second := first
	second.RobotPosition = models.Position{X: 3, Y: 4}
	second.ObstacleColor = models.Blue
	require.NoError(t, w.Write(second))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "\n    \"shape\": \"extended\""), "esperado indentação de 4 espaços")

	got, err := ReadLastRecord(path)
	require.NoError(t, err)
	assert.Equal(t, second.RobotPosition, got.RobotPosition)
	assert.Equal(t, models.Blue, got.ObstacleColor)
	assert.True(t, got.ReceivedAt.Equal(second.ReceivedAt))
	assert.Equal(t, uint64(2), w.Writes())

	// nenhum temporário sobrando
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNewLastRecordWriterRejectsEmptyPath(t *testing.T) {
	_, err := NewLastRecordWriter("")
	assert.Error(t, err)
}

func TestReadLastRecordMissingFile(t *testing.T) {
	_, err := ReadLastRecord(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
