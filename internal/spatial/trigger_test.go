package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rover_monitor/internal/models"
)

func TestTriggerCoalesces(t *testing.T) {
	tr := NewTrigger()
	assert.False(t, tr.Consume())

	tr.Notify()
	tr.Notify()
	tr.Notify()

	assert.True(t, tr.Pending())
	assert.True(t, tr.Consume())
	assert.False(t, tr.Consume())

	notified, coalesced := tr.Stats()
	assert.Equal(t, uint64(3), notified)
	assert.Equal(t, uint64(2), coalesced)
}

func TestTriggerNotifyAfterConsumeSchedulesAgain(t *testing.T) {
	tr := NewTrigger()
	tr.Notify()
	assert.True(t, tr.Consume())

	// mutação durante o desenho
	tr.Notify()

	select {
	case <-tr.C():
	default:
		t.Fatal("sinal perdido após Consume")
	}
}

func TestNotifierFunc(t *testing.T) {
	calls := 0
	s := NewStore(NotifierFunc(func() { calls++ }))
	s.AddTrailPoint(pos(1, 1))
	s.AddObstacle(pos(1, 2), models.Red, models.Wall)
	s.Clear()
	assert.Equal(t, 3, calls)
}
