package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositionHelpers(t *testing.T) {
	assert.True(t, Position{X: Sentinel, Y: 3}.IsSentinel())
	assert.False(t, Position{X: 1, Y: 5}.IsSentinel())
	assert.True(t, Position{X: 1, Y: 9}.Less(Position{X: 2, Y: 0}))
	assert.True(t, Position{X: 1, Y: 1}.Less(Position{X: 1, Y: 2}))
	assert.False(t, Position{X: 1, Y: 2}.Less(Position{X: 1, Y: 2}))
	assert.Equal(t, "(1,5)", Position{X: 1, Y: 5}.String())
}

func TestCategoricalNames(t *testing.T) {
	assert.Equal(t, "red", Red.String())
	assert.Equal(t, "color(9)", Color(9).String())
	assert.Equal(t, "cliff", Cliff.String())
	assert.Equal(t, "type(7)", ObstacleType(7).String())
	assert.Equal(t, "colliding", Colliding.String())
	assert.Equal(t, "status(5)", RobotStatus(5).String())
}
