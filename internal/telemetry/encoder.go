package telemetry

import (
	"encoding/json"
	"fmt"
	"math"

	"rover_monitor/internal/models"
)

type simplePayload struct {
	X        int64 `json:"x"`
	Y        int64 `json:"y"`
	ObjFound int   `json:"obj_found"`
	Color    int   `json:"color"`
	Status   int   `json:"status"`
}

type extendedPayload struct {
	RobotX        int64 `json:"robot_x"`
	RobotY        int64 `json:"robot_y"`
	RobotStatus   int   `json:"robot_status"`
	ObstacleX     int64 `json:"obstacle_x"`
	ObstacleY     int64 `json:"obstacle_y"`
	ObstacleType  int   `json:"obstacle_type"`
	ObstacleColor int   `json:"obstacle_color"`
}

// Encode produz o payload no formato indicado. Usado pelo publicador de teste.
// Registros sem obstáculo levam o valor sentinela nas coordenadas do obstáculo.
func Encode(shape Shape, rec models.TelemetryRecord) ([]byte, error) {
	robot := rec.RobotPosition
	if !rec.HasRobotPosition {
		robot = models.Position{X: models.Sentinel, Y: models.Sentinel}
	}

	switch shape {
	case ShapeSimple:
		return json.Marshal(simplePayload{
			X:        round(robot.X),
			Y:        round(robot.Y),
			ObjFound: int(rec.ObstacleType),
			Color:    int(rec.ObstacleColor),
			Status:   int(rec.RobotStatus),
		})
	case ShapeExtended:
		obstacle := rec.ObstaclePosition
		if !rec.HasObstacle {
			obstacle = models.Position{X: models.Sentinel, Y: models.Sentinel}
		}
		return json.Marshal(extendedPayload{
			RobotX:        round(robot.X),
			RobotY:        round(robot.Y),
			RobotStatus:   int(rec.RobotStatus),
			ObstacleX:     round(obstacle.X),
			ObstacleY:     round(obstacle.Y),
			ObstacleType:  int(rec.ObstacleType),
			ObstacleColor: int(rec.ObstacleColor),
		})
	}
	return nil, fmt.Errorf("formato de payload desconhecido: %q", shape)
}

func round(v float64) int64 {
	return int64(math.Round(v))
}
