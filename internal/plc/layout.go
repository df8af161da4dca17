package plc

import (
	"fmt"

	"rover_monitor/internal/models"
	"rover_monitor/pkg/utils"
)

// Layout do DB espelhado no PLC (big endian, tipos S7):
//
//	offset  tipo  campo
//	0       REAL  robot_x
//	4       REAL  robot_y
//	8       INT   robot_status
//	10      REAL  obstacle_x
//	14      REAL  obstacle_y
//	18      INT   obstacle_type
//	20      INT   obstacle_color
//	22      DINT  trail_count
//	26      DINT  obstacle_count
const (
	offsetRobotX        = 0
	offsetRobotY        = 4
	offsetRobotStatus   = 8
	offsetObstacleX     = 10
	offsetObstacleY     = 14
	offsetObstacleType  = 18
	offsetObstacleColor = 20
	offsetTrailCount    = 22
	offsetObstacleCount = 26

	// BlockSize é o tamanho total do bloco em bytes
	BlockSize = 30
)

// MirrorData é o conteúdo do bloco espelhado
type MirrorData struct {
	RobotX        float32 `json:"robotX"`
	RobotY        float32 `json:"robotY"`
	RobotStatus   int16   `json:"robotStatus"`
	ObstacleX     float32 `json:"obstacleX"`
	ObstacleY     float32 `json:"obstacleY"`
	ObstacleType  int16   `json:"obstacleType"`
	ObstacleColor int16   `json:"obstacleColor"`
	TrailCount    int32   `json:"trailCount"`
	ObstacleCount int32   `json:"obstacleCount"`
}

// NewMirrorData monta o bloco a partir do último registro e das contagens do
// mapa. Campos ausentes no registro são gravados como o sentinela.
func NewMirrorData(rec models.TelemetryRecord, trailCount, obstacleCount int) MirrorData {
	d := MirrorData{
		RobotX:        models.Sentinel,
		RobotY:        models.Sentinel,
		RobotStatus:   utils.ClampInt16(int(rec.RobotStatus)),
		ObstacleX:     models.Sentinel,
		ObstacleY:     models.Sentinel,
		ObstacleType:  utils.ClampInt16(int(rec.ObstacleType)),
		ObstacleColor: utils.ClampInt16(int(rec.ObstacleColor)),
		TrailCount:    int32(trailCount),
		ObstacleCount: int32(obstacleCount),
	}
	if rec.HasRobotPosition {
		d.RobotX = float32(rec.RobotPosition.X)
		d.RobotY = float32(rec.RobotPosition.Y)
	}
	if rec.HasObstacle {
		d.ObstacleX = float32(rec.ObstaclePosition.X)
		d.ObstacleY = float32(rec.ObstaclePosition.Y)
	}
	return d
}

// Encode serializa o bloco no formato do DB
func (d MirrorData) Encode() []byte {
	buf := make([]byte, BlockSize)
	copy(buf[offsetRobotX:], utils.Float32ToBytes(d.RobotX))
	copy(buf[offsetRobotY:], utils.Float32ToBytes(d.RobotY))
	copy(buf[offsetRobotStatus:], utils.Int16ToBytes(d.RobotStatus))
	copy(buf[offsetObstacleX:], utils.Float32ToBytes(d.ObstacleX))
	copy(buf[offsetObstacleY:], utils.Float32ToBytes(d.ObstacleY))
	copy(buf[offsetObstacleType:], utils.Int16ToBytes(d.ObstacleType))
	copy(buf[offsetObstacleColor:], utils.Int16ToBytes(d.ObstacleColor))
	copy(buf[offsetTrailCount:], utils.Int32ToBytes(d.TrailCount))
	copy(buf[offsetObstacleCount:], utils.Int32ToBytes(d.ObstacleCount))
	return buf
}

// DecodeMirrorData lê um bloco no formato do DB
func DecodeMirrorData(buf []byte) (MirrorData, error) {
	if len(buf) < BlockSize {
		return MirrorData{}, fmt.Errorf("bloco PLC muito curto: %d bytes, esperado %d", len(buf), BlockSize)
	}
	return MirrorData{
		RobotX:        utils.BytesToFloat32(buf[offsetRobotX:]),
		RobotY:        utils.BytesToFloat32(buf[offsetRobotY:]),
		RobotStatus:   utils.BytesToInt16(buf[offsetRobotStatus:]),
		ObstacleX:     utils.BytesToFloat32(buf[offsetObstacleX:]),
		ObstacleY:     utils.BytesToFloat32(buf[offsetObstacleY:]),
		ObstacleType:  utils.BytesToInt16(buf[offsetObstacleType:]),
		ObstacleColor: utils.BytesToInt16(buf[offsetObstacleColor:]),
		TrailCount:    utils.BytesToInt32(buf[offsetTrailCount:]),
		ObstacleCount: utils.BytesToInt32(buf[offsetObstacleCount:]),
	}, nil
}
