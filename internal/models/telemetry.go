package models

import (
	"fmt"
	"time"
)

// Sentinel é o valor que o firmware do rover usa para "campo não definido"
const Sentinel = 69420

// Position representa um ponto no plano 2D. Igualdade exata, sem tolerância.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsSentinel indica se alguma coordenada carrega o valor de "não definido"
func (p Position) IsSentinel() bool {
	return p.X == Sentinel || p.Y == Sentinel
}

// Less ordena posições por X e depois por Y
func (p Position) Less(o Position) bool {
	if p.X != o.X {
		return p.X < o.X
	}
	return p.Y < o.Y
}

func (p Position) String() string {
	return fmt.Sprintf("(%g,%g)", p.X, p.Y)
}

// Color é o código categórico de cor reportado pelo sensor TCS3472
type Color int

const (
	NoColor Color = iota
	Black
	White
	Green
	Red
	Blue
)

var colorNames = map[Color]string{
	NoColor: "none",
	Black:   "black",
	White:   "white",
	Green:   "green",
	Red:     "red",
	Blue:    "blue",
}

func (c Color) String() string {
	if name, ok := colorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("color(%d)", int(c))
}

// ObstacleType é o código categórico do tipo de obstáculo
type ObstacleType int

const (
	NoObstacle ObstacleType = iota
	Wall
	Hill
	Cliff
	SmallRock
	BigRock
)

var obstacleNames = map[ObstacleType]string{
	NoObstacle: "none",
	Wall:       "wall",
	Hill:       "hill",
	Cliff:      "cliff",
	SmallRock:  "small_rock",
	BigRock:    "big_rock",
}

func (t ObstacleType) String() string {
	if name, ok := obstacleNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// RobotStatus é o estado reportado pelo rover
type RobotStatus int

const (
	Idle RobotStatus = iota
	Moving
	Scanned
	Colliding
)

var statusNames = map[RobotStatus]string{
	Idle:      "idle",
	Moving:    "moving",
	Scanned:   "scanned",
	Colliding: "colliding",
}

func (s RobotStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Obstacle são os atributos guardados por posição (última leitura vence)
type Obstacle struct {
	Type  ObstacleType `json:"type"`
	Color Color        `json:"color"`
}

// ObstacleEntry é um elemento do snapshot de obstáculos
type ObstacleEntry struct {
	Position Position `json:"position"`
	Obstacle Obstacle `json:"obstacle"`
}

// TelemetryRecord é a unidade de trabalho decodificada, aplicada uma única vez
type TelemetryRecord struct {
	Shape            string       `json:"shape"`
	Topic            string       `json:"topic,omitempty"`
	ReceivedAt       time.Time    `json:"receivedAt"`
	RobotPosition    Position     `json:"robotPosition"`
	RobotStatus      RobotStatus  `json:"robotStatus"`
	ObstaclePosition Position     `json:"obstaclePosition"`
	ObstacleType     ObstacleType `json:"obstacleType"`
	ObstacleColor    Color        `json:"obstacleColor"`
	HasRobotPosition bool         `json:"hasRobotPosition"`
	HasObstacle      bool         `json:"hasObstacle"`
}

// Obstacle retorna os atributos do obstáculo carregado pelo registro
func (r TelemetryRecord) Obstacle() Obstacle {
	return Obstacle{Type: r.ObstacleType, Color: r.ObstacleColor}
}

// RawMessage é o que o transporte entrega ao laço de ingestão
type RawMessage struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}
