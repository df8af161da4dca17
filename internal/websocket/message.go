package websocket

import (
	"bytes"
	"encoding/json"
	"time"

	"rover_monitor/internal/models"
	"rover_monitor/internal/render"
	"rover_monitor/internal/spatial"
)

// Tipos de mensagem enviados aos clientes
const (
	TypeWelcome   = "welcome"
	TypeMap       = "map"
	TypeTelemetry = "telemetry"
	TypeStatus    = "status"
	TypePing      = "ping"
	TypePong      = "pong"
	TypeError     = "error"
	TypeCleared   = "cleared"
)

// Comandos aceitos dos clientes
const (
	CommandPing        = "ping"
	CommandGetSnapshot = "get_snapshot"
	CommandClear       = "clear"
)

func header(kind string) models.WebSocketMessage {
	return models.WebSocketMessage{Type: kind, Timestamp: time.Now()}
}

// NewMapMessage cria a mensagem com o quadro completo do mapa
func NewMapMessage(snap spatial.Snapshot) *models.MapMessage {
	trail := snap.Trail
	if trail == nil {
		trail = []models.Position{}
	}
	obstacles := snap.Obstacles
	if obstacles == nil {
		obstacles = []models.ObstacleEntry{}
	}
	return &models.MapMessage{
		WebSocketMessage: header(TypeMap),
		Seq:              snap.Seq,
		Trail:            trail,
		Obstacles:        obstacles,
	}
}

// NewFrameMessage cria a mensagem de mapa a partir de um quadro do laço de
// renderização, levando a linha de status em Data
func NewFrameMessage(frame render.Frame) *models.MapMessage {
	msg := NewMapMessage(frame.Snapshot)
	if frame.Status != "" {
		msg.Data = map[string]string{"status": frame.Status}
	}
	return msg
}

// NewTelemetryMessage cria a mensagem com o último registro aplicado
func NewTelemetryMessage(rec models.TelemetryRecord) *models.TelemetryMessage {
	return &models.TelemetryMessage{
		WebSocketMessage: header(TypeTelemetry),
		Record:           rec,
	}
}

// NewStatusMessage cria uma nova mensagem de status da conexão
func NewStatusMessage(status models.ConnectionStatus) *models.StatusMessage {
	return &models.StatusMessage{
		WebSocketMessage: header(TypeStatus),
		Status:           status.Status,
		LastError:        status.LastError,
		ErrorCount:       status.ErrorCount,
	}
}

// NewErrorMessage cria uma nova mensagem de erro
func NewErrorMessage(message string, errorCode string) models.WebSocketMessage {
	msg := header(TypeError)
	msg.Error = message
	msg.Data = map[string]string{"code": errorCode}
	return msg
}

// NewPongMessage cria a resposta para um ping do cliente
func NewPongMessage(pingTime int64) *models.PongMessage {
	return &models.PongMessage{
		WebSocketMessage: header(TypePong),
		Time:             pingTime,
		ServerTime:       time.Now().UnixMilli(),
	}
}

// SerializeMessage serializa uma mensagem para JSON
func SerializeMessage(message interface{}) ([]byte, error) {
	return json.Marshal(message)
}

// ParseClientCommand analisa um comando recebido do cliente, rejeitando
// campos desconhecidos
func ParseClientCommand(data []byte) (models.CommandMessage, error) {
	var command models.CommandMessage
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	err := decoder.Decode(&command)
	return command, err
}

// pingTimeParam extrai params.time de um comando de ping
func pingTimeParam(params interface{}) int64 {
	if m, ok := params.(map[string]interface{}); ok {
		if v, ok := m["time"].(float64); ok {
			return int64(v)
		}
	}
	return 0
}
