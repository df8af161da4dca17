package models

import "time"

// WebSocketMessage representa a estrutura base de todas as mensagens WebSocket
type WebSocketMessage struct {
	Type      string      `json:"type"`            // Tipo da mensagem: "map", "telemetry", "status", etc.
	Timestamp time.Time   `json:"timestamp"`       // Timestamp da mensagem
	Data      interface{} `json:"data,omitempty"`  // Dados adicionais específicos do tipo
	Error     string      `json:"error,omitempty"` // Mensagem de erro, se houver
}

// MapMessage carrega um quadro completo do mapa; substitui o anterior no cliente
type MapMessage struct {
	WebSocketMessage
	Seq       uint64          `json:"seq"`
	Trail     []Position      `json:"trail"`
	Obstacles []ObstacleEntry `json:"obstacles"`
}

// TelemetryMessage repassa o último registro aplicado
type TelemetryMessage struct {
	WebSocketMessage
	Record TelemetryRecord `json:"record"`
}

// StatusMessage é uma mensagem específica para o estado da conexão com o broker
type StatusMessage struct {
	WebSocketMessage
	Status     string `json:"status"`
	LastError  string `json:"lastError,omitempty"`
	ErrorCount int    `json:"errorCount,omitempty"`
}

// CommandMessage é uma mensagem de comando do cliente para o servidor
type CommandMessage struct {
	Type   string      `json:"type"`             // Tipo de comando: "get_snapshot", "clear", etc.
	Params interface{} `json:"params,omitempty"` // Parâmetros adicionais
	ID     string      `json:"id,omitempty"`     // ID opcional para correlacionar solicitações/respostas
}

// ClientCommand representa um comando enviado pelo cliente
type ClientCommand struct {
	Command  string      `json:"command"`
	Params   interface{} `json:"params,omitempty"`
	ClientID string      `json:"-"` // Usado internamente, não enviado no JSON
}

// PingMessage representa um ping enviado pelo servidor
type PingMessage struct {
	WebSocketMessage
	Time int64 `json:"time"` // Timestamp em milissegundos
}

// PongMessage representa um pong enviado pelo servidor
type PongMessage struct {
	WebSocketMessage
	Time       int64 `json:"time"`       // Timestamp original do ping
	ServerTime int64 `json:"serverTime"` // Timestamp do servidor em milissegundos
}

// ConnectionStatus é o estado do transporte exposto para a API e a tela
type ConnectionStatus struct {
	Status     string    `json:"status"`
	Broker     string    `json:"broker"`
	Topic      string    `json:"topic"`
	Timestamp  time.Time `json:"timestamp"`
	LastError  string    `json:"lastError,omitempty"`
	ErrorCount int       `json:"errorCount,omitempty"`
}
