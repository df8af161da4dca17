package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rover_monitor/internal/models"
	"rover_monitor/pkg/logger"
)

const (
	// Tempo permitido para escrever uma mensagem para o peer.
	writeWait = 10 * time.Second

	// Tempo permitido para ler a próxima mensagem do peer.
	pongWait = 60 * time.Second

	// Envia pings ao peer com esse intervalo. Deve ser menor que pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Comandos de cliente são pequenos
	maxMessageSize = 64 * 1024

	// Tamanho do buffer de canal para mensagens de saída.
	sendBufferSize = 64
)

// Client representa uma conexão WebSocket individual
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffer de mensagens para envio; fechado pelo hub.
	send chan []byte

	id          string
	userAgent   string
	ipAddress   string
	connectedAt time.Time
}

func newClient(hub *Hub, conn *websocket.Conn, userAgent, ipAddress string) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		id:          uuid.New().String(),
		userAgent:   userAgent,
		ipAddress:   ipAddress,
		connectedAt: time.Now(),
	}
}

// readPump lê comandos do WebSocket e os entrega ao hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				logger.Errorf("Erro de leitura WebSocket: %v", err)
			}
			break
		}
		c.processIncomingMessage(message)
	}
}

// writePump envia as mensagens da fila, uma por quadro WebSocket
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// O hub fechou o canal.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processIncomingMessage trata um comando recebido do cliente
func (c *Client) processIncomingMessage(message []byte) {
	cmd, err := ParseClientCommand(message)
	if err != nil {
		logger.Warnf("Erro ao decodificar mensagem do cliente %s: %v", c.id, err)
		c.hub.sendError(c, "invalid_format", "Formato de mensagem inválido")
		return
	}

	if cmd.Type == CommandPing {
		c.hub.sendMessage(c, NewPongMessage(pingTimeParam(cmd.Params)))
		return
	}

	c.hub.submitCommand(models.ClientCommand{
		Command:  cmd.Type,
		Params:   cmd.Params,
		ClientID: c.id,
	})
}
