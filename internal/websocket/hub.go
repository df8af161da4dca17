package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"rover_monitor/internal/models"
	"rover_monitor/internal/render"
	"rover_monitor/internal/spatial"
	"rover_monitor/pkg/logger"
)

// ErrBroadcastFull indica que a fila de broadcast está cheia; o laço de
// renderização tenta de novo no próximo tick
var ErrBroadcastFull = errors.New("fila de broadcast WebSocket cheia")

// MapController dá aos clientes acesso de leitura e limpeza ao mapa
type MapController interface {
	Snapshot() spatial.Snapshot
	Clear()
}

// Hub gerencia as conexões WebSocket e distribui os quadros do mapa
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	commands   chan models.ClientCommand

	// Protege clients e o fechamento dos canais send
	mu sync.RWMutex

	controller MapController

	// Último quadro de mapa serializado, enviado a quem se conecta
	lastFrame []byte
	frameLock sync.RWMutex

	stats struct {
		totalMessages      int64
		totalClients       int64
		droppedFrames      int64
		messagesPerSecond  float64
		lastStatsReset     time.Time
		messagesSinceReset int64
	}
	statsLock sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub cria uma nova instância do Hub
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		commands:   make(chan models.ClientCommand, 32),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.stats.lastStatsReset = time.Now()
	return h
}

// SetController define quem atende get_snapshot e clear
func (h *Hub) SetController(c MapController) {
	h.controller = c
}

// Run executa o laço principal do hub até Shutdown
func (h *Hub) Run() {
	defer close(h.done)
	logger.Info("Iniciando WebSocket Hub")

	statsTicker := time.NewTicker(30 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			logger.Info("Encerrando WebSocket Hub")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()

			logger.Infof("Novo cliente WebSocket conectado. ID: %s. Total: %d", client.id, clientCount)

			h.statsLock.Lock()
			h.stats.totalClients++
			h.statsLock.Unlock()

			h.sendInitialData(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				logger.Infof("Cliente WebSocket desconectado. ID: %s. Total: %d", client.id, len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.statsLock.Lock()
			h.stats.totalMessages++
			h.stats.messagesSinceReset++
			h.statsLock.Unlock()

			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// cliente lento: desconecta para não segurar os demais
					delete(h.clients, client)
					close(client.send)
					logger.Warnf("Cliente WebSocket %s não acompanha o fluxo, desconectando", client.id)
				}
			}
			h.mu.Unlock()

		case cmd := <-h.commands:
			h.handleClientCommand(cmd)

		case <-statsTicker.C:
			h.logStats()
		}
	}
}

func (h *Hub) logStats() {
	h.statsLock.Lock()
	elapsed := time.Since(h.stats.lastStatsReset).Seconds()
	if elapsed > 0 {
		h.stats.messagesPerSecond = float64(h.stats.messagesSinceReset) / elapsed
	}
	h.stats.messagesSinceReset = 0
	h.stats.lastStatsReset = time.Now()
	mps := h.stats.messagesPerSecond
	total := h.stats.totalMessages
	h.statsLock.Unlock()

	logger.Debugf("Estatísticas WebSocket: %d clientes, %.2f msgs/seg, total: %d mensagens",
		h.ClientCount(), mps, total)
}

// Name identifica o hub como superfície de renderização
func (h *Hub) Name() string {
	return "websocket"
}

// Render publica o quadro para todos os clientes. O quadro fica guardado
// para quem se conectar depois.
func (h *Hub) Render(frame render.Frame) error {
	payload, err := SerializeMessage(NewFrameMessage(frame))
	if err != nil {
		return err
	}

	h.frameLock.Lock()
	h.lastFrame = payload
	h.frameLock.Unlock()

	if h.ClientCount() == 0 {
		return nil
	}
	if !h.enqueue(payload) {
		h.statsLock.Lock()
		h.stats.droppedFrames++
		h.statsLock.Unlock()
		return ErrBroadcastFull
	}
	return nil
}

// BroadcastTelemetry repassa o último registro aplicado
func (h *Hub) BroadcastTelemetry(rec models.TelemetryRecord) {
	h.broadcastMessage(NewTelemetryMessage(rec))
}

// BroadcastStatus envia atualização do estado da conexão com o broker
func (h *Hub) BroadcastStatus(status models.ConnectionStatus) {
	h.broadcastMessage(NewStatusMessage(status))
}

func (h *Hub) broadcastMessage(message interface{}) {
	if h.ClientCount() == 0 {
		return
	}
	payload, err := SerializeMessage(message)
	if err != nil {
		logger.Error("Erro ao serializar mensagem WebSocket", err)
		return
	}
	if !h.enqueue(payload) {
		logger.Warn("Fila de broadcast WebSocket cheia, descartando mensagem")
	}
}

func (h *Hub) enqueue(payload []byte) bool {
	select {
	case h.broadcast <- payload:
		return true
	default:
		return false
	}
}

// submitCommand entrega um comando ao laço do hub sem bloquear a leitura
func (h *Hub) submitCommand(cmd models.ClientCommand) {
	select {
	case h.commands <- cmd:
	case <-h.ctx.Done():
	default:
		logger.Warnf("Fila de comandos WebSocket cheia, descartando %s", cmd.Command)
	}
}

// handleClientCommand processa comandos recebidos dos clientes
func (h *Hub) handleClientCommand(cmd models.ClientCommand) {
	logger.Debugf("Comando recebido do cliente %s: %s", cmd.ClientID, cmd.Command)

	client := h.getClientByID(cmd.ClientID)
	if client == nil {
		return
	}

	switch cmd.Command {
	case CommandGetSnapshot:
		if h.controller == nil {
			h.sendError(client, "unavailable", "Mapa indisponível")
			return
		}
		h.sendMessage(client, NewMapMessage(h.controller.Snapshot()))

	case CommandClear:
		if h.controller == nil {
			h.sendError(client, "unavailable", "Mapa indisponível")
			return
		}
		h.controller.Clear()
		logger.Infof("Mapa limpo a pedido do cliente %s", client.id)
		h.sendMessage(client, header(TypeCleared))

	default:
		logger.Warnf("Comando desconhecido: %s", cmd.Command)
		h.sendError(client, "unknown_command", "Comando desconhecido: "+cmd.Command)
	}
}

// sendInitialData envia boas-vindas e o último quadro a um novo cliente
func (h *Hub) sendInitialData(client *Client) {
	welcome := header(TypeWelcome)
	welcome.Data = map[string]interface{}{
		"message":  "Conectado ao monitor do rover",
		"clientId": client.id,
	}
	h.sendMessage(client, welcome)

	h.frameLock.RLock()
	frame := h.lastFrame
	h.frameLock.RUnlock()

	if frame == nil && h.controller != nil {
		h.sendMessage(client, NewMapMessage(h.controller.Snapshot()))
		return
	}
	if frame != nil {
		h.sendRaw(client, frame)
	}
}

// sendMessage serializa e envia uma mensagem a um único cliente
func (h *Hub) sendMessage(client *Client, message interface{}) {
	payload, err := SerializeMessage(message)
	if err != nil {
		logger.Error("Erro ao serializar mensagem WebSocket", err)
		return
	}
	h.sendRaw(client, payload)
}

func (h *Hub) sendError(client *Client, code, message string) {
	h.sendMessage(client, NewErrorMessage(message, code))
}

// sendRaw envia sem bloquear; o canal só é fechado com mu travado, então
// checar o registro sob RLock evita escrever num canal fechado
func (h *Hub) sendRaw(client *Client, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[client] {
		return
	}
	select {
	case client.send <- payload:
	default:
		logger.Warnf("Buffer do cliente %s cheio, descartando mensagem", client.id)
	}
}

func (h *Hub) registerClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Shutdown encerra o hub e fecha todas as conexões
func (h *Hub) Shutdown() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(time.Second):
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// ClientCount retorna o número atual de clientes conectados
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedFrames retorna quantos quadros não couberam na fila de broadcast
func (h *Hub) DroppedFrames() int64 {
	h.statsLock.Lock()
	defer h.statsLock.Unlock()
	return h.stats.droppedFrames
}

func (h *Hub) getClientByID(clientID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.id == clientID {
			return client
		}
	}
	return nil
}
