package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"rover_monitor/internal/config"
	"rover_monitor/internal/models"
	"rover_monitor/pkg/logger"
)

// Estados de conexão expostos em Status
const (
	StatusDisconnected = "desconectado"
	StatusConnecting   = "conectando"
	StatusConnected    = "conectado"
	StatusFailed       = "falha_conexao"
)

// ConnectionError é uma falha de transporte (rede ou autenticação)
type ConnectionError struct {
	Broker string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("erro de conexão com %s: %v", e.Broker, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// MessageHandler recebe tópico e payload de cada mensagem entregue
type MessageHandler func(topic string, payload []byte)

// StatusHandler é chamado sempre que o estado da conexão muda
type StatusHandler func(status models.ConnectionStatus)

// Client encapsula o cliente paho com reconexão automática e inscrição
// refeita a cada conexão.
type Client struct {
	cfg     config.MQTTConfig
	client  paho.Client
	handler MessageHandler

	mutex          sync.RWMutex
	status         models.ConnectionStatus
	statusHandlers []StatusHandler
}

// NewClient cria o cliente sem conectar. handler pode ser nil para quem só publica.
func NewClient(cfg config.MQTTConfig, handler MessageHandler) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	c := &Client{
		cfg:     cfg,
		handler: handler,
		status: models.ConnectionStatus{
			Status:    StatusDisconnected,
			Broker:    brokerURL(cfg),
			Topic:     cfg.Topic,
			Timestamp: time.Now(),
		},
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "rover-monitor-" + uuid.New().String()[:8]
	}

	opts := paho.NewClientOptions().
		AddBroker(brokerURL(cfg)).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(maxDuration(cfg.ReconnectDelay, time.Second)).
		SetOrderMatters(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
			c.updateStatus(StatusConnecting, "")
		})

	c.client = paho.NewClient(opts)
	return c
}

func brokerURL(cfg config.MQTTConfig) string {
	return fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// RegisterStatusHandler registra uma função para mudanças de estado
func (c *Client) RegisterStatusHandler(handler StatusHandler) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.statusHandlers = append(c.statusHandlers, handler)
}

// Connect faz uma tentativa de conexão e espera o resultado ou o
// cancelamento do contexto. O prazo de cada tentativa é o ConnectTimeout do
// paho, para que a próxima tentativa só comece depois desta terminar.
func (c *Client) Connect(ctx context.Context) error {
	logger.Infof("Conectando ao broker MQTT %s", brokerURL(c.cfg))
	c.updateStatus(StatusConnecting, "")

	token := c.client.Connect()
	var err error
	select {
	case <-token.Done():
		err = token.Error()
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		connErr := &ConnectionError{Broker: brokerURL(c.cfg), Err: err}
		c.updateStatus(StatusFailed, err.Error())
		return connErr
	}
	return nil
}

// KeepConnecting repete Connect a cada ReconnectDelay até conseguir ou o
// contexto ser cancelado. Cada falha é registrada no log.
func (c *Client) KeepConnecting(ctx context.Context) error {
	delay := maxDuration(c.cfg.ReconnectDelay, 100*time.Millisecond)
	for {
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Errorf("%v. Nova tentativa em %v", err, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// onConnect refaz a inscrição; o paho chama isto em toda (re)conexão
func (c *Client) onConnect(client paho.Client) {
	logger.Infof("Conectado ao broker MQTT %s", brokerURL(c.cfg))

	if c.handler != nil && c.cfg.Topic != "" {
		token := client.Subscribe(c.cfg.Topic, c.cfg.QoS, c.onMessage)
		if !token.WaitTimeout(maxDuration(c.cfg.ConnectTimeout, time.Second)) {
			c.updateStatus(StatusFailed, "tempo esgotado na inscrição")
			logger.Errorf("Tempo esgotado ao inscrever no tópico %s", c.cfg.Topic)
			return
		}
		if err := token.Error(); err != nil {
			c.updateStatus(StatusFailed, err.Error())
			logger.Error("Erro ao inscrever no tópico "+c.cfg.Topic, err)
			return
		}
		logger.Infof("Inscrito no tópico %s (QoS %d)", c.cfg.Topic, c.cfg.QoS)
	}

	c.updateStatus(StatusConnected, "")
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	logger.Errorf("Conexão com o broker perdida: %v", err)
	c.updateStatus(StatusDisconnected, err.Error())
}

func (c *Client) onMessage(_ paho.Client, msg paho.Message) {
	if c.handler == nil {
		return
	}
	c.handler(msg.Topic(), msg.Payload())
}

// Publish envia um payload e espera a confirmação do broker
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	token := c.client.Publish(topic, c.cfg.QoS, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect encerra a conexão de forma ordenada
func (c *Client) Disconnect() {
	if c.client.IsConnectionOpen() {
		logger.Info("Desconectando do broker MQTT")
	}
	c.client.Disconnect(250)
	c.updateStatus(StatusDisconnected, "")
}

// IsConnected informa se há conexão ativa com o broker
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Status retorna o estado atual da conexão
func (c *Client) Status() models.ConnectionStatus {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.status
}

// updateStatus grava o novo estado e avisa os handlers fora do lock
func (c *Client) updateStatus(status, errorMsg string) {
	c.mutex.Lock()
	errorCount := c.status.ErrorCount
	if errorMsg != "" {
		errorCount++
	} else if status == StatusConnected {
		errorCount = 0
	}
	c.status = models.ConnectionStatus{
		Status:     status,
		Broker:     brokerURL(c.cfg),
		Topic:      c.cfg.Topic,
		Timestamp:  time.Now(),
		LastError:  errorMsg,
		ErrorCount: errorCount,
	}
	current := c.status
	handlers := c.statusHandlers
	c.mutex.Unlock()

	for _, handler := range handlers {
		handler(current)
	}
}
