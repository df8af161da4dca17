package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"rover_monitor/internal/config"
	"rover_monitor/pkg/logger"
)

// Intervalo mínimo entre tentativas de reconexão feitas por IsConnected
const reconnectInterval = 5 * time.Second

// Client encapsula a conexão com o Redis e a montagem das chaves
type Client struct {
	client    *redis.Client
	prefix    string
	config    config.RedisConfig
	connected bool
	lastTry   time.Time
	mutex     sync.Mutex
}

// NewClient cria o cliente sem conectar. Com o Redis desabilitado o
// cliente fica vazio e todas as operações viram no-op.
func NewClient(cfg config.RedisConfig) *Client {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "rover_map"
	}

	if !cfg.Enabled {
		return &Client{config: cfg, prefix: prefix}
	}

	return &Client{
		client: redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		config: cfg,
		prefix: prefix,
	}
}

// Connect testa a conexão com um ping
func (c *Client) Connect(ctx context.Context) error {
	if !c.config.Enabled {
		return fmt.Errorf("cliente Redis desabilitado por configuração")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.lastTry = time.Now()

	result, err := c.client.Ping(ctx).Result()
	if err != nil {
		c.connected = false
		return fmt.Errorf("erro ao conectar ao Redis: %w", err)
	}

	c.connected = true
	logger.Infof("Conexão com o Redis estabelecida em %s:%d. Resposta: %s", c.config.Host, c.config.Port, result)
	return nil
}

// IsConnected informa se o Redis está disponível. Quando offline, tenta um
// novo ping no máximo a cada reconnectInterval.
func (c *Client) IsConnected() bool {
	if !c.config.Enabled || c.client == nil {
		return false
	}

	c.mutex.Lock()
	connected := c.connected
	due := time.Since(c.lastTry) >= reconnectInterval
	c.mutex.Unlock()

	if connected {
		return true
	}
	if !due {
		return false
	}
	return c.Connect(context.Background()) == nil
}

// MarkDisconnected é chamado quando um comando falha
func (c *Client) MarkDisconnected() {
	c.mutex.Lock()
	c.connected = false
	c.lastTry = time.Now()
	c.mutex.Unlock()
}

// Close fecha a conexão com o Redis
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mutex.Lock()
	c.connected = false
	c.mutex.Unlock()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("erro ao fechar conexão Redis: %w", err)
	}
	logger.Info("Conexão com o Redis fechada")
	return nil
}

// Redis expõe o cliente go-redis
func (c *Client) Redis() *redis.Client {
	return c.client
}

// Key monta uma chave com o prefixo configurado
func (c *Client) Key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}
