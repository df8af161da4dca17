package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config representa a configuração completa da aplicação
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	MQTT      MQTTConfig      `json:"mqtt" yaml:"mqtt"`
	Decoder   DecoderConfig   `json:"decoder" yaml:"decoder"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	Render    RenderConfig    `json:"render" yaml:"render"`
	Redis     RedisConfig     `json:"redis" yaml:"redis"`
	PLC       PLCConfig       `json:"plc" yaml:"plc"`
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery"`
	Log       LogConfig       `json:"log" yaml:"log"`
	Publisher PublisherConfig `json:"publisher" yaml:"publisher"`
}

// ServerConfig contém configurações do servidor HTTP/WebSocket
type ServerConfig struct {
	Enabled         bool          `json:"enabled" yaml:"enabled"`
	Port            int           `json:"port" yaml:"port"`
	ReadTimeout     time.Duration `json:"readTimeout" yaml:"readTimeout"`
	WriteTimeout    time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`
	// AssetsHost é de onde a página /map carrega o echarts; vazio usa o CDN padrão
	AssetsHost      string        `json:"assetsHost" yaml:"assetsHost"`
}

// MQTTConfig contém os dados de acesso ao broker. Tópico e credenciais são opacos.
type MQTTConfig struct {
	Broker         string        `json:"broker" yaml:"broker"`
	Port           int           `json:"port" yaml:"port"`
	Username       string        `json:"username" yaml:"username"`
	Password       string        `json:"password" yaml:"password"`
	Topic          string        `json:"topic" yaml:"topic"`
	ClientID       string        `json:"clientId" yaml:"clientId"`
	QoS            byte          `json:"qos" yaml:"qos"`
	KeepAlive      time.Duration `json:"keepAlive" yaml:"keepAlive"`
	ConnectTimeout time.Duration `json:"connectTimeout" yaml:"connectTimeout"`
	ReconnectDelay time.Duration `json:"reconnectDelay" yaml:"reconnectDelay"`
}

// DecoderConfig escolhe o formato do payload aceito ("simple" ou "extended")
type DecoderConfig struct {
	Shape string `json:"shape" yaml:"shape"`
}

// IngestConfig contém configurações do laço de ingestão
type IngestConfig struct {
	QueueSize      int    `json:"queueSize" yaml:"queueSize"`
	LastRecordFile string `json:"lastRecordFile" yaml:"lastRecordFile"`
}

// RenderConfig contém configurações do laço de renderização
type RenderConfig struct {
	Terminal bool          `json:"terminal" yaml:"terminal"`
	Interval time.Duration `json:"interval" yaml:"interval"`
	Strict   bool          `json:"strict" yaml:"strict"`
}

// RedisConfig contém configurações do Redis
type RedisConfig struct {
	Host           string `json:"host" yaml:"host"`
	Port           int    `json:"port" yaml:"port"`
	Password       string `json:"password" yaml:"password"`
	DB             int    `json:"db" yaml:"db"`
	Prefix         string `json:"prefix" yaml:"prefix"`
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	RestoreOnStart bool   `json:"restoreOnStart" yaml:"restoreOnStart"`
}

// PLCConfig contém configurações para o espelho no PLC S7
type PLCConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Host         string        `json:"host" yaml:"host"`
	Rack         int           `json:"rack" yaml:"rack"`
	Slot         int           `json:"slot" yaml:"slot"`
	DBNumber     int           `json:"dbNumber" yaml:"dbNumber"`
	UpdateRate   time.Duration `json:"updateRate" yaml:"updateRate"`
	ReadTimeout  time.Duration `json:"readTimeout" yaml:"readTimeout"`
	WriteTimeout time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
}

// DiscoveryConfig contém configurações do anúncio mDNS
type DiscoveryConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Instance string `json:"instance" yaml:"instance"`
}

// LogConfig contém configurações do logger
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	Dir   string `json:"dir" yaml:"dir"`
}

// PublisherConfig é usada apenas pelo cmd/publisher
type PublisherConfig struct {
	Topic    string        `json:"topic" yaml:"topic"`
	Interval time.Duration `json:"interval" yaml:"interval"`
	Count    int           `json:"count" yaml:"count"`
}

// candidateFiles são procurados, em ordem, quando ROVER_CONFIG não está definido
var candidateFiles = []string{"config.yaml", "config.yml", "config.json"}

// Load carrega a configuração do arquivo ou usa valores padrão
func Load() (*Config, error) {
	if path := os.Getenv("ROVER_CONFIG"); path != "" {
		return LoadFile(path)
	}

	for _, name := range candidateFiles {
		if _, err := os.Stat(name); err == nil {
			return LoadFile(name)
		}
	}

	config := getDefaultConfig()
	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFile carrega um arquivo específico (YAML ou JSON, pela extensão)
func LoadFile(path string) (*Config, error) {
	config := getDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("erro ao decodificar %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("erro ao decodificar %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("formato de configuração não suportado: %s", path)
	}

	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejeita valores que impediriam o serviço de funcionar
func (c *Config) Validate() error {
	switch c.Decoder.Shape {
	case "simple", "extended":
	default:
		return fmt.Errorf("decoder.shape inválido: %q (use simple ou extended)", c.Decoder.Shape)
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker não definido")
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port inválida: %d", c.MQTT.Port)
	}
	if c.MQTT.Topic == "" {
		return fmt.Errorf("mqtt.topic não definido")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos inválido: %d", c.MQTT.QoS)
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port inválida: %d", c.Server.Port)
	}
	if c.Render.Interval <= 0 {
		return fmt.Errorf("render.interval deve ser positivo")
	}
	if c.Ingest.QueueSize <= 0 {
		return fmt.Errorf("ingest.queueSize deve ser positivo")
	}
	if c.PLC.Enabled && c.PLC.UpdateRate <= 0 {
		return fmt.Errorf("plc.updateRate deve ser positivo")
	}
	return nil
}

// applyEnvironmentOverrides sobrescreve configurações com variáveis de ambiente.
// Credenciais do broker normalmente chegam por aqui e não pelo arquivo.
func applyEnvironmentOverrides(config *Config) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) error {
		if v, ok := os.LookupEnv(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s inválido: %w", name, err)
			}
			*dst = n
		}
		return nil
	}
	boolean := func(name string, dst *bool) error {
		if v, ok := os.LookupEnv(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s inválido: %w", name, err)
			}
			*dst = b
		}
		return nil
	}

	str("ROVER_MQTT_BROKER", &config.MQTT.Broker)
	str("ROVER_MQTT_USERNAME", &config.MQTT.Username)
	str("ROVER_MQTT_PASSWORD", &config.MQTT.Password)
	str("ROVER_MQTT_TOPIC", &config.MQTT.Topic)
	str("ROVER_MQTT_CLIENT_ID", &config.MQTT.ClientID)
	str("ROVER_DECODER_SHAPE", &config.Decoder.Shape)
	str("ROVER_REDIS_HOST", &config.Redis.Host)
	str("ROVER_REDIS_PASSWORD", &config.Redis.Password)
	str("ROVER_LOG_LEVEL", &config.Log.Level)
	str("ROVER_ASSETS_HOST", &config.Server.AssetsHost)

	for name, dst := range map[string]*int{
		"ROVER_MQTT_PORT":   &config.MQTT.Port,
		"ROVER_SERVER_PORT": &config.Server.Port,
		"ROVER_REDIS_PORT":  &config.Redis.Port,
	} {
		if err := integer(name, dst); err != nil {
			return err
		}
	}

	for name, dst := range map[string]*bool{
		"ROVER_REDIS_ENABLED":   &config.Redis.Enabled,
		"ROVER_PLC_ENABLED":     &config.PLC.Enabled,
		"ROVER_RENDER_TERMINAL": &config.Render.Terminal,
		"ROVER_SERVER_ENABLED":  &config.Server.Enabled,
	} {
		if err := boolean(name, dst); err != nil {
			return err
		}
	}

	return nil
}
