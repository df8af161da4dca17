package config

import "time"

// getDefaultConfig retorna uma configuração padrão
func getDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Enabled:         true,
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker:         "localhost",
			Port:           1883,
			Topic:          "#",
			QoS:            0,
			KeepAlive:      30 * time.Second,
			ConnectTimeout: 10 * time.Second,
			ReconnectDelay: 2 * time.Second,
		},
		Decoder: DecoderConfig{
			Shape: "extended",
		},
		Ingest: IngestConfig{
			QueueSize:      256,
			LastRecordFile: "data.json",
		},
		Render: RenderConfig{
			Terminal: true,
			Interval: 100 * time.Millisecond,
			Strict:   false,
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
			Prefix:   "rover_map",
			Enabled:  false,
		},
		PLC: PLCConfig{
			Enabled:      false,
			Host:         "192.168.1.100",
			Rack:         0,
			Slot:         1,
			DBNumber:     20,
			UpdateRate:   500 * time.Millisecond,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "logs",
		},
		Publisher: PublisherConfig{
			Topic:    "rover/telemetry",
			Interval: time.Second,
			Count:    10,
		},
	}
}

// Default expõe a configuração padrão (usada por testes e pelo publicador)
func Default() *Config {
	cfg := getDefaultConfig()
	return &cfg
}
