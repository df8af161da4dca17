package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rover_monitor/internal/config"
	"rover_monitor/internal/server"
	"rover_monitor/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "arquivo de configuração (YAML ou JSON); padrão: $ROVER_CONFIG ou ./config.yaml")
	flag.Parse()

	logger.Init()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal("Erro ao carregar configurações", err)
	}

	if level, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		logger.Warnf("Nível de log inválido %q, usando INFO", cfg.Log.Level)
	} else {
		logger.SetLevel(level)
	}
	if cfg.Log.Dir != "" {
		if err := logger.EnableFileLogging(cfg.Log.Dir, "rover"); err != nil {
			logger.Warnf("Sem log em arquivo: %v", err)
		}
	}
	defer logger.Sync()

	if !cfg.Render.Terminal {
		displayBanner()
	}

	logger.Infof("Configuração carregada: broker %s:%d, tópico %q, formato %s",
		cfg.MQTT.Broker, cfg.MQTT.Port, cfg.MQTT.Topic, cfg.Decoder.Shape)

	srv, err := server.NewServer(cfg)
	if err != nil {
		logger.Fatal("Erro ao criar servidor", err)
	}

	if err := srv.Start(); err != nil {
		shutdown(srv, cfg.Server.ShutdownTimeout)
		logger.Fatal("Erro ao iniciar o servidor", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Infof("Sinal %v recebido", sig)
	case <-srv.Done():
	}

	logger.Info("Desligando monitor...")
	shutdown(srv, cfg.Server.ShutdownTimeout)
	logger.Info("Monitor encerrado com sucesso")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func shutdown(srv *server.Server, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Erro durante o shutdown do servidor", err)
	}
}

// displayBanner exibe um banner de inicialização
func displayBanner() {
	banner := `
  ____                         __  __
 |  _ \ _____   _____ _ __    |  \/  | __ _ _ __
 | |_) / _ \ \ / / _ \ '__|   | |\/| |/ _' | '_ \
 |  _ < (_) \ V /  __/ |      | |  | | (_| | |_) |
 |_| \_\___/ \_/ \___|_|      |_|  |_|\__,_| .__/
                                           |_|   monitor v` + server.Version + `
`
	fmt.Println(banner)
	fmt.Printf("Iniciando em %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
}
