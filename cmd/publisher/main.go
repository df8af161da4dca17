// Command publisher envia telemetria sintética para o broker, em ritmo fixo
// e com número limitado de mensagens, para testar o monitor sem o rover.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rover_monitor/internal/config"
	"rover_monitor/internal/mqtt"
	"rover_monitor/internal/telemetry"
	"rover_monitor/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Erro ao carregar configurações", err)
	}

	broker := flag.String("broker", cfg.MQTT.Broker, "endereço do broker")
	port := flag.Int("port", cfg.MQTT.Port, "porta do broker")
	topic := flag.String("topic", cfg.Publisher.Topic, "tópico de publicação")
	shapeName := flag.String("shape", cfg.Decoder.Shape, "formato do payload: simple ou extended")
	interval := flag.Duration("interval", cfg.Publisher.Interval, "intervalo entre mensagens")
	count := flag.Int("count", cfg.Publisher.Count, "número de mensagens (0 = até interromper)")
	obstacleEvery := flag.Int("obstacle-every", 4, "reporta um obstáculo a cada N passos (0 = nunca)")
	debug := flag.Bool("debug", false, "log detalhado")
	flag.Parse()

	logger.Init()
	if *debug {
		logger.SetLevel(logger.DEBUG)
	}

	shape, err := telemetry.ParseShape(*shapeName)
	if err != nil {
		logger.Fatal("Formato inválido", err)
	}
	if *interval <= 0 {
		logger.Fatalf("Intervalo deve ser positivo: %v", *interval)
	}

	mqttCfg := cfg.MQTT
	mqttCfg.Broker = *broker
	mqttCfg.Port = *port
	mqttCfg.ClientID = ""

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := mqtt.NewClient(mqttCfg, nil)
	if err := client.Connect(ctx); err != nil {
		logger.Fatal("Não foi possível conectar ao broker", err)
	}
	defer client.Disconnect()

	sent, failed := publish(ctx, client, shape, *topic, *interval, *count, newRoute(*obstacleEvery))
	logger.Infof("Publicação encerrada: %d enviadas, %d com erro", sent, failed)
}

// publisher é a parte do cliente MQTT usada aqui
type publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// publish envia uma mensagem por tick até count (0 = sem limite) ou até o
// contexto ser cancelado
func publish(ctx context.Context, client publisher, shape telemetry.Shape, topic string, interval time.Duration, count int, r *route) (sent, failed int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for count == 0 || sent+failed < count {
		rec := r.next(time.Now())
		payload, err := telemetry.Encode(shape, rec)
		if err != nil {
			logger.Error("Erro ao codificar registro", err)
			failed++
		} else {
			pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = client.Publish(pubCtx, topic, payload)
			cancel()
			if err != nil {
				logger.Errorf("Erro ao publicar em %s: %v", topic, err)
				failed++
			} else {
				sent++
				logger.Debugf("Publicado em %s: %s", topic, payload)
			}
		}

		if count != 0 && sent+failed >= count {
			break
		}
		select {
		case <-ctx.Done():
			return sent, failed
		case <-ticker.C:
		}
	}
	return sent, failed
}
