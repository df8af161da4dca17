package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"rover_monitor/internal/config"
	"rover_monitor/internal/models"
	"rover_monitor/pkg/logger"
	"rover_monitor/pkg/utils"
)

// ErrOffline é retornado por leituras quando o Redis está indisponível
var ErrOffline = errors.New("Redis não conectado ou desabilitado")

// Service espelha o mapa no Redis:
//
//	<prefix>:trail        SET com "x,y" de cada ponto visitado
//	<prefix>:obstacles    HASH "x,y" -> {"type":..,"color":..}
//	<prefix>:last_record  JSON do último registro aplicado
//	<prefix>:updates      canal pub/sub com cada registro aplicado
//	<prefix>:status ...   estado da conexão com o broker
type Service struct {
	client *Client
	ctx    context.Context
	cancel context.CancelFunc
	config config.RedisConfig

	writes  chan writeJob
	done    chan struct{}
	dropped uint64
	mutex   sync.Mutex
}

// writeQueueSize limita as escritas pendentes; acima disso a escrita é descartada
const writeQueueSize = 1024

// writeJob é uma escrita pendente, aplicada na ordem de chegada
type writeJob struct {
	record *models.TelemetryRecord
	status *models.ConnectionStatus
	clear  bool
}

// NewService cria o serviço. Se o ping falhar o serviço segue em modo
// offline e tenta reconectar nas próximas escritas.
func NewService(cfg config.RedisConfig) (*Service, error) {
	ctx, cancel := context.WithCancel(context.Background())
	service := &Service{
		client: NewClient(cfg),
		ctx:    ctx,
		cancel: cancel,
		config: cfg,
		writes: make(chan writeJob, writeQueueSize),
		done:   make(chan struct{}),
	}

	if !cfg.Enabled {
		logger.Info("Serviço Redis desabilitado por configuração")
		close(service.done)
		return service, nil
	}

	if err := service.client.Connect(ctx); err != nil {
		logger.Warnf("Aviso: %v. O Redis será utilizado em modo offline.", err)
	}

	go service.writeLoop()
	return service, nil
}

// writeLoop aplica as escritas uma a uma, na ordem em que foram enfileiradas,
// para que o HASH de obstáculos e o last_record reflitam o registro mais recente
func (s *Service) writeLoop() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return
		case job := <-s.writes:
			if job.clear {
				if err := s.ClearState(); err != nil {
					logger.Errorf("Erro ao limpar mapa no Redis: %v", err)
				}
			}
			if job.record != nil {
				if err := s.WriteRecord(*job.record); err != nil {
					logger.Errorf("Erro ao escrever registro no Redis: %v", err)
				}
			}
			if job.status != nil {
				if err := s.WriteStatus(*job.status); err != nil {
					logger.Errorf("Erro ao escrever status no Redis: %v", err)
				}
			}
		}
	}
}

// enqueue nunca bloqueia quem chama; com a fila cheia a escrita é descartada
func (s *Service) enqueue(job writeJob) {
	select {
	case s.writes <- job:
	default:
		s.mutex.Lock()
		s.dropped++
		dropped := s.dropped
		s.mutex.Unlock()
		logger.Warnf("Fila de escrita do Redis cheia, escrita descartada (total: %d)", dropped)
	}
}

// Dropped retorna quantas escritas foram descartadas por fila cheia
func (s *Service) Dropped() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.dropped
}

// IsConnected verifica se o serviço está conectado
func (s *Service) IsConnected() bool {
	return s.client.IsConnected()
}

// WriteRecord grava o que o registro acrescentou ao mapa numa única pipeline
func (s *Service) WriteRecord(rec models.TelemetryRecord) error {
	if !s.IsConnected() {
		return nil
	}

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("erro ao serializar registro: %w", err)
	}

	pipe := s.client.Redis().Pipeline()

	if rec.HasRobotPosition {
		pipe.SAdd(s.ctx, s.client.Key("trail"), utils.FormatCoord(rec.RobotPosition.X, rec.RobotPosition.Y))
	}
	if rec.HasObstacle {
		value, err := json.Marshal(rec.Obstacle())
		if err != nil {
			return fmt.Errorf("erro ao serializar obstáculo: %w", err)
		}
		pipe.HSet(s.ctx, s.client.Key("obstacles"), utils.FormatCoord(rec.ObstaclePosition.X, rec.ObstaclePosition.Y), value)
	}

	pipe.Set(s.ctx, s.client.Key("last_record"), recJSON, 0)
	pipe.Set(s.ctx, s.client.Key("timestamp"), utils.UnixMillis(rec.ReceivedAt), 0)
	pipe.Publish(s.ctx, s.client.Key("updates"), recJSON)

	if _, err := pipe.Exec(s.ctx); err != nil {
		s.client.MarkDisconnected()
		return fmt.Errorf("erro ao escrever registro no Redis: %w", err)
	}
	return nil
}

// WriteStatus grava o estado da conexão com o broker
func (s *Service) WriteStatus(status models.ConnectionStatus) error {
	if !s.IsConnected() {
		return nil
	}

	pipe := s.client.Redis().Pipeline()
	pipe.Set(s.ctx, s.client.Key("status"), status.Status, 0)
	pipe.Set(s.ctx, s.client.Key("status_timestamp"), utils.UnixMillis(status.Timestamp), 0)
	if status.LastError != "" {
		pipe.Set(s.ctx, s.client.Key("ultimo_erro"), status.LastError, 0)
	}
	pipe.Set(s.ctx, s.client.Key("erros_consecutivos"), status.ErrorCount, 0)

	if _, err := pipe.Exec(s.ctx); err != nil {
		s.client.MarkDisconnected()
		return fmt.Errorf("erro ao escrever status no Redis: %w", err)
	}
	return nil
}

// LoadState lê o mapa salvo para restaurar o estado na inicialização.
// Entradas ilegíveis são ignoradas com aviso.
func (s *Service) LoadState() ([]models.Position, []models.ObstacleEntry, error) {
	if !s.IsConnected() {
		return nil, nil, ErrOffline
	}

	members, err := s.client.Redis().SMembers(s.ctx, s.client.Key("trail")).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("erro ao ler trilha: %w", err)
	}
	trail := make([]models.Position, 0, len(members))
	for _, m := range members {
		x, y, err := utils.ParseCoord(m)
		if err != nil {
			logger.Warnf("Ponto de trilha inválido no Redis (%q): %v", m, err)
			continue
		}
		trail = append(trail, models.Position{X: x, Y: y})
	}

	fields, err := s.client.Redis().HGetAll(s.ctx, s.client.Key("obstacles")).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("erro ao ler obstáculos: %w", err)
	}
	obstacles := make([]models.ObstacleEntry, 0, len(fields))
	for field, raw := range fields {
		x, y, err := utils.ParseCoord(field)
		if err != nil {
			logger.Warnf("Posição de obstáculo inválida no Redis (%q): %v", field, err)
			continue
		}
		var obstacle models.Obstacle
		if err := json.Unmarshal([]byte(raw), &obstacle); err != nil {
			logger.Warnf("Obstáculo inválido no Redis em %s: %v", field, err)
			continue
		}
		obstacles = append(obstacles, models.ObstacleEntry{
			Position: models.Position{X: x, Y: y},
			Obstacle: obstacle,
		})
	}

	return trail, obstacles, nil
}

// ClearState apaga o mapa espelhado
func (s *Service) ClearState() error {
	if !s.IsConnected() {
		return nil
	}
	err := s.client.Redis().Del(s.ctx,
		s.client.Key("trail"),
		s.client.Key("obstacles"),
		s.client.Key("last_record"),
	).Err()
	if err != nil {
		s.client.MarkDisconnected()
		return fmt.Errorf("erro ao limpar mapa no Redis: %w", err)
	}
	return nil
}

// GetLastRecord lê o último registro espelhado
func (s *Service) GetLastRecord() (*models.TelemetryRecord, error) {
	if !s.IsConnected() {
		return nil, ErrOffline
	}

	data, err := s.client.Redis().Get(s.ctx, s.client.Key("last_record")).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("erro ao obter último registro: %w", err)
	}

	var rec models.TelemetryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("erro ao decodificar último registro: %w", err)
	}
	return &rec, nil
}

// HandleRecord é o handler de registros do laço de ingestão. A escrita vai
// para a fila do writeLoop para não atrasar o próximo registro.
func (s *Service) HandleRecord(rec models.TelemetryRecord) {
	if !s.config.Enabled || s.ctx.Err() != nil {
		return
	}
	s.enqueue(writeJob{record: &rec})
}

// HandleStatus é o handler de estado do cliente MQTT
func (s *Service) HandleStatus(status models.ConnectionStatus) {
	if !s.config.Enabled || s.ctx.Err() != nil {
		return
	}
	s.enqueue(writeJob{status: &status})
}

// HandleClear enfileira a limpeza do espelho atrás das escritas já pendentes
func (s *Service) HandleClear() {
	if !s.config.Enabled || s.ctx.Err() != nil {
		return
	}
	s.enqueue(writeJob{clear: true})
}

// Shutdown encerra graciosamente o serviço Redis
func (s *Service) Shutdown() {
	s.cancel()

	select {
	case <-s.done:
	case <-time.After(time.Second):
		logger.Warn("Timeout aguardando escritas pendentes do Redis")
	}

	if err := s.client.Close(); err != nil {
		logger.Errorf("Erro ao fechar conexão com Redis: %v", err)
	}
}

// pingTimeout limita o ping da checagem de saúde
const pingTimeout = 2 * time.Second

// Ping verifica a conexão sem alterar o estado; usado pelo /health
func (s *Service) Ping() error {
	if !s.config.Enabled {
		return ErrOffline
	}
	ctx, cancel := context.WithTimeout(s.ctx, pingTimeout)
	defer cancel()
	return s.client.Redis().Ping(ctx).Err()
}
