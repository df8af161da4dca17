package ingest

import (
	"context"
	"sync"
	"time"

	"rover_monitor/internal/config"
	"rover_monitor/internal/models"
	"rover_monitor/internal/spatial"
	"rover_monitor/internal/telemetry"
	"rover_monitor/pkg/logger"
)

// RecordHandler recebe cada registro decodificado, depois de aplicado ao mapa
type RecordHandler func(rec models.TelemetryRecord)

// Stats resume o que passou pelo laço de ingestão
type Stats struct {
	Received     uint64    `json:"received"`
	Applied      uint64    `json:"applied"`
	Skipped      uint64    `json:"skipped"`
	DecodeErrors uint64    `json:"decodeErrors"`
	Dropped      uint64    `json:"dropped"`
	QueueLen     int       `json:"queueLen"`
	QueueCap     int       `json:"queueCap"`
	LastError    string    `json:"lastError,omitempty"`
	LastErrorAt  time.Time `json:"lastErrorAt,omitempty"`
	LastRecordAt time.Time `json:"lastRecordAt,omitempty"`
}

// Service aplica mensagens recebidas do transporte ao estado espacial, na
// ordem de chegada, numa goroutine dedicada.
type Service struct {
	decoder *telemetry.Decoder
	store   *spatial.Store
	queue   chan models.RawMessage

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	mutex   sync.RWMutex

	handlers     []RecordHandler
	handlersLock sync.RWMutex

	lastRecord *models.TelemetryRecord

	stats     Stats
	statsLock sync.Mutex
}

// NewService cria o serviço de ingestão. O decodificador e o estado são
// injetados; nada aqui é global.
func NewService(cfg config.IngestConfig, decoder *telemetry.Decoder, store *spatial.Store) *Service {
	size := cfg.QueueSize
	if size <= 0 {
		size = 1
	}
	return &Service{
		decoder: decoder,
		store:   store,
		queue:   make(chan models.RawMessage, size),
	}
}

// RegisterRecordHandler registra uma função chamada para cada registro aplicado
func (s *Service) RegisterRecordHandler(handler RecordHandler) {
	s.handlersLock.Lock()
	defer s.handlersLock.Unlock()
	s.handlers = append(s.handlers, handler)
}

// HandleMessage é o callback entregue ao cliente MQTT
func (s *Service) HandleMessage(topic string, payload []byte) {
	s.Enqueue(models.RawMessage{
		Topic:      topic,
		Payload:    payload,
		ReceivedAt: time.Now(),
	})
}

// Enqueue coloca a mensagem na fila sem bloquear o transporte.
// Com a fila cheia a mensagem é descartada.
func (s *Service) Enqueue(msg models.RawMessage) bool {
	select {
	case s.queue <- msg:
		return true
	default:
		s.statsLock.Lock()
		s.stats.Dropped++
		dropped := s.stats.Dropped
		s.statsLock.Unlock()
		logger.Warnf("Fila de ingestão cheia, descartando mensagem do tópico %s (total descartado: %d)", msg.Topic, dropped)
		return false
	}
}

// Start inicia o laço de ingestão
func (s *Service) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return nil
	}

	logger.Infof("Iniciando laço de ingestão (formato: %s, fila: %d)", s.decoder.Shape(), cap(s.queue))

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.done = make(chan struct{})
	go func(ctx context.Context, done chan struct{}) {
		defer close(done)
		s.Run(ctx)
	}(s.ctx, s.done)

	s.running = true
	return nil
}

// Stop pede a parada e espera o registro em andamento terminar
func (s *Service) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	logger.Info("Parando laço de ingestão")
	s.cancel()
	done := s.done
	s.running = false
	s.mutex.Unlock()

	<-done
}

// IsRunning verifica se o laço está em execução
func (s *Service) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// Run consome a fila até o contexto ser cancelado. O cancelamento é
// verificado entre registros, nunca no meio de uma aplicação.
func (s *Service) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			s.process(msg)
		}
	}
}

// process decodifica e aplica uma mensagem. Mensagens inválidas são
// registradas e descartadas.
func (s *Service) process(msg models.RawMessage) {
	s.statsLock.Lock()
	s.stats.Received++
	s.statsLock.Unlock()

	rec, err := s.decoder.Decode(msg.Topic, msg.Payload)
	if err != nil {
		s.statsLock.Lock()
		s.stats.DecodeErrors++
		s.stats.LastError = err.Error()
		s.stats.LastErrorAt = time.Now()
		s.statsLock.Unlock()

		logger.Warnf("Mensagem descartada (tópico %s): %v", msg.Topic, err)
		return
	}
	if !msg.ReceivedAt.IsZero() {
		rec.ReceivedAt = msg.ReceivedAt
	}

	applied := s.store.Apply(rec)

	s.statsLock.Lock()
	if applied {
		s.stats.Applied++
	} else {
		s.stats.Skipped++
	}
	s.stats.LastRecordAt = rec.ReceivedAt
	s.statsLock.Unlock()

	if logger.IsDebugEnabled() {
		logger.Debugf("Registro aplicado: robô=%s (%v) obstáculo=%s (%v) tipo=%s cor=%s",
			rec.RobotPosition, rec.HasRobotPosition, rec.ObstaclePosition, rec.HasObstacle,
			rec.ObstacleType, rec.ObstacleColor)
	}

	s.mutex.Lock()
	recCopy := rec
	s.lastRecord = &recCopy
	s.mutex.Unlock()

	s.notifyRecordHandlers(rec)
}

// notifyRecordHandlers chama os handlers em ordem. Um handler com pânico
// não derruba o laço.
func (s *Service) notifyRecordHandlers(rec models.TelemetryRecord) {
	s.handlersLock.RLock()
	handlers := s.handlers
	s.handlersLock.RUnlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("Pânico em handler de registro: %v", r)
				}
			}()
			handler(rec)
		}()
	}
}

// LastRecord retorna o último registro decodificado com sucesso
func (s *Service) LastRecord() (models.TelemetryRecord, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.lastRecord == nil {
		return models.TelemetryRecord{}, false
	}
	return *s.lastRecord, true
}

// Stats retorna uma cópia das estatísticas
func (s *Service) Stats() Stats {
	s.statsLock.Lock()
	stats := s.stats
	s.statsLock.Unlock()

	stats.QueueLen = len(s.queue)
	stats.QueueCap = cap(s.queue)
	return stats
}
