package plc

import (
	"context"
	"errors"
	"sync"
	"time"

	"rover_monitor/internal/config"
	"rover_monitor/internal/models"
	"rover_monitor/pkg/logger"
)

// ErrDisabled é retornado pelas leituras com o serviço desabilitado
var ErrDisabled = errors.New("PLC desabilitado por configuração")

// BlockDevice lê e grava trechos de DB no PLC
type BlockDevice interface {
	WriteDataBlock(dbNumber, startOffset int, data []byte) error
	ReadDataBlock(dbNumber, startOffset, size int) ([]byte, error)
	GetLastError() error
}

// Stats resume o espelhamento para a API de status
type Stats struct {
	Enabled   bool   `json:"enabled"`
	Running   bool   `json:"running"`
	DBNumber  int    `json:"dbNumber"`
	Writes    uint64 `json:"writes"`
	Failures  uint64 `json:"failures"`
	LastError string `json:"lastError,omitempty"`
}

// MapCounter informa o tamanho atual do mapa
type MapCounter interface {
	Counts() (trail, obstacles int)
}

// PLCService espelha o último registro e as contagens do mapa num DB do PLC
type PLCService struct {
	client      *S7Client
	device      BlockDevice
	counter     MapCounter
	config      config.PLCConfig
	ctx         context.Context
	cancel      context.CancelFunc
	records     chan models.TelemetryRecord
	lastRecord  *models.TelemetryRecord
	dirty       bool
	writes      uint64
	writeErrors uint64
	mutex       sync.RWMutex
	running     bool
}

// NewPLCService cria um novo serviço de PLC
func NewPLCService(cfg config.PLCConfig, counter MapCounter) *PLCService {
	ctx, cancel := context.WithCancel(context.Background())
	client := NewS7Client(cfg)

	if cfg.UpdateRate <= 0 {
		cfg.UpdateRate = time.Second
	}

	return &PLCService{
		client:  client,
		device:  client,
		counter: counter,
		config:  cfg,
		ctx:     ctx,
		cancel:  cancel,
		records: make(chan models.TelemetryRecord, 10),
	}
}

// Start inicia o laço de atualização. Uma falha de conexão inicial não
// impede o início: o laço tenta novamente a cada escrita.
func (s *PLCService) Start() error {
	if !s.config.Enabled {
		logger.Info("Serviço PLC desabilitado por configuração")
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return nil
	}

	if client, ok := s.device.(*S7Client); ok {
		if err := client.Connect(); err != nil {
			logger.Warnf("PLC indisponível, tentando novamente no laço: %v", err)
		}
	}

	go s.runUpdateLoop()

	s.running = true
	logger.Infof("Serviço PLC iniciado (DB%d, %v)", s.config.DBNumber, s.config.UpdateRate)
	return nil
}

// Stop para o serviço de comunicação com o PLC
func (s *PLCService) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.client.Disconnect()
	s.running = false
	logger.Info("Serviço PLC parado")
}

// IsRunning verifica se o serviço está em execução
func (s *PLCService) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// HandleRecord é o handler de registros do laço de ingestão
func (s *PLCService) HandleRecord(rec models.TelemetryRecord) {
	if !s.config.Enabled || !s.IsRunning() {
		return
	}

	select {
	case s.records <- rec:
	default:
		logger.Warn("Canal de registros para PLC está cheio, descartando atualização")
	}
}

// Stats retorna contadores de escrita e o último erro do cliente S7
func (s *PLCService) Stats() Stats {
	s.mutex.RLock()
	stats := Stats{
		Enabled:  s.config.Enabled,
		Running:  s.running,
		DBNumber: s.config.DBNumber,
		Writes:   s.writes,
		Failures: s.writeErrors,
	}
	s.mutex.RUnlock()

	if err := s.device.GetLastError(); err != nil {
		stats.LastError = err.Error()
	}
	return stats
}

// ReadMirror lê de volta o bloco gravado no PLC
func (s *PLCService) ReadMirror() (MirrorData, error) {
	if !s.config.Enabled {
		return MirrorData{}, ErrDisabled
	}

	buf, err := s.device.ReadDataBlock(s.config.DBNumber, 0, BlockSize)
	if err != nil {
		return MirrorData{}, err
	}
	return DecodeMirrorData(buf)
}

func (s *PLCService) runUpdateLoop() {
	ticker := time.NewTicker(s.config.UpdateRate)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case rec := <-s.records:
			s.mutex.Lock()
			s.lastRecord = &rec
			s.dirty = true
			s.mutex.Unlock()

		case <-ticker.C:
			s.flush()
		}
	}
}

// flush grava o bloco se houve registro novo desde a última escrita
// bem-sucedida
func (s *PLCService) flush() bool {
	s.mutex.RLock()
	rec := s.lastRecord
	dirty := s.dirty
	s.mutex.RUnlock()

	if rec == nil || !dirty {
		return false
	}

	trail, obstacles := 0, 0
	if s.counter != nil {
		trail, obstacles = s.counter.Counts()
	}
	data := NewMirrorData(*rec, trail, obstacles).Encode()

	if err := s.device.WriteDataBlock(s.config.DBNumber, 0, data); err != nil {
		s.mutex.Lock()
		s.writeErrors++
		s.mutex.Unlock()
		logger.Error("Falha ao escrever no PLC", err)
		return false
	}

	s.mutex.Lock()
	s.writes++
	if s.lastRecord == rec {
		s.dirty = false
	}
	s.mutex.Unlock()
	logger.Debugf("Bloco DB%d atualizado no PLC", s.config.DBNumber)
	return true
}

// Shutdown encerra graciosamente o serviço
func (s *PLCService) Shutdown() {
	s.Stop()
}
