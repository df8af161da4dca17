package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"rover_monitor/internal/api"
	"rover_monitor/internal/config"
	"rover_monitor/internal/discovery"
	"rover_monitor/internal/ingest"
	"rover_monitor/internal/models"
	"rover_monitor/internal/mqtt"
	"rover_monitor/internal/persist"
	"rover_monitor/internal/plc"
	"rover_monitor/internal/redis"
	"rover_monitor/internal/render"
	"rover_monitor/internal/spatial"
	"rover_monitor/internal/telemetry"
	"rover_monitor/internal/websocket"
	"rover_monitor/pkg/logger"
	"rover_monitor/pkg/utils"
)

// Version é a versão anunciada em /info e no mDNS
const Version = "1.0.0"

// Server liga o estado espacial, a ingestão, a renderização e as saídas
type Server struct {
	config *config.Config

	store    *spatial.Store
	trigger  *spatial.Trigger
	mapCtl   *mapControl
	ingest   *ingest.Service
	loop     *render.Loop
	terminal *render.TerminalSurface
	mqtt     *mqtt.Client

	redisService     *redis.Service
	plcService       *plc.PLCService
	wsHub            *websocket.Hub
	discoveryService *discovery.DiscoveryService
	lastRecord       *persist.LastRecordWriter

	router     *api.Router
	httpServer *http.Server
	listener   net.Listener
	serverInfo ServerInfo

	mqttCancel context.CancelFunc
	exit       chan struct{}
	exitOnce   sync.Once
}

// ServerInfo contém informações sobre o servidor
type ServerInfo struct {
	IP           string    `json:"ip"`
	Port         int       `json:"port"`
	StartTime    time.Time `json:"startTime"`
	Connections  int       `json:"connections"`
	Version      string    `json:"version"`
	WebSocketURL string    `json:"websocket"`
	APIURL       string    `json:"api"`
}

// mapControl é o mapa visto por quem pode limpá-lo: limpar o estado também
// limpa o espelho no Redis
type mapControl struct {
	*spatial.Store
	redis *redis.Service
}

func (m *mapControl) Clear() {
	m.Store.Clear()
	if m.redis == nil {
		return
	}
	m.redis.HandleClear()
}

// NewServer cria o servidor e todos os componentes, sem iniciá-los
func NewServer(cfg *config.Config) (*Server, error) {
	s := &Server{
		config: cfg,
		exit:   make(chan struct{}),
		serverInfo: ServerInfo{
			StartTime: time.Now(),
			Version:   Version,
			Port:      cfg.Server.Port,
			IP:        localIP(),
		},
	}

	if err := s.initComponents(); err != nil {
		return nil, err
	}

	if cfg.Server.Enabled {
		s.setupRoutes()
		s.httpServer = &http.Server{
			Handler:      s.router.Handler(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  120 * time.Second,
		}
	}

	return s, nil
}

// initComponents monta Store → Trigger → Ingest → Render → MQTT e os handlers
func (s *Server) initComponents() error {
	shape, err := telemetry.ParseShape(s.config.Decoder.Shape)
	if err != nil {
		return err
	}
	decoder, err := telemetry.NewDecoder(shape)
	if err != nil {
		return err
	}

	s.wsHub = websocket.NewHub()

	redisService, err := redis.NewService(s.config.Redis)
	if err != nil {
		return fmt.Errorf("erro ao inicializar serviço Redis: %w", err)
	}
	s.redisService = redisService

	s.trigger = spatial.NewTrigger()
	s.store = spatial.NewStore(s.trigger)
	s.mapCtl = &mapControl{Store: s.store, redis: s.redisService}
	s.wsHub.SetController(s.mapCtl)

	if s.config.Redis.Enabled && s.config.Redis.RestoreOnStart {
		s.restoreFromRedis()
	}

	s.ingest = ingest.NewService(s.config.Ingest, decoder, s.store)

	if s.config.Ingest.LastRecordFile != "" {
		writer, err := persist.NewLastRecordWriter(s.config.Ingest.LastRecordFile)
		if err != nil {
			return fmt.Errorf("erro ao preparar arquivo do último registro: %w", err)
		}
		s.lastRecord = writer
		s.ingest.RegisterRecordHandler(writer.Handle)
	}
	s.ingest.RegisterRecordHandler(s.redisService.HandleRecord)
	s.ingest.RegisterRecordHandler(s.wsHub.BroadcastTelemetry)

	if s.config.PLC.Enabled {
		s.plcService = plc.NewPLCService(s.config.PLC, s.store)
		s.ingest.RegisterRecordHandler(s.plcService.HandleRecord)
	}

	s.loop = render.NewLoop(s.config.Render, s.store, s.trigger)
	s.loop.AddSurface(s.wsHub)
	s.loop.SetStatusFunc(s.statusLine)

	if s.config.Render.Terminal {
		terminal, err := render.OpenTerminal(s.RequestExit)
		if err != nil {
			logger.Warnf("Terminal indisponível, seguindo sem o mapa na tela: %v", err)
		} else {
			s.terminal = terminal
			s.loop.AddSurface(terminal)
		}
	}

	s.mqtt = mqtt.NewClient(s.config.MQTT, s.ingest.HandleMessage)
	s.mqtt.RegisterStatusHandler(s.wsHub.BroadcastStatus)
	s.mqtt.RegisterStatusHandler(s.redisService.HandleStatus)

	s.discoveryService = discovery.NewDiscoveryService(s.config.Discovery, s.config.Server.Port, s.config.MQTT.Topic)
	return nil
}

func (s *Server) restoreFromRedis() {
	trail, obstacles, err := s.redisService.LoadState()
	if err != nil {
		logger.Warnf("Não foi possível restaurar o mapa do Redis: %v", err)
		return
	}
	s.store.Restore(trail, obstacles)
	logger.Infof("Mapa restaurado do Redis: %d pontos de trilha, %d obstáculos", len(trail), len(obstacles))
}

// Start inicia todos os serviços. Retorna depois que o HTTP está ouvindo;
// a conexão com o broker continua em segundo plano até dar certo.
func (s *Server) Start() error {
	go s.wsHub.Run()

	if err := s.discoveryService.Start(); err != nil {
		logger.Warnf("Erro ao iniciar serviço de descoberta: %v", err)
	}

	if s.plcService != nil {
		if err := s.plcService.Start(); err != nil {
			logger.Errorf("Erro ao iniciar serviço PLC: %v", err)
		}
	}

	if err := s.ingest.Start(); err != nil {
		return fmt.Errorf("erro ao iniciar ingestão: %w", err)
	}
	if err := s.loop.Start(); err != nil {
		return fmt.Errorf("erro ao iniciar renderização: %w", err)
	}
	if s.terminal != nil {
		s.terminal.Listen(s.loop)
	}

	if s.httpServer != nil {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Server.Port))
		if err != nil {
			return fmt.Errorf("erro ao iniciar servidor HTTP: %w", err)
		}
		s.listener = listener
		s.serverInfo.Port = listener.Addr().(*net.TCPAddr).Port
		s.serverInfo.WebSocketURL = fmt.Sprintf("ws://%s:%d/ws", s.serverInfo.IP, s.serverInfo.Port)
		s.serverInfo.APIURL = fmt.Sprintf("http://%s:%d/api", s.serverInfo.IP, s.serverInfo.Port)

		go func() {
			if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Servidor HTTP encerrado com erro", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mqttCancel = cancel
	go s.connectBroker(ctx)

	s.logServerInfo()
	return nil
}

// connectBroker tenta uma vez e, se falhar, segue tentando no intervalo
// configurado
func (s *Server) connectBroker(ctx context.Context) {
	err := s.mqtt.Connect(ctx)
	if err == nil {
		return
	}

	var connErr *mqtt.ConnectionError
	if errors.As(err, &connErr) {
		logger.Errorf("Falha ao conectar ao broker %s: %v", connErr.Broker, connErr.Err)
	} else {
		logger.Errorf("Falha ao conectar ao broker: %v", err)
	}

	if err := s.mqtt.KeepConnecting(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("Desistindo de conectar ao broker: %v", err)
	}
}

// RequestExit pede o encerramento do processo (tecla de saída do terminal)
func (s *Server) RequestExit() {
	s.exitOnce.Do(func() {
		logger.Info("Saída solicitada pelo usuário")
		close(s.exit)
	})
}

// Done é fechado quando o usuário pede para sair
func (s *Server) Done() <-chan struct{} {
	return s.exit
}

// Shutdown encerra na ordem: broker (sem novos callbacks), ingestão,
// renderização, HTTP, hub, PLC, Redis e descoberta
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Iniciando shutdown do servidor")

	if s.mqttCancel != nil {
		s.mqttCancel()
	}
	s.mqtt.Disconnect()

	s.ingest.Stop()
	s.loop.Stop()
	if s.terminal != nil {
		s.terminal.Close()
	}

	var httpErr error
	if s.httpServer != nil && s.listener != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			httpErr = fmt.Errorf("erro ao encerrar servidor HTTP: %w", err)
			logger.Error("Erro ao encerrar servidor HTTP", err)
		}
	}

	s.wsHub.Shutdown()

	if s.plcService != nil {
		s.plcService.Shutdown()
	}

	s.redisService.Shutdown()
	s.discoveryService.Stop()

	logger.Info("Shutdown completo")
	return httpErr
}

// statusLine é a linha de estado mostrada junto do mapa
func (s *Server) statusLine() string {
	status := s.mqtt.Status()
	stats := s.ingest.Stats()
	trail, obstacles := s.store.Counts()

	line := fmt.Sprintf("mqtt: %s | trilha: %d | obstáculos: %d | msgs: %d | erros: %d",
		status.Status, trail, obstacles, stats.Applied, stats.DecodeErrors)
	if rec, ok := s.ingest.LastRecord(); ok && rec.HasRobotPosition {
		line += " | rover: " + utils.FormatFloat(rec.RobotPosition.X, 2) + "," + utils.FormatFloat(rec.RobotPosition.Y, 2)
	}
	if !stats.LastRecordAt.IsZero() {
		line += " | última: " + utils.FormatDateTimeMs(stats.LastRecordAt)
	}
	return line
}

// Store expõe o estado espacial
func (s *Server) Store() *spatial.Store {
	return s.store
}

// Ingest expõe o serviço de ingestão
func (s *Server) Ingest() *ingest.Service {
	return s.ingest
}

// Addr retorna o endereço em que o HTTP está ouvindo
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GetServerInfo retorna informações sobre o servidor
func (s *Server) GetServerInfo() ServerInfo {
	info := s.serverInfo
	info.Connections = s.wsHub.ClientCount()
	return info
}

// ConnectionStatus retorna o estado atual da conexão com o broker
func (s *Server) ConnectionStatus() models.ConnectionStatus {
	return s.mqtt.Status()
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return "localhost"
}

// logServerInfo exibe informações do servidor no log
func (s *Server) logServerInfo() {
	info := s.GetServerInfo()
	logger.Info("===============================================")
	logger.Info("              Rover Map Monitor                ")
	logger.Info("===============================================")
	logger.Infof("Versão: %s", info.Version)
	logger.Infof("Broker: %s:%d  tópico: %s  formato: %s",
		s.config.MQTT.Broker, s.config.MQTT.Port, s.config.MQTT.Topic, s.config.Decoder.Shape)
	if s.httpServer != nil {
		logger.Infof("WebSocket URL: %s", info.WebSocketURL)
		logger.Infof("API URL: %s", info.APIURL)
	}
	if s.discoveryService.IsRunning() {
		d := s.discoveryService.Info()
		logger.Infof("mDNS: %s.%s.%s", d.Instance, d.Type, d.Domain)
	}
	logger.Info("===============================================")
}
