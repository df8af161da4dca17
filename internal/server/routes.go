package server

import (
	"context"
	"net/http"
	"time"

	"rover_monitor/internal/api"
	"rover_monitor/internal/discovery"
	"rover_monitor/internal/websocket"
	"rover_monitor/pkg/logger"
	"rover_monitor/pkg/utils"
)

const browseTimeout = 2 * time.Second

// setupRoutes configura todas as rotas do servidor
func (s *Server) setupRoutes() {
	apiHandler := api.NewHandler(s.mapCtl, s.ingest, s.mqtt, s.loop, s.redisService)
	apiHandler.SetAssetsHost(s.config.Server.AssetsHost)
	apiHandler.SetHub(s.wsHub)
	apiHandler.SetLastRecordFile(s.config.Ingest.LastRecordFile)
	if s.plcService != nil {
		apiHandler.SetPLC(s.plcService)
	}

	s.router = api.NewRouter(apiHandler, "")
	s.router.Setup()

	s.router.HandleFunc("/health", s.healthHandler)
	s.router.HandleFunc("/info", s.infoHandler)
	s.router.HandleFunc("/api/discover", s.discoverHandler)
	s.router.Handle("/ws", websocket.NewHandler(s.wsHub))
}

// healthHandler responde com o status de saúde dos serviços
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	mqttStatus := "ok"
	if !s.mqtt.IsConnected() {
		mqttStatus = "offline"
	}

	ingestStatus := "ok"
	if !s.ingest.IsRunning() {
		ingestStatus = "offline"
	}

	renderStatus := "ok"
	if !s.loop.IsRunning() {
		renderStatus = "offline"
	}

	redisStatus := "disabled"
	if s.config.Redis.Enabled {
		redisStatus = "ok"
		if err := s.redisService.Ping(); err != nil {
			redisStatus = "offline"
		}
	}

	plcStatus := "disabled"
	if s.plcService != nil {
		plcStatus = "ok"
		if !s.plcService.IsRunning() {
			plcStatus = "offline"
		}
	}

	discoveryStatus := "disabled"
	if s.config.Discovery.Enabled {
		discoveryStatus = "ok"
		if !s.discoveryService.IsRunning() {
			discoveryStatus = "offline"
		}
	}

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now(),
		"services": map[string]string{
			"mqtt":      mqttStatus,
			"ingest":    ingestStatus,
			"render":    renderStatus,
			"redis":     redisStatus,
			"plc":       plcStatus,
			"websocket": "ok",
			"discovery": discoveryStatus,
		},
	}

	if mqttStatus == "offline" || ingestStatus == "offline" || renderStatus == "offline" {
		response["status"] = "degraded"
	}

	api.RespondJSON(w, http.StatusOK, response)
}

// infoHandler retorna informações básicas sobre o servidor
func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	info := s.GetServerInfo()

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"name":        "Rover Map Monitor",
		"version":     info.Version,
		"ip":          info.IP,
		"port":        info.Port,
		"websocket":   info.WebSocketURL,
		"api":         info.APIURL,
		"startTime":   info.StartTime,
		"uptime":      utils.FormatDuration(time.Since(info.StartTime)),
		"connections": info.Connections,
		"shape":       s.config.Decoder.Shape,
		"topic":       s.config.MQTT.Topic,
	})
}

// discoverHandler fornece informações para descoberta manual
func (s *Server) discoverHandler(w http.ResponseWriter, r *http.Request) {
	info := s.GetServerInfo()

	response := map[string]interface{}{
		"name":        "Rover Map Monitor",
		"ip":          info.IP,
		"port":        info.Port,
		"wsUrl":       info.WebSocketURL,
		"apiUrl":      info.APIURL,
		"version":     info.Version,
		"wsEndpoint":  "/ws",
		"apiEndpoint": "/api",
		"mdns":        s.discoveryService.Info(),
	}

	// ?browse=1 procura outros monitores na rede local
	if r.URL.Query().Get("browse") == "1" {
		ctx, cancel := context.WithTimeout(r.Context(), browseTimeout)
		defer cancel()

		peers, err := discovery.Browse(ctx)
		if err != nil {
			logger.Warnf("Falha na busca mDNS: %v", err)
			response["browseError"] = err.Error()
		}
		if peers == nil {
			peers = []discovery.Info{}
		}
		response["peers"] = peers
	}

	api.RespondJSON(w, http.StatusOK, response)
}
