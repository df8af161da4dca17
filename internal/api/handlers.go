package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"gonum.org/v1/plot/vg"

	"rover_monitor/internal/ingest"
	"rover_monitor/internal/mapview"
	"rover_monitor/internal/models"
	"rover_monitor/internal/persist"
	"rover_monitor/internal/plc"
	"rover_monitor/internal/spatial"
	"rover_monitor/pkg/logger"
)

// MapController é o acesso da API ao mapa vivo
type MapController interface {
	Snapshot() spatial.Snapshot
	Contains(p models.Position) bool
	ObstacleAt(p models.Position) (models.Obstacle, bool)
	Counts() (trail, obstacles int)
	Seq() uint64
	Clear()
}

// IngestSource expõe o estado da ingestão
type IngestSource interface {
	Stats() ingest.Stats
	LastRecord() (models.TelemetryRecord, bool)
}

// StatusSource expõe o estado da conexão com o broker
type StatusSource interface {
	Status() models.ConnectionStatus
}

// RenderSource expõe os contadores do laço de renderização
type RenderSource interface {
	Redraws() uint64
	Failures() uint64
}

// RecordStore é a fonte secundária do último registro (Redis)
type RecordStore interface {
	IsConnected() bool
	GetLastRecord() (*models.TelemetryRecord, error)
	Dropped() uint64
}

// PLCSource expõe o espelho no PLC
type PLCSource interface {
	Stats() plc.Stats
	ReadMirror() (plc.MirrorData, error)
}

// HubSource expõe os contadores do hub WebSocket
type HubSource interface {
	ClientCount() int
	DroppedFrames() int64
}

// Handler contém os handlers HTTP para a API
type Handler struct {
	mapCtl         MapController
	ingest         IngestSource
	transport      StatusSource
	render         RenderSource
	records        RecordStore
	plc            PLCSource
	hub            HubSource
	lastRecordFile string
	assetsHost     string
}

// NewHandler cria um novo handler de API. transport, render e records podem
// ser nil.
func NewHandler(mapCtl MapController, ingestSource IngestSource, transport StatusSource, render RenderSource, records RecordStore) *Handler {
	return &Handler{
		mapCtl:    mapCtl,
		ingest:    ingestSource,
		transport: transport,
		render:    render,
		records:   records,
	}
}

// SetAssetsHost define de onde a página /map carrega o echarts
func (h *Handler) SetAssetsHost(host string) {
	h.assetsHost = host
}

// SetPLC liga o espelho no PLC ao status e a /api/plc
func (h *Handler) SetPLC(source PLCSource) {
	h.plc = source
}

// SetHub liga os contadores do hub WebSocket ao status
func (h *Handler) SetHub(source HubSource) {
	h.hub = source
}

// SetLastRecordFile define o arquivo usado como última fonte de /api/last-record
func (h *Handler) SetLastRecordFile(path string) {
	h.lastRecordFile = path
}

// GetStatus retorna transporte, ingestão, tamanho do mapa e renderização
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	trail, obstacles := h.mapCtl.Counts()

	response := map[string]interface{}{
		"timestamp": time.Now().UnixMilli(),
		"map": map[string]interface{}{
			"seq":       h.mapCtl.Seq(),
			"trail":     trail,
			"obstacles": obstacles,
		},
	}
	if h.transport != nil {
		response["transport"] = h.transport.Status()
	}
	if h.ingest != nil {
		response["ingest"] = h.ingest.Stats()
	}
	if h.render != nil {
		response["render"] = map[string]uint64{
			"redraws":  h.render.Redraws(),
			"failures": h.render.Failures(),
		}
	}
	if h.records != nil {
		response["redis"] = map[string]interface{}{
			"connected":     h.records.IsConnected(),
			"droppedWrites": h.records.Dropped(),
		}
	}
	if h.plc != nil {
		response["plc"] = h.plc.Stats()
	}
	if h.hub != nil {
		response["websocket"] = map[string]interface{}{
			"clients":       h.hub.ClientCount(),
			"droppedFrames": h.hub.DroppedFrames(),
		}
	}

	h.respondWithJSON(w, http.StatusOK, response)
}

// GetSnapshot retorna o snapshot atual do mapa
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	snap := h.mapCtl.Snapshot()
	if snap.Trail == nil {
		snap.Trail = []models.Position{}
	}
	if snap.Obstacles == nil {
		snap.Obstacles = []models.ObstacleEntry{}
	}
	h.respondWithJSON(w, http.StatusOK, snap)
}

// GetContains informa se (x, y) está no mapa, como trilha ou obstáculo
func (h *Handler) GetContains(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	p, err := parsePosition(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	response := map[string]interface{}{
		"x":        p.X,
		"y":        p.Y,
		"contains": h.mapCtl.Contains(p),
	}
	if obstacle, ok := h.mapCtl.ObstacleAt(p); ok {
		response["obstacle"] = obstacle
	}
	h.respondWithJSON(w, http.StatusOK, response)
}

func parsePosition(r *http.Request) (models.Position, error) {
	q := r.URL.Query()
	x, err := strconv.ParseFloat(q.Get("x"), 64)
	if err != nil {
		return models.Position{}, fmt.Errorf("parâmetro x inválido: %q", q.Get("x"))
	}
	y, err := strconv.ParseFloat(q.Get("y"), 64)
	if err != nil {
		return models.Position{}, fmt.Errorf("parâmetro y inválido: %q", q.Get("y"))
	}
	return models.Position{X: x, Y: y}, nil
}

// PostClear esvazia o mapa
func (h *Handler) PostClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	h.mapCtl.Clear()
	logger.Infof("Mapa limpo via API por %s", r.RemoteAddr)

	trail, obstacles := h.mapCtl.Counts()
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"cleared":   true,
		"trail":     trail,
		"obstacles": obstacles,
	})
}

// GetLastRecord retorna o último registro aplicado. Sem registro em memória
// (por exemplo logo após reiniciar), tenta o Redis e depois o arquivo.
func (h *Handler) GetLastRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	if h.ingest != nil {
		if rec, ok := h.ingest.LastRecord(); ok {
			h.respondWithJSON(w, http.StatusOK, rec)
			return
		}
	}

	if h.records != nil && h.records.IsConnected() {
		rec, err := h.records.GetLastRecord()
		if err != nil {
			logger.Warnf("Erro ao obter último registro do Redis: %v", err)
		} else if rec != nil {
			h.respondWithJSON(w, http.StatusOK, rec)
			return
		}
	}

	if h.lastRecordFile != "" {
		rec, err := persist.ReadLastRecord(h.lastRecordFile)
		if err == nil {
			h.respondWithJSON(w, http.StatusOK, rec)
			return
		}
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warnf("Erro ao ler último registro de %s: %v", h.lastRecordFile, err)
		}
	}

	h.respondWithError(w, http.StatusNotFound, "Nenhum registro recebido")
}

// GetPLCMirror lê de volta o bloco espelhado no PLC
func (h *Handler) GetPLCMirror(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	if h.plc == nil {
		h.respondWithError(w, http.StatusNotFound, "PLC não configurado")
		return
	}

	mirror, err := h.plc.ReadMirror()
	if err != nil {
		h.respondWithError(w, http.StatusServiceUnavailable, fmt.Sprintf("Erro ao ler PLC: %v", err))
		return
	}
	h.respondWithJSON(w, http.StatusOK, mirror)
}

// GetMapPNG desenha o mapa como PNG. Aceita ?size= em polegadas.
func (h *Handler) GetMapPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	size := 6.0
	if v := r.URL.Query().Get("size"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed < 1 || parsed > 30 {
			h.respondWithError(w, http.StatusBadRequest, "Tamanho inválido, use de 1 a 30")
			return
		}
		size = parsed
	}

	var buf bytes.Buffer
	length := vg.Length(size) * vg.Inch
	if err := mapview.WritePNG(&buf, h.mapCtl.Snapshot(), length, length); err != nil {
		logger.Error("Erro ao gerar PNG do mapa", err)
		h.respondWithError(w, http.StatusInternalServerError, "Erro ao gerar imagem")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// GetMapHTML serve a página interativa do mapa
func (h *Handler) GetMapHTML(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	var buf bytes.Buffer
	if err := mapview.RenderHTML(&buf, h.mapCtl.Snapshot(), h.assetsHost); err != nil {
		logger.Error("Erro ao gerar página do mapa", err)
		h.respondWithError(w, http.StatusInternalServerError, "Erro ao gerar página")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// respondWithError responde com erro em formato JSON
func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON responde com JSON
func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	RespondJSON(w, code, payload)
}

// RespondJSON escreve payload como JSON; usado também pelas rotas do servidor
func RespondJSON(w http.ResponseWriter, code int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("Erro ao codificar resposta JSON: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"Erro interno ao processar resposta"}`)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
