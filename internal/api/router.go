package api

import (
	"net/http"
	"strings"

	"rover_monitor/pkg/logger"
)

// Router gerencia as rotas da API
type Router struct {
	handler     *Handler
	mux         *http.ServeMux
	basePath    string
	middlewares []Middleware
}

// NewRouter cria um novo router para a API, com logging, recovery e CORS
func NewRouter(handler *Handler, basePath string) *Router {
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimSuffix(basePath, "/")

	return &Router{
		handler:  handler,
		mux:      http.NewServeMux(),
		basePath: basePath,
		middlewares: []Middleware{
			RecoveryMiddleware,
			LoggingMiddleware,
			CorsMiddleware,
		},
	}
}

// Setup configura as rotas do mapa
func (r *Router) Setup() {
	r.mux.HandleFunc(r.path("/api/status"), r.handler.GetStatus)
	r.mux.HandleFunc(r.path("/api/snapshot"), r.handler.GetSnapshot)
	r.mux.HandleFunc(r.path("/api/contains"), r.handler.GetContains)
	r.mux.HandleFunc(r.path("/api/clear"), r.handler.PostClear)
	r.mux.HandleFunc(r.path("/api/last-record"), r.handler.GetLastRecord)
	r.mux.HandleFunc(r.path("/api/map.png"), r.handler.GetMapPNG)
	r.mux.HandleFunc(r.path("/api/plc"), r.handler.GetPLCMirror)
	r.mux.HandleFunc(r.path("/map"), r.handler.GetMapHTML)

	logger.Debugf("API configurada com base path: %q", r.basePath)
}

// Handle registra uma rota adicional (WebSocket, saúde, descoberta)
func (r *Router) Handle(route string, handler http.Handler) {
	r.mux.Handle(r.path(route), handler)
}

// HandleFunc registra uma função como rota adicional
func (r *Router) HandleFunc(route string, handler http.HandlerFunc) {
	r.mux.HandleFunc(r.path(route), handler)
}

// AddMiddleware adiciona um novo middleware, aplicado por último
func (r *Router) AddMiddleware(middleware Middleware) {
	r.middlewares = append(r.middlewares, middleware)
}

// Handler retorna o handler HTTP final com todos os middlewares aplicados
func (r *Router) Handler() http.Handler {
	if len(r.middlewares) == 0 {
		return r.mux
	}
	return Chain(r.middlewares...)(r.mux)
}

func (r *Router) path(route string) string {
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return r.basePath + route
}
