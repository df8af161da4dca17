package render

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"rover_monitor/internal/config"
	"rover_monitor/internal/spatial"
	"rover_monitor/pkg/logger"
)

// StatusFunc fornece a linha de estado mostrada junto do mapa
type StatusFunc func() string

// Loop redesenha as superfícies a partir de snapshots do estado espacial.
// Redesenha apenas quando há sinal pendente, redimensionamento ou um quadro
// anterior falhou. Nunca escreve no estado.
type Loop struct {
	store    *spatial.Store
	trigger  *spatial.Trigger
	interval time.Duration
	strict   bool

	surfaces     []Surface
	surfacesLock sync.RWMutex
	status       StatusFunc

	resize chan struct{}

	// só acessado pela goroutine de renderização
	retry bool

	redraws  atomic.Uint64
	failures atomic.Uint64
	lastErr  error
	errLock  sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	mutex   sync.RWMutex
}

// NewLoop cria o laço de renderização
func NewLoop(cfg config.RenderConfig, store *spatial.Store, trigger *spatial.Trigger) *Loop {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Loop{
		store:    store,
		trigger:  trigger,
		interval: interval,
		strict:   cfg.Strict,
		resize:   make(chan struct{}, 1),
	}
}

// AddSurface registra uma superfície de desenho
func (l *Loop) AddSurface(s Surface) {
	l.surfacesLock.Lock()
	defer l.surfacesLock.Unlock()
	l.surfaces = append(l.surfaces, s)
	logger.Infof("Superfície de renderização registrada: %s", s.Name())
}

// SetStatusFunc define a origem da linha de estado
func (l *Loop) SetStatusFunc(f StatusFunc) {
	l.surfacesLock.Lock()
	defer l.surfacesLock.Unlock()
	l.status = f
}

// Resize pede um redesenho imediato. Pode ser chamado de qualquer goroutine.
func (l *Loop) Resize() {
	select {
	case l.resize <- struct{}{}:
	default:
	}
}

// Start inicia o laço de renderização
func (l *Loop) Start() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.running {
		return nil
	}

	logger.Infof("Iniciando laço de renderização (intervalo: %v, estrito: %v)", l.interval, l.strict)

	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.done = make(chan struct{})
	go func(ctx context.Context, done chan struct{}) {
		defer close(done)
		l.Run(ctx)
	}(l.ctx, l.done)

	l.running = true
	return nil
}

// Stop para o laço entre dois ticks e espera o quadro atual terminar
func (l *Loop) Stop() {
	l.mutex.Lock()
	if !l.running {
		l.mutex.Unlock()
		return
	}
	logger.Info("Parando laço de renderização")
	l.cancel()
	done := l.done
	l.running = false
	l.mutex.Unlock()

	<-done
}

// IsRunning verifica se o laço está em execução
func (l *Loop) IsRunning() bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.running
}

// Run executa o laço até o contexto ser cancelado. O primeiro quadro é
// desenhado logo na entrada.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.redraw()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.resize:
			// descarta sinal pendente: o quadro forçado já inclui tudo
			l.trigger.Consume()
			l.redraw()
		case <-ticker.C:
			l.tick()
		}
	}
}

// tick redesenha se houver sinal pendente ou se o último quadro falhou
func (l *Loop) tick() bool {
	pending := l.trigger.Consume()
	if !pending && !l.retry {
		return false
	}
	l.redraw()
	return true
}

// redraw limpa e redesenha todas as superfícies a partir de um snapshot novo
func (l *Loop) redraw() {
	snap := l.store.Snapshot()

	if err := spatial.Verify(snap); err != nil {
		if l.strict {
			logger.Fatalf("Invariante do mapa violada: %v", err)
		}
		logger.Error("Invariante do mapa violada", err)
	}

	l.surfacesLock.RLock()
	surfaces := l.surfaces
	status := l.status
	l.surfacesLock.RUnlock()

	frame := Frame{
		Snapshot: snap,
		Bounds:   ComputeBounds(snap),
		DrawnAt:  time.Now(),
	}
	if status != nil {
		frame.Status = status()
	}

	failed := false
	for _, s := range surfaces {
		if err := s.Render(frame); err != nil {
			failed = true
			l.failures.Add(1)
			l.setLastError(&SurfaceError{Surface: s.Name(), Err: err})
			logger.Warnf("Falha ao desenhar, tentando no próximo tick: %v", l.LastError())
		}
	}

	l.retry = failed
	l.redraws.Add(1)
}

// Redraws retorna quantos quadros foram desenhados
func (l *Loop) Redraws() uint64 {
	return l.redraws.Load()
}

func (l *Loop) setLastError(err error) {
	l.errLock.Lock()
	l.lastErr = err
	l.errLock.Unlock()
}

// LastError retorna a última falha de superfície, como *SurfaceError
func (l *Loop) LastError() error {
	l.errLock.Lock()
	defer l.errLock.Unlock()
	return l.lastErr
}

// Failures retorna quantas vezes uma superfície falhou
func (l *Loop) Failures() uint64 {
	return l.failures.Load()
}
