package render

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"

	"rover_monitor/internal/models"
	"rover_monitor/pkg/logger"
)

// ErrSurfaceTooSmall indica que o terminal não comporta mapa e linha de estado
var ErrSurfaceTooSmall = errors.New("terminal pequeno demais para o mapa")

// Resizer recebe o aviso de redimensionamento
type Resizer interface {
	Resize()
}

const trailGlyph = '.'

var (
	trailStyle  = tcell.StyleDefault.Foreground(tcell.ColorOrange)
	statusStyle = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorSilver)
)

var obstacleGlyphs = map[models.ObstacleType]rune{
	models.Wall:      '#',
	models.Hill:      '^',
	models.Cliff:     'v',
	models.SmallRock: 'o',
	models.BigRock:   'O',
}

// obstacleStyle usa a cor reportada pelo sensor. Obstáculos pretos ganham
// fundo claro para continuar visíveis.
func obstacleStyle(c models.Color) tcell.Style {
	switch c {
	case models.Black:
		return tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorWhite)
	case models.White:
		return tcell.StyleDefault.Foreground(tcell.ColorWhite)
	case models.Green:
		return tcell.StyleDefault.Foreground(tcell.ColorGreen)
	case models.Red:
		return tcell.StyleDefault.Foreground(tcell.ColorRed)
	case models.Blue:
		return tcell.StyleDefault.Foreground(tcell.ColorBlue)
	}
	return tcell.StyleDefault.Foreground(tcell.ColorGray)
}

func obstacleGlyph(t models.ObstacleType) rune {
	if g, ok := obstacleGlyphs[t]; ok {
		return g
	}
	return 'X'
}

// TerminalSurface desenha o mapa num terminal com tcell. Render só é chamado
// pela goroutine de renderização; a goroutine de eventos apenas sinaliza.
type TerminalSurface struct {
	screen  tcell.Screen
	onExit  func()
	resized atomic.Bool

	exitOnce sync.Once
	stopOnce sync.Once
}

// OpenTerminal inicializa o terminal real e desliga o log no console
// enquanto a tela estiver em uso.
func OpenTerminal(onExit func()) (*TerminalSurface, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("erro ao criar tela: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("erro ao inicializar tela: %w", err)
	}
	logger.SetConsoleEnabled(false)
	return NewTerminalSurface(screen, onExit), nil
}

// NewTerminalSurface usa uma tela já inicializada
func NewTerminalSurface(screen tcell.Screen, onExit func()) *TerminalSurface {
	screen.HideCursor()
	screen.Clear()
	return &TerminalSurface{
		screen: screen,
		onExit: onExit,
	}
}

// Name identifica a superfície nos logs
func (t *TerminalSurface) Name() string {
	return "terminal"
}

// Listen lê eventos do terminal até Close. Redimensionamento chama r.Resize;
// Esc, q e Ctrl-C chamam o callback de saída.
func (t *TerminalSurface) Listen(r Resizer) {
	go func() {
		for {
			ev := t.screen.PollEvent()
			if ev == nil {
				return
			}
			t.handleEvent(ev, r)
		}
	}()
}

// handleEvent processa um evento; retorna false quando o usuário pediu saída
func (t *TerminalSurface) handleEvent(ev tcell.Event, r Resizer) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		t.resized.Store(true)
		if r != nil {
			r.Resize()
		}
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC ||
			(ev.Key() == tcell.KeyRune && (ev.Rune() == 'q' || ev.Rune() == 'Q')) {
			t.exitOnce.Do(func() {
				logger.Info("Saída solicitada pelo terminal")
				if t.onExit != nil {
					t.onExit()
				}
			})
			return false
		}
	}
	return true
}

// Render limpa a tela e desenha trilha, obstáculos e a linha de estado
func (t *TerminalSurface) Render(frame Frame) error {
	if t.resized.Swap(false) {
		t.screen.Sync()
	}

	w, h := t.screen.Size()
	if w < 2 || h < 2 {
		return fmt.Errorf("%w: %dx%d", ErrSurfaceTooSmall, w, h)
	}
	mapH := h - 1

	t.screen.Clear()

	for _, p := range frame.Snapshot.Trail {
		col, row := Project(p, frame.Bounds, w, mapH)
		t.screen.SetContent(col, row, trailGlyph, nil, trailStyle)
	}
	for _, o := range frame.Snapshot.Obstacles {
		col, row := Project(o.Position, frame.Bounds, w, mapH)
		t.screen.SetContent(col, row, obstacleGlyph(o.Obstacle.Type), nil, obstacleStyle(o.Obstacle.Color))
	}

	line := fmt.Sprintf(" trilha: %d  obstáculos: %d  seq: %d ", len(frame.Snapshot.Trail), len(frame.Snapshot.Obstacles), frame.Snapshot.Seq)
	if frame.Status != "" {
		line += "| " + frame.Status + " "
	}
	line += "| q: sair"
	t.drawText(0, h-1, w, line, statusStyle)

	t.screen.Show()
	return nil
}

func (t *TerminalSurface) drawText(x, y, w int, text string, style tcell.Style) {
	col := x
	for _, r := range text {
		if col >= w {
			return
		}
		t.screen.SetContent(col, y, r, nil, style)
		col++
	}
	for ; col < w; col++ {
		t.screen.SetContent(col, y, ' ', nil, style)
	}
}

// Close devolve o terminal e reativa o log no console
func (t *TerminalSurface) Close() {
	t.stopOnce.Do(func() {
		t.screen.Fini()
		logger.SetConsoleEnabled(true)
	})
}
