package render

import (
	"fmt"
	"math"
	"time"

	"rover_monitor/internal/models"
	"rover_monitor/internal/spatial"
)

// Surface é um destino de desenho. Render recebe o quadro completo e deve
// substituir tudo o que foi desenhado antes.
type Surface interface {
	Name() string
	Render(frame Frame) error
}

// SurfaceError indica que uma superfície não conseguiu desenhar um quadro
type SurfaceError struct {
	Surface string
	Err     error
}

func (e *SurfaceError) Error() string {
	return fmt.Sprintf("superfície %s: %v", e.Surface, e.Err)
}

func (e *SurfaceError) Unwrap() error {
	return e.Err
}

// Frame é o que a renderização entrega a cada superfície
type Frame struct {
	Snapshot spatial.Snapshot
	Bounds   Bounds
	Status   string
	DrawnAt  time.Time
}

// Bounds é a região do plano que cabe na superfície
type Bounds struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// Margem em volta dos pontos, em unidades do mapa
const boundsPadding = 1

// ComputeBounds calcula a região que contém todos os pontos do snapshot.
// Um mapa vazio usa uma janela fixa em volta da origem.
func ComputeBounds(snap spatial.Snapshot) Bounds {
	if snap.Empty() {
		return Bounds{MinX: -5, MaxX: 5, MinY: -5, MaxY: 5}
	}

	b := Bounds{
		MinX: math.Inf(1), MaxX: math.Inf(-1),
		MinY: math.Inf(1), MaxY: math.Inf(-1),
	}
	extend := func(p models.Position) {
		b.MinX = math.Min(b.MinX, p.X)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	for _, p := range snap.Trail {
		extend(p)
	}
	for _, o := range snap.Obstacles {
		extend(o.Position)
	}

	b.MinX -= boundsPadding
	b.MaxX += boundsPadding
	b.MinY -= boundsPadding
	b.MaxY += boundsPadding
	return b
}

// Project converte uma posição do mapa em coluna/linha de uma grade w x h.
// Y cresce para cima no mapa e para baixo na grade.
func Project(p models.Position, b Bounds, w, h int) (col, row int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	spanX := b.MaxX - b.MinX
	spanY := b.MaxY - b.MinY
	if spanX <= 0 {
		spanX = 1
	}
	if spanY <= 0 {
		spanY = 1
	}

	col = int(math.Round((p.X - b.MinX) / spanX * float64(w-1)))
	row = (h - 1) - int(math.Round((p.Y-b.MinY)/spanY*float64(h-1)))
	return clamp(col, 0, w-1), clamp(row, 0, h-1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
