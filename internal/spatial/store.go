// Package spatial guarda o mapa vivo: pontos visitados pelo rover e obstáculos
// detectados. É o único objeto compartilhado entre ingestão e renderização.
package spatial

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"rover_monitor/internal/models"
)

// ErrStateCorruption indica invariante violada (defeito de programação)
var ErrStateCorruption = errors.New("estado espacial corrompido")

// Snapshot é uma cópia imutável e consistente do estado.
// Trail e Obstacles vêm ordenados por X e depois Y.
type Snapshot struct {
	Seq       uint64                 `json:"seq"`
	Trail     []models.Position      `json:"trail"`
	Obstacles []models.ObstacleEntry `json:"obstacles"`
}

// Empty indica que não há nada para desenhar
func (s Snapshot) Empty() bool {
	return len(s.Trail) == 0 && len(s.Obstacles) == 0
}

// Store mantém o conjunto de trilha e o mapa de obstáculos sob um RWMutex
type Store struct {
	mu        sync.RWMutex
	trail     map[models.Position]struct{}
	obstacles map[models.Position]models.Obstacle
	seq       uint64
	notifier  Notifier
}

// NewStore cria um estado vazio. notifier pode ser nil.
func NewStore(notifier Notifier) *Store {
	return &Store{
		trail:     make(map[models.Position]struct{}),
		obstacles: make(map[models.Position]models.Obstacle),
		notifier:  notifier,
	}
}

func (s *Store) notify() {
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

// AddTrailPoint insere uma posição visitada. Repetir a posição não é erro.
func (s *Store) AddTrailPoint(p models.Position) {
	s.mu.Lock()
	s.trail[p] = struct{}{}
	s.seq++
	s.mu.Unlock()

	s.notify()
}

// AddObstacle grava ou sobrescreve o obstáculo na posição (última leitura vence)
func (s *Store) AddObstacle(p models.Position, color models.Color, kind models.ObstacleType) {
	s.mu.Lock()
	s.obstacles[p] = models.Obstacle{Type: kind, Color: color}
	s.seq++
	s.mu.Unlock()

	s.notify()
}

// Apply aplica um registro decodificado sob um único bloqueio, de modo que
// nenhum leitor observa só metade do registro. Retorna false se o registro
// não trazia nada para o mapa.
func (s *Store) Apply(rec models.TelemetryRecord) bool {
	if !rec.HasRobotPosition && !rec.HasObstacle {
		return false
	}

	s.mu.Lock()
	if rec.HasRobotPosition {
		s.trail[rec.RobotPosition] = struct{}{}
	}
	if rec.HasObstacle {
		s.obstacles[rec.ObstaclePosition] = rec.Obstacle()
	}
	s.seq++
	s.mu.Unlock()

	s.notify()
	return true
}

// Restore carrega um estado salvo (por exemplo, do Redis) sobre o atual
func (s *Store) Restore(trail []models.Position, obstacles []models.ObstacleEntry) {
	if len(trail) == 0 && len(obstacles) == 0 {
		return
	}

	s.mu.Lock()
	for _, p := range trail {
		s.trail[p] = struct{}{}
	}
	for _, e := range obstacles {
		s.obstacles[e.Position] = e.Obstacle
	}
	s.seq++
	s.mu.Unlock()

	s.notify()
}

// Contains indica se a posição está na trilha ou no mapa de obstáculos
func (s *Store) Contains(p models.Position) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.trail[p]; ok {
		return true
	}
	_, ok := s.obstacles[p]
	return ok
}

// ObstacleAt retorna o obstáculo gravado na posição, se houver
func (s *Store) ObstacleAt(p models.Position) (models.Obstacle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.obstacles[p]
	return o, ok
}

// Clear esvazia as duas coleções
func (s *Store) Clear() {
	s.mu.Lock()
	s.trail = make(map[models.Position]struct{})
	s.obstacles = make(map[models.Position]models.Obstacle)
	s.seq++
	s.mu.Unlock()

	s.notify()
}

// Counts retorna o tamanho das duas coleções
func (s *Store) Counts() (trail, obstacles int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trail), len(s.obstacles)
}

// Seq retorna o número de mutações aplicadas até agora
func (s *Store) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Snapshot copia o estado atual. O chamador pode guardar e alterar o resultado.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		Seq:       s.seq,
		Trail:     make([]models.Position, 0, len(s.trail)),
		Obstacles: make([]models.ObstacleEntry, 0, len(s.obstacles)),
	}
	for p := range s.trail {
		snap.Trail = append(snap.Trail, p)
	}
	for p, o := range s.obstacles {
		snap.Obstacles = append(snap.Obstacles, models.ObstacleEntry{Position: p, Obstacle: o})
	}
	s.mu.RUnlock()

	sort.Slice(snap.Trail, func(i, j int) bool {
		return snap.Trail[i].Less(snap.Trail[j])
	})
	sort.Slice(snap.Obstacles, func(i, j int) bool {
		return snap.Obstacles[i].Position.Less(snap.Obstacles[j].Position)
	})
	return snap
}

// Verify confere as invariantes de um snapshot: nenhuma posição repetida
// na trilha e no máximo um obstáculo por posição.
func Verify(snap Snapshot) error {
	for i := 1; i < len(snap.Trail); i++ {
		if snap.Trail[i] == snap.Trail[i-1] {
			return fmt.Errorf("%w: ponto de trilha duplicado %s", ErrStateCorruption, snap.Trail[i])
		}
	}
	for i := 1; i < len(snap.Obstacles); i++ {
		if snap.Obstacles[i].Position == snap.Obstacles[i-1].Position {
			return fmt.Errorf("%w: obstáculo duplicado em %s", ErrStateCorruption, snap.Obstacles[i].Position)
		}
	}
	return nil
}
