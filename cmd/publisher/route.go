package main

import (
	"time"

	"rover_monitor/internal/models"
)

// step é um deslocamento unitário na grade
type step struct{ dx, dy float64 }

// Percurso em espiral quadrada: 1 leste, 1 norte, 2 oeste, 2 sul, 3 leste...
var directions = []step{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}

// route gera as leituras de um rover fictício andando em espiral. A cada
// obstacleEvery passos ele reporta um obstáculo logo à frente.
type route struct {
	pos           models.Position
	dir           int
	legLen        int
	legDone       int
	legsAtLen     int
	n             int
	obstacleEvery int
}

func newRoute(obstacleEvery int) *route {
	return &route{legLen: 1, obstacleEvery: obstacleEvery}
}

// next avança um passo e retorna o registro correspondente
func (r *route) next(now time.Time) models.TelemetryRecord {
	if r.n > 0 {
		d := directions[r.dir]
		r.pos = models.Position{X: r.pos.X + d.dx, Y: r.pos.Y + d.dy}
		r.legDone++
		if r.legDone == r.legLen {
			r.legDone = 0
			r.dir = (r.dir + 1) % len(directions)
			r.legsAtLen++
			if r.legsAtLen == 2 {
				r.legsAtLen = 0
				r.legLen++
			}
		}
	}
	r.n++

	rec := models.TelemetryRecord{
		ReceivedAt:       now,
		RobotPosition:    r.pos,
		RobotStatus:      models.Moving,
		HasRobotPosition: true,
	}

	if r.obstacleEvery > 0 && r.n%r.obstacleEvery == 0 {
		ahead := directions[r.dir]
		kind := models.ObstacleType(1 + (r.n/r.obstacleEvery-1)%5)
		color := models.Color(1 + (r.n/r.obstacleEvery-1)%5)
		rec.ObstaclePosition = models.Position{X: r.pos.X + 2*ahead.dx, Y: r.pos.Y + 2*ahead.dy}
		rec.ObstacleType = kind
		rec.ObstacleColor = color
		rec.HasObstacle = true
		rec.RobotStatus = models.Scanned
	}
	return rec
}
