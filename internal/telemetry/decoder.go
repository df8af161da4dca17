package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"rover_monitor/internal/models"
)

// Shape identifica o formato do payload aceito pelo decodificador
type Shape string

const (
	// ShapeSimple: {x, y, obj_found, color, status}
	ShapeSimple Shape = "simple"
	// ShapeExtended: {robot_x, robot_y, robot_status, obstacle_x, obstacle_y, obstacle_type, obstacle_color}
	ShapeExtended Shape = "extended"
)

// Campos de cada formato, na ordem em que são verificados
var (
	simpleFields   = []string{"x", "y", "obj_found", "color", "status"}
	extendedFields = []string{"robot_x", "robot_y", "robot_status", "obstacle_x", "obstacle_y", "obstacle_type", "obstacle_color"}
)

// Campos que precisam ser inteiros
var integerFields = map[string]bool{
	"obj_found":      true,
	"color":          true,
	"status":         true,
	"robot_status":   true,
	"obstacle_type":  true,
	"obstacle_color": true,
}

// ParseShape converte o nome configurado para Shape
func ParseShape(name string) (Shape, error) {
	switch Shape(strings.ToLower(strings.TrimSpace(name))) {
	case ShapeSimple:
		return ShapeSimple, nil
	case ShapeExtended:
		return ShapeExtended, nil
	}
	return "", fmt.Errorf("formato de payload desconhecido: %q", name)
}

// Fields retorna os campos obrigatórios do formato
func (s Shape) Fields() []string {
	switch s {
	case ShapeSimple:
		return append([]string(nil), simpleFields...)
	case ShapeExtended:
		return append([]string(nil), extendedFields...)
	}
	return nil
}

// ErrorKind classifica falhas de decodificação
type ErrorKind int

const (
	// MalformedPayload: o payload não é um objeto JSON
	MalformedPayload ErrorKind = iota
	// MissingField: campo obrigatório ausente ou nulo
	MissingField
	// InvalidField: campo presente mas não numérico (ou não inteiro quando deveria)
	InvalidField
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedPayload:
		return "MalformedPayload"
	case MissingField:
		return "MissingField"
	case InvalidField:
		return "InvalidField"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Erros sentinela para uso com errors.Is
var (
	ErrMalformedPayload = errors.New("payload malformado")
	ErrMissingField     = errors.New("campo obrigatório ausente")
	ErrInvalidField     = errors.New("campo inválido")
)

// DecodeError descreve por que um payload foi rejeitado
type DecodeError struct {
	Kind  ErrorKind
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case MalformedPayload:
		if e.Err != nil {
			return fmt.Sprintf("%v: %v", ErrMalformedPayload, e.Err)
		}
		return ErrMalformedPayload.Error()
	case MissingField:
		return fmt.Sprintf("%v: %s", ErrMissingField, e.Field)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%v: %s: %v", ErrInvalidField, e.Field, e.Err)
		}
		return fmt.Sprintf("%v: %s", ErrInvalidField, e.Field)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is permite errors.Is(err, ErrMissingField) e afins
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrMalformedPayload:
		return e.Kind == MalformedPayload
	case ErrMissingField:
		return e.Kind == MissingField
	case ErrInvalidField:
		return e.Kind == InvalidField
	}
	return false
}

// Decoder converte payloads brutos em TelemetryRecord. Não tem estado mutável.
type Decoder struct {
	shape  Shape
	fields []string
	now    func() time.Time
}

// NewDecoder cria um decodificador para o formato configurado na inicialização
func NewDecoder(shape Shape) (*Decoder, error) {
	fields := shape.Fields()
	if fields == nil {
		return nil, fmt.Errorf("formato de payload desconhecido: %q", shape)
	}
	return &Decoder{shape: shape, fields: fields, now: time.Now}, nil
}

// Shape retorna o formato configurado
func (d *Decoder) Shape() Shape {
	return d.shape
}

// Decode valida e converte um payload. Não tem efeitos colaterais.
func (d *Decoder) Decode(topic string, raw []byte) (models.TelemetryRecord, error) {
	values, err := d.extract(raw)
	if err != nil {
		return models.TelemetryRecord{}, err
	}

	rec := models.TelemetryRecord{
		Shape:      string(d.shape),
		Topic:      topic,
		ReceivedAt: d.now(),
	}

	switch d.shape {
	case ShapeSimple:
		// O formato simples não traz a posição do obstáculo: só gera ponto de trilha
		rec.RobotPosition = models.Position{X: values["x"], Y: values["y"]}
		rec.RobotStatus = models.RobotStatus(values["status"])
		rec.ObstacleType = models.ObstacleType(values["obj_found"])
		rec.ObstacleColor = models.Color(values["color"])
		rec.HasRobotPosition = !rec.RobotPosition.IsSentinel()
		rec.HasObstacle = false
	case ShapeExtended:
		rec.RobotPosition = models.Position{X: values["robot_x"], Y: values["robot_y"]}
		rec.RobotStatus = models.RobotStatus(values["robot_status"])
		rec.ObstaclePosition = models.Position{X: values["obstacle_x"], Y: values["obstacle_y"]}
		rec.ObstacleType = models.ObstacleType(values["obstacle_type"])
		rec.ObstacleColor = models.Color(values["obstacle_color"])
		rec.HasRobotPosition = !rec.RobotPosition.IsSentinel()
		rec.HasObstacle = !rec.ObstaclePosition.IsSentinel() &&
			rec.ObstacleType != models.NoObstacle &&
			rec.ObstacleType != models.Sentinel
	}

	return rec, nil
}

// extract lê os campos obrigatórios na ordem declarada do formato
func (d *Decoder) extract(raw []byte) (map[string]float64, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(raw), &obj); err != nil {
		return nil, &DecodeError{Kind: MalformedPayload, Err: err}
	}
	if obj == nil {
		return nil, &DecodeError{Kind: MalformedPayload, Err: errors.New("payload nulo")}
	}

	values := make(map[string]float64, len(d.fields))
	for _, field := range d.fields {
		item, ok := obj[field]
		if !ok || bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
			return nil, &DecodeError{Kind: MissingField, Field: field}
		}

		var v float64
		if err := json.Unmarshal(item, &v); err != nil {
			return nil, &DecodeError{Kind: InvalidField, Field: field, Err: errors.New("não é um número")}
		}
		if integerFields[field] {
			if v != math.Trunc(v) {
				return nil, &DecodeError{Kind: InvalidField, Field: field, Err: fmt.Errorf("esperado inteiro, recebido %g", v)}
			}
			if v < math.MinInt32 || v > math.MaxInt32 {
				return nil, &DecodeError{Kind: InvalidField, Field: field, Err: fmt.Errorf("inteiro fora do intervalo de 32 bits: %g", v)}
			}
		}
		values[field] = v
	}

	return values, nil
}
