package utils

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Float32ToBytes converte um valor float32 para bytes (IEEE 754, big endian como o S7)
func Float32ToBytes(val float32) []byte {
	bytes := make([]byte, 4)
	binary.BigEndian.PutUint32(bytes, math.Float32bits(val))
	return bytes
}

// BytesToFloat32 converte bytes para float32 (IEEE 754)
func BytesToFloat32(bytes []byte) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(bytes))
}

// Int16ToBytes converte um valor int16 (INT do S7) para bytes
func Int16ToBytes(val int16) []byte {
	bytes := make([]byte, 2)
	binary.BigEndian.PutUint16(bytes, uint16(val))
	return bytes
}

// BytesToInt16 converte bytes para int16
func BytesToInt16(bytes []byte) int16 {
	return int16(binary.BigEndian.Uint16(bytes))
}

// Int32ToBytes converte um valor int32 (DINT do S7) para bytes
func Int32ToBytes(val int32) []byte {
	bytes := make([]byte, 4)
	binary.BigEndian.PutUint32(bytes, uint32(val))
	return bytes
}

// BytesToInt32 converte bytes para int32
func BytesToInt32(bytes []byte) int32 {
	return int32(binary.BigEndian.Uint32(bytes))
}

// ClampInt16 limita um inteiro à faixa de um INT do S7
func ClampInt16(v int) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// FormatFloat formata um float com precisão específica, sem zeros à direita
func FormatFloat(value float64, precision int) string {
	format := "%." + strconv.Itoa(precision) + "f"
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf(format, value), "0"), ".")
}

// FormatCoord formata uma coordenada (x,y) para chaves e rótulos, sem perda de precisão
func FormatCoord(x, y float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64) + "," + strconv.FormatFloat(y, 'f', -1, 64)
}

// ParseCoord faz o caminho inverso de FormatCoord
func ParseCoord(s string) (float64, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("coordenada inválida: %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("coordenada x inválida em %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("coordenada y inválida em %q: %w", s, err)
	}
	return x, y, nil
}
