package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"", INFO, false},
		{"warning", WARN, false},
		{"error", ERROR, false},
		{"verbose", INFO, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelFilteringAndConsoleToggle(t *testing.T) {
	var buf bytes.Buffer
	Init()
	SetOutput(&buf)
	SetLevel(WARN)
	defer SetLevel(INFO)

	Info("não deve aparecer")
	Warnf("aviso %d", 1)
	assert.NotContains(t, buf.String(), "não deve aparecer")
	assert.Contains(t, buf.String(), "WARN ")
	assert.Contains(t, buf.String(), "aviso 1")
	assert.Contains(t, buf.String(), "logger_test.go")

	buf.Reset()
	SetConsoleEnabled(false)
	Errorf("silencioso")
	SetConsoleEnabled(true)
	assert.Empty(t, buf.String())

	Error("falha", nil)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(buf.String()), "falha"))
}

func TestFatalPanics(t *testing.T) {
	var buf bytes.Buffer
	Init()
	SetOutput(&buf)

	assert.PanicsWithValue(t, "estado inválido", func() {
		Fatalf("estado %s", "inválido")
	})
}
