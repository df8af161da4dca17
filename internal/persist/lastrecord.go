// Package persist grava o último registro decodificado em disco. O arquivo
// é só um artefato de observação; nada no programa o lê de volta.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"rover_monitor/internal/models"
	"rover_monitor/pkg/logger"
)

// LastRecordWriter sobrescreve o arquivo a cada registro
type LastRecordWriter struct {
	path   string
	mutex  sync.Mutex
	writes uint64
}

// NewLastRecordWriter cria o gravador; o diretório é criado se não existir
func NewLastRecordWriter(path string) (*LastRecordWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("caminho do arquivo não definido")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("erro ao criar diretório %s: %w", dir, err)
		}
	}
	return &LastRecordWriter{path: path}, nil
}

// Path retorna o caminho do arquivo
func (w *LastRecordWriter) Path() string {
	return w.path
}

// Write grava o registro com indentação de 4 espaços. A escrita passa por
// um arquivo temporário e rename, então leitores nunca veem conteúdo parcial.
func (w *LastRecordWriter) Write(rec models.TelemetryRecord) error {
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return fmt.Errorf("erro ao serializar registro: %w", err)
	}
	data = append(data, '\n')

	w.mutex.Lock()
	defer w.mutex.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(w.path), filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("erro ao criar arquivo temporário: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("erro ao escrever %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("erro ao fechar %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("erro ao substituir %s: %w", w.path, err)
	}

	w.writes++
	return nil
}

// Handle adapta Write para o formato de handler de registros; erros são
// apenas registrados no log.
func (w *LastRecordWriter) Handle(rec models.TelemetryRecord) {
	if err := w.Write(rec); err != nil {
		logger.Error("Erro ao gravar último registro", err)
	}
}

// Writes retorna quantas gravações tiveram sucesso
func (w *LastRecordWriter) Writes() uint64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.writes
}

// ReadLastRecord lê o arquivo gravado; é a última fonte de /api/last-record
func ReadLastRecord(path string) (models.TelemetryRecord, error) {
	var rec models.TelemetryRecord
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("erro ao decodificar %s: %w", path, err)
	}
	return rec, nil
}
