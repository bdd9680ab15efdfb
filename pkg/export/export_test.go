package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agendaDataset() Dataset {
	data := Dataset{Headers: []string{"Data", "Início", "Disciplina", "Descrição"}}
	data.Append("09/06/2025", "14:00", "Matemática", "Revisão; funções")
	data.Append("10/06/2025", "15:30", "Física")
	return data
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter(';').Render(agendaDataset())
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(out, []byte("\xef\xbb\xbf")))
	lines := strings.Split(strings.TrimSpace(string(out[3:])), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Data;Início;Disciplina;Descrição", lines[0])
	assert.Equal(t, `09/06/2025;14:00;Matemática;"Revisão; funções"`, lines[1])
	assert.Equal(t, "10/06/2025;15:30;Física;", lines[2])
}

func TestCSVExporterDefaultsToComma(t *testing.T) {
	assert.Equal(t, ',', NewCSVExporter(0).Comma)

	_, err := NewCSVExporter(',').Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter(map[string]float64{"Data": 30}).Render(agendaDataset(), "ARENA - Agenda", "Agendamentos de 2025-06-09")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter(nil).Render(Dataset{}, "", "")
	assert.Error(t, err)
}
