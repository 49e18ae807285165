package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/aigrace/internal/model"
	"github.com/seantiz/aigrace/internal/report"
	"github.com/seantiz/aigrace/internal/stats"
	"github.com/seantiz/aigrace/internal/verdict"
)

func sampleRows() []report.Row {
	return []report.Row{
		report.NewRow("dataset/139442p0.aig",
			stats.Stats{Inputs: 24, Outputs: 1, Latches: 58, Ands: 1021}, true,
			model.NewEngineResult(verdict.UNSAT, model.EnginePDR, 1234*time.Millisecond)),
		report.NewRow("dataset/bc57sensorsp0.aig",
			stats.Stats{Inputs: 5, Outputs: 3, Latches: 2, Ands: 17}, true,
			model.NewEngineResult(verdict.SAT, model.EngineBMC, 12500*time.Millisecond)),
		report.NewRow("dataset/bj08amba3g3.aig", stats.Stats{}, false, model.Inconclusive()),
		report.NewRow("dataset/bob1u05cu.aig",
			stats.Stats{Inputs: 7, Outputs: 1, Latches: 0, Ands: 44}, true,
			model.Failed()),
		report.ErrorRow("dataset/broken.aig", stats.Stats{}, false),
	}
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestWriteFormats(t *testing.T) {
	for _, format := range []report.Format{report.FormatCSV, report.FormatJSON, report.FormatText} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, report.Write(&buf, format, sampleRows()))
			newGoldie(t).Assert(t, "report_"+string(format), buf.Bytes())
		})
	}
}

func TestFieldsPlaceholders(t *testing.T) {
	row := report.NewRow("c.aig", stats.Stats{}, false, model.Inconclusive())
	assert.Equal(t, []string{"c.aig", "", "", "", "UNKNOWN", "-", "-"}, row.Fields())
}

func TestNewRowRoundsElapsed(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		want    string
	}{
		{1234 * time.Millisecond, "1.23"},
		{1236 * time.Millisecond, "1.24"},
		{999 * time.Microsecond, "0.00"},
		{120 * time.Second, "120.00"},
	}
	for _, tt := range tests {
		row := report.NewRow("c.aig", stats.Stats{}, false,
			model.NewEngineResult(verdict.Timeout, model.EngineSim, tt.elapsed))
		assert.Equal(t, tt.want, row.Fields()[6], "elapsed %v", tt.elapsed)
		assert.Equal(t, "sim", row.Fields()[5])
	}
}

func TestErrorRowKeepsStats(t *testing.T) {
	row := report.ErrorRow("c.aig", stats.Stats{Inputs: 1, Latches: 2, Ands: 3}, true)
	assert.Equal(t, []string{"c.aig", "1", "2", "3", "ERROR", "-", "-"}, row.Fields())
}

func TestWriteJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestParseFormat(t *testing.T) {
	f, err := report.ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, report.FormatCSV, f)

	f, err = report.ParseFormat("text")
	require.NoError(t, err)
	assert.Equal(t, report.FormatText, f)

	_, err = report.ParseFormat("xlsx")
	assert.Error(t, err)
}
