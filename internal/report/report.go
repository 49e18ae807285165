// Package report renders batch results as CSV, JSON or an aligned text
// table. Every format carries one row per dataset with the same columns.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/seantiz/aigrace/internal/model"
	"github.com/seantiz/aigrace/internal/stats"
)

// ResultError marks a dataset whose verification could not be carried out.
const ResultError = "ERROR"

// Placeholder stands in for a missing engine or elapsed time.
const Placeholder = "-"

// Header lists the report columns in order.
var Header = []string{"dataset", "Inputs", "FFs", "ANDs", "Result", "Engine", "Time (sec)"}

// Format selects an output encoding.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// ParseFormat validates a format name. The empty string selects CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON, FormatText:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown report format %q: must be csv, json or text", s)
}

// Row is one dataset's line in the report.
type Row struct {
	Dataset string   `json:"dataset"`
	Inputs  *int     `json:"inputs"`
	FFs     *int     `json:"ffs"`
	ANDs    *int     `json:"ands"`
	Result  string   `json:"result"`
	Engine  string   `json:"engine"`
	Seconds *float64 `json:"time_sec"`
}

// NewRow builds the row for a dataset that produced an outcome.
func NewRow(dataset string, st stats.Stats, known bool, res model.EngineResult) Row {
	row := statsRow(dataset, st, known)
	row.Result = string(res.Verdict)
	row.Engine = res.Engine.String()
	if secs, ok := res.Seconds(); ok {
		rounded := math.Round(secs*100) / 100
		row.Seconds = &rounded
	}
	return row
}

// ErrorRow builds the row for a dataset whose run failed. Known statistics
// are kept.
func ErrorRow(dataset string, st stats.Stats, known bool) Row {
	row := statsRow(dataset, st, known)
	row.Result = ResultError
	return row
}

func statsRow(dataset string, st stats.Stats, known bool) Row {
	row := Row{Dataset: dataset}
	if known {
		row.Inputs = &st.Inputs
		row.FFs = &st.Latches
		row.ANDs = &st.Ands
	}
	return row
}

// Fields returns the row's cells in Header order.
func (r Row) Fields() []string {
	engine := r.Engine
	if engine == "" {
		engine = Placeholder
	}
	elapsed := Placeholder
	if r.Seconds != nil {
		elapsed = strconv.FormatFloat(*r.Seconds, 'f', 2, 64)
	}
	return []string{r.Dataset, count(r.Inputs), count(r.FFs), count(r.ANDs), r.Result, engine, elapsed}
}

func count(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

// Write renders rows to w in the given format.
func Write(w io.Writer, format Format, rows []Row) error {
	switch format {
	case FormatCSV, "":
		return WriteCSV(w, rows)
	case FormatJSON:
		return WriteJSON(w, rows)
	case FormatText:
		return WriteText(w, rows)
	}
	return fmt.Errorf("unknown report format %q", format)
}

// WriteCSV writes a header line and one record per row.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.Fields()); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteJSON writes rows as an indented JSON array. Missing values are null.
func WriteJSON(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}
	return nil
}

// WriteText writes an aligned table for terminals.
func WriteText(w io.Writer, rows []Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	writeLine := func(cells []string) {
		for i, c := range cells {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, c)
		}
		fmt.Fprint(tw, "\n")
	}
	writeLine(Header)
	for _, r := range rows {
		writeLine(r.Fields())
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write text report: %w", err)
	}
	return nil
}
