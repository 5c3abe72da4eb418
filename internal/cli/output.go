package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shaiso/scops/internal/orchestrator"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// ReportView — JSON-представление итога run.
type ReportView struct {
	Config      string     `json:"config"`
	RunID       string     `json:"run_id,omitempty"`
	Output      string     `json:"output,omitempty"`
	Phase       string     `json:"phase"`
	Skipped     string     `json:"skipped,omitempty"`
	NewLocation bool       `json:"new_location"`
	DEM         string     `json:"dem,omitempty"`
	Generated   bool       `json:"dem_generated"`
	Notified    bool       `json:"notified"`
	Units       []UnitView `json:"units"`
}

// UnitView — строка отчёта по одному unit.
type UnitView struct {
	Unit    string `json:"unit"`
	Backend string `json:"backend,omitempty"`
	JobRef  string `json:"job_ref,omitempty"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// NewReportView собирает представление отчёта: сначала отправленные
// units, затем units с ошибкой.
func NewReportView(r *orchestrator.Report) ReportView {
	v := ReportView{
		Config:      r.ConfigPath,
		RunID:       r.RunID,
		Output:      r.Output,
		Phase:       string(r.Phase),
		Skipped:     r.Skipped,
		NewLocation: r.NewLocation,
		DEM:         r.Dataset.Path,
		Generated:   r.Dataset.Generated,
		Notified:    r.Notified,
		Units:       []UnitView{},
	}
	for _, h := range r.Handles {
		v.Units = append(v.Units, UnitView{Unit: h.UnitID, Backend: h.Kind, JobRef: h.JobRef, Status: "submitted"})
	}
	for _, u := range r.FailedUnits() {
		v.Units = append(v.Units, UnitView{Unit: u, Status: "failed", Error: r.Failures[u].Error()})
	}
	return v
}

// PrintReport выводит итог run: сводку в stderr и таблицу units в stdout.
func (o *Output) PrintReport(r *orchestrator.Report) {
	v := NewReportView(r)

	summary := fmt.Sprintf("%s: %s", v.Config, v.Phase)
	if v.Skipped != "" {
		summary += " (skipped: " + v.Skipped + ")"
	}
	if v.Output != "" {
		summary += ", output " + v.Output
	}
	o.Success(summary)

	if v.Skipped != "" && !o.jsonMode {
		return
	}

	headers := []string{"UNIT", "BACKEND", "JOB_REF", "STATUS"}
	rows := make([][]string, len(v.Units))
	for i, u := range v.Units {
		rows[i] = []string{u.Unit, dash(u.Backend), dash(u.JobRef), u.Status}
	}
	o.Print(headers, rows, v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
