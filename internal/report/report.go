// Package report renders stored statistics for operators and downstream
// tools: a terminal table, CSV, JSON, or Parquet.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/parquet-go/parquet-go"
	"golang.org/x/term"

	"github.com/repoflux/repoflux/schema"
)

// Format selects the output encoding.
type Format string

// All report formats supported.
const (
	TableFormat   Format = "table" // default
	CSVFormat     Format = "csv"
	JSONFormat    Format = "json"
	ParquetFormat Format = "parquet"
)

// ValidFormats lists every format, for CLI validation.
var ValidFormats = map[Format]struct{}{
	TableFormat:   {},
	CSVFormat:     {},
	JSONFormat:    {},
	ParquetFormat: {},
}

// Row is the flattened export shape of one statistic row. The struct tags
// drive the JSON and Parquet schemas.
type Row struct {
	Repo      string  `json:"repo" parquet:"repo,snappy"`
	Author    string  `json:"author,omitempty" parquet:"author,optional,snappy"`
	Interval  string  `json:"interval" parquet:"interval,snappy"`
	StartDate *string `json:"start_date,omitempty" parquet:"start_date,optional,snappy"`

	LinesAdded   int `json:"lines_added" parquet:"lines_added,snappy"`
	LinesRemoved int `json:"lines_removed" parquet:"lines_removed,snappy"`
	LinesChanged int `json:"lines_changed" parquet:"lines_changed,snappy"`
	CommitTotal  int `json:"commit_total" parquet:"commit_total,snappy"`
	FilesChanged int `json:"files_changed" parquet:"files_changed,snappy"`
	AuthorTotal  int `json:"author_total" parquet:"author_total,snappy"`
	DaysActive   int `json:"days_active" parquet:"days_active,snappy"`
	Creates      int `json:"creates" parquet:"creates,snappy"`
	Edits        int `json:"edits" parquet:"edits,snappy"`
	Moves        int `json:"moves" parquet:"moves,snappy"`

	AverageCommitSize int     `json:"average_commit_size" parquet:"average_commit_size,snappy"`
	Flux              int     `json:"flux" parquet:"flux,snappy"`
	Bias              int     `json:"bias" parquet:"bias,snappy"`
	Longevity         int     `json:"longevity" parquet:"longevity,snappy"`
	DaysSinceSeen     int     `json:"days_since_seen" parquet:"days_since_seen,snappy"`
	Commitment        float64 `json:"commitment" parquet:"commitment,snappy"`
}

// BuildRows flattens statistic rows for export. authorEmails resolves author
// ids; team rows keep an empty author.
func BuildRows(repoName string, authorEmails map[int64]string, stats []schema.Statistic) []Row {
	rows := make([]Row, 0, len(stats))
	for _, st := range stats {
		row := Row{
			Repo:              repoName,
			Interval:          string(st.Interval),
			LinesAdded:        st.LinesAdded,
			LinesRemoved:      st.LinesRemoved,
			LinesChanged:      st.LinesChanged,
			CommitTotal:       st.CommitTotal,
			FilesChanged:      st.FilesChanged,
			AuthorTotal:       st.AuthorTotal,
			DaysActive:        st.DaysActive,
			Creates:           st.Creates,
			Edits:             st.Edits,
			Moves:             st.Moves,
			AverageCommitSize: st.AverageCommitSize,
			Flux:              st.Flux,
			Bias:              st.Bias,
			Longevity:         st.Longevity,
			DaysSinceSeen:     st.DaysSinceSeen,
			Commitment:        st.Commitment,
		}
		if st.AuthorID != nil {
			row.Author = authorEmails[*st.AuthorID]
		}
		if st.StartDate != nil {
			s := st.StartDate.UTC().Format("2006-01-02")
			row.StartDate = &s
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteTable renders rows as a terminal table.
func WriteTable(w io.Writer, rows []Row) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{
		"Interval", "Start", "Author", "Commits", "Lines +", "Lines -",
		"Files", "Days", "Avg Size", "Flux", "Bias", "Commitment",
	})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	authorWidth := maxAuthorWidth()
	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		start := ""
		if r.StartDate != nil {
			start = *r.StartDate
		}
		author := r.Author
		if author == "" {
			author = "(team)"
		}
		data = append(data, []string{
			r.Interval,
			start,
			truncate(author, authorWidth),
			strconv.Itoa(r.CommitTotal),
			strconv.Itoa(r.LinesAdded),
			strconv.Itoa(r.LinesRemoved),
			strconv.Itoa(r.FilesChanged),
			strconv.Itoa(r.DaysActive),
			strconv.Itoa(r.AverageCommitSize),
			strconv.Itoa(r.Flux),
			strconv.Itoa(r.Bias),
			fmt.Sprintf("%.3f", r.Commitment),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// csvHeader is the column order for CSV output.
var csvHeader = []string{
	"repo", "author", "interval", "start_date", "lines_added", "lines_removed",
	"lines_changed", "commit_total", "files_changed", "author_total",
	"days_active", "creates", "edits", "moves", "average_commit_size",
	"flux", "bias", "longevity", "days_since_seen", "commitment",
}

// WriteCSV renders rows as CSV with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		start := ""
		if r.StartDate != nil {
			start = *r.StartDate
		}
		record := []string{
			r.Repo, r.Author, r.Interval, start,
			strconv.Itoa(r.LinesAdded), strconv.Itoa(r.LinesRemoved),
			strconv.Itoa(r.LinesChanged), strconv.Itoa(r.CommitTotal),
			strconv.Itoa(r.FilesChanged), strconv.Itoa(r.AuthorTotal),
			strconv.Itoa(r.DaysActive), strconv.Itoa(r.Creates),
			strconv.Itoa(r.Edits), strconv.Itoa(r.Moves),
			strconv.Itoa(r.AverageCommitSize), strconv.Itoa(r.Flux),
			strconv.Itoa(r.Bias), strconv.Itoa(r.Longevity),
			strconv.Itoa(r.DaysSinceSeen),
			strconv.FormatFloat(r.Commitment, 'f', 6, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON renders rows as an indented JSON array.
func WriteJSON(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// WriteParquet writes rows to a Parquet file, schema inferred from the Row
// struct tags.
func WriteParquet(path string, rows []Row) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[Row](file)
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			_ = writer.Close()
			return fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// terminalWidth reports the terminal's column count. A package variable so
// tests can pin it; asking the real terminal is useless under go test or a
// pipe.
var terminalWidth = func() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// maxAuthorWidth sizes the author column from the terminal width, with a
// conservative default for pipes and CI.
func maxAuthorWidth() int {
	available := terminalWidth() - 70 // the numeric columns with borders and padding
	if available < 12 {
		return 12
	}
	if available > 40 {
		return 40
	}
	return available
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// WriteRows dispatches on format. Parquet output requires a file path; the
// other formats stream to w.
func WriteRows(w io.Writer, format Format, parquetPath string, rows []Row) error {
	switch format {
	case TableFormat:
		return WriteTable(w, rows)
	case CSVFormat:
		return WriteCSV(w, rows)
	case JSONFormat:
		return WriteJSON(w, rows)
	case ParquetFormat:
		if parquetPath == "" {
			return fmt.Errorf("parquet output requires an output file path")
		}
		return WriteParquet(parquetPath, rows)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}
