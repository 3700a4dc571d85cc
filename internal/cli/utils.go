// Package cli provides output helpers for the askpro command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/Khandelwalgov/AskPro/internal/models"
	"github.com/Khandelwalgov/AskPro/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one result per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const (
	textSnippetLen    = 300
	compactSnippetLen = 120
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteQueryResults writes a query response to w in the given format.
func WriteQueryResults(w io.Writer, response *models.QueryResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			if _, err := fmt.Fprintf(w, "%.4f\t%s\t%d\t%s\n",
				r.Score, r.Filename, r.Position, utils.Truncate(utils.OneLine(r.Text), compactSnippetLen)); err != nil {
				return err
			}
		}
		return nil
	default:
		writeQueryResultsText(w, response)
		return nil
	}
}

func writeQueryResultsText(w io.Writer, response *models.QueryResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms across %d file(s)",
		len(response.Results), response.QueryTime, response.IndexesSearched)
	if response.IndexesFailed > 0 {
		fmt.Fprintf(w, " (%d unavailable)", response.IndexesFailed)
	}
	fmt.Fprint(w, "\n\n")
	if response.AllIndexesUnavailable {
		fmt.Fprintln(w, "None of your files could be searched. Re-upload them to rebuild their indexes.")
		return
	}
	for i, r := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "[%d] %s (chunk %d) | Distance: %.4f\n", i+1, r.Filename, r.Position, r.Score)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(r.Text, textSnippetLen))
	}
}

// WriteFileList writes a user's catalog records to w.
func WriteFileList(w io.Writer, records []*models.FileRecord, format OutputFormat) error {
	if format == OutputJSON {
		if records == nil {
			records = []*models.FileRecord{}
		}
		return writeJSON(w, records)
	}
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No files.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if format == OutputText {
		fmt.Fprintln(tw, "FILENAME\tSTATUS\tCHUNKS\tUPDATED")
	}
	for _, rec := range records {
		status := string(rec.Status)
		if rec.Status == models.FileStatusFailed && rec.Error != "" && format == OutputText {
			status += ": " + utils.Truncate(rec.Error, 60)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", rec.Filename, status, rec.ChunkCount, rec.UpdatedAt.Format(time.DateTime))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
