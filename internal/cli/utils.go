// Package cli provides output helpers for the snapseek command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hyperjump/snapseek/internal/client"
	"github.com/hyperjump/snapseek/internal/models"
	"github.com/hyperjump/snapseek/internal/orchestrator"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat returns the format named by s, defaulting to text.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// WriteSearchResults writes a search response to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d photos for %q in %dms\n\n", response.Total, response.Query, response.QueryTime)
	if len(response.Results) == 0 {
		fmt.Fprintln(w, "No matching photos.")
		return nil
	}
	writeResults(w, response.Results)
	return nil
}

func writeResults(w io.Writer, results []*models.SearchResult) {
	for _, r := range results {
		fmt.Fprintf(w, "%3d. %.4f  %s\n", r.Rank, r.Score, Truncate(r.SourcePath, 120))
	}
}

// WriteSearchState renders one search session update as a single block.
func WriteSearchState(w io.Writer, st orchestrator.SearchState) {
	switch {
	case st.Err != nil:
		fmt.Fprintf(w, "[%q] %v\n", st.Query, st.Err)
	case st.Searching:
		fmt.Fprintf(w, "[%q] searching...\n", st.Query)
	case len(st.Results) == 0:
		fmt.Fprintf(w, "[%q] no matching photos\n", st.Query)
	default:
		fmt.Fprintf(w, "[%q] %d photos\n", st.Query, len(st.Results))
		writeResults(w, st.Results)
	}
}

// WriteStatus writes server status to w in the given format.
func WriteStatus(w io.Writer, status *client.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "Images indexed: %d\n", status.Images)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "Disk usage:     %s\n", FormatBytes(*status.DiskUsageBytes))
	}
	if len(status.Config) > 0 {
		keys := make([]string, 0, len(status.Config))
		for k := range status.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "\nConfig:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %v\n", k, status.Config[k])
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Truncate shortens s to maxLen bytes, keeping the tail (the file name) and
// prefixing "...".
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[len(s)-maxLen:]
	}
	return "..." + s[len(s)-(maxLen-3):]
}
