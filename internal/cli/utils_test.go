package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/snapseek/internal/client"
	"github.com/hyperjump/snapseek/internal/models"
	"github.com/hyperjump/snapseek/internal/orchestrator"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query:     "red car",
		QueryTime: 42,
		Total:     2,
		Results: []*models.SearchResult{
			{SourcePath: "/photos/car.jpg", Score: 0.91, Rank: 1},
			{SourcePath: "/photos/truck.jpg", Score: 0.6, Rank: 2},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	response := sampleResponse()
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != response.Query || decoded.Total != 2 {
		t.Errorf("decoded %+v", decoded)
	}
	if len(decoded.Results) != 2 || decoded.Results[0].SourcePath != "/photos/car.jpg" {
		t.Errorf("decoded results %+v", decoded.Results)
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`Found 2 photos for "red car" in 42ms`, "  1. 0.9100  /photos/car.jpg", "  2. 0.6000  /photos/truck.jpg"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	_ = WriteSearchResults(&buf, &models.SearchResponse{Query: "x"}, OutputText)
	if !strings.Contains(buf.String(), "No matching photos.") {
		t.Errorf("empty output: %q", buf.String())
	}
}

func TestWriteSearchState(t *testing.T) {
	tests := []struct {
		name  string
		state orchestrator.SearchState
		want  string
	}{
		{"searching", orchestrator.SearchState{Query: "cat", Searching: true}, `["cat"] searching...`},
		{"error", orchestrator.SearchState{Query: "cat", Err: errors.New("search failed: boom")}, "search failed: boom"},
		{"empty", orchestrator.SearchState{Query: "cat"}, "no matching photos"},
		{"results", orchestrator.SearchState{Query: "cat", Results: sampleResponse().Results}, `["cat"] 2 photos`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			WriteSearchState(&buf, tt.state)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("got %q, want substring %q", buf.String(), tt.want)
			}
		})
	}
}

func TestWriteStatus(t *testing.T) {
	disk := int64(3 << 20)
	status := &client.Status{Images: 7, DiskUsageBytes: &disk, Config: map[string]interface{}{"storage_backend": "sqlite", "min_score": 0.52}}

	var buf bytes.Buffer
	if err := WriteStatus(&buf, status, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Images indexed: 7", "3.0 MiB", "min_score: 0.52", "storage_backend: sqlite"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "min_score") > strings.Index(out, "storage_backend") {
		t.Error("config keys should be sorted")
	}

	buf.Reset()
	if err := WriteStatus(&buf, status, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded client.Status
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil || decoded.Images != 7 {
		t.Errorf("json status: %v %+v", err, decoded)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": OutputText, "text": OutputText, "json": OutputJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("expected error for yaml")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 30, "5.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s      string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"/very/long/path/photo.jpg", 12, "...photo.jpg"},
		{"abcdef", 3, "def"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.s, tt.maxLen); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
		}
	}
}
