package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sugawarayuuta/sonnet"

	"ore-strategy-lab/internal/learning"
)

// Output file names written by WriteFiles.
const (
	MarkdownFile = "LEARNING_REPORT.md"
	CSVFile      = "SQUARES.csv"
	JSONFile     = "report.json"
)

// EncodeSummary encodes the learning summary with its stable field names.
func EncodeSummary(s learning.Summary) ([]byte, error) {
	data, err := sonnet.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	return data, nil
}

// EncodeReport encodes the full report.
func EncodeReport(r *Report) ([]byte, error) {
	data, err := sonnet.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return data, nil
}

// WriteFiles writes the markdown, CSV and JSON renditions of r into dir and
// returns the written paths.
func WriteFiles(dir string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	data, err := EncodeReport(r)
	if err != nil {
		return nil, err
	}

	files := []struct {
		name string
		body []byte
	}{
		{MarkdownFile, []byte(RenderMarkdown(r))},
		{CSVFile, []byte(RenderCSV(r.Squares))},
		{JSONFile, data},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, f.body, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", f.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
