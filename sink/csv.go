package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/rules"
)

// DefaultDir is where CSV files are written by default.
const DefaultDir = "codelists"

// WriteCSV writes the header row and the records of result to w.
// Lines end with "\n"; quoting is left to encoding/csv.
func WriteCSV(w io.Writer, result *cl.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(result.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(result.Rows()); err != nil {
		return err
	}
	return cw.Error()
}

// CSV writes one file per codelist into a directory.
type CSV struct {
	dir string
}

// NewCSV creates a CSV sink writing into dir.
func NewCSV(dir string) *CSV {
	if dir == "" {
		dir = DefaultDir
	}
	return &CSV{dir: dir}
}

// Name returns the sink name.
func (s *CSV) Name() string {
	return "csv"
}

// Path returns the file the codelist is written to.
func (s *CSV) Path(list *rules.Codelist) string {
	return filepath.Join(s.dir, list.OutputFile())
}

// Write replaces the codelist's file. The file is written next to its
// destination and renamed into place, so readers never see a partial file.
func (s *CSV) Write(ctx context.Context, list *rules.Codelist, result *cl.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	dest := s.Path(list)
	tmp, err := os.CreateTemp(s.dir, "."+list.Name+"-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, result); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("replace %s: %w", dest, err)
	}
	return nil
}
