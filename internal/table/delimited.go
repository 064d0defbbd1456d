package table

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Delimiter picks the column separator from a file extension: .csv is comma,
// .tsv is tab, anything else is the pipe used by county exports.
func Delimiter(path string) rune {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ','
	case ".tsv":
		return '\t'
	default:
		return '|'
	}
}

func newCSVReader(r io.Reader, sep rune) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = sep
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false
	return cr
}

// readDelimited streams a delimited file with a header row through fn. Rows
// are parsed by a pool of workers, so fn is called concurrently and in no
// particular order. The first error from fn stops the read.
func readDelimited(ctx context.Context, path string, fn func(rec record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "table: open %s", path)
	}
	defer f.Close()

	cr := newCSVReader(f, Delimiter(path))
	header, err := cr.Read()
	if err == io.EOF {
		return eris.Errorf("table: file %s is empty", path)
	}
	if err != nil {
		return eris.Wrapf(err, "table: read header %s", path)
	}

	type row struct {
		line int
		cols []string
	}

	// Pipeline: producer (I/O) -> workers (parsing)
	g, gctx := errgroup.WithContext(ctx)
	rows := make(chan row, 4096)

	workers := runtime.NumCPU()
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for r := range rows {
				if err := fn(newRecord(r.line, header, r.cols)); err != nil {
					return err
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(rows)
		for line := 1; ; line++ {
			cols, err := cr.Read()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return eris.Wrapf(err, "table: read %s", path)
			}
			select {
			case rows <- row{line: line, cols: cols}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	return g.Wait()
}

// ReadRows reads a whole delimited file in order.
func ReadRows(path string) (header []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "table: open %s", path)
	}
	defer f.Close()

	all, err := newCSVReader(f, Delimiter(path)).ReadAll()
	if err != nil {
		return nil, nil, eris.Wrapf(err, "table: read %s", path)
	}
	if len(all) == 0 {
		return nil, nil, eris.Errorf("table: file %s is empty", path)
	}
	return all[0], all[1:], nil
}

// WriteRows writes header and rows to path, creating parent directories.
func WriteRows(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return eris.Wrapf(err, "table: create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "table: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = Delimiter(path)
	if err := w.Write(header); err != nil {
		return eris.Wrapf(err, "table: write header %s", path)
	}
	if err := w.WriteAll(rows); err != nil {
		return eris.Wrapf(err, "table: write %s", path)
	}
	return f.Close()
}
