package tracker

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"KabuScout/internal/model"
)

// DateLayout is the registered_date format shared by all backends.
const DateLayout = "2006-01-02"

var csvHeader = []string{"registered_date", "display_name", "symbol", "registered_price"}

// utf8BOM is written by spreadsheet tools that save CSV as UTF-8.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVBackend stores picks as a flat UTF-8 CSV file, read and written whole.
type CSVBackend struct {
	Path     string
	Location *time.Location
}

// NewCSVBackend creates a backend for path. A missing file reads as no picks.
func NewCSVBackend(path string, loc *time.Location) *CSVBackend {
	if loc == nil {
		loc = time.Local
	}
	return &CSVBackend{Path: path, Location: loc}
}

func (b *CSVBackend) Load(_ context.Context) ([]model.Pick, error) {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = len(csvHeader)
	var picks []model.Pick
	for line := 1; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", b.Path, err)
		}
		if line == 1 && rec[0] == csvHeader[0] {
			continue
		}
		p, err := parseRecord(rec, b.Location)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", b.Path, line, err)
		}
		picks = append(picks, p)
	}
	return picks, nil
}

func parseRecord(rec []string, loc *time.Location) (model.Pick, error) {
	date, err := time.ParseInLocation(DateLayout, rec[0], loc)
	if err != nil {
		return model.Pick{}, fmt.Errorf("parse registered_date: %w", err)
	}
	price, err := strconv.ParseFloat(rec[3], 64)
	if err != nil {
		return model.Pick{}, fmt.Errorf("parse registered_price: %w", err)
	}
	return model.Pick{
		RegisteredDate:  date,
		DisplayName:     rec[1],
		Symbol:          rec[2],
		RegisteredPrice: price,
	}, nil
}

// Save replaces the file atomically through a temporary file in the same directory.
func (b *CSVBackend) Save(_ context.Context, picks []model.Pick) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range picks {
		rec := []string{
			p.RegisteredDate.In(b.Location).Format(DateLayout),
			p.DisplayName,
			p.Symbol,
			strconv.FormatFloat(p.RegisteredPrice, 'f', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".picks-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.Path)
}
