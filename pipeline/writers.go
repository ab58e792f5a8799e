package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-restaurants/models"
)

// Header is the fixed column order of the exported table.
var Header = []string{
	"name", "url", "city", "address", "postal_code", "country", "description",
	"tags", "price_range", "rating", "review_count", "latitude", "longitude",
	"distance_km_from_utrecht", "source", "scraped_at",
}

// TagSeparator joins a record's tags into one cell.
const TagSeparator = ";"

// Row formats one record in Header order. Undefined optional values become
// empty strings.
func Row(r *models.Restaurant) []string {
	return []string{
		r.Name,
		r.URL,
		r.City,
		r.Address,
		r.PostalCode,
		r.Country,
		r.Description,
		strings.Join(r.Tags, TagSeparator),
		r.PriceRange,
		formatFloat(r.Rating, 2),
		formatInt(r.ReviewCount),
		formatFloat(r.Latitude, 6),
		formatFloat(r.Longitude, 6),
		formatFloat(r.DistanceKMFromUtrecht, 3),
		r.Source,
		r.ScrapedAt.UTC().Format(time.RFC3339),
	}
}

func formatFloat(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// CSVWriter writes records to CSV. Output is staged next to the
// destination and only replaces it on Close.
type CSVWriter struct {
	path   string
	file   *stagedFile
	writer *csv.Writer
}

// NewCSVWriter stages the file and writes the header row, so a run with no
// records still produces a valid table.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	f, err := createStaged(filename, "create csv file")
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(Header); err != nil {
		f.discard()
		return nil, &IOError{Path: filename, Op: "write csv header", Err: err}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.discard()
		return nil, &IOError{Path: filename, Op: "flush csv header", Err: err}
	}

	return &CSVWriter{
		path:   filename,
		file:   f,
		writer: writer,
	}, nil
}

// Write appends restaurants to the CSV output.
func (cw *CSVWriter) Write(restaurants []*models.Restaurant) error {
	for _, r := range restaurants {
		if err := cw.writer.Write(Row(r)); err != nil {
			return &IOError{Path: cw.path, Op: "write csv record", Err: err}
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return &IOError{Path: cw.path, Op: "flush csv records", Err: err}
	}
	return nil
}

// Close flushes the staged file and moves it onto the destination.
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		cw.file.discard()
		return &IOError{Path: cw.path, Op: "flush csv writer", Err: err}
	}
	return cw.file.commit()
}

// Discard drops the staged output and leaves the destination as it was.
func (cw *CSVWriter) Discard() error {
	return cw.file.discard()
}

// Validate ensures the file holds at least the header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return &IOError{Path: cw.path, Op: "stat csv file", Err: err}
	}
	if info.Size() <= 0 {
		return &IOError{Path: cw.path, Op: "validate csv file", Err: errors.New("file is empty")}
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	path    string
	file    *stagedFile
	writer  *bufio.Writer
	encoder *json.Encoder
	written int
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	f, err := createStaged(filename, "create json file")
	if err != nil {
		return nil, err
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONWriter{
		path:    filename,
		file:    f,
		writer:  buffer,
		encoder: encoder,
	}, nil
}

// Write appends restaurants in JSONL format.
func (jw *JSONWriter) Write(restaurants []*models.Restaurant) error {
	for _, r := range restaurants {
		if err := jw.encoder.Encode(r); err != nil {
			return &IOError{Path: jw.path, Op: "encode json record", Err: err}
		}
		jw.written++
	}

	if err := jw.writer.Flush(); err != nil {
		return &IOError{Path: jw.path, Op: "flush json writer", Err: err}
	}
	return nil
}

// Close flushes buffers and moves the staged file onto the destination.
func (jw *JSONWriter) Close() error {
	if err := jw.writer.Flush(); err != nil {
		jw.file.discard()
		return &IOError{Path: jw.path, Op: "flush json writer", Err: err}
	}
	return jw.file.commit()
}

// Discard drops the staged output and leaves the destination as it was.
func (jw *JSONWriter) Discard() error {
	return jw.file.discard()
}

// Validate checks that the file is readable and, when records were
// written, non-empty. JSONL has no header, so an empty run is an empty file.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return &IOError{Path: jw.path, Op: "stat json file", Err: err}
	}
	if jw.written > 0 && info.Size() <= 0 {
		return &IOError{Path: jw.path, Op: "validate json file", Err: errors.New("file is empty")}
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Path: dir, Op: "create directory", Err: err}
	}
	return nil
}
