package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tealeg/xlsx/v2"

	"github.com/aluiziolira/go-scrape-restaurants/models"
)

func sampleRestaurant() *models.Restaurant {
	r := models.NewRestaurant("Café \"De Markt\", Utrecht", "https://www.diner-cadeau.nl/restaurant/cafe-de-markt",
		time.Date(2026, 3, 14, 13, 9, 13, 0, time.FixedZone("CET", 3600)))
	r.City = "Utrecht"
	r.Address = "Vredenburg 2"
	r.PostalCode = "3511 BA"
	r.Description = "Lunch, diner\nen borrel"
	r.Tags = []string{"Frans", "Vis"}
	r.PriceRange = "€€"
	rating := 4.2
	reviews := 31
	r.Rating = &rating
	r.ReviewCount = &reviews
	r.SetCoordinates(52.0924, 5.1145)
	distance := 0.56789
	r.DistanceKMFromUtrecht = &distance
	return r
}

func TestRowFormatting(t *testing.T) {
	got := Row(sampleRestaurant())
	want := []string{
		"Café \"De Markt\", Utrecht",
		"https://www.diner-cadeau.nl/restaurant/cafe-de-markt",
		"Utrecht",
		"Vredenburg 2",
		"3511 BA",
		"Netherlands",
		"Lunch, diner\nen borrel",
		"Frans;Vis",
		"€€",
		"4.20",
		"31",
		"52.092400",
		"5.114500",
		"0.568",
		"diner-cadeau",
		"2026-03-14T12:09:13Z",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("row mismatch\n got: %q\nwant: %q", got, want)
	}
	if len(got) != len(Header) {
		t.Fatalf("row has %d columns, header has %d", len(got), len(Header))
	}
}

func TestRowEmptyOptionals(t *testing.T) {
	r := models.NewRestaurant("Eten", "https://www.diner-cadeau.nl/restaurant/eten", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	row := Row(r)
	for _, col := range []int{2, 3, 4, 6, 7, 8, 9, 10, 11, 12, 13} {
		if row[col] != "" {
			t.Fatalf("column %s = %q, want empty", Header[col], row[col])
		}
	}
}

func TestHeaderOrder(t *testing.T) {
	want := "name,url,city,address,postal_code,country,description,tags,price_range,rating,review_count,latitude,longitude,distance_km_from_utrecht,source,scraped_at"
	if got := strings.Join(Header, ","); got != want {
		t.Fatalf("header = %s", got)
	}
}

func TestCSVWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "restaurants.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	r := sampleRestaurant()
	if err := writer.Write([]*models.Restaurant{r}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if !reflect.DeepEqual(records[0], Header) {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if !reflect.DeepEqual(records[1], Row(r)) {
		t.Fatalf("row did not survive quoting: %q", records[1])
	}
}

func TestCSVWriterUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err := NewCSVWriter(filepath.Join(blocker, "out.csv"))
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("err = %v, want IOError", err)
	}
}

func TestCSVWriterStagesUntilClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "restaurants.csv")
	previous := []byte("name,url\nOud,https://example.test/oud\n")
	if err := os.WriteFile(path, previous, 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write([]*models.Restaurant{sampleRestaurant()}); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(previous) {
		t.Fatalf("destination changed before Close: %q", got)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	got, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(got), strings.Join(Header, ",")+"\n") {
		t.Fatalf("destination not replaced on Close: %q", got)
	}
	assertNoStagedFiles(t, dir)
}

func TestWritersDiscardKeepPreviousOutput(t *testing.T) {
	tests := []struct {
		name string
		file string
		open func(path string) (OutputWriter, error)
	}{
		{name: "csv", file: "out.csv", open: func(path string) (OutputWriter, error) { return NewCSVWriter(path) }},
		{name: "json", file: "out.jsonl", open: func(path string) (OutputWriter, error) { return NewJSONWriter(path) }},
		{name: "xlsx", file: "out.xlsx", open: func(path string) (OutputWriter, error) { return NewXLSXWriter(path) }},
		{name: "dual", file: "out.csv", open: func(path string) (OutputWriter, error) {
			return NewDualWriter(path, JSONCompanion(path))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, tt.file)
			previous := []byte("previous run")
			if err := os.WriteFile(path, previous, 0o644); err != nil {
				t.Fatalf("seed: %v", err)
			}

			writer, err := tt.open(path)
			if err != nil {
				t.Fatalf("create writer: %v", err)
			}
			if err := writer.Write([]*models.Restaurant{sampleRestaurant()}); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := writer.Discard(); err != nil {
				t.Fatalf("discard: %v", err)
			}
			if err := writer.Discard(); err != nil {
				t.Fatalf("second discard: %v", err)
			}

			got, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(got) != string(previous) {
				t.Fatalf("destination = %q, want previous content", got)
			}
			assertNoStagedFiles(t, dir)
		})
	}
}

func assertNoStagedFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("staged file left behind: %s", e.Name())
		}
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "restaurants.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	plain := models.NewRestaurant("Eten", "https://www.diner-cadeau.nl/restaurant/eten", time.Now())
	if err := writer.Write([]*models.Restaurant{sampleRestaurant(), plain}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var decoded []models.Restaurant
	for scanner.Scan() {
		var r models.Restaurant
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		decoded = append(decoded, r)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("json lines=%d, want 2", len(decoded))
	}
	if decoded[0].Rating == nil || *decoded[0].Rating != 4.2 {
		t.Fatalf("rating not preserved: %v", decoded[0].Rating)
	}
	if decoded[1].Latitude != nil {
		t.Fatalf("unknown latitude should stay null")
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "restaurants.csv")
	jsonPath := JSONCompanion(csvPath)
	if filepath.Base(jsonPath) != "restaurants.jsonl" {
		t.Fatalf("companion path = %s", jsonPath)
	}

	writer, err := NewDualWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}

	if err := writer.Write([]*models.Restaurant{sampleRestaurant()}); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestXLSXWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restaurants.xlsx")

	writer, err := NewXLSXWriter(path)
	if err != nil {
		t.Fatalf("create xlsx writer: %v", err)
	}
	r := sampleRestaurant()
	if err := writer.Write([]*models.Restaurant{r}); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate xlsx: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close xlsx: %v", err)
	}

	book, err := xlsx.OpenFile(path)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	sheet, ok := book.Sheet[SheetName]
	if !ok {
		t.Fatalf("sheet %q missing", SheetName)
	}
	if len(sheet.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(sheet.Rows))
	}

	var header []string
	for _, cell := range sheet.Rows[0].Cells {
		header = append(header, cell.String())
	}
	if !reflect.DeepEqual(header, Header) {
		t.Fatalf("header = %v", header)
	}
	if got := sheet.Rows[1].Cells[0].String(); got != r.Name {
		t.Fatalf("name cell = %q", got)
	}
}
