package main

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-restaurants/config"
	"github.com/aluiziolira/go-scrape-restaurants/models"
	"github.com/aluiziolira/go-scrape-restaurants/pipeline"
)

const listingPageOne = `<html><head><script type="application/ld+json">[
 {"@type":"Restaurant","name":"De Gouden Lepel","url":"/restaurant/de-gouden-lepel",
  "address":{"streetAddress":"Oudegracht 1","addressLocality":"Utrecht"},
  "geo":{"latitude":52.0907,"longitude":5.1214}},
 {"@type":"Restaurant","name":"Bistro Zonder Plek","url":"/restaurant/bistro-zonder-plek",
  "address":{"streetAddress":"Neude 3","addressLocality":"Utrecht"}}
]</script></head></html>`

const listingPageTwo = `<html><body><script>window.__NUXT__ = {"list":[
 {"title":"De Gouden Lepel","slug":"/restaurant/de-gouden-lepel","city":"Utrecht"},
 {"title":"Sushi Zen","slug":"/restaurant/sushi-zen","location":{"city":"Zeist","lat":52.09,"lng":5.23}}
]};</script></body></html>`

func newSiteServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	geocodeCalls := &atomic.Int32{}
	mux := http.NewServeMux()
	mux.HandleFunc("/restaurant", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Query().Get("page") {
		case "":
			fmt.Fprint(w, listingPageOne)
		case "2":
			fmt.Fprint(w, listingPageTwo)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		geocodeCalls.Add(1)
		if r.URL.Query().Get("email") == "" {
			http.Error(w, "email required", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"lat":"52.0931","lon":"5.1190","importance":0.5}]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, geocodeCalls
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunWithoutGeocoding(t *testing.T) {
	srv, geocodeCalls := newSiteServer(t)
	dir := t.TempDir()
	output := filepath.Join(dir, "out", "restaurants.csv")
	metricsFile := filepath.Join(dir, "metrics.prom")

	summary, err := executeRoot(t,
		"--base-url", srv.URL,
		"--max-pages", "2",
		"--pause", "0",
		"--output", output,
		"--metrics-file", metricsFile,
	)
	require.NoError(t, err)
	assert.Contains(t, summary, "Scrape complete")
	assert.Contains(t, summary, "Restaurants:   3")
	assert.Contains(t, summary, "Duplicates:    1")
	assert.Zero(t, geocodeCalls.Load())

	rows := readCSV(t, output)
	require.Len(t, rows, 4)
	assert.Equal(t, pipeline.Header, rows[0])
	assert.Equal(t, "De Gouden Lepel", rows[1][0])
	assert.Equal(t, srv.URL+"/restaurant/de-gouden-lepel", rows[1][1])
	assert.Equal(t, "0.000", rows[1][13])
	assert.Equal(t, "", rows[2][11], "no geocoding means no coordinates")
	assert.Equal(t, "Sushi Zen", rows[3][0])
	assert.NotEmpty(t, rows[3][13])

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "restaurants_records_exported_total 3")
}

func TestRunWithGeocoding(t *testing.T) {
	srv, geocodeCalls := newSiteServer(t)
	output := filepath.Join(t.TempDir(), "restaurants.csv")

	_, err := executeRoot(t,
		"--base-url", srv.URL,
		"--max-pages", "1",
		"--output", output,
		"--email", "ops@example.com",
		"--geocode-url", srv.URL+"/search",
		"--geocode-pause-seconds", "0",
	)
	require.NoError(t, err)
	assert.EqualValues(t, 1, geocodeCalls.Load())

	rows := readCSV(t, output)
	require.Len(t, rows, 3)
	assert.Equal(t, "Bistro Zonder Plek", rows[2][0])
	assert.Equal(t, "52.093100", rows[2][11])
	assert.Equal(t, "5.119000", rows[2][12])
	assert.NotEmpty(t, rows[2][13])
}

func TestRunGeocodingRequiresEmail(t *testing.T) {
	srv, geocodeCalls := newSiteServer(t)
	output := filepath.Join(t.TempDir(), "restaurants.csv")

	_, err := executeRoot(t,
		"--base-url", srv.URL,
		"--output", output,
		"--geocode-url", srv.URL+"/search",
	)
	var cerr *config.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.True(t, errors.Is(err, config.ErrMissingEmail))
	assert.Zero(t, geocodeCalls.Load())

	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr), "no output before configuration is valid")
}

func TestRunFetchErrorKeepsPreviousOutput(t *testing.T) {
	srv, _ := newSiteServer(t)
	dir := t.TempDir()
	output := filepath.Join(dir, "restaurants.csv")

	_, err := executeRoot(t,
		"--base-url", srv.URL,
		"--max-pages", "2",
		"--pause", "0",
		"--output", output,
	)
	require.NoError(t, err)
	previous, err := os.ReadFile(output)
	require.NoError(t, err)
	require.Len(t, readCSV(t, output), 4)

	_, err = executeRoot(t,
		"--base-url", srv.URL,
		"--max-pages", "3",
		"--pause", "0",
		"--output", output,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch page 3")

	after, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, previous, after, "a failed run must not touch the previous table")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no staged files left behind")
}

func TestRunFetchErrorCreatesNoOutput(t *testing.T) {
	srv, _ := newSiteServer(t)
	output := filepath.Join(t.TempDir(), "restaurants.csv")

	_, err := executeRoot(t,
		"--base-url", srv.URL,
		"--max-pages", "3",
		"--pause", "0",
		"--output", output,
	)
	require.Error(t, err)

	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr), "an aborted run publishes nothing")
}

func TestRootRejectsArguments(t *testing.T) {
	_, err := executeRoot(t, "unexpected")
	require.Error(t, err)
}

func TestCreateWriter(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		format  string
		file    string
		wantErr bool
	}{
		{format: "csv", file: "a.csv"},
		{format: "json", file: "a.jsonl"},
		{format: "dual", file: "b.csv"},
		{format: "xlsx", file: "a.xlsx"},
		{format: "parquet", file: "a.parquet", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			w, err := createWriter(tt.format, filepath.Join(dir, tt.file))
			if tt.wantErr {
				var cerr *config.ConfigError
				require.ErrorAs(t, err, &cerr)
				return
			}
			require.NoError(t, err)
			require.NoError(t, w.Close())
		})
	}

	_, err := os.Stat(filepath.Join(dir, "b.jsonl"))
	assert.NoError(t, err, "dual format writes a JSONL companion")
}

func TestPrintSummaryOmitsGeocodingWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.DefaultConfig()
	printSummary(&buf, &models.RunResult{RunID: "run-1"}, 0, cfg, pipeline.Snapshot{})
	assert.False(t, strings.Contains(buf.String(), "Geocoded"))
	assert.Contains(t, buf.String(), "Output file:   "+config.DefaultOutputFile)
}
