package forms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "chored/pkg/logx"
)

const ratesFixture = `Date,Rate
01-Feb-2024,83.00
02-Feb-2024,83.50
14-Feb-2024,83.25
29-Feb-2024,82.75
garbage row without a rate
`

const pricesFixture = `Date,Open,High,Low,Close,Volume
2024-02-01,60.00,62.50,59.00,61.00,1000
2024-02-15,61.00,70.00,60.00,65.00,1000
2024-02-29,66.00,68.00,64.00,67.00,1000
`

const lotsFixture = `Number of shares,Purchase date (MM/DD/YYYY),Purchase price (USD),Sale date (MM/DD/YYYY),Sale price (USD)
10,02/01/2024,50.00,,
4,02/02/2024,55.00,02/29/2024,66.00
`

const templateFixture = `{
  "Output Header": [
    "Country/Region name",
    "Date of acquiring the interest",
    "Initial value of the investment",
    "Peak value of investment during the Period",
    "Closing balance",
    "Total gross proceeds from sale or redemption of investment during the period"
  ],
  "MRVL": {
    "Country/Region name": "United States"
  }
}`

func day(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("bad test date %q: %v", value, err)
	}
	return d
}

func TestParseRatesCSVSkipsMalformedRows(t *testing.T) {
	rt, err := ParseRatesCSV(strings.NewReader(ratesFixture))
	if err != nil {
		t.Fatalf("ParseRatesCSV: %v", err)
	}
	if len(rt) != 4 {
		t.Fatalf("got %d rates, want 4", len(rt))
	}
	r, err := rt.Lookup(day(t, "2024-02-02"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if r != 83.50 {
		t.Fatalf("rate = %v, want 83.50", r)
	}
}

func TestRateLookupFallsBackWithinAWeek(t *testing.T) {
	rt, err := ParseRatesCSV(strings.NewReader(ratesFixture))
	if err != nil {
		t.Fatalf("ParseRatesCSV: %v", err)
	}

	// Feb 5 is missing; Feb 2 is the nearest earlier day.
	r, err := rt.Lookup(day(t, "2024-02-05"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if r != 83.50 {
		t.Fatalf("fallback rate = %v, want 83.50", r)
	}

	// Feb 22 has no rate within the preceding week.
	if _, err := rt.Lookup(day(t, "2024-02-22")); err == nil {
		t.Fatal("expected an error for a gap wider than a week")
	}
}

func TestRateLookupEmptyTable(t *testing.T) {
	if _, err := (RateTable{}).Lookup(day(t, "2024-02-01")); err == nil {
		t.Fatal("expected an error for an empty table")
	}
}

func TestPriceHistoryPeakAndClosing(t *testing.T) {
	h, err := ParsePricesCSV(strings.NewReader(pricesFixture))
	if err != nil {
		t.Fatalf("ParsePricesCSV: %v", err)
	}

	peak, peakDay := h.Peak()
	if peak != 70.00 || !peakDay.Equal(day(t, "2024-02-15")) {
		t.Fatalf("Peak = %v on %s, want 70.00 on 2024-02-15", peak, peakDay.Format("2006-01-02"))
	}

	cls, clsDay := h.Closing()
	if cls != 67.00 || !clsDay.Equal(day(t, "2024-02-29")) {
		t.Fatalf("Closing = %v on %s, want 67.00 on 2024-02-29", cls, clsDay.Format("2006-01-02"))
	}
}

func TestParsePricesCSVRequiresColumns(t *testing.T) {
	if _, err := ParsePricesCSV(strings.NewReader("Date,Open\n2024-02-01,60\n")); err == nil {
		t.Fatal("expected an error for a header without High/Close")
	}
}

func TestParseLotsCSV(t *testing.T) {
	lots, err := ParseLotsCSV(strings.NewReader(lotsFixture))
	if err != nil {
		t.Fatalf("ParseLotsCSV: %v", err)
	}
	if len(lots) != 2 {
		t.Fatalf("got %d lots, want 2", len(lots))
	}
	if lots[0].Shares != 10 || lots[0].PurchasePrice != 50.00 {
		t.Fatalf("lot 1 = %+v", lots[0])
	}
	if lots[0].SaleDate != nil {
		t.Fatal("lot 1 should be unsold")
	}
	if lots[1].SaleDate == nil || lots[1].SalePrice != 66.00 {
		t.Fatalf("lot 2 = %+v", lots[1])
	}
}

func TestLoadTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.json")
	if err := os.WriteFile(path, []byte(templateFixture), 0o644); err != nil {
		t.Fatal(err)
	}

	tpl, err := LoadTemplate(path, "MRVL")
	if err != nil {
		t.Fatalf("LoadTemplate: %v", err)
	}
	if len(tpl.Header) != 6 {
		t.Fatalf("got %d header columns, want 6", len(tpl.Header))
	}
	if tpl.Fields["Country/Region name"] != "United States" {
		t.Fatalf("fields = %v", tpl.Fields)
	}

	if _, err := LoadTemplate(path, "NOPE"); err == nil {
		t.Fatal("expected an error for an unknown ticker")
	}
}

func TestGeneratorComputesRows(t *testing.T) {
	rt, err := ParseRatesCSV(strings.NewReader(ratesFixture))
	if err != nil {
		t.Fatal(err)
	}
	prices, err := ParsePricesCSV(strings.NewReader(pricesFixture))
	if err != nil {
		t.Fatal(err)
	}
	lots, err := ParseLotsCSV(strings.NewReader(lotsFixture))
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "template.json")
	if err := os.WriteFile(path, []byte(templateFixture), 0o644); err != nil {
		t.Fatal(err)
	}
	tpl, err := LoadTemplate(path, "MRVL")
	if err != nil {
		t.Fatal(err)
	}

	gen := &Generator{Template: tpl, Rates: rt, Prices: prices}
	rows, err := gen.Generate(lots)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	// Unsold lot: 10 shares bought at 50.00 on Feb 1 (rate 83.00).
	// Peak 70.00 on Feb 15 falls back to the Feb 14 rate (83.25).
	// Closing 67.00 on Feb 29 (rate 82.75). No proceeds.
	want0 := []string{
		"United States",
		"02/01/2024",
		"41500.00", // 10 * 50.00 * 83.00
		"58275.00", // 10 * 70.00 * 83.25
		"55442.50", // 10 * 67.00 * 82.75
		"",
	}
	assertRow(t, rows[0], want0)

	// Sold lot: 4 shares, sold Feb 29 at 66.00 (rate 82.75). No closing balance.
	want1 := []string{
		"United States",
		"02/02/2024",
		"18370.00", // 4 * 55.00 * 83.50
		"23310.00", // 4 * 70.00 * 83.25
		"",
		"21846.00", // 4 * 66.00 * 82.75
	}
	assertRow(t, rows[1], want1)
}

func assertRow(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("row has %d columns, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("column %d = %q, want %q (row %v)", i, got[i], want[i], got)
		}
	}
}

func TestRateFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The publisher serves the CSV with a UTF-8 BOM.
		w.Write([]byte("\ufeff" + ratesFixture))
	}))
	defer srv.Close()

	f := NewRateFetcher(srv.URL, 5, logx.Nop())
	rt, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	r, err := rt.Lookup(day(t, "2024-02-29"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if r != 82.75 {
		t.Fatalf("rate = %v, want 82.75", r)
	}
}

func TestRateFetcherRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewRateFetcher(srv.URL, 5, logx.Nop()).Fetch(context.Background()); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

func TestJobRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		t.Helper()
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	cfg := Config{
		Name:      "fa-2024",
		Ticker:    "MRVL",
		Template:  write("template.json", templateFixture),
		Input:     write("lots.csv", lotsFixture),
		Prices:    write("prices.csv", pricesFixture),
		RatesFile: write("rates.csv", ratesFixture),
		Output:    filepath.Join(dir, "out", "fa-2024.csv"),
	}

	job := New(cfg, logx.Nop())
	if job.Name() != "form:fa-2024" {
		t.Fatalf("Name = %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out, err := os.ReadFile(cfg.Output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d output lines, want header + 2 rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Country/Region name,") {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "41500.00") {
		t.Fatalf("row 1 = %q", lines[1])
	}
}
