// Package forms generates foreign-asset disclosure CSVs by combining a JSON
// field template with an input CSV of share lots, a price history and a
// USD->INR reference-rate table.
package forms

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	logx "chored/pkg/logx"
)

// Input CSV columns (DictReader-style; column order does not matter).
const (
	colShares        = "Number of shares"
	colPurchaseDate  = "Purchase date (MM/DD/YYYY)"
	colPurchasePrice = "Purchase price (USD)"
	colSaleDate      = "Sale date (MM/DD/YYYY)"
	colSalePrice     = "Sale price (USD)"
)

// Computed output fields. Everything else comes from the template verbatim
// or stays blank.
const (
	fieldAcquired = "Date of acquiring the interest"
	fieldInitial  = "Initial value of the investment"
	fieldPeak     = "Peak value of investment during the Period"
	fieldClosing  = "Closing balance"
	fieldProceeds = "Total gross proceeds from sale or redemption of investment during the period"
)

const csvLotDate = "01/02/2006"

// Template is the JSON side of a form: the output column order plus fixed
// per-ticker values (entity name, address, country code, ...).
type Template struct {
	Header []string
	Fields map[string]string
}

// LoadTemplate reads a template file shaped like
//
//	{"Output Header": ["col", ...], "MRVL": {"col": "value", ...}}
//
// and extracts the section for ticker.
func LoadTemplate(path, ticker string) (*Template, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("template %s: %w", path, err)
	}

	var header []string
	if err := json.Unmarshal(raw["Output Header"], &header); err != nil || len(header) == 0 {
		return nil, fmt.Errorf("template %s: missing or invalid \"Output Header\"", path)
	}
	sect, ok := raw[ticker]
	if !ok {
		return nil, fmt.Errorf("template %s: no section for ticker %q", path, ticker)
	}
	fields := map[string]string{}
	if err := json.Unmarshal(sect, &fields); err != nil {
		return nil, fmt.Errorf("template %s: ticker %q section: %w", path, ticker, err)
	}
	return &Template{Header: header, Fields: fields}, nil
}

// Lot is one row of the input CSV. Optional columns stay nil/zero.
type Lot struct {
	Shares        float64
	PurchaseDate  *time.Time
	PurchasePrice float64
	SaleDate      *time.Time
	SalePrice     float64
}

// ParseLotsCSV reads the share-lot input by header name.
func ParseLotsCSV(r io.Reader) ([]Lot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("lots: read header: %w", err)
	}
	idx := map[string]int{}
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}

	get := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var lots []Lot
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		var lot Lot
		if v := get(rec, colShares); v != "" {
			if lot.Shares, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, fmt.Errorf("lots: bad share count %q: %w", v, err)
			}
		}
		if v := get(rec, colPurchaseDate); v != "" {
			d, err := time.Parse(csvLotDate, v)
			if err != nil {
				return nil, fmt.Errorf("lots: bad purchase date %q: %w", v, err)
			}
			lot.PurchaseDate = &d
		}
		if v := get(rec, colPurchasePrice); v != "" {
			if lot.PurchasePrice, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, fmt.Errorf("lots: bad purchase price %q: %w", v, err)
			}
		}
		if v := get(rec, colSaleDate); v != "" {
			d, err := time.Parse(csvLotDate, v)
			if err != nil {
				return nil, fmt.Errorf("lots: bad sale date %q: %w", v, err)
			}
			lot.SaleDate = &d
		}
		if v := get(rec, colSalePrice); v != "" {
			if lot.SalePrice, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, fmt.Errorf("lots: bad sale price %q: %w", v, err)
			}
		}
		lots = append(lots, lot)
	}
	return lots, nil
}

// Generator combines the data sources into output rows.
type Generator struct {
	Template *Template
	Rates    RateTable
	Prices   *PriceHistory
}

// Generate produces one output row per lot, columns in template-header order.
func (g *Generator) Generate(lots []Lot) ([][]string, error) {
	rows := make([][]string, 0, len(lots))
	for i, lot := range lots {
		row, err := g.row(lot)
		if err != nil {
			return nil, fmt.Errorf("lot %d: %w", i+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (g *Generator) row(lot Lot) ([]string, error) {
	row := make([]string, 0, len(g.Template.Header))
	for _, field := range g.Template.Header {
		// Fixed template values win over computed ones.
		if v, ok := g.Template.Fields[field]; ok {
			row = append(row, v)
			continue
		}

		val := ""
		switch field {
		case fieldAcquired:
			if lot.PurchaseDate != nil {
				val = lot.PurchaseDate.Format(csvLotDate)
			}

		case fieldInitial:
			if lot.Shares > 0 && lot.PurchasePrice > 0 && lot.PurchaseDate != nil {
				r, err := g.Rates.Lookup(*lot.PurchaseDate)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", field, err)
				}
				val = inr(lot.Shares * lot.PurchasePrice * r)
			}

		case fieldPeak:
			if lot.Shares > 0 {
				price, day := g.Prices.Peak()
				r, err := g.Rates.Lookup(day)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", field, err)
				}
				val = inr(lot.Shares * price * r)
			}

		case fieldClosing:
			// Only unsold lots carry a closing balance.
			if lot.Shares > 0 && lot.SaleDate == nil {
				price, day := g.Prices.Closing()
				r, err := g.Rates.Lookup(day)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", field, err)
				}
				val = inr(lot.Shares * price * r)
			}

		case fieldProceeds:
			if lot.Shares > 0 && lot.SalePrice > 0 && lot.SaleDate != nil {
				r, err := g.Rates.Lookup(*lot.SaleDate)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", field, err)
				}
				val = inr(lot.Shares * lot.SalePrice * r)
			}
		}
		row = append(row, val)
	}
	return row, nil
}

func inr(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

// ---- Job ----

type Config struct {
	Name     string
	Ticker   string
	Template string
	Input    string
	Output   string
	Prices   string

	RatesFile  string
	RatesURL   string
	RatePerSec int
}

type Job struct {
	cfg     Config
	fetcher *RateFetcher
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Job {
	j := &Job{cfg: cfg, log: log}
	if strings.TrimSpace(cfg.RatesURL) != "" {
		j.fetcher = NewRateFetcher(cfg.RatesURL, cfg.RatePerSec, log)
	}
	return j
}

func (j *Job) Name() string { return "form:" + j.cfg.Name }

func (j *Job) Run(ctx context.Context) error {
	tpl, err := LoadTemplate(j.cfg.Template, j.cfg.Ticker)
	if err != nil {
		return fmt.Errorf("forms: %w", err)
	}

	var rates RateTable
	if j.fetcher != nil {
		rates, err = j.fetcher.Fetch(ctx)
	} else {
		rates, err = LoadRatesFile(j.cfg.RatesFile)
	}
	if err != nil {
		return fmt.Errorf("forms: rates: %w", err)
	}

	prices, err := LoadPricesFile(j.cfg.Prices)
	if err != nil {
		return fmt.Errorf("forms: %w", err)
	}

	in, err := os.Open(j.cfg.Input)
	if err != nil {
		return fmt.Errorf("forms: open input: %w", err)
	}
	lots, err := ParseLotsCSV(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("forms: %w", err)
	}

	gen := &Generator{Template: tpl, Rates: rates, Prices: prices}
	rows, err := gen.Generate(lots)
	if err != nil {
		return fmt.Errorf("forms: %w", err)
	}

	if err := writeForm(j.cfg.Output, tpl.Header, rows); err != nil {
		return fmt.Errorf("forms: %w", err)
	}
	j.log.Info("form generated",
		logx.String("form", j.cfg.Name),
		logx.String("output", j.cfg.Output),
		logx.Int("rows", len(rows)))
	return nil
}

func writeForm(path string, header []string, rows [][]string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}
