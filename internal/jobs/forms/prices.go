package forms

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// csvPriceDate is the date format in OHLC history exports.
const csvPriceDate = "2006-01-02"

// PricePoint is one trading day of the instrument's history.
type PricePoint struct {
	Date  time.Time
	High  float64
	Close float64
}

// PriceHistory holds OHLC rows in file order (oldest first).
type PriceHistory struct {
	points []PricePoint
}

// ParsePricesCSV reads an OHLC export with a header row naming at least
// Date, High and Close columns (order-independent, extra columns ignored).
func ParsePricesCSV(r io.Reader) (*PriceHistory, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("prices: read header: %w", err)
	}
	idx := map[string]int{}
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	dateIdx, okD := idx["date"]
	highIdx, okH := idx["high"]
	closeIdx, okC := idx["close"]
	if !okD || !okH || !okC {
		return nil, fmt.Errorf("prices: header must name Date, High and Close columns")
	}

	h := &PriceHistory{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) <= dateIdx || len(rec) <= highIdx || len(rec) <= closeIdx {
			continue
		}
		day, derr := time.Parse(csvPriceDate, strings.TrimSpace(rec[dateIdx]))
		high, herr := strconv.ParseFloat(strings.TrimSpace(rec[highIdx]), 64)
		cls, cerr := strconv.ParseFloat(strings.TrimSpace(rec[closeIdx]), 64)
		if derr != nil || herr != nil || cerr != nil {
			continue
		}
		h.points = append(h.points, PricePoint{Date: day, High: high, Close: cls})
	}
	if len(h.points) == 0 {
		return nil, fmt.Errorf("prices: no usable rows")
	}
	return h, nil
}

// LoadPricesFile parses a local OHLC CSV.
func LoadPricesFile(path string) (*PriceHistory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParsePricesCSV(f)
}

// Peak returns the highest intraday price in the history and its date.
func (h *PriceHistory) Peak() (float64, time.Time) {
	best := h.points[0]
	for _, p := range h.points[1:] {
		if p.High > best.High {
			best = p
		}
	}
	return best.High, best.Date
}

// Closing returns the closing price of the last available trading day.
func (h *PriceHistory) Closing() (float64, time.Time) {
	last := h.points[len(h.points)-1]
	return last.Close, last.Date
}
