package forms

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "chored/pkg/logx"
)

// rateDateKey is the canonical key format for rate lookups (MM-DD-YYYY,
// matching the reference-rate publication).
const rateDateKey = "01-02-2006"

// csvRateDate is the date format in published rate CSV rows (02-Jan-2006).
const csvRateDate = "02-Jan-2006"

// RateTable maps a date (rateDateKey format) to a USD->INR reference rate.
type RateTable map[string]float64

// Lookup returns the rate for day, falling back to the nearest previous day
// within a week. Markets close on weekends and holidays, so a missing exact
// date is normal.
func (rt RateTable) Lookup(day time.Time) (float64, error) {
	if len(rt) == 0 {
		return 0, fmt.Errorf("rate table is empty")
	}
	for i := 0; i < 7; i++ {
		key := day.AddDate(0, 0, -i).Format(rateDateKey)
		if r, ok := rt[key]; ok {
			return r, nil
		}
	}
	return 0, fmt.Errorf("no rate for %s or the preceding week", day.Format(rateDateKey))
}

// ParseRatesCSV reads "date,rate" rows (header skipped, DD-Mon-YYYY dates).
// Malformed rows are skipped; the publisher's CSV has trailing commentary.
func ParseRatesCSV(r io.Reader) (RateTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	rt := RateTable{}
	first := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			continue
		}
		if len(rec) < 2 {
			continue
		}
		day, derr := time.Parse(csvRateDate, strings.TrimSpace(rec[0]))
		val, verr := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if derr != nil || verr != nil {
			continue
		}
		rt[day.Format(rateDateKey)] = val
	}
	if len(rt) == 0 {
		return nil, fmt.Errorf("no usable rate rows")
	}
	return rt, nil
}

// LoadRatesFile parses a local copy of the reference-rate CSV.
func LoadRatesFile(path string) (RateTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseRatesCSV(f)
}

// RateFetcher pulls the reference-rate CSV over HTTP. Fetches are
// rate-limited so a tight schedule cannot hammer the publisher.
type RateFetcher struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func NewRateFetcher(url string, perSec int, log logx.Logger) *RateFetcher {
	if perSec <= 0 {
		perSec = 1
	}
	return &RateFetcher{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(perSec), perSec),
		log:     log,
	}
}

func (f *RateFetcher) Fetch(ctx context.Context) (RateTable, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rates: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	// The publisher serves UTF-8 with a BOM.
	body = []byte(strings.TrimPrefix(string(body), "\ufeff"))

	rt, err := ParseRatesCSV(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	f.log.Debug("reference rates fetched", logx.String("url", f.url), logx.Int("days", len(rt)))
	return rt, nil
}
