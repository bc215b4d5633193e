// Package watchlist loads the static symbol universe from the CSV files
// named in config.Config (one list for the ORB engine, a second,
// narrower one for the 0DTE sub-engine).
package watchlist

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/steinwealth/easyorb/internal/model"
)

// Load reads a watchlist CSV with header
// ticker,tier,leveraged,inverse,inverse_of,sector,strike_increment.
// Blank lines and a leading header row are tolerated.
func Load(path string) ([]model.Symbol, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open watchlist %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read watchlist %s: %w", path, err)
	}

	var out []model.Symbol
	for i, row := range records {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		ticker := strings.ToUpper(strings.TrimSpace(row[0]))
		if i == 0 && (ticker == "TICKER" || strings.HasPrefix(ticker, "#")) {
			continue
		}
		sym := model.Symbol{Ticker: ticker, Tier: 3, StrikeIncrement: 1.0}
		if len(row) > 1 {
			if tier, err := strconv.Atoi(strings.TrimSpace(row[1])); err == nil {
				sym.Tier = tier
			}
		}
		if len(row) > 2 {
			sym.IsLeveraged, _ = strconv.ParseBool(strings.TrimSpace(row[2]))
		}
		if len(row) > 3 {
			sym.IsInverse, _ = strconv.ParseBool(strings.TrimSpace(row[3]))
		}
		if len(row) > 4 {
			sym.InverseOf = strings.ToUpper(strings.TrimSpace(row[4]))
		}
		if len(row) > 5 {
			sym.Sector = strings.TrimSpace(row[5])
		}
		if len(row) > 6 {
			if inc, err := strconv.ParseFloat(strings.TrimSpace(row[6]), 64); err == nil && inc > 0 {
				sym.StrikeIncrement = inc
			}
		}
		out = append(out, sym)
	}
	return out, nil
}

// Tickers extracts the bare ticker list, the shape internal/broker's
// batch quote call and internal/advcache's refresh call both want.
func Tickers(symbols []model.Symbol) []string {
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = s.Ticker
	}
	return out
}
