// Package filecache persists normalized weather series on disk so repeated
// simulations against the same source and location skip the upstream fetch.
//
// Entries are keyed by a short digest of the request parameters and written
// atomically (temp file + rename), so a crashed writer never leaves a
// half-written entry behind.
package filecache

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	weatherdomain "pvsim-cloud/internal/weather/domain"
)

const keyDigestLen = 16 // hex chars

var csvHeader = []string{"time", "ghi", "dni", "dhi", "temp_air", "wind_speed", "pressure"}

// Cache is a directory of weather series CSV files.
type Cache struct {
	root string
}

// New creates the cache directory if needed.
func New(root string) (*Cache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("filecache: create root: %w", err)
	}
	return &Cache{root: root}, nil
}

// Root returns the cache directory.
func (c *Cache) Root() string { return c.root }

// Key digests the sorted request parameters into a short stable identifier.
func Key(parts map[string]string) string {
	keys := make([]string, 0, len(parts))
	for k := range parts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+parts[k])
	}
	sum := sha256.Sum256([]byte(strings.Join(pairs, "|")))
	return hex.EncodeToString(sum[:])[:keyDigestLen]
}

// Path returns the file an entry would live at.
func (c *Cache) Path(prefix string, parts map[string]string) string {
	return filepath.Join(c.root, prefix+"-"+Key(parts)+".csv")
}

// Get loads a cached series. The second return is false on a miss.
func (c *Cache) Get(prefix string, parts map[string]string) (weatherdomain.Series, bool, error) {
	f, err := os.Open(c.Path(prefix, parts))
	if os.IsNotExist(err) {
		return weatherdomain.Series{}, false, nil
	}
	if err != nil {
		return weatherdomain.Series{}, false, fmt.Errorf("filecache: open entry: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return weatherdomain.Series{}, false, fmt.Errorf("filecache: read entry: %w", err)
	}
	if len(records) < 1 {
		return weatherdomain.Series{}, false, fmt.Errorf("filecache: empty entry")
	}

	samples := make([]weatherdomain.Sample, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(csvHeader) {
			return weatherdomain.Series{}, false, fmt.Errorf("filecache: row %d has %d fields", i+1, len(rec))
		}
		ts, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return weatherdomain.Series{}, false, fmt.Errorf("filecache: row %d time: %w", i+1, err)
		}
		samples = append(samples, weatherdomain.Sample{
			Time:      ts,
			GHI:       parseCell(rec[1]),
			DNI:       parseCell(rec[2]),
			DHI:       parseCell(rec[3]),
			TempAir:   parseCell(rec[4]),
			WindSpeed: parseCell(rec[5]),
			Pressure:  parseCell(rec[6]),
		})
	}
	series, err := weatherdomain.NewSeries(samples)
	if err != nil {
		return weatherdomain.Series{}, false, fmt.Errorf("filecache: rebuild series: %w", err)
	}
	return series, true, nil
}

// Put writes a series atomically and returns its final path.
func (c *Cache) Put(prefix string, parts map[string]string, series weatherdomain.Series) (string, error) {
	tmp, err := os.CreateTemp(c.root, prefix+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("filecache: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return "", fmt.Errorf("filecache: write header: %w", err)
	}
	for _, s := range series.Samples {
		rec := []string{
			s.Time.Format(time.RFC3339),
			formatCell(s.GHI),
			formatCell(s.DNI),
			formatCell(s.DHI),
			formatCell(s.TempAir),
			formatCell(s.WindSpeed),
			formatCell(s.Pressure),
		}
		if err := w.Write(rec); err != nil {
			tmp.Close()
			return "", fmt.Errorf("filecache: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("filecache: flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("filecache: close temp: %w", err)
	}

	final := c.Path(prefix, parts)
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("filecache: publish entry: %w", err)
	}
	return final, nil
}

// Missing values round-trip as empty cells.
func formatCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseCell(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
