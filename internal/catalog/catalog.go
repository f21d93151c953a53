// Package catalog indexes the broker's instrument scrip master and answers
// expiry and contract-resolution queries. The table is fetched once, cached
// to disk, and treated as an immutable snapshot for the process lifetime.
package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/mageshtv/dhanbridge/internal/models"
	"github.com/mageshtv/dhanbridge/internal/retry"
)

// ErrUnavailable is returned when the scrip master cannot be fetched and no
// cached copy exists on disk.
var ErrUnavailable = errors.New("instrument catalog unavailable")

// ErrExpiryNotFound is returned when fewer qualifying expiries exist than the
// requested expiry index.
var ErrExpiryNotFound = errors.New("expiry not found")

// ErrInstrumentNotFound is returned when no row matches the requested
// underlying/expiry/strike/type combination.
var ErrInstrumentNotFound = errors.New("instrument not found")

// Row is one tradeable contract from the scrip master.
type Row struct {
	Underlying string
	OptionType string
	// StrikeText is the raw strike field; strikes are matched after parsing
	// and truncating to an integer, and unparseable strikes never match.
	StrikeText string
	Expiry     time.Time
	HasExpiry  bool
	SecurityID string
	LotSize    int
}

// Config holds catalog source settings.
type Config struct {
	URL         string
	LocalPath   string
	HTTPTimeout time.Duration
	Retry       retry.Config
}

// Catalog lazily loads the scrip master and memoizes it. The first load is
// deduplicated across concurrent callers; once loaded, reads need no locking
// beyond the snapshot swap guard.
type Catalog struct {
	cfg    Config
	client *http.Client
	logger *logrus.Logger
	group  singleflight.Group

	mu     sync.RWMutex
	rows   []Row
	loaded bool

	now func() time.Time
}

// New creates a Catalog. Nothing is fetched until the first query.
func New(cfg Config, logger *logrus.Logger) *Catalog {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Catalog{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
		now:    time.Now,
	}
}

// NewFromRows creates a pre-loaded Catalog from an in-memory snapshot.
// No fetch is ever performed; Refresh is a no-op failure path.
func NewFromRows(rows []Row, logger *logrus.Logger) *Catalog {
	c := New(Config{}, logger)
	c.rows = rows
	c.loaded = true
	return c
}

// expiry date formats, tried in order
var dateLayouts = []string{"2006-01-02", "02-Jan-2006", "02-01-2006"}

// ParseDate parses an expiry date in one of the accepted formats. Unparseable
// or empty values are treated as no-expiry.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// load memoizes the scrip master, deduplicating concurrent first-time loads.
func (c *Catalog) load(ctx context.Context) ([]Row, error) {
	c.mu.RLock()
	if c.loaded {
		rows := c.rows
		c.mu.RUnlock()
		return rows, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("load", func() (interface{}, error) {
		c.mu.RLock()
		if c.loaded {
			rows := c.rows
			c.mu.RUnlock()
			return rows, nil
		}
		c.mu.RUnlock()
		return c.fetchAndParse(ctx, false)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Row), nil
}

// Warm eagerly loads the scrip master so the first query doesn't pay for the
// download.
func (c *Catalog) Warm(ctx context.Context) error {
	_, err := c.load(ctx)
	return err
}

// Refresh forces a re-download of the scrip master and swaps the snapshot.
// Concurrent refreshes are deduplicated.
func (c *Catalog) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		return c.fetchAndParse(ctx, true)
	})
	return err
}

func (c *Catalog) fetchAndParse(ctx context.Context, force bool) ([]Row, error) {
	path := c.cfg.LocalPath

	_, statErr := os.Stat(path)
	haveCache := statErr == nil

	if force || !haveCache {
		if err := c.download(ctx, path); err != nil {
			if !haveCache {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			c.logger.Warnf("scrip master download failed, using cached copy: %v", err)
		}
	}

	f, err := os.Open(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = f.Close() }()

	rows, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parsing scrip master: %w", err)
	}

	c.mu.Lock()
	c.rows = rows
	c.loaded = true
	c.mu.Unlock()

	c.logger.Infof("loaded %d instrument rows from %s", len(rows), path)
	return rows, nil
}

func (c *Catalog) download(ctx context.Context, path string) error {
	c.logger.Infof("downloading scrip master from %s", c.cfg.URL)

	return retry.Do(ctx, c.logger, c.cfg.Retry, "scrip master download", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
		if err != nil {
			return err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		// Write to temp file first, then atomic rename so a half-written
		// download never shadows a good cache.
		tmp := path + ".tmp"
		out, err := os.Create(tmp) // #nosec G304 -- path comes from operator config
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, resp.Body); err != nil {
			_ = out.Close()
			_ = os.Remove(tmp)
			return err
		}
		if err := out.Close(); err != nil {
			_ = os.Remove(tmp)
			return err
		}
		return os.Rename(tmp, path)
	})
}

// ParseCSV reads scrip master rows from r. Column positions are resolved from
// the header line.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToUpper(strings.TrimSpace(name))] = i
	}
	col := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	if _, ok := idx["UNDERLYING_SYMBOL"]; !ok {
		return nil, errors.New("missing UNDERLYING_SYMBOL column")
	}
	if _, ok := idx["SECURITY_ID"]; !ok {
		return nil, errors.New("missing SECURITY_ID column")
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		row := Row{
			Underlying: col(rec, "UNDERLYING_SYMBOL"),
			OptionType: strings.ToUpper(col(rec, "OPTION_TYPE")),
			StrikeText: col(rec, "STRIKE_PRICE"),
			SecurityID: col(rec, "SECURITY_ID"),
		}
		row.Expiry, row.HasExpiry = ParseDate(col(rec, "SM_EXPIRY_DATE"))
		if n, err := strconv.ParseFloat(col(rec, "LOT_SIZE"), 64); err == nil {
			row.LotSize = int(n)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// NearestExpiry returns the index-th distinct future expiry (today included,
// ascending) for rows whose underlying matches exactly, case-insensitively.
func (c *Catalog) NearestExpiry(ctx context.Context, underlying string, index int) (time.Time, error) {
	rows, err := c.load(ctx)
	if err != nil {
		return time.Time{}, err
	}

	today := truncateToDay(c.now().UTC())
	seen := make(map[time.Time]struct{})
	var expiries []time.Time
	for _, row := range rows {
		if !strings.EqualFold(row.Underlying, underlying) {
			continue
		}
		if !row.HasExpiry || row.Expiry.Before(today) {
			continue
		}
		if _, dup := seen[row.Expiry]; dup {
			continue
		}
		seen[row.Expiry] = struct{}{}
		expiries = append(expiries, row.Expiry)
	}

	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })

	if index < 0 || index >= len(expiries) {
		return time.Time{}, fmt.Errorf("%w: underlying %s has %d future expiries, want index %d",
			ErrExpiryNotFound, underlying, len(expiries), index)
	}
	return expiries[index], nil
}

// ResolveOption returns the first row matching underlying (case-insensitive
// exact), option type, expiry date, and integer strike. The row's strike is
// parsed as a number and truncated before comparison.
func (c *Catalog) ResolveOption(ctx context.Context, underlying string, expiry time.Time, strikePrice int, optionType models.OptionType) (*Row, error) {
	rows, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	for i := range rows {
		row := &rows[i]
		if !strings.EqualFold(row.Underlying, underlying) {
			continue
		}
		if row.OptionType != string(optionType) {
			continue
		}
		if !row.HasExpiry || !row.Expiry.Equal(expiry) {
			continue
		}
		f, err := strconv.ParseFloat(row.StrikeText, 64)
		if err != nil || int(f) != strikePrice {
			continue
		}
		return row, nil
	}

	return nil, fmt.Errorf("%w: %s %s strike %d expiry %s",
		ErrInstrumentNotFound, underlying, optionType, strikePrice, expiry.Format("2006-01-02"))
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
