// Package crawler walks the catalog search API to build the fallback price
// dump and pre-download asset thumbnails.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"rbx-valuation-api/internal/pricing"
	"rbx-valuation-api/internal/roblox"
)

// Catalog is the part of the upstream client the crawler uses.
type Catalog interface {
	SearchCatalog(ctx context.Context, keyword string, assetType int, cursor string) (*roblox.SearchPage, error)
	FetchDetails(ctx context.Context, ids []int64) (*roblox.DetailsResult, error)
	FetchThumbnailURLs(ctx context.Context, ids []int64) (map[int64]string, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

var _ Catalog = (*roblox.Client)(nil)

// Options configures one crawl.
type Options struct {
	Keywords   []string
	AssetTypes []int
	// MaxPages bounds the search pages walked per keyword and asset type.
	MaxPages int
	// SearchRPS paces search requests; zero or less means unpaced.
	SearchRPS float64

	CSVPath string
	IDsPath string
	// Append adds rows to an existing CSV instead of truncating it.
	Append bool

	// ThumbDir receives <id>.png thumbnails; empty disables downloads.
	ThumbDir         string
	ThumbConcurrency int
	// WriteReady also writes ready/<id>.png scaled to ReadySize.
	WriteReady bool
}

// Report summarises a crawl.
type Report struct {
	SearchPages    int                 `json:"searchPages"`
	SearchFailures int                 `json:"searchFailures"`
	IDs            int                 `json:"ids"`
	Rows           int                 `json:"rows"`
	Priced         int                 `json:"priced"`
	Details        roblox.DetailsStats `json:"details"`
	Thumbnails     int64               `json:"thumbnails"`
	ThumbsSkipped  int64               `json:"thumbsSkipped"`
	ThumbsFailed   int64               `json:"thumbsFailed"`
}

// Crawler runs catalog crawls.
type Crawler struct {
	catalog Catalog
	opts    Options
	limiter *rate.Limiter
	log     *zap.Logger
}

// New creates a crawler.
func New(catalog Catalog, opts Options, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1
	}
	if opts.ThumbConcurrency <= 0 {
		opts.ThumbConcurrency = 8
	}
	if len(opts.Keywords) == 0 {
		opts.Keywords = []string{""}
	}

	limit := rate.Inf
	if opts.SearchRPS > 0 {
		limit = rate.Limit(opts.SearchRPS)
	}

	return &Crawler{
		catalog: catalog,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		log:     logger.Named("crawler"),
	}
}

// Run searches, prices and writes the dump, then downloads thumbnails.
func (c *Crawler) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	ids, err := c.search(ctx, report)
	if err != nil {
		return report, err
	}
	report.IDs = len(ids)
	c.log.Info("search finished", zap.Int("ids", len(ids)), zap.Int("pages", report.SearchPages))

	if c.opts.IDsPath != "" {
		if err := writeIDs(c.opts.IDsPath, ids); err != nil {
			return report, err
		}
	}
	if len(ids) == 0 {
		return report, nil
	}

	details, err := c.catalog.FetchDetails(ctx, ids)
	if err != nil {
		return report, fmt.Errorf("failed to fetch details: %w", err)
	}
	report.Details = details.Stats

	if c.opts.CSVPath != "" {
		if err := c.writeCSV(ids, details, report); err != nil {
			return report, err
		}
	}

	if c.opts.ThumbDir != "" {
		if err := c.thumbnails(ctx, ids, report); err != nil {
			return report, err
		}
	}

	c.log.Info("crawl finished",
		zap.Int("ids", report.IDs),
		zap.Int("rows", report.Rows),
		zap.Int("priced", report.Priced),
		zap.Int64("thumbnails", report.Thumbnails),
	)
	return report, nil
}

// search walks every keyword and asset type, keeping first-seen order.
func (c *Crawler) search(ctx context.Context, report *Report) ([]int64, error) {
	seen := make(map[int64]struct{})
	var ids []int64

	for _, kw := range c.opts.Keywords {
		for _, assetType := range c.opts.AssetTypes {
			cursor := ""
			for page := 0; page < c.opts.MaxPages; page++ {
				if err := c.limiter.Wait(ctx); err != nil {
					return nil, err
				}

				res, err := c.catalog.SearchCatalog(ctx, kw, assetType, cursor)
				if err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					report.SearchFailures++
					c.log.Warn("search page failed",
						zap.String("keyword", kw),
						zap.Int("asset_type", assetType),
						zap.Int("page", page),
						zap.Error(err),
					)
					break
				}
				report.SearchPages++

				for _, id := range res.IDs {
					if _, dup := seen[id]; dup {
						continue
					}
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
				if res.NextCursor == "" {
					break
				}
				cursor = res.NextCursor
			}
		}
	}
	return ids, nil
}

func (c *Crawler) writeCSV(ids []int64, details *roblox.DetailsResult, report *Report) error {
	if err := os.MkdirAll(filepath.Dir(c.opts.CSVPath), 0o755); err != nil {
		return fmt.Errorf("failed to create csv dir: %w", err)
	}
	w, err := pricing.NewSeedWriter(c.opts.CSVPath, c.opts.Append)
	if err != nil {
		return err
	}

	for _, id := range ids {
		d, ok := details.ByID[id]
		if !ok {
			continue
		}
		var price *int64
		if info, ok := pricing.FromCatalog(d.Row); ok {
			v := info.Value
			price = &v
			report.Priced++
		}
		if err := w.Write(id, d.Name, price, pricing.IsCollectible(d.Row)); err != nil {
			w.Close()
			return err
		}
		report.Rows++
	}
	return w.Close()
}

// thumbnails downloads missing <id>.png files.
func (c *Crawler) thumbnails(ctx context.Context, ids []int64, report *Report) error {
	if err := os.MkdirAll(c.opts.ThumbDir, 0o755); err != nil {
		return fmt.Errorf("failed to create thumbnail dir: %w", err)
	}

	var pending []int64
	for _, id := range ids {
		if exists(c.thumbPath(id)) {
			report.ThumbsSkipped++
			continue
		}
		pending = append(pending, id)
	}
	if len(pending) == 0 {
		return nil
	}

	urls, err := c.catalog.FetchThumbnailURLs(ctx, pending)
	if err != nil && len(urls) == 0 {
		return fmt.Errorf("failed to resolve thumbnails: %w", err)
	}
	if err != nil {
		c.log.Warn("some thumbnail batches failed", zap.Error(err))
	}

	var done, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.ThumbConcurrency)
	for _, id := range pending {
		u, ok := urls[id]
		if !ok {
			failed.Add(1)
			continue
		}
		id := id
		g.Go(func() error {
			if err := c.downloadOne(gctx, id, u); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				c.log.Debug("thumbnail failed", zap.Int64("asset_id", id), zap.Error(err))
				return nil
			}
			done.Add(1)
			return nil
		})
	}
	err = g.Wait()

	report.Thumbnails = done.Load()
	report.ThumbsFailed = failed.Load()
	return err
}

func (c *Crawler) downloadOne(ctx context.Context, id int64, url string) error {
	data, err := c.catalog.Download(ctx, url)
	if err != nil {
		return err
	}
	if err := writeAtomic(c.thumbPath(id), data); err != nil {
		return err
	}
	if !c.opts.WriteReady {
		return nil
	}

	ready, err := ReadyImage(data)
	if err != nil {
		return fmt.Errorf("failed to scale thumbnail: %w", err)
	}
	return writeAtomic(c.readyPath(id), ready)
}

func (c *Crawler) thumbPath(id int64) string {
	return filepath.Join(c.opts.ThumbDir, strconv.FormatInt(id, 10)+".png")
}

func (c *Crawler) readyPath(id int64) string {
	return filepath.Join(c.opts.ThumbDir, "ready", strconv.FormatInt(id, 10)+".png")
}

func writeIDs(path string, ids []int64) error {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteByte('\n')
	}
	return writeAtomic(path, []byte(b.String()))
}

// writeAtomic writes data to a temp file next to path and renames it.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
