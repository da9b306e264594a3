package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"rbx-valuation-api/internal/config"
	"rbx-valuation-api/internal/crawler"
	"rbx-valuation-api/internal/logger"
	"rbx-valuation-api/internal/roblox"
)

func main() {
	app := &cli.App{
		Name:  "crawler",
		Usage: "Walk the catalog search API, write the price dump and pre-download thumbnails.",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "keyword", Aliases: []string{"k"}, Usage: "search keyword (repeatable)"},
			&cli.IntSliceFlag{Name: "type", Aliases: []string{"t"}, Usage: "asset type id (repeatable)"},
			&cli.IntFlag{Name: "pages", Usage: "max search pages per keyword and type"},
			&cli.Float64Flag{Name: "rps", Usage: "search requests per second"},
			&cli.StringFlag{Name: "csv", Usage: "price csv path"},
			&cli.StringFlag{Name: "ids", Usage: "catalog id list path"},
			&cli.BoolFlag{Name: "append", Usage: "append to the price csv instead of truncating it"},
			&cli.StringFlag{Name: "thumbs", Usage: "thumbnail directory"},
			&cli.BoolFlag{Name: "no-thumbs", Usage: "skip thumbnail downloads"},
			&cli.BoolFlag{Name: "ready", Usage: "also write 150x150 ready images"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.Must(cfg.App)
	defer log.Sync()

	up, err := roblox.NewFromConfig(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to init upstream: %w", err)
	}
	defer up.Registry.CloseAll()

	opts := optionsFromConfig(cfg)
	if c.IsSet("keyword") {
		opts.Keywords = c.StringSlice("keyword")
	}
	if c.IsSet("type") {
		opts.AssetTypes = c.IntSlice("type")
	}
	if c.IsSet("pages") {
		opts.MaxPages = c.Int("pages")
	}
	if c.IsSet("rps") {
		opts.SearchRPS = c.Float64("rps")
	}
	if c.IsSet("csv") {
		opts.CSVPath = c.String("csv")
	}
	if c.IsSet("ids") {
		opts.IDsPath = c.String("ids")
	}
	if c.IsSet("thumbs") {
		opts.ThumbDir = c.String("thumbs")
	}
	if c.IsSet("ready") {
		opts.WriteReady = c.Bool("ready")
	}
	opts.Append = c.Bool("append")
	if c.Bool("no-thumbs") {
		opts.ThumbDir = ""
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := crawler.New(up.Client, opts, log).Run(ctx)
	if report != nil {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
	}
	if err != nil {
		log.Error("crawl failed", zap.Error(err))
		return err
	}
	return nil
}

func optionsFromConfig(cfg *config.Config) crawler.Options {
	return crawler.Options{
		Keywords:         cfg.Crawler.Keywords,
		AssetTypes:       cfg.Crawler.AssetTypes,
		MaxPages:         cfg.Crawler.MaxPages,
		SearchRPS:        cfg.Crawler.SearchRPS,
		CSVPath:          cfg.Crawler.CSVPath,
		IDsPath:          cfg.Crawler.IDsPath,
		ThumbDir:         cfg.Thumbs.Dir,
		ThumbConcurrency: cfg.Thumbs.Concurrency,
		WriteReady:       cfg.Thumbs.WriteReadyImages,
	}
}
