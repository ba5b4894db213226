// flipbook-render rasterizes a local PDF into the per-page JPEGs the
// viewer serves, for inspecting render output without deploying anything.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pagecurl/flipbookd/internal/raster"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var (
		inPath  = flag.String("in", "", "path to the source PDF (required)")
		outDir  = flag.String("out", "pages", "directory for the rendered JPEGs")
		scale   = flag.Float64("scale", 0, "render scale factor (0 selects the product default)")
		quality = flag.Int("quality", 0, "JPEG quality (0 selects the product default)")
		workers = flag.Int("workers", 1, "parallel page decoders")
	)
	flag.Parse()

	if *inPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(context.Background(), *inPath, *outDir, *scale, *quality, *workers); err != nil {
		slog.Error("Rendering failed.", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, inPath, outDir string, scale float64, quality, workers int) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", inPath, err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	logCtx := slog.With("source", inPath, "outDir", outDir)
	pipeline := raster.New(raster.FitzDecoder{}, raster.Options{
		Scale:   scale,
		Quality: quality,
		Workers: workers,
		Progress: func(pct int) {
			logCtx.Info("Rendering.", "percent", pct)
		},
	})

	seq, err := pipeline.Run(ctx, data)
	if err != nil {
		return err
	}
	logCtx.Info("Rasterization started.", "pageCount", seq.PageCount())

	for page := range seq.Pages() {
		dest := filepath.Join(outDir, fmt.Sprintf("%05d.jpg", page.Number))
		if err := os.WriteFile(dest, page.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write page %d: %w", page.Number, err)
		}
	}
	if err := seq.Err(); err != nil {
		return err
	}

	if ratio, ok := seq.AspectRatio(); ok {
		logCtx.Info("All pages rendered.", "pageCount", seq.PageCount(), "aspectRatio", fmt.Sprintf("%.3f", ratio))
	}
	return nil
}
