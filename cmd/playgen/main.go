// Command playgen writes a synthetic play-by-play corpus for diamond.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/okian/diamond/internal/playgen"
	"github.com/okian/diamond/pkg/logger"
)

func main() {
	def := playgen.DefaultConfig()
	var (
		out          = flag.String("out", "plays.jsonl", "Output file; a .gz suffix compresses it")
		games        = flag.Int("games", def.Games, "Number of games")
		perDay       = flag.Int("per-day", def.GamesPerDay, "Games per calendar day")
		plays        = flag.Int("plays", def.PlaysPerGame, "Plate appearances per game")
		batters      = flag.Int("batters", def.Batters, "Batter pool size")
		pitchers     = flag.Int("pitchers", def.Pitchers, "Pitcher pool size")
		starterPlays = flag.Int("starter-plays", def.StarterPlays, "Plays a starter faces before relief")
		seed         = flag.Uint64("seed", def.Seed, "Random seed")
		start        = flag.String("start", def.Start.Format(time.DateOnly), "Date of the first game")
		descRate     = flag.Float64("descriptions", def.DescriptionRate, "Share of rows written as descriptions")
		noiseRate    = flag.Float64("noise", def.NoiseRate, "Share of rows that are not plate appearances")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	day, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		os.Stderr.WriteString("invalid -start: " + err.Error() + "\n")
		os.Exit(2)
	}
	cfg := playgen.Config{
		Games:           *games,
		GamesPerDay:     *perDay,
		PlaysPerGame:    *plays,
		Batters:         *batters,
		Pitchers:        *pitchers,
		StarterPlays:    *starterPlays,
		Seed:            *seed,
		Start:           day,
		DescriptionRate: *descRate,
		NoiseRate:       *noiseRate,
	}
	if err := write(ctx, cfg, *out); err != nil {
		logger.Get().Error(ctx, "generation failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func write(ctx context.Context, cfg playgen.Config, path string) (err error) {
	g, err := playgen.New(cfg)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	var w io.Writer = f
	if strings.HasSuffix(path, ".gz") {
		zw := gzip.NewWriter(f)
		defer func() {
			if cerr := zw.Close(); err == nil {
				err = cerr
			}
		}()
		w = zw
	}
	st, err := g.Generate(ctx, w)
	if err != nil {
		return err
	}
	logger.Get().Info(ctx, "corpus written",
		logger.String("path", path),
		logger.Int("rows", st.Rows),
		logger.Int("plays", st.Plays),
	)
	return nil
}
