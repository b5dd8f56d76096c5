package app

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/drone-supervisor/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	track, err := readTrack(ctx, store, config, logger)
	if err != nil {
		return err
	}

	renderer, err := NewTrackRenderer(RenderConfig{
		Location:      config.TimeZone,
		ColorTheme:    config.Theme,
		CanvasSize:    config.CanvasSize,
		NoAnnotations: config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating track renderer: %w", err)
	}

	logger.Info("rendering track",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("size", config.CanvasSize),
		))

	img, err := renderer.Render(track)
	if err != nil {
		return fmt.Errorf("rendering track: %w", err)
	}

	return writeImage(config.OutputFile, config.Format, img)
}

func readTrack(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) (*TrackData, error) {
	var opts []storage.ReaderOption
	if config.FromMs != nil || config.ToMs != nil {
		from, to := uint32(0), uint32(math.MaxUint32)
		if config.FromMs != nil {
			from = *config.FromMs
		}
		if config.ToMs != nil {
			to = *config.ToMs
		}
		opts = append(opts, storage.WithTimeRange(from, to))

		logger.Info("reader configuration",
			slog.String("from", (time.Duration(from)*time.Millisecond).String()),
			slog.String("to", (time.Duration(to)*time.Millisecond).String()))
	}

	iter, err := store.ReadTelemetry(ctx, config.SessionID, opts...)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	track := NewTrackData(iter.Session())
	for iter.Next(ctx) {
		track.Update(iter.Current())
	}
	if err = iter.Error(); err != nil {
		return nil, err
	}
	if track.Len() == 0 {
		return nil, fmt.Errorf("session %d has no telemetry", config.SessionID)
	}

	if track.Commands, err = store.CommandCounts(ctx, config.SessionID); err != nil {
		return nil, err
	}
	if track.Statuses, err = store.StatusEvents(ctx, config.SessionID); err != nil {
		return nil, err
	}

	logger.Info("finished reading telemetry",
		slog.Group("stats",
			slog.String("start", track.TimestampStart.In(config.TimeZone).Format(time.DateTime)),
			slog.String("end", track.TimestampEnd.In(config.TimeZone).Format(time.DateTime)),
			slog.String("samples", humanize.Comma(int64(track.Len()))),
			slog.String("commands", humanize.Comma(track.CommandCount())),
			slog.String("minAltitude", formatMeters(track.ZMin)),
			slog.String("maxAltitude", formatMeters(track.ZMax)),
		))

	return track, nil
}

func writeImage(path string, format ImageFormat, img image.Image) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := out.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	switch format {
	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})

	default:
		err = png.Encode(out, img)
	}
	return err
}
