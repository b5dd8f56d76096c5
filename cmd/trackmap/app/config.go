package app

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath        string
	SessionID     int64
	OutputFile    string
	Format        ImageFormat
	Theme         ColorTheme
	CanvasSize    int
	TimeZone      *time.Location
	FromMs        *uint32 // Vehicle time, milliseconds since boot
	ToMs          *uint32
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:     ImagePNG,
		Theme:      ClassicTheme,
		CanvasSize: defaultCanvasSize,
		TimeZone:   time.Local,
	}
}

// NewConfigFromCLI parses the command line arguments, without the program name.
func NewConfigFromCLI(args []string) (*Config, error) {
	c := NewConfig()

	flags := pflag.NewFlagSet("trackmap", pflag.ContinueOnError)

	var imageFormat, theme, timeZone string
	var fromMs, toMs uint32
	flags.StringVar(&c.DBPath, "db", "", "Path to the flight database file")
	flags.Int64VarP(&c.SessionID, "session", "s", 1, "Session ID")
	flags.StringVarP(&c.OutputFile, "output", "o", "", "Path to the output file, without extension")
	flags.StringVarP(&imageFormat, "format", "f", ImagePNG, "Output image format. [png, jpeg]")
	flags.StringVar(&theme, "theme", string(ClassicTheme), "Altitude color theme. [classic, grayscale, thermal, marine]")
	flags.IntVar(&c.CanvasSize, "size", defaultCanvasSize, "Side of the square plot area in pixels")
	flags.StringVar(&timeZone, "tz", "Local", "Time zone of the time labels")
	flags.Uint32Var(&fromMs, "from-ms", 0, "Skip telemetry stamped before this vehicle time")
	flags.Uint32Var(&toMs, "to-ms", math.MaxUint32, "Skip telemetry stamped after this vehicle time")
	flags.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as scales and the info bar")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if flags.Changed("from-ms") {
		c.FromMs = &fromMs
	}
	if flags.Changed("to-ms") {
		c.ToMs = &toMs
	}

	imageFormat = strings.ToLower(imageFormat)

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.SessionID <= 0 {
		err = errors.New("session id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if _, ok := validThemes[ColorTheme(theme)]; !ok {
		err = fmt.Errorf("invalid color theme: %s", theme)
	} else if c.CanvasSize < minCanvasSize {
		err = fmt.Errorf("canvas size must be at least %d pixels", minCanvasSize)
	} else if c.FromMs != nil && c.ToMs != nil && *c.FromMs > *c.ToMs {
		err = fmt.Errorf("invalid time range: %d > %d", *c.FromMs, *c.ToMs)
	}

	if err == nil {
		if c.TimeZone, err = time.LoadLocation(timeZone); err != nil {
			err = fmt.Errorf("invalid time zone: %w", err)
		}
	}

	if err != nil {
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.Theme = ColorTheme(theme)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
