package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 72.0
	fontSize       = 14.0
	lineSpacing    = 1.4
	tickMarkHeight = 5
	pixelsPerLabel = 120.0
	markerSize     = 6
	legendWidth    = 16
	legendMargin   = 20
	trackPadding   = 0.05 // share of the span left blank on every side
	minTrackSpan   = 1.0  // meters

	minCanvasSize     = 100
	defaultCanvasSize = 800

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 80
	defaultBottomBorder = 90
	defaultRightBorder  = 130

	defaultDatetimeFormat = time.DateTime
)

var (
	backgroundColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	axisColor       = color.RGBA{A: 0xff}
	targetColor     = color.RGBA{R: 0xe0, A: 0xff}
	startColor      = color.RGBA{G: 0xa0, A: 0xff}
)

// BorderConfig defines the sizes of white space around the plot
type BorderConfig struct {
	Top    int // Space for the title
	Left   int // Space for the north scale
	Bottom int // Space for the east scale and information bar
	Right  int // Space for the altitude legend
}

// RenderConfig holds all configuration options for track visualization
type RenderConfig struct {
	DatetimeFormat string         // Format string for date/time display
	Location       *time.Location // Timezone for time display

	FontSize      float64    // Font size in points
	ColorTheme    ColorTheme // Color scheme for altitudes
	CanvasSize    int        // Side of the square plot area in pixels
	NoAnnotations bool

	BorderConfig BorderConfig
}

// TrackRenderer draws a flight track seen from above, north up
type TrackRenderer struct {
	colorMap *ColorMapper
	config   RenderConfig
}

// NewTrackRenderer creates a new track renderer with the given configuration
func NewTrackRenderer(config RenderConfig) (*TrackRenderer, error) {
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.ColorTheme == "" {
		config.ColorTheme = ClassicTheme
	}
	if config.CanvasSize == 0 {
		config.CanvasSize = defaultCanvasSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	if _, ok := validThemes[config.ColorTheme]; !ok {
		return nil, fmt.Errorf("invalid color theme: %s", config.ColorTheme)
	}
	if config.CanvasSize < minCanvasSize {
		return nil, fmt.Errorf("canvas size must be at least %d pixels", minCanvasSize)
	}

	return &TrackRenderer{config: config}, nil
}

// canvas is what a single Render call draws on
type canvas struct {
	img      *image.RGBA
	area     image.Rectangle // Plot area, square
	proj     projection
	track    *TrackData
	colorMap *ColorMapper
}

// Render creates an image of the track with annotations
func (r *TrackRenderer) Render(track *TrackData) (*image.RGBA, error) {
	if track.Len() == 0 {
		return nil, fmt.Errorf("track has no samples")
	}

	b := r.config.BorderConfig
	size := r.config.CanvasSize

	img := image.NewRGBA(image.Rect(0, 0, b.Left+size+b.Right, b.Top+size+b.Bottom))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	area := image.Rect(b.Left, b.Top, b.Left+size, b.Top+size)

	if r.colorMap == nil {
		r.colorMap = NewColorMapper(r.config.ColorTheme, track.ZMin, track.ZMax)
	} else {
		r.colorMap.UpdateBounds(track.ZMin, track.ZMax)
	}

	c := &canvas{
		img:      img,
		area:     area,
		proj:     newProjection(area, track),
		track:    track,
		colorMap: r.colorMap,
	}

	drawFrame(img, area)
	renderTrack(c)
	renderLegend(c)

	if r.config.NoAnnotations {
		return img, nil
	}

	ann, err := newAnnotator(annotatorConfig{
		DatetimeFormat: r.config.DatetimeFormat,
		Location:       r.config.Location,
		FontSize:       r.config.FontSize,
		Borders:        r.config.BorderConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(c); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	return img, nil
}

// projection maps local positions in meters onto the plot area with the
// same scale on both axes, east to the right and north up.
type projection struct {
	area  image.Rectangle
	north float64 // North coordinate of the bottom edge
	east  float64 // East coordinate of the left edge
	span  float64 // Meters covered by one side of the area
	scale float64 // Pixels per meter
}

func newProjection(area image.Rectangle, track *TrackData) projection {
	span := math.Max(track.XMax-track.XMin, track.YMax-track.YMin)
	span = math.Max(span, minTrackSpan)
	span += 2 * span * trackPadding

	return projection{
		area:  area,
		north: (track.XMin+track.XMax)/2 - span/2,
		east:  (track.YMin+track.YMax)/2 - span/2,
		span:  span,
		scale: float64(area.Dx()-1) / span,
	}
}

func (p projection) pixel(north, east float64) image.Point {
	return image.Pt(
		p.area.Min.X+int(math.Round((east-p.east)*p.scale)),
		p.area.Max.Y-1-int(math.Round((north-p.north)*p.scale)),
	)
}

func (p projection) metersPerPixel() float64 {
	return 1 / p.scale
}

func drawFrame(img *image.RGBA, area image.Rectangle) {
	for x := area.Min.X - 1; x <= area.Max.X; x++ {
		img.Set(x, area.Min.Y-1, axisColor)
		img.Set(x, area.Max.Y, axisColor)
	}
	for y := area.Min.Y - 1; y <= area.Max.Y; y++ {
		img.Set(area.Min.X-1, y, axisColor)
		img.Set(area.Max.X, y, axisColor)
	}
}

// renderTrack draws the track segments colored by the altitude they lead
// to, then marks where the flight started and the navigation target.
func renderTrack(c *canvas) {
	samples := c.track.Samples

	prev := c.proj.pixel(samples[0].X, samples[0].Y)
	for _, s := range samples[1:] {
		next := c.proj.pixel(s.X, s.Y)
		drawLine(c.img, c.area, prev, next, c.colorMap.GetColor(s.Z))
		prev = next
	}

	start := c.proj.pixel(samples[0].X, samples[0].Y)
	fillRect(c.img, c.area, image.Rect(start.X-markerSize/2, start.Y-markerSize/2, start.X+markerSize/2+1, start.Y+markerSize/2+1), startColor)

	target := c.track.Session.Target
	drawCross(c.img, c.area, c.proj.pixel(target.X, target.Y), targetColor)
}

// renderLegend draws the altitude color bar right of the plot, lowest
// altitude at the bottom.
func renderLegend(c *canvas) {
	x := c.area.Max.X + legendMargin
	height := c.area.Dy()

	for y := 0; y < height; y++ {
		z := c.track.ZMax - (c.track.ZMax-c.track.ZMin)*float64(y)/float64(height-1)
		col := c.colorMap.GetColor(z)
		for i := 0; i < legendWidth; i++ {
			c.img.SetRGBA(x+i, c.area.Min.Y+y, col)
		}
	}
}

// drawLine draws a two pixel wide line from a to b using Bresenham's
// algorithm, clipped to area.
func drawLine(img *image.RGBA, area image.Rectangle, a, b image.Point, c color.RGBA) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}

	err := dx + dy
	x, y := a.X, a.Y
	for {
		fillRect(img, area, image.Rect(x, y, x+2, y+2), c)
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func drawCross(img *image.RGBA, area image.Rectangle, p image.Point, c color.RGBA) {
	for i := -markerSize; i <= markerSize; i++ {
		fillRect(img, area, image.Rect(p.X+i, p.Y+i, p.X+i+1, p.Y+i+2), c)
		fillRect(img, area, image.Rect(p.X+i, p.Y-i, p.X+i+1, p.Y-i+2), c)
	}
}

func fillRect(img *image.RGBA, area, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(area)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

type annotatorConfig struct {
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	Borders        BorderConfig
}

type annotator struct {
	context    *freetype.Context
	config     annotatorConfig
	fontFace   font.Face
	fontHeight int
	descent    int
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	face := truetype.NewFace(parsedFont, &truetype.Options{
		Size:    config.FontSize,
		DPI:     dpi,
		Hinting: font.HintingNone,
	})
	metrics := face.Metrics()

	return &annotator{
		context:    ctx,
		config:     config,
		fontFace:   face,
		fontHeight: (metrics.Ascent + metrics.Descent).Round(),
		descent:    metrics.Descent.Round(),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(c *canvas) error {
	a.context.SetClip(c.img.Bounds())
	a.context.SetDst(c.img)

	ops := []struct {
		msg string
		fn  func(*canvas) error
	}{
		{"drawing title", a.drawTitle},
		{"drawing east scale", a.drawEastScale},
		{"drawing north scale", a.drawNorthScale},
		{"drawing legend", a.drawLegend},
		{"drawing info bar", a.drawInfoBar},
	}
	for _, op := range ops {
		if err := op.fn(c); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}

func (a *annotator) drawString(s string, x, baseline int) error {
	_, err := a.context.DrawString(s, freetype.Pt(x, baseline))
	return err
}

func (a *annotator) width(s string) int {
	return font.MeasureString(a.fontFace, s).Round()
}

func (a *annotator) drawTitle(c *canvas) error {
	s := c.track.Session
	title := fmt.Sprintf("Session %d, %s, target %s", s.ID, s.Vehicle, formatPoint(s.Target.X, s.Target.Y, s.Target.Z))

	// center text vertically in the top border
	baseline := (a.config.Borders.Top+a.fontHeight)/2 - a.descent
	return a.drawString(title, c.area.Min.X, baseline)
}

func (a *annotator) drawEastScale(c *canvas) error {
	step := calculateNiceStep(c.proj.span, c.area.Dx())
	first := math.Ceil(c.proj.east/step) * step
	baseline := c.area.Max.Y + tickMarkHeight + a.fontHeight

	for i := 0; ; i++ {
		east := first + float64(i)*step
		if east > c.proj.east+c.proj.span {
			break
		}

		x := c.proj.pixel(c.proj.north, east).X
		for y := c.area.Max.Y; y < c.area.Max.Y+tickMarkHeight; y++ {
			c.img.Set(x, y, axisColor)
		}

		label := formatMeters(east)
		if err := a.drawString(label, x-a.width(label)/2, baseline); err != nil {
			return fmt.Errorf("drawing label %s: %w", label, err)
		}
	}
	return nil
}

func (a *annotator) drawNorthScale(c *canvas) error {
	step := calculateNiceStep(c.proj.span, c.area.Dy())
	first := math.Ceil(c.proj.north/step) * step

	for i := 0; ; i++ {
		north := first + float64(i)*step
		if north > c.proj.north+c.proj.span {
			break
		}

		y := c.proj.pixel(north, c.proj.east).Y
		for x := c.area.Min.X - tickMarkHeight; x < c.area.Min.X; x++ {
			c.img.Set(x, y, axisColor)
		}

		label := formatMeters(north)
		x := c.area.Min.X - tickMarkHeight - 3 - a.width(label)
		if err := a.drawString(label, x, y+a.fontHeight/2-a.descent); err != nil {
			return fmt.Errorf("drawing label %s: %w", label, err)
		}
	}
	return nil
}

func (a *annotator) drawLegend(c *canvas) error {
	x := c.area.Max.X + legendMargin + legendWidth + 5

	if err := a.drawString(formatMeters(c.track.ZMax), x, c.area.Min.Y+a.fontHeight-a.descent); err != nil {
		return err
	}
	if err := a.drawString(formatMeters(c.track.ZMin), x, c.area.Max.Y-a.descent); err != nil {
		return err
	}
	return a.drawString("altitude", c.area.Max.X+legendMargin, c.area.Min.Y-a.descent-3)
}

func (a *annotator) drawInfoBar(c *canvas) error {
	t := c.track

	lines := []string{
		fmt.Sprintf("Time: %s - %s (%s); 1px = %s",
			t.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
			t.TimestampEnd.In(a.config.Location).Format(a.config.DatetimeFormat),
			t.Duration().Round(time.Second),
			formatMeters(c.proj.metersPerPixel())),
		fmt.Sprintf("Samples: %s; Commands: %s; Status changes: %s",
			humanize.Comma(int64(t.Len())),
			formatCommandCounts(t.Commands),
			humanize.Comma(int64(len(t.Statuses)))),
	}

	lineHeight := int(math.Round(float64(a.fontHeight) * lineSpacing))
	baseline := c.area.Max.Y + tickMarkHeight + a.fontHeight + lineHeight + a.fontHeight/2

	for _, line := range lines {
		if err := a.drawString(line, c.area.Min.X, baseline); err != nil {
			return fmt.Errorf("drawing info text: %w", err)
		}
		baseline += lineHeight
	}
	return nil
}

// Helper functions

// calculateNiceStep returns a 1, 2 or 5 times a power of ten step which
// puts a label about every pixelsPerLabel pixels.
func calculateNiceStep(span float64, pixels int) float64 {
	target := span / (float64(pixels) / pixelsPerLabel)
	if target <= 0 || math.IsNaN(target) || math.IsInf(target, 0) {
		return 1
	}

	magnitude := math.Pow(10, math.Floor(math.Log10(target)))
	for _, m := range []float64{1, 2, 5} {
		if m*magnitude >= target {
			return m * magnitude
		}
	}
	return 10 * magnitude
}

func formatMeters(v float64) string {
	if v == 0 {
		v = 0 // no negative zero
	}
	return humanize.FtoaWithDigits(v, 2) + " m"
}

func formatPoint(x, y, z float64) string {
	return fmt.Sprintf("(%s, %s, %s)", humanize.Ftoa(x), humanize.Ftoa(y), humanize.Ftoa(z))
}

func formatCommandCounts(counts map[string]int64) string {
	if len(counts) == 0 {
		return "none"
	}

	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)

	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, fmt.Sprintf("%s %s", kind, humanize.Comma(counts[kind])))
	}
	return strings.Join(parts, ", ")
}
