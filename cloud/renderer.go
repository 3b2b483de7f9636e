package cloud

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// captionHeight is the strip of pixels reserved below a PNG plot for the caption
const captionHeight = 20

var (
	observedColor  = color.RGBA{0, 0, 139, 255}   // Dark blue
	predictedColor = color.RGBA{220, 20, 60, 255} // Crimson
)

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// ProjectionRenderer plots observations against the reconstruction
// s·B·x + t on one coordinate plane
type ProjectionRenderer struct {
	Plane       string            // xy, xz or yz
	Size        float64           // Canvas edge in mm
	Padding     float64           // Margin in mm
	PointRadius float64           // Marker radius in mm
	Resolution  canvas.Resolution // PNG resolution
}

// NewProjectionRenderer creates a renderer from config, filling defaults
func NewProjectionRenderer(cfg RenderConfig) *ProjectionRenderer {
	r := &ProjectionRenderer{
		Plane:      cfg.Plane,
		Size:       cfg.Size,
		Resolution: canvas.DPI(cfg.Resolution),
	}
	if r.Plane == "" {
		r.Plane = "xy"
	}
	if r.Size <= 0 {
		r.Size = 160
	}
	if cfg.Resolution <= 0 {
		r.Resolution = canvas.DPI(150)
	}
	r.Padding = r.Size / 16
	r.PointRadius = r.Size / 160
	return r
}

// ProjectPoints drops one coordinate according to plane
func ProjectPoints(points []Vec3, plane string) orb.MultiPoint {
	a, b := 0, 1
	switch plane {
	case "xz":
		a, b = 0, 2
	case "yz":
		a, b = 1, 2
	}
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p[a], p[b]}
	}
	return mp
}

// RenderSVG writes the projection as SVG
func (r *ProjectionRenderer) RenderSVG(w io.Writer, observed, predicted []Vec3) error {
	if len(observed) == 0 {
		return ErrNoObservations
	}

	svgRenderer := svg.New(w, r.Size, r.Size, nil)
	r.renderToCanvas(svgRenderer, observed, predicted)
	return svgRenderer.Close()
}

// RenderPNG writes the projection as PNG with caption printed underneath
func (r *ProjectionRenderer) RenderPNG(w io.Writer, observed, predicted []Vec3, caption string) error {
	if len(observed) == 0 {
		return ErrNoObservations
	}

	rast := rasterizer.New(r.Size, r.Size, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, observed, predicted)

	if caption == "" {
		return png.Encode(w, rast)
	}

	bounds := rast.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()+captionHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(img, bounds.Sub(bounds.Min), rast, bounds.Min, draw.Over)
	drawText(img, 6, bounds.Dy()+captionHeight-6, caption, color.RGBA{0, 0, 0, 255})

	return png.Encode(w, img)
}

// renderToCanvas draws background, residual links, observed and predicted markers
func (r *ProjectionRenderer) renderToCanvas(renderer canvasRenderer, observed, predicted []Vec3) {
	obs := ProjectPoints(observed, r.Plane)
	pred := ProjectPoints(predicted, r.Plane)

	bound := obs.Bound()
	if len(pred) > 0 {
		bound = bound.Union(pred.Bound())
	}

	span := math.Max(bound.Right()-bound.Left(), bound.Top()-bound.Bottom())
	if span == 0 {
		span = 1
	}
	k := (r.Size - 2*r.Padding) / span
	toCanvas := func(p orb.Point) (float64, float64) {
		return r.Padding + (p[0]-bound.Left())*k, r.Padding + (p[1]-bound.Bottom())*k
	}

	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(r.Size, r.Size), bgStyle, canvas.Identity)

	// Residual links between each observation and its reconstruction
	linkStyle := canvas.DefaultStyle
	linkStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	linkStyle.Stroke = canvas.Paint{Color: canvas.Gray}
	linkStyle.StrokeWidth = r.PointRadius / 3
	linkStyle.Dashes = []float64{r.PointRadius, r.PointRadius}
	for i := 0; i < len(obs) && i < len(pred); i++ {
		link := &canvas.Path{}
		link.MoveTo(toCanvas(obs[i]))
		link.LineTo(toCanvas(pred[i]))
		renderer.RenderPath(link, linkStyle, canvas.Identity)
	}

	// Row order of the observations
	traceStyle := canvas.DefaultStyle
	traceStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	traceStyle.Stroke = canvas.Paint{Color: color.RGBA{100, 149, 237, 255}}
	traceStyle.StrokeWidth = r.PointRadius / 4
	trace := &canvas.Path{}
	for i, p := range obs {
		if i == 0 {
			trace.MoveTo(toCanvas(p))
		} else {
			trace.LineTo(toCanvas(p))
		}
	}
	renderer.RenderPath(trace, traceStyle, canvas.Identity)

	obsStyle := canvas.DefaultStyle
	obsStyle.Fill = canvas.Paint{Color: observedColor}
	obsStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	for _, p := range obs {
		marker := canvas.Circle(r.PointRadius).Translate(toCanvas(p))
		renderer.RenderPath(marker, obsStyle, canvas.Identity)
	}

	predStyle := canvas.DefaultStyle
	predStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	predStyle.Stroke = canvas.Paint{Color: predictedColor}
	predStyle.StrokeWidth = r.PointRadius / 3
	for _, p := range pred {
		marker := canvas.Circle(1.6 * r.PointRadius).Translate(toCanvas(p))
		renderer.RenderPath(marker, predStyle, canvas.Identity)
	}
}

// drawText renders text onto an image at the specified baseline position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// RenderProjection writes a plot of observed against the reconstruction of
// result to path. The format follows the extension (.svg or .png).
func RenderProjection(path string, cfg RenderConfig, observed []Vec3, result *SolveResult, caption string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".svg" && ext != ".png" {
		return fmt.Errorf("unsupported render format %q (want .svg or .png)", filepath.Ext(path))
	}

	var predicted []Vec3
	if result != nil {
		predicted = result.Transform.ApplyAll(result.Matrix.Points())
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating render directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating render file: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := NewProjectionRenderer(cfg)
	if ext == ".svg" {
		err = r.RenderSVG(f, observed, predicted)
	} else {
		err = r.RenderPNG(f, observed, predicted, caption)
	}
	if err != nil {
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	return nil
}
