// Command backdropdemo renders a frosted-glass panel over an image and
// writes the composited result to a PNG.
//
// With -input it blurs a region of the given image; without it a synthetic
// gradient scene is generated so the pipeline can be exercised standalone.
package main

import (
	"flag"
	"image"
	"image/png"
	"log"
	"math"
	"os"

	"github.com/gogpu/backdrop"
)

func main() {
	var (
		input   = flag.String("input", "", "source image (PNG); synthetic scene if empty")
		output  = flag.String("output", "backdrop.png", "output file")
		config  = flag.String("config", "", "optional YAML pipeline configuration")
		factor  = flag.Int("factor", 0, "downsample factor override")
		radius  = flag.Float64("radius", 0, "blur radius override")
		overlay = flag.String("overlay", "", "overlay tint override (hex, e.g. #00000066)")
		corner  = flag.Int("corner", 0, "corner mask radius override")
		x       = flag.Int("x", 40, "panel x position")
		y       = flag.Int("y", 40, "panel y position")
		width   = flag.Int("width", 320, "panel width")
		height  = flag.Int("height", 200, "panel height")
	)
	flag.Parse()

	src, err := loadScene(*input)
	if err != nil {
		log.Fatalf("Failed to load scene: %v", err)
	}

	opts, err := buildOptions(*config, *factor, *radius, *overlay, *corner)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	p, err := backdrop.NewPipeline(opts...)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}
	defer p.Close()

	origin := backdrop.Pt(float64(*x), float64(*y))
	panel, err := p.RenderFrame(backdrop.NewImageSource(src, backdrop.Pt(0, 0)), origin, *width, *height)
	if err != nil {
		log.Fatalf("Render failed: %v", err)
	}
	if panel == nil {
		log.Fatal("Nothing to render: zero-sized scene or panel")
	}

	out := composite(src, panel, *x, *y)
	if err := savePNG(*output, out); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}

	log.Printf("Backdrop saved to %s (panel %dx%d at %d,%d, factor %d, radius %g)\n",
		*output, *width, *height, *x, *y, p.DownsampleFactor(), p.BlurRadius())
}

// buildOptions merges the config file with command-line overrides.
func buildOptions(path string, factor int, radius float64, overlay string, corner int) ([]backdrop.Option, error) {
	var opts []backdrop.Option
	if path != "" {
		cfg, err := backdrop.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		opts = cfg.Options()
	}
	if factor != 0 {
		opts = append(opts, backdrop.WithDownsampleFactor(factor))
	}
	if radius != 0 {
		opts = append(opts, backdrop.WithBlurRadius(radius))
	}
	if overlay != "" {
		opts = append(opts, backdrop.WithOverlayColor(backdrop.Hex(overlay)))
	}
	if corner != 0 {
		opts = append(opts, backdrop.WithCornerRadius(corner))
	}
	return opts, nil
}

// loadScene reads a PNG, or synthesizes a gradient test scene.
func loadScene(path string) (image.Image, error) {
	if path == "" {
		return gradientScene(800, 600), nil
	}

	f, err := os.Open(path) //nolint:gosec // path comes from the CLI flag
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	img, err := png.Decode(f)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// gradientScene draws a colorful scene with enough high-frequency detail
// that the blur is clearly visible.
func gradientScene(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for yy := 0; yy < h; yy++ {
		for xx := 0; xx < w; xx++ {
			t := float64(yy) / float64(h)
			stripe := 0.0
			if (xx/24+yy/24)%2 == 0 {
				stripe = 60
			}
			wave := 40 * math.Sin(float64(xx)/37)

			i := img.PixOffset(xx, yy)
			img.Pix[i+0] = clampByte(40 + 170*t + stripe)
			img.Pix[i+1] = clampByte(80 + 90*t + wave)
			img.Pix[i+2] = clampByte(200 - 120*t + stripe)
			img.Pix[i+3] = 255
		}
	}
	return img
}

// composite draws the panel over the scene at (x, y) with source-over.
func composite(scene image.Image, panel *backdrop.Pixmap, x, y int) *image.NRGBA {
	b := scene.Bounds()
	out := image.NewNRGBA(b)
	for yy := b.Min.Y; yy < b.Max.Y; yy++ {
		for xx := b.Min.X; xx < b.Max.X; xx++ {
			out.Set(xx, yy, scene.At(xx, yy))
		}
	}

	for py := 0; py < panel.Height(); py++ {
		oy := y + py
		if oy < b.Min.Y || oy >= b.Max.Y {
			continue
		}
		for px := 0; px < panel.Width(); px++ {
			ox := x + px
			if ox < b.Min.X || ox >= b.Max.X {
				continue
			}
			c := panel.GetPixel(px, py)
			if c.IsTransparent() {
				continue
			}
			if c.A >= 1 {
				out.Set(ox, oy, c.Color())
				continue
			}
			// Source-over onto the scene pixel.
			bg := backdrop.FromColor(out.At(ox, oy))
			inv := 1 - c.A
			blended := backdrop.RGBA{
				R: c.R*c.A + bg.R*bg.A*inv,
				G: c.G*c.A + bg.G*bg.A*inv,
				B: c.B*c.A + bg.B*bg.A*inv,
				A: c.A + bg.A*inv,
			}
			if blended.A > 0 {
				blended.R /= blended.A
				blended.G /= blended.A
				blended.B /= blended.A
			}
			out.Set(ox, oy, blended.Color())
		}
	}
	return out
}

// savePNG writes img to path.
func savePNG(path string, img image.Image) error {
	f, err := os.Create(path) //nolint:gosec // path comes from the CLI flag
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	return png.Encode(f, img)
}

// clampByte clamps a float64 to the byte range.
func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
