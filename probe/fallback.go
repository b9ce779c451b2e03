package probe

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	_ "github.com/chai2010/webp" // registers the webp decoder
	"github.com/disintegration/imaging"
)

// ImageHeader reads still-image dimensions by decoding the file header.
type ImageHeader struct{}

// Probe decodes only the image config, not the pixels.
func (ImageHeader) Probe(ctx context.Context, path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("decode image header %q: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrNoDimensions
	}
	return &Info{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Decoded opens the whole image with EXIF orientation applied, so rotated
// phone photos report their displayed dimensions.
type Decoded struct{}

func (Decoded) Probe(ctx context.Context, path string) (*Info, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open image %q: %w", path, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrNoDimensions
	}
	return &Info{Width: b.Dx(), Height: b.Dy()}, nil
}

// Chain tries each prober in order and returns the first usable result.
type Chain []Prober

func (c Chain) Probe(ctx context.Context, path string) (*Info, error) {
	var errs []error
	for _, p := range c {
		info, err := p.Probe(ctx, path)
		if err == nil && info != nil && info.Width > 0 && info.Height > 0 {
			return info, nil
		}
		if err == nil {
			err = ErrNoDimensions
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, ErrNoDimensions
	}
	return nil, errors.Join(errs...)
}

// Default is ffprobe first, then the image header, then a full decode.
func Default(ffprobeBinary string) Prober {
	return Chain{FFprobe{Binary: ffprobeBinary}, ImageHeader{}, Decoded{}}
}
