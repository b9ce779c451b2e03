package probe

import (
	"context"
	"fmt"

	"mediaqueue/logger"
)

// DefaultWidth is used when a source's dimensions cannot be read.
const DefaultWidth = 640

// Negotiator computes output dimensions from a probe and requested bounds.
type Negotiator struct {
	prober Prober
}

func NewNegotiator(p Prober) *Negotiator {
	return &Negotiator{prober: p}
}

// Negotiate returns the output width for the file at path. The second value
// reports that the height is left unconstrained for the encoder to derive;
// it is always true.
func (n *Negotiator) Negotiate(ctx context.Context, path string, requestedWidth, requestedHeight int) (int, bool) {
	info, err := n.prober.Probe(ctx, path)
	if err != nil || info == nil || info.Width <= 0 || info.Height <= 0 {
		logger.Warnf("Could not get media dimensions of %s, using default width %dpx: %v", path, DefaultWidth, err)
		return DefaultWidth, true
	}

	width, height := Fit(info.Width, info.Height, requestedWidth, requestedHeight)
	logger.Infof("Origin dimensions: %dpx %dpx", info.Width, info.Height)
	logger.Infof("Output dimensions: %dpx %dpx", width, height)
	return width, true
}

// Fit scales (w, h) down into the (maxW, maxH) box preserving the aspect
// ratio. It never scales up. A non-positive bound leaves that axis free.
// The returned height is informational; encoders derive it themselves.
func Fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	fitsW := maxW <= 0 || w <= maxW
	fitsH := maxH <= 0 || h <= maxH
	if fitsW && fitsH {
		return w, h
	}

	var outW, outH int
	switch {
	case fitsH || (!fitsW && w*maxH >= h*maxW):
		// width-dominant
		outW = maxW
		outH = maxW * h / w
	default:
		outW = maxH * w / h
		outH = maxH
	}
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	return outW, outH
}

// SizeString renders a width as the "<w>x?" form understood by the encoder
// adapter, with height derived from the source aspect ratio.
func SizeString(width int) string {
	return fmt.Sprintf("%dx?", width)
}
