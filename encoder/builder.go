package encoder

import (
	"fmt"
	"strings"

	"mediaqueue/models"
)

// muxers maps output formats onto ffmpeg muxer names where they differ.
var muxers = map[string]string{
	"jpg":  "image2",
	"jpeg": "image2",
	"png":  "image2",
}

// BuildArgs returns the ffmpeg argument list (without the binary) that
// converts input into spec. Progress is written to stdout in key=value form.
func BuildArgs(input string, spec models.OutputSpec) ([]string, error) {
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-nostats", "-progress", "pipe:1",
	}

	animated := models.IsAnimatedMime(spec.OriginalMime)
	if animated && spec.Format == "webp" {
		args = append(args, "-ignore_loop", "0")
	}
	args = append(args, "-i", input)

	if vf := scaleFilter(spec); vf != "" {
		args = append(args, "-vf", vf)
	}

	if models.IsStillImageFormat(spec.Format) {
		if animated {
			args = append(args, "-loop", "0")
		} else {
			args = append(args, "-frames:v", "1")
		}
	}

	if opts := strings.TrimSpace(spec.OutputOptions); opts != "" {
		extra, err := SplitOptions(opts)
		if err != nil {
			return nil, fmt.Errorf("invalid output options: %w", err)
		}
		args = append(args, extra...)
	}

	muxer := spec.Format
	if m, ok := muxers[spec.Format]; ok {
		muxer = m
	}
	if muxer != "" {
		args = append(args, "-f", muxer)
	}

	return append(args, spec.OutputPath), nil
}

// scaleFilter maps the "<w>x?" size onto an ffmpeg scale filter. Video
// encoders need even dimensions so both axes are rounded down to even there.
func scaleFilter(spec models.OutputSpec) string {
	w := spec.Width
	if w <= 0 {
		w = widthFromSize(spec.Size)
	}
	if w <= 0 {
		return ""
	}
	if models.IsVideoFormat(spec.Format) {
		w &^= 1
		if w < 2 {
			w = 2
		}
		return fmt.Sprintf("scale=%d:-2", w)
	}
	return fmt.Sprintf("scale=%d:-1", w)
}

func widthFromSize(size string) int {
	var w int
	if _, err := fmt.Sscanf(size, "%dx", &w); err != nil {
		return 0
	}
	return w
}
