package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrNoDimensions is returned when a file carries no usable width/height.
var ErrNoDimensions = errors.New("no dimensions in probe result")

// Info is what the negotiator needs to know about a source file.
type Info struct {
	Width    int
	Height   int
	Duration time.Duration
	Format   string
}

// Prober inspects a file on disk.
type Prober interface {
	Probe(ctx context.Context, path string) (*Info, error)
}

// FFprobe runs the ffprobe binary.
type FFprobe struct {
	Binary string
}

// Probe runs a single ffprobe JSON call against path.
func (p FFprobe) Probe(ctx context.Context, path string) (*Info, error) {
	bin := p.Binary
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	return ParseJSON(out)
}

// ParseJSON converts raw ffprobe JSON output into an Info.
// Exported for testing without a real ffprobe binary.
func ParseJSON(data []byte) (*Info, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	info := &Info{
		Format:   raw.Format.FormatName,
		Duration: parseSeconds(raw.Format.Duration),
	}
	for _, s := range raw.Streams {
		if s.CodecType != "video" || s.Disposition["attached_pic"] == 1 {
			continue
		}
		info.Width, info.Height = s.Width, s.Height
		break
	}
	if info.Width <= 0 || info.Height <= 0 {
		return info, ErrNoDimensions
	}
	return info, nil
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

type ffprobeStream struct {
	Index       int            `json:"index"`
	CodecType   string         `json:"codec_type"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Disposition map[string]int `json:"disposition"`
}

func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
