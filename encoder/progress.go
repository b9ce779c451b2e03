package encoder

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"mediaqueue/logger"
)

var reDuration = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// ParseDuration extracts the input duration from an ffmpeg stderr line.
func ParseDuration(line string) (time.Duration, bool) {
	m := reDuration.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	d := time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute +
		time.Duration(sec*float64(time.Second))
	return d, d > 0
}

// progressTracker turns "-progress" key=value lines into percentages. The
// reported value never decreases and stays within [0, 100].
type progressTracker struct {
	name     string
	duration time.Duration
	percent  float64
	quarter  int
	obs      Observer
}

func newProgressTracker(name string, obs Observer) *progressTracker {
	return &progressTracker{name: name, obs: obs}
}

func (p *progressTracker) setDuration(d time.Duration) {
	if p.duration > 0 || d <= 0 {
		return
	}
	p.duration = d
	p.obs.duration(d)
}

// line consumes one line of progress output.
func (p *progressTracker) line(line string) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return
	}
	switch key {
	case "out_time_us", "out_time_ms":
		if p.duration <= 0 {
			return
		}
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return
		}
		p.report(float64(us) * 100 / float64(p.duration.Microseconds()))
	case "progress":
		if value == "end" {
			p.report(100)
		}
	}
}

func (p *progressTracker) report(pct float64) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct < p.percent {
		return
	}
	p.percent = pct
	p.obs.progress(pct)

	if q := int(pct / 25); q > p.quarter {
		p.quarter = q
		logger.Infof("Processing : %s - %.2f %%", p.name, pct)
	}
}
