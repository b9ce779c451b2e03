package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Size is a requested bounding box for one upload kind.
type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// MirrorTarget names a writer backend and the credentials key it reads.
type MirrorTarget struct {
	Type           string `yaml:"type"` // directServe, s3, gcs or sftp
	CredentialsKey string `yaml:"credentials_key,omitempty"`
}

// Settings holds the runtime configuration of the service.
type Settings struct {
	TempPath       string        `yaml:"temp_path"`
	MediaPath      string        `yaml:"media_path"`
	DataDir        string        `yaml:"data_dir"`
	Workers        int           `yaml:"workers"`
	MaxRetries     int           `yaml:"max_retries"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"` // how long shutdown waits for running jobs
	ListenAddr     string        `yaml:"listen_addr"`
	FFmpegPath     string        `yaml:"ffmpeg_path"`
	FFprobePath    string        `yaml:"ffprobe_path"`
	JWTSecret      string        `yaml:"jwt_secret"`
	LogLevel       string        `yaml:"log_level"`
	LogFile        string        `yaml:"log_file"`
	SentryDSN      string        `yaml:"sentry_dsn"`

	// Transform sizes per upload kind (avatar, banner, media).
	Transform map[string]Size `yaml:"transform"`

	// Default encoder directives per media class (image, video).
	OutputOptions map[string]string `yaml:"output_options"`

	Mirrors []MirrorTarget `yaml:"mirrors"`
}

// Defaults returns the settings used when nothing else is configured.
func Defaults() Settings {
	return Settings{
		TempPath:       "./tmp/",
		MediaPath:      "./media/",
		DataDir:        getDataDir(),
		Workers:        2,
		MaxRetries:     5,
		AttemptTimeout: 30 * time.Minute,
		DrainTimeout:   10 * time.Minute,
		ListenAddr:     ":8080",
		FFmpegPath:     "ffmpeg",
		FFprobePath:    "ffprobe",
		LogLevel:       "info",
		Transform: map[string]Size{
			"avatar": {Width: 400, Height: 400},
			"banner": {Width: 900, Height: 300},
			"media":  {Width: 1280, Height: 960},
		},
		OutputOptions: map[string]string{
			"image": "",
			"video": "-preset veryfast -crf 28 -movflags +faststart",
		},
	}
}

// Load builds Settings from defaults, an optional YAML file, a .env file and
// environment variables, in that order of increasing priority.
func Load(path string) (Settings, error) {
	// Missing .env is normal outside development.
	_ = godotenv.Load()

	s := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := s.applyEnv(); err != nil {
		return s, err
	}
	return s, nil
}

func (s *Settings) applyEnv() error {
	str := map[string]*string{
		"MEDIAQUEUE_TEMP_PATH":    &s.TempPath,
		"MEDIAQUEUE_MEDIA_PATH":   &s.MediaPath,
		"MEDIAQUEUE_DATA_DIR":     &s.DataDir,
		"MEDIAQUEUE_LISTEN_ADDR":  &s.ListenAddr,
		"MEDIAQUEUE_FFMPEG_PATH":  &s.FFmpegPath,
		"MEDIAQUEUE_FFPROBE_PATH": &s.FFprobePath,
		"MEDIAQUEUE_JWT_SECRET":   &s.JWTSecret,
		"MEDIAQUEUE_LOG_LEVEL":    &s.LogLevel,
		"MEDIAQUEUE_LOG_FILE":     &s.LogFile,
		"MEDIAQUEUE_SENTRY_DSN":   &s.SentryDSN,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MEDIAQUEUE_WORKERS":     &s.Workers,
		"MEDIAQUEUE_MAX_RETRIES": &s.MaxRetries,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"MEDIAQUEUE_ATTEMPT_TIMEOUT": &s.AttemptTimeout,
		"MEDIAQUEUE_DRAIN_TIMEOUT":   &s.DrainTimeout,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = d
	}

	// MEDIAQUEUE_MIRRORS=s3:abc123,directServe
	if v := os.Getenv("MEDIAQUEUE_MIRRORS"); v != "" {
		s.Mirrors = nil
		for _, item := range strings.Split(v, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			kind, key, _ := strings.Cut(item, ":")
			s.Mirrors = append(s.Mirrors, MirrorTarget{Type: kind, CredentialsKey: key})
		}
	}
	return nil
}

// Validate checks that the settings can run the pipeline.
func (s *Settings) Validate() error {
	if s.TempPath == "" || s.MediaPath == "" {
		return errors.New("temp_path and media_path must both be set")
	}
	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", s.MaxRetries)
	}
	if s.AttemptTimeout < 0 {
		return fmt.Errorf("attempt_timeout must not be negative, got %s", s.AttemptTimeout)
	}
	if s.DrainTimeout < 0 {
		return fmt.Errorf("drain_timeout must not be negative, got %s", s.DrainTimeout)
	}
	for _, m := range s.Mirrors {
		switch m.Type {
		case "directServe":
		case "s3", "gcs", "sftp":
			if m.CredentialsKey == "" {
				return fmt.Errorf("mirror %s requires a credentials key", m.Type)
			}
		default:
			return fmt.Errorf("unknown mirror type %q", m.Type)
		}
	}
	return nil
}

// TransformSize returns the bounding box configured for an upload kind.
func (s *Settings) TransformSize(kind string) Size {
	if size, ok := s.Transform[kind]; ok {
		return size
	}
	return Size{Width: 640, Height: 640}
}
