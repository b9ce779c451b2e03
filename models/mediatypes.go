package models

import "strings"

// MediaType maps an accepted upload MIME type onto its stored form.
// An empty ConvertedExtension means the file is stored as uploaded.
type MediaType struct {
	OriginalMime       string
	Extension          string
	ConvertedMime      string
	ConvertedExtension string
}

// MediaTypes is the table the intake uses to pick an output format.
var MediaTypes = []MediaType{
	{"image/png", "png", "image/webp", "webp"},
	{"image/jpg", "jpg", "image/webp", "webp"},
	{"image/jpeg", "jpeg", "image/webp", "webp"},
	{"image/gif", "gif", "image/webp", "webp"},
	{"image/webp", "webp", "image/webp", "webp"},
	{"image/svg+xml", "svg", "image/svg+xml", ""},

	{"video/mp4", "mp4", "video/mp4", "mp4"},
	{"video/quicktime", "mov", "video/mp4", "mp4"},
	{"video/mpeg", "mpeg", "video/mp4", "mp4"},
	{"video/webm", "webm", "video/mp4", "mp4"},

	{"audio/mpeg", "mp3", "audio/mpeg", ""},
	{"audio/mpg", "mp3", "audio/mpeg", ""},
	{"audio/mpeg3", "mp3", "audio/mpeg", ""},
	{"audio/mp3", "mp3", "audio/mpeg", ""},
	{"audio/wav", "wav", "audio/wav", ""},
	{"audio/x-wav", "wav", "audio/wav", ""},
	{"audio/wave", "wav", "audio/wav", ""},
	{"audio/mp4", "m4a", "audio/mp4", ""},
	{"audio/x-m4a", "m4a", "audio/mp4", ""},
	{"audio/m4a", "m4a", "audio/mp4", ""},
	{"audio/ogg", "ogg", "audio/ogg", ""},
	{"audio/vorbis", "ogg", "audio/ogg", ""},
	{"application/ogg", "ogg", "audio/ogg", ""},
	{"audio/flac", "flac", "audio/flac", ""},
	{"audio/x-flac", "flac", "audio/flac", ""},
	{"audio/aac", "aac", "audio/aac", ""},
	{"audio/aacp", "aac", "audio/aac", ""},
	{"audio/x-aac", "aac", "audio/aac", ""},

	{"application/pdf", "pdf", "application/pdf", ""},
	{"application/json", "json", "application/json", ""},
	{"application/xml", "xml", "application/xml", ""},
	{"application/yaml", "yaml", "application/yaml", ""},

	{"font/otf", "otf", "font/otf", ""},
	{"font/ttf", "ttf", "font/ttf", ""},
	{"font/woff", "woff", "font/woff", ""},
	{"font/woff2", "woff2", "font/woff2", ""},

	{"text/markdown", "md", "text/markdown", ""},
	{"text/css", "css", "text/css", ""},
	{"text/plain", "txt", "text/plain", ""},
	{"text/yaml", "yaml", "text/yaml", ""},

	{"model/stl", "stl", "model/stl", ""},
}

// LookupMediaType finds the table entry for a MIME type, ignoring parameters
// such as "; charset=utf-8".
func LookupMediaType(mime string) (MediaType, bool) {
	mime = strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0]))
	for _, mt := range MediaTypes {
		if mt.OriginalMime == mime {
			return mt, true
		}
	}
	return MediaType{}, false
}

// OutputFormat returns the format the encoder registry is keyed by:
// the converted extension, or "copy" for pass-through types.
func (m MediaType) OutputFormat() string {
	if m.ConvertedExtension == "" {
		return "copy"
	}
	return m.ConvertedExtension
}

// OutputExtension is the file extension of the stored file.
func (m MediaType) OutputExtension() string {
	if m.ConvertedExtension != "" {
		return m.ConvertedExtension
	}
	return m.Extension
}

// IsAnimatedMime reports whether a source MIME type may carry more than one frame.
func IsAnimatedMime(mime string) bool {
	switch strings.ToLower(mime) {
	case "image/gif", "image/apng":
		return true
	}
	return false
}

// IsVideoFormat reports whether an output format is a video container.
func IsVideoFormat(format string) bool {
	switch format {
	case "mp4", "webm", "mov", "mkv":
		return true
	}
	return false
}

// IsStillImageFormat reports whether an output format is a lossy still-image format.
func IsStillImageFormat(format string) bool {
	switch format {
	case "webp", "jpg", "jpeg", "avif":
		return true
	}
	return false
}
