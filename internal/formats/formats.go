package formats

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Format describes an audio container the converter knows about
type Format struct {
	Ext   string // lower-case extension without the dot
	Muxer string // ffmpeg muxer name (-f); empty for input-only formats
}

var inputFormats = []string{"mp3", "wav", "flac", "aac", "m4a", "ogg", "wma", "ape", "tta"}

// Output formats in presentation order. wma, ape and tta are decode-only.
var outputFormats = []Format{
	{Ext: "mp3", Muxer: "mp3"},
	{Ext: "wav", Muxer: "wav"},
	{Ext: "flac", Muxer: "flac"},
	{Ext: "aac", Muxer: "adts"},
	{Ext: "ogg", Muxer: "ogg"},
	{Ext: "m4a", Muxer: "ipod"},
}

var upper = cases.Upper(language.Und)

// Normalize strips a leading dot and lower-cases ext
func Normalize(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// IsSupportedInput reports whether ext can be decoded
func IsSupportedInput(ext string) bool {
	ext = Normalize(ext)
	for _, f := range inputFormats {
		if f == ext {
			return true
		}
	}
	return false
}

// IsSupportedOutput reports whether ext can be produced
func IsSupportedOutput(ext string) bool {
	_, ok := Lookup(ext)
	return ok
}

// Lookup returns the output format for ext
func Lookup(ext string) (Format, bool) {
	ext = Normalize(ext)
	for _, f := range outputFormats {
		if f.Ext == ext {
			return f, true
		}
	}
	return Format{}, false
}

// ListOutputFormats returns the output extensions in a stable order.
// The returned slice is a copy.
func ListOutputFormats() []string {
	out := make([]string, len(outputFormats))
	for i, f := range outputFormats {
		out[i] = f.Ext
	}
	return out
}

// ListInputFormats returns the input extensions in a stable order
func ListInputFormats() []string {
	return append([]string(nil), inputFormats...)
}

// IsAudioFile checks the extension of path against the input allow-list
func IsAudioFile(path string) bool {
	ext := filepath.Ext(path)
	if ext == "" {
		return false
	}
	return IsSupportedInput(ext)
}

// DisplayName renders ext for humans, e.g. "FLAC"
func DisplayName(ext string) string {
	return upper.String(Normalize(ext))
}
