package formats

import (
	"reflect"
	"testing"
)

func TestIsSupportedInput(t *testing.T) {
	for _, ext := range []string{"mp3", "wav", "flac", "aac", "m4a", "ogg", "wma", "ape", "tta"} {
		if !IsSupportedInput(ext) {
			t.Errorf("IsSupportedInput(%q) = false, want true", ext)
		}
		if !IsSupportedInput("." + ext) {
			t.Errorf("IsSupportedInput(%q) = false, want true", "."+ext)
		}
		if !IsSupportedInput(upper.String(ext)) {
			t.Errorf("IsSupportedInput(%q) = false, want true", upper.String(ext))
		}
	}

	for _, ext := range []string{"", "txt", "mp4", "opus", "aiff", "mp33", "fla"} {
		if IsSupportedInput(ext) {
			t.Errorf("IsSupportedInput(%q) = true, want false", ext)
		}
	}
}

func TestIsSupportedOutput(t *testing.T) {
	for _, ext := range []string{"mp3", "wav", "flac", "aac", "ogg", "m4a", "MP3", ".Flac"} {
		if !IsSupportedOutput(ext) {
			t.Errorf("IsSupportedOutput(%q) = false, want true", ext)
		}
	}
	for _, ext := range []string{"wma", "ape", "tta", "WMA", "txt", ""} {
		if IsSupportedOutput(ext) {
			t.Errorf("IsSupportedOutput(%q) = true, want false", ext)
		}
	}
}

func TestOutputIsSubsetOfInput(t *testing.T) {
	for _, ext := range ListOutputFormats() {
		if !IsSupportedInput(ext) {
			t.Errorf("output format %q is not an input format", ext)
		}
	}
}

func TestListOutputFormatsStable(t *testing.T) {
	want := []string{"mp3", "wav", "flac", "aac", "ogg", "m4a"}
	first := ListOutputFormats()
	if !reflect.DeepEqual(first, want) {
		t.Fatalf("ListOutputFormats() = %v, want %v", first, want)
	}

	// Mutating the returned slice must not leak into the registry.
	first[0] = "xyz"
	for i := 0; i < 3; i++ {
		if got := ListOutputFormats(); !reflect.DeepEqual(got, want) {
			t.Fatalf("call %d: ListOutputFormats() = %v, want %v", i, got, want)
		}
	}
}

func TestLookupMuxer(t *testing.T) {
	tests := map[string]string{
		"mp3":  "mp3",
		"aac":  "adts",
		"m4a":  "ipod",
		"OGG":  "ogg",
		".wav": "wav",
	}
	for ext, muxer := range tests {
		f, ok := Lookup(ext)
		if !ok {
			t.Fatalf("Lookup(%q) not found", ext)
		}
		if f.Muxer != muxer {
			t.Errorf("Lookup(%q).Muxer = %q, want %q", ext, f.Muxer, muxer)
		}
	}
}

func TestIsAudioFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"test.mp3", true},
		{"test.wav", true},
		{"/music/Track 01.FLAC", true},
		{"test.txt", false},
		{"test.unknown", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := IsAudioFile(tt.path); got != tt.want {
			t.Errorf("IsAudioFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName(".flac"); got != "FLAC" {
		t.Errorf("DisplayName = %q, want FLAC", got)
	}
}
