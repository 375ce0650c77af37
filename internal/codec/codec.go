// Package codec wraps the external media tool (ffmpeg/ffprobe) behind the two
// primitives the converter needs: decode a file into raw PCM held in memory,
// and encode such a buffer into a target container.
package codec

import (
	"context"
)

// Buffer holds decoded interleaved PCM. It must be released by its owner.
type Buffer struct {
	PCM          []byte
	SampleRate   int
	Channels     int
	SampleFormat string // ffmpeg raw format name, e.g. "s16le"
	Source       string
}

// Release drops the decoded samples. Safe to call more than once and on nil.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	b.PCM = nil
}

// Released reports whether the samples have been dropped.
func (b *Buffer) Released() bool {
	return b == nil || b.PCM == nil
}

// EncodeOptions tunes the encoder. Zero value means encoder defaults.
type EncodeOptions struct {
	Bitrate    string
	Parameters []string
}

// LaunchOptions control how external processes are started.
type LaunchOptions struct {
	// HideWindow suppresses the console window of child processes (Windows only).
	HideWindow bool
}

// Codec is the external media-processing collaborator.
type Codec interface {
	Decode(ctx context.Context, path, formatHint string) (*Buffer, error)
	Encode(ctx context.Context, buf *Buffer, path, format string, opts EncodeOptions) error
}
