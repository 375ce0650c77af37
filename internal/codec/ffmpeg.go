package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"audioconv/internal/formats"
)

const (
	pcmFormat      = "s16le"
	pcmCodec       = "pcm_s16le"
	stderrTailSize = 8
)

// FFmpeg implements Codec by running the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
	launch  LaunchOptions
}

// NewFFmpeg resolves both binaries. Empty paths use Locate's discovery order.
func NewFFmpeg(ffmpegPath, ffprobePath string, launch LaunchOptions) (*FFmpeg, error) {
	ff, err := Locate(ffmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	probe, err := Locate(ffprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}
	return &FFmpeg{ffmpeg: ff, ffprobe: probe, launch: launch}, nil
}

// Binaries returns the resolved ffmpeg and ffprobe paths.
func (f *FFmpeg) Binaries() (string, string) {
	return f.ffmpeg, f.ffprobe
}

// Decode reads path into memory as interleaved 16-bit PCM. The container is
// detected by ffmpeg; formatHint is kept on the buffer for diagnostics since
// extension names (m4a, aac) are not always demuxer names.
func (f *FFmpeg) Decode(ctx context.Context, path, formatHint string) (*Buffer, error) {
	probe, err := f.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	stream, ok := probe.AudioStream()
	if !ok {
		return nil, fmt.Errorf("no audio stream in %s", path)
	}
	rate, channels := stream.SampleRateHz(), stream.Channels
	if rate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("unusable audio stream in %s (rate=%q channels=%d)", path, stream.SampleRate, channels)
	}

	args := DecodeArgs(path, rate, channels)
	cmd := f.command(ctx, f.ffmpeg, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode: %w%s", err, tail(stderr.String()))
	}

	return &Buffer{
		PCM:          stdout.Bytes(),
		SampleRate:   rate,
		Channels:     channels,
		SampleFormat: pcmFormat,
		Source:       formats.Normalize(formatHint),
	}, nil
}

// Encode writes buf to path in the requested output format.
func (f *FFmpeg) Encode(ctx context.Context, buf *Buffer, path, format string, opts EncodeOptions) error {
	if buf.Released() {
		return errors.New("ffmpeg encode: buffer already released")
	}
	args, err := EncodeArgs(buf, path, format, opts)
	if err != nil {
		return err
	}

	cmd := f.command(ctx, f.ffmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(buf.PCM)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg encode: %w%s", err, tail(stderr.String()))
	}
	return nil
}

// DecodeArgs builds the ffmpeg argv (without the binary) that streams path
// to stdout as raw PCM.
func DecodeArgs(path string, rate, channels int) []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-i", path,
		"-vn",
		"-f", pcmFormat,
		"-acodec", pcmCodec,
		"-ar", strconv.Itoa(rate),
		"-ac", strconv.Itoa(channels),
		"pipe:1",
	}
}

// EncodeArgs builds the ffmpeg argv (without the binary) that reads raw PCM
// from stdin and writes path.
func EncodeArgs(buf *Buffer, path, format string, opts EncodeOptions) ([]string, error) {
	out, ok := formats.Lookup(format)
	if !ok {
		return nil, fmt.Errorf("ffmpeg encode: unsupported output format %q", format)
	}
	sampleFormat := buf.SampleFormat
	if sampleFormat == "" {
		sampleFormat = pcmFormat
	}

	args := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error", "-y",
		"-f", sampleFormat,
		"-ar", strconv.Itoa(buf.SampleRate),
		"-ac", strconv.Itoa(buf.Channels),
		"-i", "pipe:0",
	}
	if opts.Bitrate != "" {
		args = append(args, "-b:a", opts.Bitrate)
	}
	args = append(args, opts.Parameters...)
	args = append(args, "-f", out.Muxer, path)
	return args, nil
}

func (f *FFmpeg) command(ctx context.Context, binary string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, binary, args...)
	applyLaunchOptions(cmd, f.launch)
	return cmd
}

// tail formats the last lines of ffmpeg's stderr for error messages.
func tail(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return ""
	}
	lines := strings.Split(stderr, "\n")
	if len(lines) > stderrTailSize {
		lines = lines[len(lines)-stderrTailSize:]
	}
	return ": " + strings.Join(lines, " | ")
}

func exitDetail(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return tail(string(exitErr.Stderr))
	}
	return ""
}
