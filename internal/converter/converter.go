package converter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"audioconv/internal/codec"
	"audioconv/internal/formats"
	"audioconv/internal/logging"
	"audioconv/internal/models"
	"audioconv/internal/security"
)

const collisionSuffix = "_converted"

// Scanner checks an input file before it is decoded.
type Scanner interface {
	IsEnabled() bool
	ScanFile(path string) (*security.ScanResult, error)
}

// Hooks receive per-file progress. Both fields are optional.
type Hooks struct {
	OnProgress func(percent int)
	OnStatus   func(message string)
}

func (h Hooks) progress(p int) {
	if h.OnProgress != nil {
		h.OnProgress(p)
	}
}

func (h Hooks) status(msg string) {
	if h.OnStatus != nil {
		h.OnStatus(msg)
	}
}

// Converter turns one input file into one output file through a Codec.
type Converter struct {
	codec      codec.Codec
	scanner    Scanner
	mp3Bitrate string
	mp3Quality string
	logger     *slog.Logger
}

// Option customises a Converter.
type Option func(*Converter)

// WithScanner enables the malware pre-scan.
func WithScanner(s Scanner) Option {
	return func(c *Converter) { c.scanner = s }
}

// WithMP3Policy sets the bitrate and VBR quality used for mp3 output.
func WithMP3Policy(bitrate, quality string) Option {
	return func(c *Converter) {
		c.mp3Bitrate = bitrate
		c.mp3Quality = quality
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Converter) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Converter backed by cd.
func New(cd codec.Codec, opts ...Option) *Converter {
	c := &Converter{
		codec:      cd,
		mp3Bitrate: "192k",
		mp3Quality: "2",
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConvertOne converts task.InputPath to task.OutputFormat. The returned
// Result is always populated; its Err equals the returned error.
// Progress is reported at 0 (before decode), 50 (decoded) and 100 (encoded).
func (c *Converter) ConvertOne(ctx context.Context, task models.Task, hooks Hooks) (models.Result, error) {
	start := time.Now()
	fail := func(err error) (models.Result, error) {
		return models.Failed(task, err, time.Since(start)), err
	}

	input := task.InputPath
	info, err := os.Stat(input)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fail(newError(ErrNotFound, input, nil))
		}
		return fail(newError(ErrNotFound, input, err))
	}
	if info.IsDir() {
		return fail(newError(ErrNotFound, input, errors.New("is a directory")))
	}
	task.FileSize = info.Size()

	inputExt := formats.Normalize(filepath.Ext(input))
	if !formats.IsSupportedInput(inputExt) {
		return fail(newError(ErrUnsupportedInput, input, fmt.Errorf("extension %q", inputExt)))
	}
	format := formats.Normalize(task.OutputFormat)
	if !formats.IsSupportedOutput(format) {
		return fail(newError(ErrUnsupportedOutput, input, fmt.Errorf("format %q", task.OutputFormat)))
	}

	output := OutputPath(input, format, task.OutputDir)
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fail(newError(ErrEncode, input, fmt.Errorf("create output directory: %w", err)))
	}

	if err := c.scan(input); err != nil {
		return fail(err)
	}

	hooks.status(fmt.Sprintf("Converting: %s -> %s", filepath.Base(input), format))
	hooks.progress(0)

	buf, err := c.codec.Decode(ctx, input, inputExt)
	if err == nil && buf == nil {
		err = errors.New("codec returned no audio")
	}
	if err != nil {
		return fail(newError(ErrDecode, input, err))
	}
	defer buf.Release()
	hooks.progress(50)

	if err := c.codec.Encode(ctx, buf, output, format, c.encodeOptions(format)); err != nil {
		return fail(newError(ErrEncode, input, err))
	}
	hooks.progress(100)
	hooks.status(fmt.Sprintf("Converted: %s", filepath.Base(output)))

	elapsed := time.Since(start)
	c.logger.Debug("converted file",
		slog.String("input", input),
		slog.String("output", output),
		slog.Duration("elapsed", elapsed),
	)
	return models.Result{
		Task:       task,
		OutputPath: output,
		Success:    true,
		Elapsed:    elapsed,
	}, nil
}

func (c *Converter) scan(input string) error {
	if c.scanner == nil || !c.scanner.IsEnabled() {
		return nil
	}
	res, err := c.scanner.ScanFile(input)
	if err != nil {
		// An unreachable scanner does not block conversion.
		c.logger.Warn("malware scan failed", slog.String("file", input), slog.String("error", err.Error()))
		return nil
	}
	if res != nil && res.Infected {
		return newError(ErrInfected, input, errors.New(strings.Join(res.Threats, "; ")))
	}
	return nil
}

// encodeOptions applies the fixed quality policy to mp3 only. Every other
// format uses encoder defaults.
func (c *Converter) encodeOptions(format string) codec.EncodeOptions {
	if format != "mp3" {
		return codec.EncodeOptions{}
	}
	opts := codec.EncodeOptions{Bitrate: c.mp3Bitrate}
	if c.mp3Quality != "" {
		opts.Parameters = []string{"-q:a", c.mp3Quality}
	}
	return opts
}

// OutputPath computes {outputDir or inputDir}/{stem}.{format}. When that
// would be the input itself the stem gets a "_converted" suffix.
func OutputPath(input, format, outputDir string) string {
	dir := outputDir
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Dir(input)
	}
	format = formats.Normalize(format)
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	candidate := filepath.Join(dir, stem+"."+format)
	if samePath(candidate, input) {
		candidate = filepath.Join(dir, stem+collisionSuffix+"."+format)
	}
	return candidate
}

// samePath compares case-insensitively so that a.MP3 -> a.mp3 is treated as
// a collision on case-insensitive filesystems too.
func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(filepath.Clean(a), filepath.Clean(b))
	}
	if strings.EqualFold(absA, absB) {
		return true
	}
	infoA, errA := os.Stat(absA)
	infoB, errB := os.Stat(absB)
	return errA == nil && errB == nil && os.SameFile(infoA, infoB)
}
