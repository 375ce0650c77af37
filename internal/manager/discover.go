package manager

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"audioconv/internal/converter"
	"audioconv/internal/formats"
	"audioconv/internal/models"
)

const convertedDirName = "converted"

type mode int

const (
	modeSingle mode = iota
	modeFolder
	modeFiles
)

func (m mode) String() string {
	switch m {
	case modeSingle:
		return "single"
	case modeFolder:
		return "folder"
	default:
		return "files"
	}
}

// plan is the resolved work for one run.
type plan struct {
	mode      mode
	tasks     []models.Task
	outputDir string
	totalSize int64
}

// resolve selects the run mode and builds the task list. A single path that
// is not a directory runs in single-item mode unless req.Batch is set; a
// single directory is expanded; anything else is an explicit file list.
func resolve(req Request) (plan, error) {
	paths := make([]string, 0, len(req.Paths))
	for _, p := range req.Paths {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return plan{}, fmt.Errorf("%w: no input paths given", ErrNoFilesFound)
	}
	format := formats.Normalize(req.Format)

	if len(paths) == 1 {
		info, err := os.Stat(paths[0])
		switch {
		case err == nil && info.IsDir():
			return resolveFolder(paths[0], format, req.OutputDir)
		case !req.Batch:
			return newPlan(modeSingle, paths, format, req.OutputDir), nil
		case errors.Is(err, fs.ErrNotExist):
			return plan{}, &converter.Error{Kind: converter.ErrNotFound, Path: paths[0]}
		}
	}
	return newPlan(modeFiles, paths, format, req.OutputDir), nil
}

func resolveFolder(dir, format, outputDir string) (plan, error) {
	files, err := DiscoverAudioFiles(dir)
	if err != nil {
		return plan{}, err
	}
	if len(files) == 0 {
		return plan{}, fmt.Errorf("%w in %s", ErrNoFilesFound, dir)
	}
	if strings.TrimSpace(outputDir) == "" {
		outputDir = filepath.Join(dir, convertedDirName)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return plan{}, fmt.Errorf("create output directory: %w", err)
	}
	return newPlan(modeFolder, files, format, outputDir), nil
}

func newPlan(m mode, paths []string, format, outputDir string) plan {
	p := plan{mode: m, outputDir: outputDir, tasks: make([]models.Task, len(paths))}
	for i, path := range paths {
		task := models.Task{
			Index:        i + 1,
			InputPath:    path,
			OutputFormat: format,
			OutputDir:    outputDir,
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			task.FileSize = info.Size()
			p.totalSize += task.FileSize
		}
		p.tasks[i] = task
	}
	return p
}

// DiscoverAudioFiles lists supported audio files directly inside dir, sorted
// by name. Subdirectories are not searched.
func DiscoverAudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !formats.IsAudioFile(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}
