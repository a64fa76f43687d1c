// Package organizer moves completed downloads into the library's
// Author/Title layout.
package organizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Organizer sentinel errors.
var (
	ErrNoMediaFiles = errors.New("no media files found at download path")
	ErrNoSavePath   = errors.New("download path is not known")
)

var audioExtensions = map[string]struct{}{
	".m4b": {}, ".m4a": {}, ".mp3": {}, ".flac": {},
	".ogg": {}, ".opus": {}, ".aac": {}, ".wma": {},
}

var ebookExtensions = map[string]struct{}{
	".epub": {}, ".mobi": {}, ".azw3": {}, ".pdf": {},
}

// Kind selects which file extensions count as media.
type Kind string

const (
	KindAudiobook Kind = "audiobook"
	KindEbook     Kind = "ebook"
)

// Input describes one organize run.
type Input struct {
	Author   string
	Title    string
	SavePath string
	Kind     Kind
}

// Result reports where the files landed.
type Result struct {
	DestDir    string
	MovedFiles int
}

// Organizer copies media files into the library tree.
type Organizer struct {
	libraryPath string
	logger      zerolog.Logger
}

// New creates an organizer rooted at libraryPath.
func New(libraryPath string, logger zerolog.Logger) *Organizer {
	return &Organizer{
		libraryPath: libraryPath,
		logger:      logger.With().Str("component", "organizer").Logger(),
	}
}

// Organize locates media files under the download path and moves them to
// Library/Author/Title. Re-running after a partial failure is safe: files
// already present at the destination with the right size are skipped.
func (o *Organizer) Organize(ctx context.Context, input Input) (*Result, error) {
	if input.SavePath == "" {
		return nil, ErrNoSavePath
	}

	files, err := o.findMediaFiles(input.SavePath, input.Kind)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMediaFiles, input.SavePath)
	}

	destDir := filepath.Join(o.libraryPath,
		sanitizeName(input.Author), sanitizeName(input.Title))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create library directory: %w", err)
	}

	moved := 0
	for _, src := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dest := filepath.Join(destDir, filepath.Base(src))

		if sameFile(src, dest) {
			o.logger.Debug().Str("file", dest).Msg("Skipping already-organized file")
			continue
		}
		if err := moveFile(src, dest); err != nil {
			return nil, fmt.Errorf("failed to move %s: %w", filepath.Base(src), err)
		}
		moved++
	}

	o.logger.Info().
		Str("destDir", destDir).
		Int("files", moved).
		Int("skipped", len(files)-moved).
		Msg("Organized download")

	return &Result{DestDir: destDir, MovedFiles: moved}, nil
}

// findMediaFiles returns every matching file under path, which may itself be
// a single file.
func (o *Organizer) findMediaFiles(path string, kind Kind) ([]string, error) {
	extensions := audioExtensions
	if kind == KindEbook {
		extensions = ebookExtensions
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoMediaFiles, path)
		}
		return nil, fmt.Errorf("failed to stat download path: %w", err)
	}

	if !info.IsDir() {
		if _, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
			return []string{path}, nil
		}
		return nil, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := extensions[strings.ToLower(filepath.Ext(p))]; ok {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan download path: %w", err)
	}
	return files, nil
}

// sanitizeName strips characters that are unsafe in directory names.
func sanitizeName(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", " -", "*", "", "?", "",
		"\"", "'", "<", "", ">", "", "|", "",
	)
	cleaned := strings.TrimSpace(replacer.Replace(name))
	cleaned = strings.Trim(cleaned, ". ")
	if cleaned == "" {
		return "Unknown"
	}
	return cleaned
}

// sameFile reports whether dest already holds a file of the same size as src.
func sameFile(src, dest string) bool {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false
	}
	destInfo, err := os.Stat(dest)
	if err != nil {
		return false
	}
	return srcInfo.Size() == destInfo.Size()
}

// moveFile renames src to dest, falling back to copy+remove across
// filesystems.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
