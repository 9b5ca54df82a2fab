// Package dataset opens dataset files off the UI thread and checks they carry
// the requested embedding.
package dataset

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cellxgene-desktop/internal/logger"

	"github.com/gabriel-vasile/mimetype"
)

// FileExtension is the only dataset format the open dialog offers.
const FileExtension = ".h5ad"

var (
	ErrNoPath               = errors.New("no file selected")
	ErrUnsupportedExtension = errors.New("unsupported file type")
	ErrNotHDF5              = errors.New("file is not an HDF5 container")
	ErrEmbeddingMissing     = errors.New("embedding not found")
)

// hdf5Signature starts the superblock of every HDF5 file at offset zero.
var hdf5Signature = []byte("\x89HDF\r\n\x1a\n")

// Dataset is the result handed to the backend.
type Dataset struct {
	Path      string
	Title     string
	Mode      Mode
	Embedding string
	Size      int64
	MIME      string
	ModTime   time.Time
	LoadedAt  time.Time
}

// Loader is the dataset-processing collaborator. Load may take arbitrarily long
// and must never run on the UI thread.
type Loader interface {
	Load(path string, mode Mode) (*Dataset, error)
}

// Title derives the display title from the file name.
func Title(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type FileLoader struct {
	logger logger.Logger
}

func NewFileLoader(log logger.Logger) *FileLoader {
	return &FileLoader{logger: log}
}

func (l *FileLoader) Load(path string, mode Mode) (*Dataset, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if !strings.EqualFold(filepath.Ext(path), FileExtension) {
		return nil, fmt.Errorf("%w: %s (expected %s)", ErrUnsupportedExtension, filepath.Base(path), FileExtension)
	}

	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat dataset: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", filepath.Base(path))
	}

	head := make([]byte, 3072)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	head = head[:n]

	if !bytes.HasPrefix(head, hdf5Signature) {
		detected := mimetype.Detect(head)
		return nil, fmt.Errorf("%w: %s looks like %s", ErrNotHDF5, filepath.Base(path), detected.String())
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind dataset: %w", err)
	}
	found, err := containsKey(f, []byte(mode.Key()))
	if err != nil {
		return nil, fmt.Errorf("scan dataset: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s has no %s", ErrEmbeddingMissing, filepath.Base(path), mode.Key())
	}

	ds := &Dataset{
		Path:      path,
		Title:     Title(path),
		Mode:      mode,
		Embedding: mode.Key(),
		Size:      info.Size(),
		MIME:      "application/x-hdf5",
		ModTime:   info.ModTime(),
		LoadedAt:  time.Now(),
	}

	l.logger.Info("DatasetLoader", "dataset loaded", map[string]interface{}{
		"path":     path,
		"mode":     string(mode),
		"size":     ds.Size,
		"duration": time.Since(start).String(),
	})
	return ds, nil
}

// containsKey streams r looking for key. Link names of HDF5 groups are stored
// as plain strings, so the embedding key appears verbatim when present.
func containsKey(r io.Reader, key []byte) (bool, error) {
	const chunk = 64 * 1024

	br := bufio.NewReaderSize(r, chunk)
	buf := make([]byte, 0, chunk+len(key))
	tmp := make([]byte, chunk)

	for {
		n, err := br.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if bytes.Contains(buf, key) {
				return true, nil
			}
			if keep := len(key) - 1; len(buf) > keep {
				buf = append(buf[:0], buf[len(buf)-keep:]...)
			}
		}
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
}
