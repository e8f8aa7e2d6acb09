package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	// SizeLimit is the largest file Telegram accepts in one upload.
	SizeLimit int64 = 2 * 1024 * 1024 * 1024

	// PartSize is the size of each part when a file is split.
	PartSize int64 = 2040109465 // 1.9 GiB
)

// Part is one piece of a split file.
type Part struct {
	Path  string
	Index int
	Size  int64
}

// PartName returns "<base>.partNNN<ext>" for index n.
func PartName(path string, n int) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s.part%03d%s", base, n, ext)
}

// Split streams path into parts of at most partSize bytes next to the
// original. Parts are removed again if splitting fails.
func Split(ctx context.Context, path string, partSize int64) ([]Part, error) {
	if partSize <= 0 {
		return nil, errors.New("part size must be positive")
	}

	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	var parts []Part
	cleanup := func() {
		for _, p := range parts {
			os.Remove(p.Path)
		}
	}

	buf := make([]byte, 4*1024*1024)
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			cleanup()
			return nil, err
		}

		partPath := PartName(path, n)
		dst, err := os.OpenFile(partPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("create part %d: %w", n, err)
		}

		written, copyErr := io.CopyBuffer(dst, io.LimitReader(src, partSize), buf)
		closeErr := dst.Close()
		if copyErr != nil || closeErr != nil {
			os.Remove(partPath)
			cleanup()
			return nil, fmt.Errorf("write part %d: %w", n, errors.Join(copyErr, closeErr))
		}

		if written == 0 {
			os.Remove(partPath)
			break
		}
		parts = append(parts, Part{Path: partPath, Index: n, Size: written})
		if written < partSize {
			break
		}
	}
	return parts, nil
}

// RemoveParts deletes all part files.
func RemoveParts(parts []Part) {
	for _, p := range parts {
		os.Remove(p.Path)
	}
}
