// Package checkpoint locates trained parameter files and fingerprints them.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ogulcanaydogan/ehreval/pkg/types"
)

var ErrMissing = errors.New("checkpoint missing")

// Dir is {dataRoot}/params{suffix}/{dataset}/{task}/0.
func Dir(dataRoot, suffix, dataset string, task types.Task) string {
	return filepath.Join(dataRoot, "params"+suffix, dataset, string(task), "0")
}

// Path returns the file for 1-based checkpoint index n, stored as {n-1}.pt.
func Path(dataRoot, suffix, dataset string, task types.Task, index int) (string, error) {
	if index < 1 {
		return "", fmt.Errorf("checkpoint index %d: must be >= 1", index)
	}
	return filepath.Join(Dir(dataRoot, suffix, dataset, task), strconv.Itoa(index-1)+".pt"), nil
}

// Resolve checks that path is a regular file and records its digest.
func Resolve(path string) (types.Checkpoint, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return types.Checkpoint{}, fmt.Errorf("%w: %s", ErrMissing, path)
	}
	if err != nil {
		return types.Checkpoint{}, fmt.Errorf("stat checkpoint %s: %w", path, err)
	}
	if info.IsDir() {
		return types.Checkpoint{}, fmt.Errorf("%w: %s is a directory", ErrMissing, path)
	}
	digest, size, err := DigestFile(path)
	if err != nil {
		return types.Checkpoint{}, err
	}
	return types.Checkpoint{Path: path, Digest: digest, SizeBytes: size}, nil
}

func DigestFile(path string) (digest string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open file %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hash file %s: %w", path, err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), n, nil
}
