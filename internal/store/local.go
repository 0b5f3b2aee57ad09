package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyInto copies srcPath into dir under name, creating dir when needed.
func CopyInto(srcPath, dir, name string) (string, error) {
	if err := EnsureDir(dir); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, name)
	src, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer src.Close()
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", err
	}
	return dst, out.Close()
}

func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
