package image

import (
	"fmt"
	"os"
	"path/filepath"
)

// Image is a firmware blob held fully in memory. Scans borrow the buffer
// read-only; the patch engine mutates it in place. The original file on
// disk is never rewritten: Save always targets a distinct path.
type Image struct {
	Path string
	Data []byte
}

// Load reads the entire firmware file at path into memory. Structured
// record interpretation needs random access over the whole buffer, so
// there is no streaming mode.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return &Image{Path: path, Data: data}, nil
}

// Len returns the image size in bytes.
func (im *Image) Len() int {
	if im == nil {
		return 0
	}
	return len(im.Data)
}

// Save writes the buffer to out. The bytes land in a temporary file in
// the target directory first and are renamed into place, so a failed run
// never leaves a half-written artifact behind.
func (im *Image) Save(out string) error {
	if im == nil {
		return fmt.Errorf("nil image")
	}
	dir := filepath.Dir(out)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(out)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(im.Data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, out); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("finalize output: %w", err)
	}
	return nil
}
