package device

import (
	"fmt"
	"os"
)

// FileDevice provides read-only access to a database file on disk.
type FileDevice struct {
	file *os.File
	size int64
	path string
}

// Open opens a database file read-only.
func Open(path string) (*FileDevice, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat database file: %w", err)
	}

	return &FileDevice{
		file: file,
		size: info.Size(),
		path: path,
	}, nil
}

// Size returns the file length in bytes.
func (d *FileDevice) Size() int64 {
	return d.size
}

// ReadAt reads len(p) bytes at the given byte offset.
func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	return d.file.ReadAt(p, off)
}

// Path returns the path the device was opened from.
func (d *FileDevice) Path() string {
	return d.path
}

// Close releases the underlying file.
func (d *FileDevice) Close() error {
	return d.file.Close()
}
