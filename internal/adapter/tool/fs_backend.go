package tool

import (
	"io/fs"
	"os"
)

// FilesystemBackend abstracts the file I/O behind the file directives.
// Paths handed to it have already been confined by the sandbox.
type FilesystemBackend interface {
	ReadFile(path string) ([]byte, error)
	// WriteFile creates missing parent directories before writing.
	WriteFile(path string, data []byte, perm os.FileMode) error
	ReadDir(path string) ([]os.DirEntry, error)
	Stat(path string) (fs.FileInfo, error)
	// Name returns the backend identifier (e.g. "local").
	Name() string
}
