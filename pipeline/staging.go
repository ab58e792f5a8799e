package pipeline

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// stagedFile is written next to its destination and renamed over it on
// commit. Until then an existing file at the destination is left alone.
type stagedFile struct {
	*os.File
	dest string
	done bool
}

// createStaged checks that the destination directory is writable by
// creating the temporary file there.
func createStaged(filename, op string) (*stagedFile, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	if info, err := os.Stat(filename); err == nil && info.IsDir() {
		return nil, &IOError{Path: filename, Op: op, Err: errors.New("destination is a directory")}
	}

	f, err := os.CreateTemp(filepath.Dir(filename), "."+filepath.Base(filename)+".*.tmp")
	if err != nil {
		return nil, &IOError{Path: filename, Op: op, Err: err}
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, &IOError{Path: filename, Op: op, Err: err}
	}
	return &stagedFile{File: f, dest: filename}, nil
}

// commit closes the staged file and moves it onto the destination.
func (s *stagedFile) commit() error {
	if s.done {
		return nil
	}
	s.done = true

	if err := s.File.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		os.Remove(s.Name())
		return &IOError{Path: s.dest, Op: "close staged file", Err: err}
	}
	if err := os.Rename(s.Name(), s.dest); err != nil {
		os.Remove(s.Name())
		return &IOError{Path: s.dest, Op: "replace output file", Err: err}
	}
	return nil
}

// discard removes the staged file without touching the destination.
func (s *stagedFile) discard() error {
	if s.done {
		return nil
	}
	s.done = true

	s.File.Close()
	if err := os.Remove(s.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &IOError{Path: s.dest, Op: "remove staged file", Err: err}
	}
	return nil
}
