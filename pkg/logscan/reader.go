package logscan

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultSuffix selects which files under the root are trace logs.
const DefaultSuffix = ".log"

// DefaultMaxLineBytes bounds a single line. Longer lines are reported and skipped.
const DefaultMaxLineBytes = 1 << 20

// ErrLineTooLong matches every *LineTooLongError.
var ErrLineTooLong = errors.New("line too long")

// LineTooLongError describes a line that exceeded the byte limit. The line
// handed to the callback alongside it is cut to Max bytes.
type LineTooLongError struct {
	Length int
	Max    int
}

func (e *LineTooLongError) Error() string {
	return fmt.Sprintf("line of %d bytes exceeds limit of %d", e.Length, e.Max)
}

func (e *LineTooLongError) Is(target error) bool { return target == ErrLineTooLong }

// LineFunc receives each line with its 1-based number. lineErr is non-nil only
// for a line that could not be delivered whole; scanning continues after it.
// Returning io.EOF stops the scan without error.
type LineFunc func(lineNo int, line string, lineErr error) error

// Discover returns every regular file under root whose name ends in suffix,
// sorted lexically so that processing order is reproducible.
// Unreadable subdirectories are passed to onErr and skipped.
func Discover(root, suffix string, onErr func(path string, err error)) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	if suffix == "" {
		suffix = DefaultSuffix
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if onErr != nil {
				onErr(path, err)
			}
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		if !d.Type().IsRegular() {
			// Follow symlinks the way os.Stat does, but only keep regular files.
			fi, statErr := os.Stat(path)
			if statErr != nil || !fi.Mode().IsRegular() {
				return nil
			}
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// Reader reads a trace log file line by line.
type Reader struct {
	file    *os.File
	maxLine int
}

// NewReader opens the log file at path.
func NewReader(path string, maxLine int) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	return &Reader{file: f, maxLine: maxLine}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadLines calls fn for every line in order.
func (r *Reader) ReadLines(fn LineFunc) error {
	return ScanLines(r.file, r.maxLine, fn)
}

// ScanLines is ReadLines over an arbitrary reader. Lines end in "\n" or "\r\n".
// A line over maxLine bytes is drained up to its newline and passed to fn
// truncated, with a *LineTooLongError. Only read errors abort the scan.
func ScanLines(in io.Reader, maxLine int, fn LineFunc) error {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	// Room for a full line plus "\r\n"; anything beyond is counted, not kept.
	keep := maxLine + 2
	br := bufio.NewReaderSize(in, min(64*1024, keep))

	var (
		buf    []byte
		size   int
		lineNo int
	)
	for {
		chunk, err := br.ReadSlice('\n')
		size += len(chunk)
		if room := keep - len(buf); room > 0 {
			buf = append(buf, chunk[:min(room, len(chunk))]...)
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if size == 0 {
				return nil
			}
		case err != nil:
			return err
		}

		truncated := len(buf) < size
		if err == nil {
			size--
			if !truncated {
				buf = buf[:len(buf)-1]
			}
		}
		if !truncated && len(buf) > 0 && buf[len(buf)-1] == '\r' {
			buf = buf[:len(buf)-1]
			size--
		}

		lineNo++
		var lineErr error
		text := buf
		if size > maxLine {
			text = buf[:maxLine]
			lineErr = &LineTooLongError{Length: size, Max: maxLine}
		}
		if ferr := fn(lineNo, string(text), lineErr); ferr != nil {
			if errors.Is(ferr, io.EOF) {
				return nil
			}
			return ferr
		}
		if err != nil {
			return nil
		}
		buf, size = buf[:0], 0
	}
}
