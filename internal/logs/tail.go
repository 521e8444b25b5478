package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

const (
	maxLineBytes = 1 << 20
	pollInterval = 250 * time.Millisecond
)

// Tail returns up to n trailing lines of path and the end-of-file offset.
// A missing file yields no lines at offset zero.
func Tail(path string, n int) ([]string, int64, error) {
	file, err := open(path)
	if file == nil || err != nil {
		return nil, 0, err
	}
	defer file.Close()

	if n <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		return nil, end, err
	}
	ring := make([]string, 0, n)
	next := 0
	end, err := scan(file, func(line string) {
		if len(ring) < n {
			ring = append(ring, line)
			return
		}
		ring[next] = line
		next = (next + 1) % n
	})
	if err != nil {
		return nil, 0, err
	}
	return append(ring[next:], ring[:next]...), end, nil
}

// ReadFrom returns the complete lines written at or after offset. An offset
// past the end of the file, which happens after truncation, restarts from zero.
func ReadFrom(path string, offset int64) ([]string, int64, error) {
	file, err := open(path)
	if file == nil || err != nil {
		return nil, 0, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	read, err := scan(file, func(line string) { lines = append(lines, line) })
	if err != nil {
		return nil, offset, err
	}
	return lines, offset + read, nil
}

// Follow polls path from offset and hands each new line to emit until ctx
// is done. It returns nil on cancellation.
func Follow(ctx context.Context, path string, offset int64, emit func(string)) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		lines, next, err := ReadFrom(path, offset)
		if err != nil {
			return err
		}
		for _, line := range lines {
			emit(line)
		}
		offset = next
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func open(path string) (*os.File, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

// scan feeds each newline-terminated line to fn and returns the bytes
// consumed. A trailing partial line is left for the next read.
func scan(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadSlice('\n')
		switch {
		case err == nil:
			consumed += int64(len(line))
			fn(string(trimEOL(line)))
		case errors.Is(err, bufio.ErrBufferFull):
			head := append([]byte(nil), line...)
			rest, rerr := reader.ReadBytes('\n')
			full := append(head, rest...)
			if rerr != nil {
				if errors.Is(rerr, io.EOF) {
					return consumed, nil
				}
				return consumed, fmt.Errorf("read log file: %w", rerr)
			}
			consumed += int64(len(full))
			if len(full) <= maxLineBytes {
				fn(string(trimEOL(full)))
			}
		case errors.Is(err, io.EOF):
			return consumed, nil
		default:
			return consumed, fmt.Errorf("read log file: %w", err)
		}
	}
}

func trimEOL(line []byte) []byte {
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
