package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// DefaultPoll is how often follow mode checks for new lines.
const DefaultPoll = 250 * time.Millisecond

const maxLineBytes = 1 << 20

// Options controls Tail.
type Options struct {
	// Lines is how many trailing lines to emit first. Zero emits none.
	Lines  int
	Follow bool
	Poll   time.Duration
	// Match keeps only lines containing the substring.
	Match string
}

// Tail emits the last opts.Lines lines of path and, when following, every
// line appended afterwards. A missing file is treated as empty.
func Tail(ctx context.Context, path string, opts Options, emit func(string) error) error {
	if opts.Poll <= 0 {
		opts.Poll = DefaultPoll
	}
	keep := func(line string) bool {
		return opts.Match == "" || strings.Contains(line, opts.Match)
	}

	offset, err := emitLast(path, opts.Lines, keep, emit)
	if err != nil {
		return err
	}
	if !opts.Follow {
		return nil
	}

	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()
	var partial string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		size, err := fileSize(path)
		if err != nil {
			return err
		}
		if size < offset {
			offset, partial = 0, ""
		}
		if size == offset {
			continue
		}
		next, rest, err := readFrom(path, offset, partial, func(line string) error {
			if keep(line) {
				return emit(line)
			}
			return nil
		})
		if err != nil {
			return err
		}
		offset, partial = next, rest
	}
}

// emitLast emits the final limit matching lines and returns the end offset.
func emitLast(path string, limit int, keep func(string) bool, emit func(string) error) (int64, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var ring []string
	if limit > 0 {
		ring = make([]string, 0, limit)
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if limit <= 0 || !keep(line) {
			continue
		}
		if len(ring) == limit {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, line)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read log file: %w", err)
	}
	for _, line := range ring {
		if err := emit(line); err != nil {
			return 0, err
		}
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	return offset, nil
}

// readFrom emits complete lines after offset. A trailing line without a
// newline is carried over to the next poll.
func readFrom(path string, offset int64, partial string, emit func(string) error) (int64, string, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, "", nil
	}
	if err != nil {
		return offset, partial, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, partial, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	for {
		chunk, err := reader.ReadString('\n')
		offset += int64(len(chunk))
		if err != nil {
			if errors.Is(err, io.EOF) {
				return offset, partial + chunk, nil
			}
			return offset, partial, fmt.Errorf("read log file: %w", err)
		}
		line := strings.TrimRight(partial+chunk, "\r\n")
		partial = ""
		if err := emit(line); err != nil {
			return offset, "", err
		}
	}
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("log path %q is a directory", path)
	}
	return info.Size(), nil
}
