package services

import (
	"bytes"
	"regexp"
	"strings"
	"sync"
)

const defaultLogLines = 500

// LogBuffer keeps the most recent lines in a fixed-size ring
type LogBuffer struct {
	mu    sync.Mutex
	lines []string
	start int
	count int
}

// NewLogBuffer creates a ring holding at most size lines
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = defaultLogLines
	}
	return &LogBuffer{lines: make([]string, size)}
}

// Add appends a line, overwriting the oldest when full
func (r *LogBuffer) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := len(r.lines)
	if r.count < size {
		r.lines[(r.start+r.count)%size] = line
		r.count++
		return
	}
	r.lines[r.start] = line
	r.start = (r.start + 1) % size
}

// Lines returns the buffered lines, oldest first
func (r *LogBuffer) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.lines[(r.start+i)%len(r.lines)]
	}
	return out
}

// Len returns how many lines are buffered
func (r *LogBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// lineWriter splits a byte stream into lines and hands each to emit.
type lineWriter struct {
	mu      sync.Mutex
	pending bytes.Buffer
	emit    func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending.Write(p)
	for {
		data := w.pending.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(ansiEscape.ReplaceAllString(string(data[:i]), ""), "\r")
		w.pending.Next(i + 1)
		if line != "" {
			w.emit(line)
		}
	}
	return len(p), nil
}
