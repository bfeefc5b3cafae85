package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogBuffer(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		add      int
		expected []string
	}{
		{"empty", 3, 0, []string{}},
		{"partial", 3, 2, []string{"line 0", "line 1"}},
		{"exactly full", 3, 3, []string{"line 0", "line 1", "line 2"}},
		{"wraps", 3, 5, []string{"line 2", "line 3", "line 4"}},
		{"wraps twice", 2, 7, []string{"line 5", "line 6"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := NewLogBuffer(tt.size)
			for i := 0; i < tt.add; i++ {
				buf.Add(fmt.Sprintf("line %d", i))
			}
			assert.Equal(t, tt.expected, buf.Lines())
			assert.Equal(t, len(tt.expected), buf.Len())
		})
	}
}

func TestLogBufferDefaultSize(t *testing.T) {
	buf := NewLogBuffer(0)
	for i := 0; i < defaultLogLines+10; i++ {
		buf.Add("x")
	}
	assert.Equal(t, defaultLogLines, buf.Len())
}

func TestLineWriter(t *testing.T) {
	var got []string
	w := &lineWriter{emit: func(s string) { got = append(got, s) }}

	_, _ = w.Write([]byte("first li"))
	assert.Empty(t, got)

	_, _ = w.Write([]byte("ne\nsecond\r\n\n\x1b[31mred\x1b[0m\n"))
	assert.Equal(t, []string{"first line", "second", "red"}, got)
}
