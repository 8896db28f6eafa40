package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"bytes", 1023, "1023 B"},
		{"kilobytes", 1536, "1.5 KB"},
		{"megabytes", 5242880, "5.0 MB"},
		{"gigabytes", 1610612736, "1.5 GB"},
		{"terabytes", 1099511627776, "1.0 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSize(tt.bytes))
		})
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Now()

	t.Run("same year", func(t *testing.T) {
		got := formatTime(time.Date(now.Year(), time.March, 15, 10, 30, 0, 0, time.UTC))
		assert.Equal(t, "Mar 15 10:30", got)
	})

	t.Run("different year", func(t *testing.T) {
		got := formatTime(time.Date(2020, time.December, 5, 8, 0, 0, 0, time.UTC))
		assert.Equal(t, "Dec  5  2020", got)
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Equal(t, "-", formatTime(time.Time{}))
	})
}

func TestPrintTable_AlignsColumns(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"NAME", "SIZE"}, [][]string{
		{"a-long-name.txt", "1.2 MB"},
		{"b/", "-"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)

	// Every SIZE cell starts in the same column.
	col := strings.Index(lines[0], "SIZE")
	assert.Equal(t, col, strings.Index(lines[1], "1.2 MB"))
	assert.Equal(t, col, strings.Index(lines[2], "-"))
}

func TestStatusf_Quiet(t *testing.T) {
	saveFlags(t)

	var buf bytes.Buffer

	old := statusWriter
	statusWriter = &buf

	t.Cleanup(func() { statusWriter = old })

	flagQuiet = false
	statusf("Uploaded %s\n", "a.txt")
	assert.Equal(t, "Uploaded a.txt\n", buf.String())

	buf.Reset()

	flagQuiet = true
	statusf("Uploaded %s\n", "b.txt")
	assert.Empty(t, buf.String())
}

func TestPrintJSON_Indented(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, printJSON(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}
