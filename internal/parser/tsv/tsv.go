// Package tsv reads ClickHouse-style TabSeparatedWithNames bodies.
//
// Cells are returned still escaped. Use Unescape when a destination needs
// the literal value.
package tsv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"logexport/internal/dataset"
)

// ErrNoHeader is returned for a body with no header row.
var ErrNoHeader = errors.New("tsv: missing header row")

const maxLine = 16 << 20

// Parse reads a header row and then data rows into a Table. Only the final
// line terminator is optional: every other line after the header is a row,
// so an empty line is one empty cell and is rejected for wider headers.
func Parse(ctx context.Context, r io.Reader) (*dataset.Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxLine)

	var (
		tb   *dataset.Table
		line int
	)
	for sc.Scan() {
		line++
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		text := strings.TrimSuffix(sc.Text(), "\r")
		if tb == nil {
			if line == 1 {
				text = strings.TrimPrefix(text, "\uFEFF")
			}
			if text == "" {
				return nil, ErrNoHeader
			}
			tb = dataset.New(strings.Split(text, "\t")...)
			continue
		}
		cells := strings.Split(text, "\t")
		if err := tb.AppendRow(cells); err != nil {
			return nil, fmt.Errorf("tsv: line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("tsv: line %d: %w", line+1, err)
	}
	if tb == nil {
		return nil, ErrNoHeader
	}
	return tb, nil
}

// Unescape decodes TabSeparated backslash escapes.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
