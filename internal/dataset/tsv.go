package dataset

import (
	"bufio"
	"io"
	"strings"
)

// WriteTSV writes t as TabSeparatedWithNames: a header row then one line per
// row. Cells are written verbatim since they are still escaped.
func (t *Table) WriteTSV(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 64<<10)
	if _, err := bw.WriteString(strings.Join(t.Names(), "\t")); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	n := t.Rows()
	for i := 0; i < n; i++ {
		for j, c := range t.Columns {
			if j > 0 {
				if err := bw.WriteByte('\t'); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(c.Cells[i]); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
