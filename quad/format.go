package quad

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// Format renders a single instruction with operands as scope.type.offset.
func Format(q Quad) string {
	return fmt.Sprintf("%s\t%s\t%s\t%s", q.Op, q.Left, q.Right, q.Result)
}

// Dump writes a numbered listing of quads to w.
func Dump(w io.Writer, quads []Quad) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, q := range quads {
		if _, err := fmt.Fprintf(tw, "%04d\t%s\n", i, Format(q)); err != nil {
			return err
		}
	}
	return tw.Flush()
}
