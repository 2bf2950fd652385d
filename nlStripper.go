package main

import (
	"bytes"
	"fmt"
	"io"
)

// stripNewlines returns a writer that drops CR and LF so rendered HTML fits
// on a single SSE data line.
func stripNewlines(w io.Writer) io.Writer {
	return &newlineStripper{w: w}
}

type newlineStripper struct {
	w io.Writer
	b bytes.Buffer
}

var _ io.Writer = (*newlineStripper)(nil)

func (ns *newlineStripper) Write(p []byte) (int, error) {
	n := len(p)
	ns.b.Grow(n)
	for len(p) > 0 {
		i := bytes.IndexAny(p, "\r\n")
		if i < 0 {
			ns.b.Write(p)
			break
		}
		ns.b.Write(p[:i])
		p = p[i+1:]
	}

	if _, err := ns.b.WriteTo(ns.w); err != nil {
		ns.b.Reset()
		// how much of p made it out is unknown once newlines are gone
		return 0, err
	}

	return n, nil
}

// writeEvent writes one server-sent event whose data is produced by render.
func writeEvent(w io.Writer, name string, render func(io.Writer) error) error {
	if _, err := fmt.Fprintf(w, "event: %s\r\ndata:", name); err != nil {
		return err
	}
	if err := render(stripNewlines(w)); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n\r\n")
	return err
}
