// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package api

import (
	"bufio"
	"errors"
	"io"
)

// DefaultMaxFrameSize bounds a single JSON object read from a producer.
const DefaultMaxFrameSize = 64 * 1024

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Framer splits a byte stream into top-level JSON objects. Producers write
// objects back to back, with or without newlines, and a single read may
// carry part of an object or several of them.
type Framer struct {
	r   *bufio.Reader
	max int
	buf []byte

	// skipping is set after an oversized frame, until its closing brace.
	skipping bool
	depth    int
	inString bool
	escaped  bool
}

func NewFramer(r io.Reader, maxSize int) *Framer {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Framer{
		r:   bufio.NewReader(r),
		max: maxSize,
	}
}

func (f *Framer) reset() {
	f.buf = f.buf[:0]
	f.depth = 0
	f.inString = false
	f.escaped = false
}

// Next returns the next complete object. The returned slice is only valid
// until the following call. io.EOF is returned when the input ends between
// objects, io.ErrUnexpectedEOF when it ends inside one.
func (f *Framer) Next() ([]byte, error) {
	for {
		c, err := f.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && (f.depth > 0 || f.skipping) {
				f.reset()
				f.skipping = false
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		if f.depth == 0 {
			// Outside of any object: wait for an opening brace.
			if c != '{' {
				continue
			}
			f.depth = 1
			f.buf = append(f.buf[:0], c)
			continue
		}

		if !f.skipping {
			f.buf = append(f.buf, c)
		}

		switch {
		case f.escaped:
			f.escaped = false
		case f.inString && c == '\\':
			f.escaped = true
		case c == '"':
			f.inString = !f.inString
		case f.inString:
		case c == '{':
			f.depth++
		case c == '}':
			f.depth--
		}

		if !f.skipping && len(f.buf) > f.max {
			if f.depth == 0 {
				// The closing brace itself went over.
				f.reset()
				return nil, ErrFrameTooLarge
			}
			// Drop what we have and swallow the rest of this object.
			f.skipping = true
			f.buf = f.buf[:0]
			return nil, ErrFrameTooLarge
		}

		if f.depth == 0 {
			if f.skipping {
				f.skipping = false
				f.reset()
				continue
			}
			frame := f.buf
			f.reset()
			return frame, nil
		}
	}
}
