// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package mails

import (
	"bytes"
	"io"
	"strings"
)

// Body is an immutable message, that can be read any number of times.
type Body interface {
	// Reader returns a new reader positioned at the start of the message.
	Reader() (io.Reader, error)
}

// Prepender collects header lines to be put in front of a message. Lines are
// emitted in the order they were added.
type Prepender struct {
	lines [][]byte
}

// NewPrepender creates an empty Prepender.
func NewPrepender(initialCapacity int) *Prepender {
	return &Prepender{
		lines: make([][]byte, 0, initialCapacity),
	}
}

// Prepend adds a single "key: value" line without folding.
func (p *Prepender) Prepend(key, value string) {
	var buffer bytes.Buffer

	buffer.Grow(len(key) + len(value) + 4)
	buffer.WriteString(key)
	buffer.WriteString(": ")
	buffer.WriteString(value)
	buffer.WriteString("\r\n")

	p.lines = append(p.lines, buffer.Bytes())
}

// PrependFolded adds a "key: value" line and folds the value at whitespace,
// if the line exceeds 78 characters.
func (p *Prepender) PrependFolded(key, value string) {
	const (
		// see RFC#2822 2.1.1
		foldLength = 78
	)

	var (
		buffer bytes.Buffer

		length = len(key) + 2
		i      = 0
	)

	// allocate a buffer with enough space for the key and value plus
	// a little extra for folding line breaks
	buffer.Grow(len(key) + len(value) + 16)

	buffer.WriteString(key)
	buffer.WriteString(": ")

	for i < len(value) {
		foldPoint := findFoldPoint(value[i:], foldLength-length)

		buffer.WriteString(value[i : i+foldPoint])
		buffer.WriteString("\r\n")

		i += foldPoint
		length = 0
	}

	p.lines = append(p.lines, buffer.Bytes())
}

// PrependRaw adds an already formatted block of header lines. Bare "\n" line
// endings are rewritten to "\r\n" and a missing final line ending is added.
func (p *Prepender) PrependRaw(block []byte) {
	if len(block) == 0 {
		return
	}

	normalized := NormalizeLineEndings(block)
	if !bytes.HasSuffix(normalized, crlf) {
		normalized = append(normalized, crlf...)
	}

	p.lines = append(p.lines, normalized)
}

// Bytes returns all lines concatenated.
func (p *Prepender) Bytes() []byte {
	return bytes.Join(p.lines, nil)
}

// Reader returns a reader of all lines followed by r. The bytes of r are never
// altered.
func (p *Prepender) Reader(r io.Reader) io.Reader {
	readers := make([]io.Reader, 0, len(p.lines)+1)
	for _, line := range p.lines {
		readers = append(readers, bytes.NewReader(line))
	}

	return io.MultiReader(append(readers, r)...)
}

var crlf = []byte("\r\n")

// NormalizeLineEndings rewrites every bare "\n" and bare "\r" to "\r\n".
func NormalizeLineEndings(b []byte) []byte {
	s := strings.ReplaceAll(string(b), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func findFoldPoint(line string, length int) int {
	const (
		space = 32
		tab   = 9
	)

	if len(line) > length {
		var candidate int

		for i, b := range line {
			if b == space || b == tab {
				candidate = i
			}

			if i >= length && candidate > 0 {
				return candidate
			}
		}
	}

	return len(line)
}
