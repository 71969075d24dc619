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

package arc

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Canonicalization is a header or body canonicalization algorithm.
type Canonicalization string

const (
	// CanonSimple tolerates almost no modification.
	CanonSimple Canonicalization = "simple"
	// CanonRelaxed tolerates whitespace changes and header refolding.
	CanonRelaxed Canonicalization = "relaxed"
)

var crlf = []byte("\r\n")

// parseCanonicalization splits a c= tag into header and body algorithms.
func parseCanonicalization(c string) (header, body Canonicalization) {
	header, body = CanonSimple, CanonSimple

	h, b, _ := strings.Cut(strings.ToLower(c), "/")
	if strings.TrimSpace(h) == string(CanonRelaxed) {
		header = CanonRelaxed
	}

	if strings.TrimSpace(b) == string(CanonRelaxed) {
		body = CanonRelaxed
	}

	return header, body
}

// canonicalHeader returns a header field without its trailing line ending.
func canonicalHeader(canon Canonicalization, raw []byte) []byte {
	if canon == CanonSimple {
		return bytes.TrimRight(raw, "\r\n")
	}

	name, value, _ := bytes.Cut(raw, []byte{':'})
	name = bytes.ToLower(bytes.TrimRight(name, " \t"))

	value = bytes.ReplaceAll(value, []byte("\r\n"), nil)
	value = bytes.ReplaceAll(value, []byte("\n"), nil)
	value = bytes.TrimSpace(compressWhitespace(value))

	canonical := append(append([]byte{}, name...), ':')
	return append(canonical, value...)
}

func compressWhitespace(line []byte) []byte {
	out := make([]byte, 0, len(line))
	space := false

	for _, c := range line {
		if c == ' ' || c == '\t' {
			if !space {
				out = append(out, ' ')
			}

			space = true
			continue
		}

		out = append(out, c)
		space = false
	}

	return out
}

// canonicalBody writes the canonical form of body to w. Both algorithms drop
// trailing empty lines. The simple algorithm turns an empty body into a single
// CRLF, the relaxed algorithm keeps it empty.
func canonicalBody(canon Canonicalization, w io.Writer, body io.Reader) error {
	r := bufio.NewReader(body)

	var (
		pending int
		written bool
	)

	for {
		line, err := r.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return err
		}

		if len(line) > 0 {
			line = bytes.TrimRight(line, "\r\n")

			if canon == CanonRelaxed {
				line = bytes.TrimRight(compressWhitespace(line), " ")
			}

			if len(line) == 0 {
				pending++
			} else {
				for ; pending > 0; pending-- {
					if _, err := w.Write(crlf); err != nil {
						return err
					}
				}

				if _, err := w.Write(line); err != nil {
					return err
				}

				if _, err := w.Write(crlf); err != nil {
					return err
				}

				written = true
			}
		}

		if err == io.EOF {
			break
		}
	}

	if !written && canon == CanonSimple {
		_, err := w.Write(crlf)
		return err
	}

	return nil
}

// limitWriter discards everything beyond the first n bytes.
type limitWriter struct {
	w io.Writer
	n int64
}

func (l *limitWriter) Write(p []byte) (int, error) {
	size := len(p)

	if l.n <= 0 {
		return size, nil
	}

	if int64(len(p)) > l.n {
		p = p[:l.n]
	}

	n, err := l.w.Write(p)
	l.n -= int64(n)

	if err != nil {
		return n, err
	}

	return size, nil
}
