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
	"encoding/base64"
	"strings"
)

const maxLineLength = 76

// headerWriter renders header fields folded at tag boundaries.
type headerWriter struct {
	b       strings.Builder
	lineLen int
	started bool
}

func (w *headerWriter) add(sep, text string) {
	if w.started && w.lineLen > 1 && w.lineLen+len(sep)+len(text) > maxLineLength {
		w.b.WriteString("\r\n\t")
		w.lineLen = 1
	} else if w.started {
		w.b.WriteString(sep)
		w.lineLen += len(sep)
	}

	w.b.WriteString(text)
	w.lineLen += len(text)
	w.started = true
}

// addWrap writes data across as many lines as needed.
func (w *headerWriter) addWrap(data string) {
	for len(data) > 0 {
		n := maxLineLength - w.lineLen
		if n <= 0 {
			w.b.WriteString("\r\n\t")
			w.lineLen = 1
			n = maxLineLength - 1
		}

		if n > len(data) {
			n = len(data)
		}

		w.b.WriteString(data[:n])
		w.lineLen += n
		data = data[n:]
	}
}

func (w *headerWriter) addBase64(tag string, data []byte) {
	w.add(" ", tag+"=")
	w.addWrap(base64.StdEncoding.EncodeToString(data))
}

// bytes returns the rendered field terminated by CRLF.
func (w *headerWriter) bytes() []byte {
	return []byte(w.b.String() + "\r\n")
}

// FormatResults renders a header field carrying authentication results,
// folding after each result.
func FormatResults(name, value string) []byte {
	var w headerWriter

	parts := strings.Split(value, ";")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if i < len(parts)-1 {
			part += ";"
		}

		if i == 0 {
			w.add("", name+": "+part)
		} else {
			w.add(" ", part)
		}
	}

	return w.bytes()
}
