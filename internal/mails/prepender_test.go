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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrependFolded(t *testing.T) {
	msg := strings.Join([]string{
		"Subject: Very important mail",
		"",
		"This is important!",
	}, "\r\n")

	expected := strings.Join([]string{
		"Received: by very.good.mail.server (briefrelay) for",
		" <a-very-important-person@very.good.mail.server>; Sat, 5 Jan 2019 06:33:36",
		" +0000 (UTC)",
		"Subject: Very important mail",
		"",
		"This is important!",
	}, "\r\n")

	p := NewPrepender(1)
	p.PrependFolded(
		"Received",
		"by very.good.mail.server (briefrelay) "+
			"for <a-very-important-person@very.good.mail.server>"+
			"; Sat, 5 Jan 2019 06:33:36 +0000 (UTC)")

	var actual bytes.Buffer
	actual.ReadFrom(p.Reader(strings.NewReader(msg)))

	assert.Equal(t, expected, actual.String())
}

func TestPrependKeepsOrder(t *testing.T) {
	p := NewPrepender(2)
	p.Prepend("X-First", "1")
	p.Prepend("X-Second", "a rather long value, that would be folded if this line was any longer than it is")

	assert.Equal(t,
		"X-First: 1\r\n"+
			"X-Second: a rather long value, that would be folded if this line was any longer than it is\r\n",
		string(p.Bytes()))
}

func TestPrependRaw(t *testing.T) {
	p := NewPrepender(1)
	p.PrependRaw([]byte("A: 1\nB: 2\r\n\tcontinued\nC: 3"))
	p.PrependRaw(nil)

	assert.Equal(t, "A: 1\r\nB: 2\r\n\tcontinued\r\nC: 3\r\n", string(p.Bytes()))
}

func TestReaderKeepsOriginal(t *testing.T) {
	original := "Subject: bare\nline endings\n\nare\rnot touched\n"

	p := NewPrepender(1)
	p.Prepend("X-Test", "yes")

	var actual bytes.Buffer
	actual.ReadFrom(p.Reader(strings.NewReader(original)))

	assert.True(t, strings.HasSuffix(actual.String(), original))
}

func TestNormalizeLineEndings(t *testing.T) {
	for input, expected := range map[string]string{
		"":           "",
		"a\nb":       "a\r\nb",
		"a\r\nb":     "a\r\nb",
		"a\rb\n":     "a\r\nb\r\n",
		"a\n\r\n\nb": "a\r\n\r\n\r\nb",
	} {
		assert.Equal(t, expected, string(NormalizeLineEndings([]byte(input))))
	}
}
