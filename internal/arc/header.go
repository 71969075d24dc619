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
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	headerAAR  = "arc-authentication-results"
	headerAMS  = "arc-message-signature"
	headerSeal = "arc-seal"
)

// field is a single header field including its folded continuation lines
// and the trailing line ending.
type field struct {
	raw []byte
	key string
}

func (f field) value() string {
	i := bytes.IndexByte(f.raw, ':')
	return strings.TrimRight(string(f.raw[i+1:]), "\r\n")
}

// readHeader reads all header fields from r. The reader is positioned at the
// start of the body afterwards.
func readHeader(r *bufio.Reader) ([]field, error) {
	var fields []field

	for {
		line, err := r.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}

		if len(bytes.TrimRight(line, "\r\n")) == 0 {
			return fields, nil
		}

		if line[0] == ' ' || line[0] == '\t' {
			if len(fields) > 0 {
				last := &fields[len(fields)-1]
				last.raw = append(last.raw, line...)
			}
		} else if name, _, ok := bytes.Cut(line, []byte{':'}); ok {
			fields = append(fields, field{
				raw: line,
				key: strings.ToLower(string(bytes.TrimSpace(name))),
			})
		}

		if err == io.EOF {
			return fields, nil
		}
	}
}

// parseTags parses a tag-list as used by DKIM and ARC.
func parseTags(value string) (map[string]string, error) {
	tags := make(map[string]string)

	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, val, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: tag without value %q", ErrSyntax, part)
		}

		name = strings.TrimSpace(name)
		if _, exists := tags[name]; exists {
			return nil, fmt.Errorf("%w: duplicate tag %q", ErrSyntax, name)
		}

		tags[name] = strings.TrimSpace(val)
	}

	return tags, nil
}

func requireTags(tags map[string]string, names ...string) error {
	for _, name := range names {
		if _, ok := tags[name]; !ok {
			return fmt.Errorf("%w: %s=", ErrMissingTag, name)
		}
	}

	return nil
}

func parseInstance(s string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrSyntax, s)
	}

	if i < 1 || i > MaxInstance {
		return 0, fmt.Errorf("%w: %d", ErrInvalidInstance, i)
	}

	return i, nil
}

// instanceOf returns the i= tag of an ARC header field.
func instanceOf(f field) (int, error) {
	value := f.value()

	if f.key == headerAAR {
		// the aar does not use a tag-list, only the leading i= is a tag
		head, _, _ := strings.Cut(value, ";")
		name, val, ok := strings.Cut(head, "=")
		if !ok || strings.TrimSpace(name) != "i" {
			return 0, fmt.Errorf("%w: missing i= in %s", ErrSyntax, f.key)
		}

		return parseInstance(val)
	}

	tags, err := parseTags(value)
	if err != nil {
		return 0, err
	}

	if err := requireTags(tags, "i"); err != nil {
		return 0, err
	}

	return parseInstance(tags["i"])
}

// stripSignature empties the value of the b= tag while keeping everything
// else of the header field intact.
func stripSignature(raw []byte) []byte {
	name, value, ok := bytes.Cut(raw, []byte{':'})
	if !ok {
		return raw
	}

	parts := bytes.Split(value, []byte{';'})
	for i, part := range parts {
		tag, _, ok := bytes.Cut(part, []byte{'='})
		if ok && string(bytes.TrimSpace(tag)) == "b" {
			parts[i] = part[:len(tag)+1]
		}
	}

	stripped := append(append([]byte{}, name...), ':')
	return append(stripped, bytes.Join(parts, []byte{';'})...)
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		default:
			return r
		}
	}, s)
}

// set is one complete ARC set of an existing chain.
type set struct {
	instance int
	aar      field
	ams      field
	seal     field
}

// collectSets groups the ARC header fields by instance. highest is the
// largest instance seen, even when the chain is structurally broken.
func collectSets(fields []field) (sets []set, highest int, err error) {
	byInstance := make(map[int]*set)
	counts := make(map[int]int)

	for _, f := range fields {
		if f.key != headerAAR && f.key != headerAMS && f.key != headerSeal {
			continue
		}

		instance, err := instanceOf(f)
		if err != nil {
			if highest == 0 {
				highest = 1
			}

			return nil, highest, err
		}

		if instance > highest {
			highest = instance
		}

		s, ok := byInstance[instance]
		if !ok {
			s = &set{instance: instance}
			byInstance[instance] = s
		}

		counts[instance]++

		switch f.key {
		case headerAAR:
			s.aar = f
		case headerAMS:
			s.ams = f
		case headerSeal:
			s.seal = f
		}
	}

	if highest == 0 {
		return nil, 0, nil
	}

	sets = make([]set, highest)

	for i := 1; i <= highest; i++ {
		s, ok := byInstance[i]
		if !ok {
			return nil, highest, fmt.Errorf("%w: instance %d missing", ErrInvalidChain, i)
		}

		if counts[i] != 3 || s.aar.raw == nil || s.ams.raw == nil || s.seal.raw == nil {
			return nil, highest, fmt.Errorf("%w: instance %d incomplete", ErrInvalidChain, i)
		}

		sets[i-1] = *s
	}

	return sets, highest, nil
}
