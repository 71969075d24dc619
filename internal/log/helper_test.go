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

package log

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

// baseLogTestSuite redirects the global Logger into a buffer for the duration
// of each test.
type baseLogTestSuite struct {
	suite.Suite

	previous zerolog.Logger
	buffer   bytes.Buffer
}

func (s *baseLogTestSuite) SetupTest() {
	s.previous = Logger
	s.buffer.Reset()

	Logger = zerolog.New(&s.buffer).Level(zerolog.TraceLevel)
}

func (s *baseLogTestSuite) TearDownTest() {
	Logger = s.previous
}

func (s *baseLogTestSuite) assertMsg(expected string) {
	s.Equal(expected, s.buffer.String())
}

// entries decodes every line written since the test started.
func (s *baseLogTestSuite) entries() []map[string]interface{} {
	var entries []map[string]interface{}

	for _, line := range strings.Split(strings.TrimSpace(s.buffer.String()), "\n") {
		if line == "" {
			continue
		}

		var entry map[string]interface{}
		s.Require().NoError(json.Unmarshal([]byte(line), &entry), line)

		entries = append(entries, entry)
	}

	return entries
}
