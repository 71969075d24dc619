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

package delivery

import (
	"bytes"
	"context"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lukasdietrich/briefrelay/internal/mails"
)

type testEntry struct {
	data     []byte
	released int32
}

func newTestEntry(data string) *testEntry {
	return &testEntry{data: []byte(data)}
}

func (e *testEntry) Reader() (io.Reader, error) {
	return bytes.NewReader(e.data), nil
}

func (e *testEntry) Size() int64 {
	return int64(len(e.data))
}

func (e *testEntry) Release(context.Context) error {
	atomic.AddInt32(&e.released, 1)
	return nil
}

func (e *testEntry) releaseCount() int {
	return int(atomic.LoadInt32(&e.released))
}

func address(t *testing.T, raw string) mails.Address {
	addr, err := mails.ParseUnicode(raw)
	require.NoError(t, err)

	return addr
}

func target(t *testing.T, original, target string) mails.ForwardTarget {
	return mails.ForwardTarget{
		Original: address(t, original),
		Target:   address(t, target),
	}
}

func readAll(t *testing.T, r io.Reader) string {
	b, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(b)
}
