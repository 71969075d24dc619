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

package crypto

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/google/wire"
	"github.com/oklog/ulid/v2"
)

// WireSet provides an IDGenerator.
var WireSet = wire.NewSet(NewIDGenerator)

// IDGenerator is a service to generate unique string IDs.
type IDGenerator interface {
	// GenerateID generates a new id.
	GenerateID() (string, error)
}

// NewIDGenerator creates a new id generator. IDs are ULIDs, which sort by
// creation time and are therefore usable as queue ids in logs and headers.
func NewIDGenerator() IDGenerator {
	return &ulidGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

type ulidGenerator struct {
	lock    sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

func (u *ulidGenerator) GenerateID() (string, error) {
	u.lock.Lock()
	defer u.lock.Unlock()

	id, err := ulid.New(ulid.Timestamp(u.now()), u.entropy)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}
