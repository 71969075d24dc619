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

package auth

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/lukasdietrich/briefrelay/internal/mails"
)

// MockAuthenticator is a mock implementation of Authenticator.
type MockAuthenticator struct {
	mock.Mock
}

// Authenticate provides a mock function.
func (m *MockAuthenticator) Authenticate(ctx context.Context, facts Facts, message mails.Body) ([]byte, error) {
	args := m.Called(ctx, facts, message)

	block, _ := args.Get(0).([]byte)
	return block, args.Error(1)
}
