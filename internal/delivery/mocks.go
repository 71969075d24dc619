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
	"context"
	"io"
	"net"

	"github.com/stretchr/testify/mock"

	"github.com/lukasdietrich/briefrelay/internal/mails"
)

// MockExchanger is a mock implementation of Exchanger.
type MockExchanger struct {
	mock.Mock
}

// Exchange provides a mock function.
func (m *MockExchanger) Exchange(ctx context.Context, domain string) (net.Conn, string, error) {
	args := m.Called(ctx, domain)

	conn, _ := args.Get(0).(net.Conn)
	return conn, args.String(1), args.Error(2)
}

// MockTransport is a mock implementation of Transport. The message is read
// completely before the call is recorded, so that it can be asserted.
type MockTransport struct {
	mock.Mock
}

// Send provides a mock function.
func (m *MockTransport) Send(ctx context.Context, conn net.Conn, host string, from, to mails.Address, message io.Reader) error {
	data, err := io.ReadAll(message)
	if err != nil {
		return err
	}

	if conn != nil {
		conn.Close()
	}

	args := m.Called(ctx, conn, host, from, to, data)
	return args.Error(0)
}
