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

package dns

import (
	"context"
	"net"

	"github.com/stretchr/testify/mock"
)

// MockResolver is a mock implementation of Resolver.
type MockResolver struct {
	mock.Mock
}

// LookupMX provides a mock function.
func (m *MockResolver) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	args := m.Called(ctx, domain)

	records, _ := args.Get(0).([]*net.MX)
	return records, args.Error(1)
}

// LookupTXT provides a mock function.
func (m *MockResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	args := m.Called(ctx, name)

	records, _ := args.Get(0).([]string)
	return records, args.Error(1)
}

// LookupIP provides a mock function.
func (m *MockResolver) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	args := m.Called(ctx, host)

	ips, _ := args.Get(0).([]net.IP)
	return ips, args.Error(1)
}
