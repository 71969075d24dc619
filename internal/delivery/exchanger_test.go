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
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/lukasdietrich/briefrelay/internal/dns"
)

func TestExchangerTestSuite(t *testing.T) {
	suite.Run(t, new(ExchangerTestSuite))
}

type ExchangerTestSuite struct {
	suite.Suite

	resolver  *dns.MockResolver
	exchanger *MXExchanger
	dialed    []string
	reachable map[string]bool
}

func (s *ExchangerTestSuite) SetupTest() {
	s.resolver = new(dns.MockResolver)
	s.dialed = nil
	s.reachable = make(map[string]bool)

	s.exchanger = NewMXExchanger(s.resolver, Options{Port: 2525})
	s.exchanger.dial = s.dial
}

func (s *ExchangerTestSuite) TearDownTest() {
	s.resolver.AssertExpectations(s.T())
}

func (s *ExchangerTestSuite) dial(ctx context.Context, network, address string) (net.Conn, error) {
	s.Equal("tcp", network)
	s.dialed = append(s.dialed, address)

	if !s.reachable[address] {
		return nil, errors.New("connection refused")
	}

	client, server := net.Pipe()
	server.Close()

	return client, nil
}

func (s *ExchangerTestSuite) TestHostsOrderedByPreference() {
	s.resolver.
		On("LookupMX", mock.Anything, "foo.com").
		Return([]*net.MX{
			{Host: "mx2.foo.com.", Pref: 20},
			{Host: "mx1.foo.com.", Pref: 10},
			{Host: "mx3.foo.com.", Pref: 20},
		}, nil)

	hosts, err := s.exchanger.Hosts(context.TODO(), "foo.com")
	s.Require().NoError(err)
	s.Equal([]string{"mx1.foo.com", "mx2.foo.com", "mx3.foo.com"}, hosts)
}

func (s *ExchangerTestSuite) TestHostsImplicitMX() {
	s.resolver.
		On("LookupMX", mock.Anything, "foo.com").
		Return(nil, dns.ErrNotFound)

	hosts, err := s.exchanger.Hosts(context.TODO(), "foo.com")
	s.Require().NoError(err)
	s.Equal([]string{"foo.com"}, hosts)
}

func (s *ExchangerTestSuite) TestHostsNullMX() {
	s.resolver.
		On("LookupMX", mock.Anything, "foo.com").
		Return([]*net.MX{{Host: ".", Pref: 0}}, nil)

	_, err := s.exchanger.Hosts(context.TODO(), "foo.com")
	s.ErrorIs(err, ErrNullMX)
}

func (s *ExchangerTestSuite) TestHostsResolverError() {
	s.resolver.
		On("LookupMX", mock.Anything, "foo.com").
		Return(nil, dns.ErrServFail)

	_, err := s.exchanger.Hosts(context.TODO(), "foo.com")
	s.ErrorIs(err, dns.ErrServFail)
}

func (s *ExchangerTestSuite) TestExchangeFallsBack() {
	s.resolver.
		On("LookupMX", mock.Anything, "foo.com").
		Return([]*net.MX{
			{Host: "mx1.foo.com.", Pref: 10},
			{Host: "mx2.foo.com.", Pref: 20},
		}, nil)
	s.resolver.
		On("LookupIP", mock.Anything, "mx1.foo.com").
		Return([]net.IP{net.ParseIP("192.0.2.1")}, nil)
	s.resolver.
		On("LookupIP", mock.Anything, "mx2.foo.com").
		Return([]net.IP{net.ParseIP("192.0.2.2"), net.ParseIP("2001:db8::2")}, nil)

	s.reachable["[2001:db8::2]:2525"] = true

	conn, host, err := s.exchanger.Exchange(context.TODO(), "foo.com")
	s.Require().NoError(err)
	defer conn.Close()

	s.Equal("mx2.foo.com", host)
	s.Equal([]string{"192.0.2.1:2525", "192.0.2.2:2525", "[2001:db8::2]:2525"}, s.dialed)
}

func (s *ExchangerTestSuite) TestExchangeUnreachable() {
	s.resolver.
		On("LookupMX", mock.Anything, "foo.com").
		Return([]*net.MX{{Host: "mx1.foo.com.", Pref: 10}}, nil)
	s.resolver.
		On("LookupIP", mock.Anything, "mx1.foo.com").
		Return([]net.IP{net.ParseIP("192.0.2.1")}, nil)

	_, _, err := s.exchanger.Exchange(context.TODO(), "foo.com")
	s.ErrorIs(err, ErrNoExchanger)
}

func (s *ExchangerTestSuite) TestExchangeLookupIPError() {
	s.resolver.
		On("LookupMX", mock.Anything, "foo.com").
		Return([]*net.MX{{Host: "mx1.foo.com.", Pref: 10}}, nil)
	s.resolver.
		On("LookupIP", mock.Anything, "mx1.foo.com").
		Return(nil, dns.ErrNotFound)

	_, _, err := s.exchanger.Exchange(context.TODO(), "foo.com")
	s.ErrorIs(err, ErrNoExchanger)
	s.Empty(s.dialed)
}

func (s *ExchangerTestSuite) TestExchangeIPLiteral() {
	s.resolver.
		On("LookupMX", mock.Anything, "foo.com").
		Return([]*net.MX{{Host: "192.0.2.7", Pref: 10}}, nil)

	s.reachable["192.0.2.7:2525"] = true

	conn, host, err := s.exchanger.Exchange(context.TODO(), "foo.com")
	s.Require().NoError(err)
	defer conn.Close()

	s.Equal("192.0.2.7", host)
}

func (s *ExchangerTestSuite) TestExchangeNullMX() {
	s.resolver.
		On("LookupMX", mock.Anything, "foo.com").
		Return([]*net.MX{{Host: ".", Pref: 0}}, nil)

	_, _, err := s.exchanger.Exchange(context.TODO(), "foo.com")
	s.ErrorIs(err, ErrNullMX)
	s.Empty(s.dialed)
}
