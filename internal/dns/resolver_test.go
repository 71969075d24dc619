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
	"testing"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestResolverTestSuite(t *testing.T) {
	suite.Run(t, new(ResolverTestSuite))
}

type ResolverTestSuite struct {
	suite.Suite

	server   *mdns.Server
	resolver Resolver
}

func (s *ResolverTestSuite) SetupTest() {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	s.Require().NoError(err)

	mux := mdns.NewServeMux()
	mux.HandleFunc("example.com.", s.serveExample)
	mux.HandleFunc(".", func(w mdns.ResponseWriter, r *mdns.Msg) {
		m := new(mdns.Msg)
		m.SetRcode(r, mdns.RcodeNameError)
		w.WriteMsg(m) // nolint:errcheck
	})

	started := make(chan struct{})
	s.server = &mdns.Server{
		PacketConn:        pc,
		Handler:           mux,
		NotifyStartedFunc: func() { close(started) },
	}

	go s.server.ActivateAndServe() // nolint:errcheck
	<-started

	s.resolver = NewResolver(Options{
		Nameservers: []string{pc.LocalAddr().String()},
		Timeout:     time.Second,
	})
}

func (s *ResolverTestSuite) TearDownTest() {
	s.Require().NoError(s.server.Shutdown())
}

func (s *ResolverTestSuite) serveExample(w mdns.ResponseWriter, r *mdns.Msg) {
	m := new(mdns.Msg)
	m.SetReply(r)

	q := r.Question[0]
	hdr := mdns.RR_Header{Name: q.Name, Rrtype: q.Qtype, Class: mdns.ClassINET, Ttl: 60}

	switch q.Qtype {
	case mdns.TypeMX:
		m.Answer = append(m.Answer,
			&mdns.MX{Hdr: hdr, Preference: 20, Mx: "mx2.example.com."},
			&mdns.MX{Hdr: hdr, Preference: 10, Mx: "mx1.example.com."},
		)
	case mdns.TypeTXT:
		m.Answer = append(m.Answer,
			&mdns.TXT{Hdr: hdr, Txt: []string{"v=spf1 ", "-all"}},
		)
	case mdns.TypeA:
		m.Answer = append(m.Answer,
			&mdns.A{Hdr: hdr, A: net.ParseIP("192.0.2.1").To4()},
		)
	}

	w.WriteMsg(m) // nolint:errcheck
}

func (s *ResolverTestSuite) TestLookupMX() {
	records, err := s.resolver.LookupMX(context.TODO(), "example.com")
	s.Require().NoError(err)
	s.Equal([]*net.MX{
		{Host: "mx2.example.com.", Pref: 20},
		{Host: "mx1.example.com.", Pref: 10},
	}, records)
}

func (s *ResolverTestSuite) TestLookupTXT() {
	records, err := s.resolver.LookupTXT(context.TODO(), "example.com")
	s.Require().NoError(err)
	s.Equal([]string{"v=spf1 -all"}, records)
}

func (s *ResolverTestSuite) TestLookupIP() {
	ips, err := s.resolver.LookupIP(context.TODO(), "example.com")
	s.Require().NoError(err)
	s.Require().Len(ips, 1)
	s.True(ips[0].Equal(net.ParseIP("192.0.2.1")))
}

func (s *ResolverTestSuite) TestNotFound() {
	_, err := s.resolver.LookupMX(context.TODO(), "nowhere.test")
	s.True(IsNotFound(err))

	_, err = s.resolver.LookupIP(context.TODO(), "nowhere.test")
	s.True(IsNotFound(err))
}

func (s *ResolverTestSuite) TestCanceledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.resolver.LookupTXT(ctx, "example.com")
	s.ErrorIs(err, context.Canceled)
}

func TestWithDefaultPort(t *testing.T) {
	assert.Equal(t,
		[]string{"127.0.0.1:53", "[::1]:5353", "[2001:db8::1]:53"},
		withDefaultPort([]string{"127.0.0.1", "[::1]:5353", "2001:db8::1"}),
	)
}
