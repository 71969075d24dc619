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

package smtp

import (
	"context"
	"net"

	gosmtp "github.com/emersion/go-smtp"

	"github.com/lukasdietrich/briefrelay/internal/aliases"
	"github.com/lukasdietrich/briefrelay/internal/crypto"
	"github.com/lukasdietrich/briefrelay/internal/delivery"
	"github.com/lukasdietrich/briefrelay/internal/log"
	"github.com/lukasdietrich/briefrelay/internal/mails"
	"github.com/lukasdietrich/briefrelay/internal/metrics"
	"github.com/lukasdietrich/briefrelay/internal/storage"
)

// Pipeline takes ownership of a received message and dispatches it.
type Pipeline interface {
	Deliver(ctx context.Context, envelope mails.Envelope, entry storage.CacheEntry) (*delivery.Batch, error)
}

// Backend creates a session for every smtp connection.
type Backend struct {
	aliases  *aliases.Table
	cache    storage.Cache
	pipeline Pipeline
	idGen    crypto.IDGenerator
	options  Options
}

// NewBackend creates a new Backend.
func NewBackend(
	aliases *aliases.Table,
	cache storage.Cache,
	pipeline Pipeline,
	idGen crypto.IDGenerator,
	options Options,
) *Backend {
	return &Backend{
		aliases:  aliases,
		cache:    cache,
		pipeline: pipeline,
		idGen:    idGen,
		options:  options,
	}
}

// NewSession implements gosmtp.Backend.
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	id, err := b.idGen.GenerateID()
	if err != nil {
		log.Error().Err(err).Msg("could not generate session id")
		return nil, errLocal
	}

	metrics.Sessions.Inc()

	s := newSession(b, id, c.Conn().RemoteAddr())
	s.helo = c.Hostname
	s.tls = func() bool {
		_, ok := c.TLSConnectionState()
		return ok
	}

	log.InfoContext(s.ctx).
		Str("addr", s.remote).
		Str("helo", c.Hostname()).
		Msg("starting session")

	return s, nil
}

func remoteIP(addr net.Addr) net.IP {
	switch addr := addr.(type) {
	case *net.TCPAddr:
		return addr.IP
	case nil:
		return nil
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return nil
		}

		return net.ParseIP(host)
	}
}

func remoteString(addr net.Addr) string {
	if addr == nil {
		return ""
	}

	return addr.String()
}
