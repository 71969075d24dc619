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
	"crypto/tls"
	"errors"
	"net"

	gosmtp "github.com/emersion/go-smtp"

	"github.com/lukasdietrich/briefrelay/internal/log"
)

// Server accepts inbound mail.
type Server struct {
	server  *gosmtp.Server
	address string
}

// NewServer creates a Server. STARTTLS is offered if tlsConfig is not nil.
// AUTH is never offered.
func NewServer(backend *Backend, tlsConfig *tls.Config, options Options) *Server {
	server := gosmtp.NewServer(backend)

	server.Addr = options.Address
	server.Domain = options.Hostname
	server.ReadTimeout = options.Timeout
	server.WriteTimeout = options.Timeout
	server.TLSConfig = tlsConfig
	server.ErrorLog = log.Printer{Origin: "smtp"}

	// recipients and size are limited by the session to control the replies
	server.MaxRecipients = 0
	server.MaxMessageBytes = 0

	return &Server{
		server:  server,
		address: options.Address,
	}
}

// ListenAndServe listens on the configured address and blocks until the
// server is shut down.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(listener)
}

// Serve accepts connections on listener.
func (s *Server) Serve(listener net.Listener) error {
	log.Info().
		Str("address", listener.Addr().String()).
		Bool("starttls", s.server.TLSConfig != nil).
		Msg("starting smtp server")

	if err := s.server.Serve(listener); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown stops accepting connections and waits for open sessions to end.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
