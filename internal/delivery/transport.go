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
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/lukasdietrich/briefrelay/internal/log"
	"github.com/lukasdietrich/briefrelay/internal/mails"
)

// Transport transmits a message over an established connection.
type Transport interface {
	// Send delivers message from sender to the single recipient to. The
	// connection is closed when Send returns.
	Send(ctx context.Context, conn net.Conn, host string, from, to mails.Address, message io.Reader) error
}

// ClientTransport speaks smtp with opportunistic STARTTLS.
type ClientTransport struct {
	hostname  string
	timeout   time.Duration
	verifyTLS bool
}

// NewClientTransport creates a ClientTransport.
func NewClientTransport(options Options) *ClientTransport {
	return &ClientTransport{
		hostname:  options.Hostname,
		timeout:   options.Timeout,
		verifyTLS: options.VerifyTLS,
	}
}

// Send implements Transport.
func (t *ClientTransport) Send(ctx context.Context, conn net.Conn, host string, from, to mails.Address, message io.Reader) error {
	defer conn.Close()

	if err := ctx.Err(); err != nil {
		return err
	}

	// closing the connection aborts a blocked command on cancellation
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	client, err := t.open(ctx, conn, host)
	if err != nil {
		return err
	}

	defer client.Close()

	if err := client.Mail(from.String(), nil); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}

	if err := client.Rcpt(to.String(), nil); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}

	if _, err := io.Copy(w, message); err != nil {
		w.Close()
		return fmt.Errorf("data: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("data: %w", err)
	}

	if err := client.Quit(); err != nil {
		// the message is accepted at this point
		log.DebugContext(ctx).
			Err(err).
			Msg("quit failed after successful delivery")
	}

	return nil
}

// open greets the server and upgrades the connection to tls, if the server
// offers STARTTLS.
func (t *ClientTransport) open(ctx context.Context, conn net.Conn, host string) (*smtp.Client, error) {
	client := t.newClient(conn)

	if err := client.Hello(t.hostname); err != nil {
		return nil, fmt.Errorf("ehlo: %w", err)
	}

	if ok, _ := client.Extension("STARTTLS"); !ok {
		return client, nil
	}

	config := tls.Config{
		ServerName:         host,
		InsecureSkipVerify: !t.verifyTLS, // nolint:gosec
	}

	tlsConn, err := t.startTLS(ctx, conn, &config)
	if err != nil {
		return nil, fmt.Errorf("starttls: %w", err)
	}

	// the server does not greet again after STARTTLS, but a new client
	// waits for a greeting before EHLO.
	client = t.newClient(&greetedConn{
		Conn:     tlsConn,
		greeting: strings.NewReader("220 " + host + "\r\n"),
	})

	if err := client.Hello(t.hostname); err != nil {
		return nil, fmt.Errorf("ehlo: %w", err)
	}

	log.DebugContext(ctx).
		Str("host", host).
		Msg("upgraded connection to tls")

	return client, nil
}

func (t *ClientTransport) newClient(conn net.Conn) *smtp.Client {
	client := smtp.NewClient(conn)

	if t.timeout > 0 {
		client.CommandTimeout = t.timeout
		client.SubmissionTimeout = t.timeout
	}

	return client
}

// startTLS issues STARTTLS on a connection that already completed EHLO and
// performs the tls handshake.
func (t *ClientTransport) startTLS(ctx context.Context, conn net.Conn, config *tls.Config) (net.Conn, error) {
	if t.timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(t.timeout)); err != nil {
			return nil, err
		}

		defer conn.SetDeadline(time.Time{}) // nolint:errcheck
	}

	text := textproto.NewConn(conn)

	id, err := text.Cmd("STARTTLS")
	if err != nil {
		return nil, err
	}

	text.StartResponse(id)
	_, _, err = text.ReadResponse(220)
	text.EndResponse(id)

	if err != nil {
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) {
			return nil, &smtp.SMTPError{Code: protoErr.Code, Message: protoErr.Msg}
		}

		return nil, err
	}

	tlsConn := tls.Client(conn, config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, err
	}

	return tlsConn, nil
}

// greetedConn serves a recorded greeting before the data of the underlying
// connection.
type greetedConn struct {
	net.Conn
	greeting *strings.Reader
}

func (c *greetedConn) Read(b []byte) (int, error) {
	if c.greeting.Len() > 0 {
		return c.greeting.Read(b)
	}

	return c.Conn.Read(b)
}

// replyCode returns the smtp reply code carried by err or 0.
func replyCode(err error) int {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return smtpErr.Code
	}

	return 0
}

// isPermanentErr tests if an error is an smtp error and if it has a 5xx code.
func isPermanentErr(err error) bool {
	code := replyCode(err)
	return code >= 500 && code < 600
}
