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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/lukasdietrich/briefrelay/internal/mails"
)

func TestTransportTestSuite(t *testing.T) {
	suite.Run(t, new(TransportTestSuite))
}

type TransportTestSuite struct {
	suite.Suite

	backend   *recordingBackend
	server    *smtp.Server
	listener  net.Listener
	transport *ClientTransport
}

func (s *TransportTestSuite) SetupTest() {
	s.backend = new(recordingBackend)
	s.listen(nil)

	s.transport = NewClientTransport(Options{
		Hostname: "relay.example.org",
		Timeout:  10 * time.Second,
	})
}

func (s *TransportTestSuite) TearDownTest() {
	s.server.Close()
	s.server = nil
}

// listen replaces the running server with one using tlsConfig.
func (s *TransportTestSuite) listen(tlsConfig *tls.Config) {
	if s.server != nil {
		s.server.Close()
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)

	s.listener = listener
	s.server = smtp.NewServer(s.backend)
	s.server.Domain = "mx.foo.com"
	s.server.TLSConfig = tlsConfig

	go s.server.Serve(listener) // nolint:errcheck
}

func (s *TransportTestSuite) dial() net.Conn {
	conn, err := net.Dial("tcp", s.listener.Addr().String())
	s.Require().NoError(err)

	return conn
}

func (s *TransportTestSuite) TestSend() {
	from := address(s.T(), "alice@example.com")
	to := address(s.T(), "ext@foo.com")

	err := s.transport.Send(context.TODO(), s.dial(), "mx.foo.com", from, to,
		strings.NewReader("Subject: Hello\r\n\r\nHi there.\r\n.leading dot\r\n"))
	s.Require().NoError(err)

	messages := s.backend.messages()
	s.Require().Len(messages, 1)

	s.Equal("relay.example.org", messages[0].helo)
	s.Equal("alice@example.com", messages[0].from)
	s.Equal([]string{"ext@foo.com"}, messages[0].to)

	data := strings.ReplaceAll(messages[0].data, "\r\n", "\n")
	s.Equal("Subject: Hello\n\nHi there.\n.leading dot\n", data)
	s.False(messages[0].tls)
}

func (s *TransportTestSuite) TestSendStartTLS() {
	s.listen(selfSignedConfig(s.T(), "mx.foo.com"))

	err := s.transport.Send(context.TODO(), s.dial(), "mx.foo.com",
		address(s.T(), "alice@example.com"),
		address(s.T(), "ext@foo.com"),
		strings.NewReader("Subject: Secret\r\n\r\nover tls\r\n"))
	s.Require().NoError(err)

	messages := s.backend.messages()
	s.Require().Len(messages, 1)

	s.True(messages[0].tls)
	s.Equal("relay.example.org", messages[0].helo)
	s.Equal("alice@example.com", messages[0].from)
	s.Equal([]string{"ext@foo.com"}, messages[0].to)
	s.Contains(messages[0].data, "over tls")
}

func (s *TransportTestSuite) TestSendStartTLSUntrusted() {
	s.listen(selfSignedConfig(s.T(), "mx.foo.com"))
	s.transport.verifyTLS = true

	err := s.transport.Send(context.TODO(), s.dial(), "mx.foo.com",
		address(s.T(), "alice@example.com"),
		address(s.T(), "ext@foo.com"),
		strings.NewReader("Subject: Secret\r\n\r\n"))

	s.Require().Error(err)
	s.Contains(err.Error(), "starttls")
	s.Equal(0, replyCode(err))
	s.Empty(s.backend.messages())
}

func (s *TransportTestSuite) TestSendNullSender() {
	to := address(s.T(), "ext@foo.com")

	err := s.transport.Send(context.TODO(), s.dial(), "mx.foo.com", mails.ZeroAddress, to,
		strings.NewReader("Subject: Bounce\r\n\r\n"))
	s.Require().NoError(err)

	messages := s.backend.messages()
	s.Require().Len(messages, 1)
	s.Equal("", messages[0].from)
}

func (s *TransportTestSuite) TestSendRejectedRecipient() {
	s.backend.reject(&smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 1, 1},
		Message:      "No such user",
	})

	err := s.transport.Send(context.TODO(), s.dial(), "mx.foo.com",
		address(s.T(), "alice@example.com"),
		address(s.T(), "ext@foo.com"),
		strings.NewReader("Subject: Hello\r\n\r\n"))

	s.Require().Error(err)
	s.Equal(550, replyCode(err))
	s.True(isPermanentErr(err))
	s.Empty(s.backend.messages())
}

func (s *TransportTestSuite) TestSendTemporaryFailure() {
	s.backend.reject(&smtp.SMTPError{
		Code:         451,
		EnhancedCode: smtp.EnhancedCode{4, 3, 0},
		Message:      "Try again later",
	})

	err := s.transport.Send(context.TODO(), s.dial(), "mx.foo.com",
		address(s.T(), "alice@example.com"),
		address(s.T(), "ext@foo.com"),
		strings.NewReader("Subject: Hello\r\n\r\n"))

	s.Require().Error(err)
	s.Equal(451, replyCode(err))
	s.False(isPermanentErr(err))
}

func (s *TransportTestSuite) TestSendCanceled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.transport.Send(ctx, s.dial(), "mx.foo.com",
		address(s.T(), "alice@example.com"),
		address(s.T(), "ext@foo.com"),
		strings.NewReader("Subject: Hello\r\n\r\n"))

	s.Error(err)
	s.Empty(s.backend.messages())
}

func TestReplyCode(t *testing.T) {
	assert.Equal(t, 0, replyCode(errors.New("connection reset")))
	assert.Equal(t, 0, replyCode(nil))
	assert.Equal(t, 554, replyCode(fmt.Errorf("data: %w", &smtp.SMTPError{Code: 554})))
	assert.False(t, isPermanentErr(errors.New("connection reset")))
	assert.True(t, isPermanentErr(&smtp.SMTPError{Code: 554}))
}

func selfSignedConfig(t *testing.T, host string) *tls.Config {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: host},
		DNSNames:     []string{host},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
	}
}

type recordedMessage struct {
	tls  bool
	helo string
	from string
	to   []string
	data string
}

type recordingBackend struct {
	mu         sync.Mutex
	received   []recordedMessage
	rejectRcpt error
}

func (b *recordingBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &recordingSession{backend: b, conn: c}, nil
}

func (b *recordingBackend) reject(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rejectRcpt = err
}

func (b *recordingBackend) messages() []recordedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]recordedMessage(nil), b.received...)
}

type recordingSession struct {
	backend *recordingBackend
	conn    *smtp.Conn
	message recordedMessage
}

func (s *recordingSession) Mail(from string, _ *smtp.MailOptions) error {
	s.message.from = from
	return nil
}

func (s *recordingSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.backend.mu.Lock()
	err := s.backend.rejectRcpt
	s.backend.mu.Unlock()

	if err != nil {
		return err
	}

	s.message.to = append(s.message.to, to)
	return nil
}

func (s *recordingSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	_, s.message.tls = s.conn.TLSConnectionState()
	s.message.helo = s.conn.Hostname()
	s.message.data = string(data)

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	s.backend.received = append(s.backend.received, s.message)
	return nil
}

func (s *recordingSession) Reset() {
	s.message = recordedMessage{}
}

func (s *recordingSession) Logout() error {
	return nil
}
