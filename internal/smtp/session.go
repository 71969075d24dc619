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
	"errors"
	"io"
	"net"
	"time"

	gosmtp "github.com/emersion/go-smtp"

	"github.com/lukasdietrich/briefrelay/internal/log"
	"github.com/lukasdietrich/briefrelay/internal/mails"
	"github.com/lukasdietrich/briefrelay/internal/metrics"
)

// session is the state of a single smtp connection. It holds the envelope of
// the current mail transaction.
type session struct {
	backend *Backend
	ctx     context.Context
	id      string
	addr    net.IP
	remote  string
	helo    func() string
	tls     func() bool
	now     func() time.Time

	from mails.Address
	to   []mails.Address
}

func newSession(backend *Backend, id string, remote net.Addr) *session {
	ctx := log.WithSession(log.WithOrigin(context.Background(), "smtp"), id)

	return &session{
		backend: backend,
		ctx:     ctx,
		id:      id,
		addr:    remoteIP(remote),
		remote:  remoteString(remote),
		helo:    func() string { return "" },
		tls:     func() bool { return false },
		now:     time.Now,
	}
}

// Mail accepts any syntactically valid reverse-path, including the null
// sender.
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	ctx := log.WithCommand(s.ctx, "mail")

	addr := mails.ZeroAddress

	if from != "" {
		var err error
		if addr, err = mails.ParseUnicode(from); err != nil {
			log.DebugContext(ctx).
				Str("from", from).
				Err(err).
				Msg("invalid reverse-path")

			return handleError(err)
		}
	}

	s.from = addr
	s.to = nil

	log.DebugContext(ctx).
		Str("from", from).
		Msg("beginning mail transaction")

	return nil
}

// Rcpt accepts only addresses of the alias table.
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	ctx := log.WithCommand(s.ctx, "rcpt")

	if limit := s.backend.options.MaxRecipients; limit > 0 && len(s.to) >= limit {
		log.DebugContext(ctx).
			Int("recipientCount", len(s.to)).
			Msg("too many recipients")

		return errTooManyRecipients
	}

	addr, err := mails.ParseUnicode(to)
	if err != nil {
		log.DebugContext(ctx).
			Str("to", to).
			Err(err).
			Msg("invalid forward-path")

		return handleError(err)
	}

	if !s.backend.aliases.Contains(addr) {
		log.InfoContext(ctx).
			Stringer("to", addr).
			Msg("rejecting unknown recipient")

		return errUnknownUser
	}

	s.to = append(s.to, addr)

	log.DebugContext(ctx).
		Stringer("to", addr).
		Msg("recipient added")

	return nil
}

// Data buffers the raw message and hands it to the pipeline. The reply is
// sent once all deliveries are dispatched, not when they are done.
func (s *session) Data(r io.Reader) error {
	ctx := log.WithCommand(s.ctx, "data")

	if len(s.to) == 0 {
		return &gosmtp.SMTPError{
			Code:         503,
			EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
			Message:      "no valid recipients",
		}
	}

	envelope := mails.Envelope{
		ID:           s.id,
		Helo:         s.helo(),
		Addr:         s.addr,
		RemoteAddr:   s.remote,
		Transmission: mails.TransmissionESMTP,
		Date:         s.now(),
		From:         s.from,
		To:           append([]mails.Address(nil), s.to...),
	}

	if s.tls() {
		envelope.Transmission = mails.TransmissionESMTPS
	}

	log.DebugContext(ctx).Msg("receiving mail content")

	if maxSize := s.backend.options.MaxSize; maxSize > 0 {
		// one extra byte tells a message of exactly maxSize from a larger one
		r = &limitedReader{r: r, n: maxSize + 1}
	}

	entry, err := s.backend.cache.Write(ctx, r)
	if err != nil {
		if errors.Is(err, errReaderLimitReached) {
			log.InfoContext(ctx).
				Int64("maxSize", s.backend.options.MaxSize).
				Msg("message exceeding maximum configured size")

			metrics.Messages.WithLabelValues(metrics.MessageTooLarge).Inc()
			return errTooLarge
		}

		log.ErrorContext(ctx).
			Err(err).
			Msg("could not buffer message")

		metrics.Messages.WithLabelValues(metrics.MessageFailed).Inc()
		return handleError(err)
	}

	log.InfoContext(ctx).
		Int64("size", entry.Size()).
		Msg("committing mail transaction")

	if _, err := s.backend.pipeline.Deliver(ctx, envelope, entry); err != nil {
		log.ErrorContext(ctx).
			Err(err).
			Msg("could not process message")

		metrics.Messages.WithLabelValues(metrics.MessageFailed).Inc()
		return handleError(err)
	}

	metrics.Messages.WithLabelValues(metrics.MessageQueued).Inc()
	return queued(s.id)
}

func (s *session) Reset() {
	s.from = mails.ZeroAddress
	s.to = nil

	log.DebugContext(s.ctx).Msg("resetting transaction state")
}

func (s *session) Logout() error {
	log.InfoContext(s.ctx).Msg("session closed")
	return nil
}
