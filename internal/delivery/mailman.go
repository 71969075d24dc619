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
	"fmt"

	"github.com/lukasdietrich/briefrelay/internal/aliases"
	"github.com/lukasdietrich/briefrelay/internal/auth"
	"github.com/lukasdietrich/briefrelay/internal/log"
	"github.com/lukasdietrich/briefrelay/internal/mails"
	"github.com/lukasdietrich/briefrelay/internal/storage"
)

var (
	// ErrAuthentication is returned when a message could not be authenticated
	// or sealed. Nothing is delivered in that case.
	ErrAuthentication = errors.New("delivery: could not authenticate message")
)

// Mailman runs received messages through the relay pipeline: trace headers,
// authentication and sealing, alias resolution and dispatch.
type Mailman struct {
	assembler     *Assembler
	authenticator auth.Authenticator
	aliases       *aliases.Table
	courier       *Courier
	hostname      string
}

// NewMailman creates a new mailman for delivery.
func NewMailman(
	assembler *Assembler,
	authenticator auth.Authenticator,
	aliases *aliases.Table,
	courier *Courier,
	options Options,
) *Mailman {
	return &Mailman{
		assembler:     assembler,
		authenticator: authenticator,
		aliases:       aliases,
		courier:       courier,
		hostname:      options.Hostname,
	}
}

// Deliver takes ownership of entry. On error the entry is released and
// nothing is delivered. Otherwise one attempt per forward target of the
// envelope recipients is dispatched and the entry is released once all of
// them finished. Deliver does not wait for the attempts.
func (m *Mailman) Deliver(ctx context.Context, envelope mails.Envelope, entry storage.CacheEntry) (*Batch, error) {
	facts := auth.Facts{
		IP:       envelope.Addr,
		Helo:     envelope.Helo,
		Hostname: m.hostname,
		From:     envelope.From,
	}

	block, err := m.authenticator.Authenticate(ctx, facts, entry)
	if err != nil {
		if err := entry.Release(ctx); err != nil {
			log.WarnContext(ctx).
				Err(err).
				Msg("could not release message")
		}

		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	parcel := Parcel{
		Header: m.assembler.Assemble(envelope, block),
		Entry:  entry,
	}

	targets := m.aliases.ResolveAll(envelope.To)

	log.InfoContext(ctx).
		Stringer("from", envelope.From).
		Int("recipients", len(envelope.To)).
		Int("targets", len(targets)).
		Int64("size", entry.Size()).
		Msg("dispatching message")

	return m.courier.Dispatch(ctx, envelope.From, targets, &parcel), nil
}
