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
	"fmt"
	"time"

	"github.com/lukasdietrich/briefrelay/internal/mails"
)

// Assembler synthesizes the trace header fields of received messages.
type Assembler struct {
	hostname string
}

// NewAssembler creates an Assembler signing trace fields with the hostname.
func NewAssembler(options Options) *Assembler {
	return &Assembler{
		hostname: options.Hostname,
	}
}

// Assemble returns the Return-Path and Received header fields of envelope
// followed by the authentication block. The block is prepended with its line
// endings normalized to CRLF. Assemble has no side effects and returns the
// same bytes for the same input.
func (a *Assembler) Assemble(envelope mails.Envelope, block []byte) []byte {
	p := mails.NewPrepender(3)

	p.Prepend("Return-Path", fmt.Sprintf("<%s>", envelope.From))
	p.Prepend("Received", fmt.Sprintf("from %s by %s with %s id %s\r\n %s",
		envelope.Remote(),
		a.hostname,
		envelope.Transmission,
		envelope.ID,
		envelope.Date.UTC().Format(time.RFC1123Z)))
	p.PrependRaw(block)

	return p.Bytes()
}
