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

package mails

import (
	"net"
	"time"
)

const (
	// TransmissionESMTP is the transmission type of plain text sessions.
	TransmissionESMTP = "ESMTP"
	// TransmissionESMTPS is the transmission type of sessions upgraded with STARTTLS.
	TransmissionESMTPS = "ESMTPS"
)

// Envelope stores the information about an email before the actual content is
// read. It is basically what a real envelope is to mail.
type Envelope struct {
	// ID is the unique identifier of the smtp session.
	ID string
	// Helo is the string provided by an smtp client when greeting the server.
	Helo string
	// Addr is the remote address of the sender. It is nil for listeners, that
	// do not report ip addresses.
	Addr net.IP
	// RemoteAddr is the remote address as reported by the listener.
	RemoteAddr string
	// Transmission is the protocol label used in trace headers.
	Transmission string
	// Date is the time when the data transmission begins.
	Date time.Time
	// From is the email-address of the sender. The null sender is ZeroAddress.
	From Address
	// To is a list of recipient email-addresses in the order they were accepted.
	To []Address
}

// Remote returns the name of the sender used in trace headers. It is the ip
// address if known and the raw remote address otherwise.
func (e Envelope) Remote() string {
	if e.Addr != nil {
		return e.Addr.String()
	}

	if e.RemoteAddr != "" {
		return e.RemoteAddr
	}

	return "unknown"
}
