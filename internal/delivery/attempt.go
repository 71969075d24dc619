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

	"github.com/google/uuid"

	"github.com/lukasdietrich/briefrelay/internal/mails"
)

// State is the progress of a delivery attempt.
type State int

const (
	// StatePending is the state of an attempt that has not started yet.
	StatePending State = iota
	// StateConnecting means a mail exchanger is being looked up and dialed.
	StateConnecting
	// StateSending means the message is being transmitted.
	StateSending
	// StateDelivered means the remote server accepted the message.
	StateDelivered
	// StateFailed means the attempt failed. It is never retried.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConnecting:
		return "connecting"
	case StateSending:
		return "sending"
	case StateDelivered:
		return "delivered"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StatePending:    {StateConnecting, StateFailed},
	StateConnecting: {StateSending, StateFailed},
	StateSending:    {StateDelivered, StateFailed},
}

// Attempt is the delivery of a message to a single forward target.
type Attempt struct {
	ID     string
	Target mails.ForwardTarget
	State  State
	// Host is the mail exchanger the message was sent to.
	Host string
	// Err is the reason of a failed attempt.
	Err      error
	Started  time.Time
	Finished time.Time
}

func newAttempt(target mails.ForwardTarget) *Attempt {
	return &Attempt{
		ID:     uuid.NewString(),
		Target: target,
		State:  StatePending,
	}
}

// transition moves the attempt to next. Illegal transitions are programming
// errors and panic.
func (a *Attempt) transition(next State) {
	for _, allowed := range transitions[a.State] {
		if allowed == next {
			a.State = next
			return
		}
	}

	panic(fmt.Sprintf("delivery: illegal transition of attempt %s from %s to %s", a.ID, a.State, next))
}

func (a *Attempt) fail(err error) {
	a.Err = err
	a.transition(StateFailed)
}

// Duration is the time between start and end of the attempt.
func (a *Attempt) Duration() time.Duration {
	return a.Finished.Sub(a.Started)
}
