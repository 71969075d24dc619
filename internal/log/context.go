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

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type fieldSession struct{}
type fieldOrigin struct{}
type fieldCommand struct{}
type fieldAttempt struct{}

// WithSession tags all events logged with ctx with the smtp session id.
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, fieldSession{}, session)
}

func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, fieldOrigin{}, origin)
}

func WithCommand(ctx context.Context, command string) context.Context {
	return context.WithValue(ctx, fieldCommand{}, command)
}

// WithAttempt tags all events logged with ctx with a delivery attempt id.
func WithAttempt(ctx context.Context, attempt string) context.Context {
	return context.WithValue(ctx, fieldAttempt{}, attempt)
}

func appendContextFields(ctx context.Context, event *zerolog.Event) *zerolog.Event {
	if session, ok := ctx.Value(fieldSession{}).(string); ok {
		event.Str("session", session)
	}

	if origin, ok := ctx.Value(fieldOrigin{}).(string); ok {
		event.Str("origin", origin)
	}

	if command, ok := ctx.Value(fieldCommand{}).(string); ok {
		event.Str("command", command)
	}

	if attempt, ok := ctx.Value(fieldAttempt{}).(string); ok {
		event.Str("attempt", attempt)
	}

	return event
}

// Detach returns a context derived from parent, that carries the log fields
// of ctx but neither its deadline nor its cancellation.
func Detach(parent, ctx context.Context) context.Context {
	for _, key := range [...]interface{}{fieldSession{}, fieldOrigin{}, fieldCommand{}, fieldAttempt{}} {
		if value := ctx.Value(key); value != nil {
			parent = context.WithValue(parent, key, value)
		}
	}

	return parent
}
