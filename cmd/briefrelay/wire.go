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

//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/lukasdietrich/briefrelay/internal/aliases"
	"github.com/lukasdietrich/briefrelay/internal/auth"
	"github.com/lukasdietrich/briefrelay/internal/certs"
	"github.com/lukasdietrich/briefrelay/internal/crypto"
	"github.com/lukasdietrich/briefrelay/internal/delivery"
	"github.com/lukasdietrich/briefrelay/internal/dns"
	"github.com/lukasdietrich/briefrelay/internal/metrics"
	"github.com/lukasdietrich/briefrelay/internal/shell"
	"github.com/lukasdietrich/briefrelay/internal/smtp"
	"github.com/lukasdietrich/briefrelay/internal/storage"
)

func newStartCommand() (*startCommand, error) {
	panic(wire.Build(
		wire.Struct(new(startCommand), "*"),

		storage.WireSet,
		crypto.WireSet,
		aliases.WireSet,
		dns.WireSet,
		auth.WireSet,
		delivery.WireSet,
		certs.WireSet,
		smtp.WireSet,
		metrics.WireSet,
	))
}

func newShellCommand() (*shellCommand, error) {
	panic(wire.Build(
		wire.Struct(new(shellCommand), "*"),

		storage.NewFilesystem,
		aliases.WireSet,
		dns.WireSet,
		delivery.OptionsFromViper,
		delivery.NewMXExchanger,
		shell.WireSet,
	))
}
