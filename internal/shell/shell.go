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

package shell

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/google/wire"

	"github.com/lukasdietrich/briefrelay/internal/aliases"
	"github.com/lukasdietrich/briefrelay/internal/delivery"
	"github.com/lukasdietrich/briefrelay/internal/log"
	"github.com/lukasdietrich/briefrelay/internal/mails"
)

// WireSet provides the operator shell.
var WireSet = wire.NewSet(NewShell)

// Shell is an interactive shell to inspect the relay configuration.
type Shell struct {
	aliases   *aliases.Table
	exchanger *delivery.MXExchanger
}

// NewShell creates a new Shell.
func NewShell(aliases *aliases.Table, exchanger *delivery.MXExchanger) *Shell {
	return &Shell{
		aliases:   aliases,
		exchanger: exchanger,
	}
}

// Run blocks until the operator exits the shell.
func (s *Shell) Run() {
	shell := ishell.New()
	s.setup(shell)
	shell.Run()
}

func (s *Shell) setup(shell *ishell.Shell) {
	shell.AddCmd(composeShellCmd(
		ishell.Cmd{
			Name: "aliases",
			Help: "inspect the alias table",
		},
		[]*ishell.Cmd{
			{
				Name: "list",
				Help: "list all aliases and their targets",
				Func: wrapShellFunc(s.aliasesList),
			},
			{
				Name: "resolve",
				Help: "show the forward targets of an address",
				Func: wrapShellFunc(s.aliasesResolve),
			},
		},
	))

	shell.AddCmd(&ishell.Cmd{
		Name: "mx",
		Help: "show the mail exchangers of a domain in order of preference",
		Func: wrapShellFunc(s.mx),
	})
}

func (s *Shell) aliasesList(ctx shellContext) error {
	if !ctx.checkArgs(0) {
		return errors.New("Usage: aliases list")
	}

	addresses := s.aliases.Addresses()

	ctx.printf("\n(%d) Aliases:\n", len(addresses))
	for _, address := range addresses {
		ctx.printf("\t%s\n", address)

		for _, target := range s.aliases.Resolve(address) {
			ctx.printf("\t\t-> %s\n", target)
		}
	}
	ctx.printf("\n")

	return nil
}

func (s *Shell) aliasesResolve(ctx shellContext) error {
	if !ctx.checkArgs(1) {
		return errors.New("Usage: aliases resolve [ADDRESS]")
	}

	address, err := mails.ParseUnicode(ctx.arg(0))
	if err != nil {
		return err
	}

	if !s.aliases.Contains(address) {
		return fmt.Errorf("%q is not an alias and would be rejected", address)
	}

	targets := s.aliases.Resolve(address)

	ctx.printf("\n(%d) Targets:\n", len(targets))
	for _, target := range targets {
		ctx.printf("\t%s\n", target)
	}
	ctx.printf("\n")

	return nil
}

func (s *Shell) mx(ctx shellContext) error {
	if !ctx.checkArgs(1) {
		return errors.New("Usage: mx [DOMAIN]")
	}

	domain, err := mails.DomainToASCII(ctx.arg(0))
	if err != nil {
		return err
	}

	timeout, cancel := context.WithTimeout(ctx.ctx, 30*time.Second)
	defer cancel()

	hosts, err := s.exchanger.Hosts(timeout, domain)
	if err != nil {
		return err
	}

	ctx.printf("\n(%d) Mail exchangers:\n", len(hosts))
	for _, host := range hosts {
		ctx.printf("\t%s\n", host)
	}
	ctx.printf("\n")

	return nil
}

type shellContext struct {
	ctx    context.Context
	args   []string
	printf func(format string, v ...interface{})
}

func (c *shellContext) checkArgs(n int) bool {
	return len(c.args) == n
}

func (c *shellContext) arg(i int) string {
	return c.args[i]
}

func composeShellCmd(cmd ishell.Cmd, children []*ishell.Cmd) *ishell.Cmd {
	for _, child := range children {
		cmd.AddCmd(child)
	}

	return &cmd
}

func wrapShellFunc(fn func(shellContext) error) func(*ishell.Context) {
	return func(shell *ishell.Context) {
		ctx := shellContext{
			ctx:    log.WithOrigin(context.Background(), "shell"),
			args:   shell.Args,
			printf: shell.Printf,
		}

		if err := fn(ctx); err != nil {
			shell.Err(err)
		}
	}
}
