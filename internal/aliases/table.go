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

package aliases

import (
	"errors"
	"fmt"

	"github.com/lukasdietrich/briefrelay/internal/log"
	"github.com/lukasdietrich/briefrelay/internal/mails"
)

var (
	// ErrDuplicateAlias is returned when an address is configured more than once.
	ErrDuplicateAlias = errors.New("aliases: duplicate address")
)

// Entry is a single configured alias.
type Entry struct {
	Address string   `yaml:"address" mapstructure:"address"`
	Targets []string `yaml:"targets" mapstructure:"targets"`
}

// Table is the virtual alias table. It is immutable after construction and
// therefore safe for concurrent use.
type Table struct {
	normalize bool
	order     []mails.Address
	targets   map[string][]mails.Address
}

// NewTableFromEntries validates entries and builds a table. When normalize is
// set, local-parts are compared using mails.NormalizeLocalPart, so that
// "User@example.com" matches "user@example.com". Otherwise local-parts are
// compared exactly.
func NewTableFromEntries(entries []Entry, normalize bool) (*Table, error) {
	t := Table{
		normalize: normalize,
		order:     make([]mails.Address, 0, len(entries)),
		targets:   make(map[string][]mails.Address, len(entries)),
	}

	for _, entry := range entries {
		address, err := mails.ParseUnicode(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid alias address %q: %w", entry.Address, err)
		}

		key := t.key(address)
		if _, ok := t.targets[key]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateAlias, entry.Address)
		}

		targets, err := parseTargets(entry.Targets)
		if err != nil {
			return nil, fmt.Errorf("invalid targets of alias %q: %w", entry.Address, err)
		}

		if len(targets) == 0 {
			log.Warn().
				Stringer("address", address).
				Msg("alias without targets accepts mail, that is never delivered")
		}

		t.order = append(t.order, address)
		t.targets[key] = targets
	}

	return &t, nil
}

func parseTargets(raw []string) ([]mails.Address, error) {
	var (
		targets = make([]mails.Address, 0, len(raw))
		seen    = make(map[string]bool, len(raw))
	)

	for _, target := range raw {
		address, err := mails.ParseUnicode(target)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", target, err)
		}

		if seen[address.String()] {
			continue
		}

		seen[address.String()] = true
		targets = append(targets, address)
	}

	return targets, nil
}

func (t *Table) key(address mails.Address) string {
	if t.normalize {
		return address.Normalized().String()
	}

	return address.String()
}

// Contains reports whether mail for address is accepted.
func (t *Table) Contains(address mails.Address) bool {
	_, ok := t.targets[t.key(address)]
	return ok
}

// Resolve returns the targets of address in configured order. Unknown
// addresses resolve to an empty slice.
func (t *Table) Resolve(address mails.Address) []mails.Address {
	targets := t.targets[t.key(address)]
	return append([]mails.Address(nil), targets...)
}

// ResolveAll flattens the targets of all recipients into forward targets.
// Recipients are processed in order and each keeps the order of its own
// targets. Unknown recipients are skipped.
func (t *Table) ResolveAll(recipients []mails.Address) []mails.ForwardTarget {
	var forwardTargets []mails.ForwardTarget

	for _, recipient := range recipients {
		targets, ok := t.targets[t.key(recipient)]
		if !ok {
			log.Debug().
				Stringer("recipient", recipient).
				Msg("recipient without alias is skipped")
			continue
		}

		for _, target := range targets {
			forwardTargets = append(forwardTargets, mails.ForwardTarget{
				Original: recipient,
				Target:   target,
			})
		}
	}

	return forwardTargets
}

// Addresses returns all configured addresses in configured order.
func (t *Table) Addresses() []mails.Address {
	return append([]mails.Address(nil), t.order...)
}

// Len returns the number of configured addresses.
func (t *Table) Len() int {
	return len(t.order)
}
