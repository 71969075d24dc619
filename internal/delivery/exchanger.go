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
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/lukasdietrich/briefrelay/internal/dns"
	"github.com/lukasdietrich/briefrelay/internal/log"
)

var (
	// ErrNullMX is returned for domains publishing a null mx record (RFC#7505).
	ErrNullMX = errors.New("delivery: domain does not accept mail")
	// ErrNoExchanger is returned when no mail exchanger of a domain could be reached.
	ErrNoExchanger = errors.New("delivery: no reachable mail exchanger")
)

// Exchanger connects to the mail exchanger responsible for a domain.
type Exchanger interface {
	// Exchange returns a connection owned by the caller and the name of the host
	// it is connected to.
	Exchange(ctx context.Context, domain string) (net.Conn, string, error)
}

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// MXExchanger tries the mx hosts of a domain in order of preference.
type MXExchanger struct {
	resolver dns.Resolver
	port     string
	dial     dialFunc
}

// NewMXExchanger creates an MXExchanger dialing with the delivery timeout.
func NewMXExchanger(resolver dns.Resolver, options Options) *MXExchanger {
	dialer := net.Dialer{Timeout: options.Timeout}

	return &MXExchanger{
		resolver: resolver,
		port:     strconv.Itoa(options.Port),
		dial:     dialer.DialContext,
	}
}

// Exchange implements Exchanger.
func (e *MXExchanger) Exchange(ctx context.Context, domain string) (net.Conn, string, error) {
	hosts, err := e.Hosts(ctx, domain)
	if err != nil {
		return nil, "", err
	}

	var lastErr error

	for _, host := range hosts {
		conn, err := e.dialHost(ctx, host)
		if err == nil {
			return conn, host, nil
		}

		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}

		log.DebugContext(ctx).
			Str("domain", domain).
			Str("host", host).
			Err(err).
			Msg("mail exchanger not reachable")

		lastErr = err
	}

	return nil, "", fmt.Errorf("%w for %s: %v", ErrNoExchanger, domain, lastErr)
}

// Hosts returns the mail exchangers of domain ordered by preference. A domain
// without mx records is its own mail exchanger (RFC#5321 5.1).
func (e *MXExchanger) Hosts(ctx context.Context, domain string) ([]string, error) {
	records, err := e.resolver.LookupMX(ctx, domain)
	if err != nil {
		if dns.IsNotFound(err) {
			return []string{domain}, nil
		}

		return nil, fmt.Errorf("could not lookup mx of %s: %w", domain, err)
	}

	if len(records) == 1 && (records[0].Host == "." || records[0].Host == "") {
		return nil, fmt.Errorf("%w: %s", ErrNullMX, domain)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Pref < records[j].Pref
	})

	hosts := make([]string, 0, len(records))
	for _, record := range records {
		if host := strings.TrimSuffix(record.Host, "."); host != "" {
			hosts = append(hosts, host)
		}
	}

	return hosts, nil
}

func (e *MXExchanger) dialHost(ctx context.Context, host string) (net.Conn, error) {
	ips := []net.IP{net.ParseIP(host)}

	if ips[0] == nil {
		var err error
		if ips, err = e.resolver.LookupIP(ctx, host); err != nil {
			return nil, err
		}
	}

	var lastErr error

	for _, ip := range ips {
		conn, err := e.dial(ctx, "tcp", net.JoinHostPort(ip.String(), e.port))
		if err == nil {
			return conn, nil
		}

		lastErr = err
	}

	return nil, lastErr
}
