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

package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/wire"
	mdns "github.com/miekg/dns"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/briefrelay/internal/log"
)

func init() {
	viper.SetDefault("dns.nameservers", []string{})
	viper.SetDefault("dns.timeout", "5s")
	viper.SetDefault("dns.retries", 2)
}

var (
	// ErrNotFound is returned for NXDOMAIN answers and answers without records.
	ErrNotFound = errors.New("dns: not found")
	// ErrServFail is returned when every nameserver failed to answer.
	ErrServFail = errors.New("dns: server failure")
	// ErrRefused is returned when nameservers refused to answer.
	ErrRefused = errors.New("dns: query refused")
)

// IsNotFound reports whether err means the name or record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// WireSet provides a Resolver.
var WireSet = wire.NewSet(
	OptionsFromViper,
	NewResolver,
)

// Resolver looks up the records needed to relay and authenticate mail.
type Resolver interface {
	// LookupMX returns the MX records of domain in the order of the answer.
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
	// LookupTXT returns all TXT records of name, each joined into a single string.
	LookupTXT(ctx context.Context, name string) ([]string, error)
	// LookupIP returns the A and AAAA records of host.
	LookupIP(ctx context.Context, host string) ([]net.IP, error)
}

// Options configure a Resolver.
type Options struct {
	// Nameservers to query as "host:port". Empty means /etc/resolv.conf.
	Nameservers []string
	// Timeout of a single query.
	Timeout time.Duration
	// Retries is the number of additional rounds over all nameservers.
	Retries int
}

// OptionsFromViper reads `dns.nameservers`, `dns.timeout` and `dns.retries`.
func OptionsFromViper() Options {
	return Options{
		Nameservers: viper.GetStringSlice("dns.nameservers"),
		Timeout:     viper.GetDuration("dns.timeout"),
		Retries:     viper.GetInt("dns.retries"),
	}
}

type resolver struct {
	nameservers []string
	retries     int
	client      *mdns.Client
}

// NewResolver creates a Resolver sending queries with miekg/dns.
func NewResolver(options Options) Resolver {
	nameservers := options.Nameservers
	if len(nameservers) == 0 {
		nameservers = systemNameservers()
	}

	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &resolver{
		nameservers: withDefaultPort(nameservers),
		retries:     options.Retries,
		client:      &mdns.Client{Timeout: timeout},
	}
}

func systemNameservers() []string {
	config, err := mdns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(config.Servers) == 0 {
		log.Warn().
			Err(err).
			Msg("no system nameservers found, using public resolvers")

		return []string{"1.1.1.1:53", "8.8.8.8:53"}
	}

	servers := make([]string, len(config.Servers))
	for i, server := range config.Servers {
		servers[i] = net.JoinHostPort(server, config.Port)
	}

	return servers
}

func withDefaultPort(nameservers []string) []string {
	servers := make([]string, len(nameservers))

	for i, server := range nameservers {
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}

		servers[i] = server
	}

	return servers
}

func (r *resolver) query(ctx context.Context, name string, qtype uint16) (*mdns.Msg, error) {
	m := new(mdns.Msg)
	m.SetQuestion(mdns.Fqdn(name), qtype)
	m.RecursionDesired = true

	var lastErr error

	for i := 0; i <= r.retries; i++ {
		for _, server := range r.nameservers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			resp, _, err := r.client.ExchangeContext(ctx, m, server)
			if err != nil {
				lastErr = fmt.Errorf("%w: %v", ErrServFail, err)
				continue
			}

			switch resp.Rcode {
			case mdns.RcodeSuccess:
				return resp, nil
			case mdns.RcodeNameError:
				return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
			case mdns.RcodeRefused:
				lastErr = ErrRefused
			default:
				lastErr = fmt.Errorf("%w: rcode %s", ErrServFail, mdns.RcodeToString[resp.Rcode])
			}
		}
	}

	if lastErr == nil {
		lastErr = ErrServFail
	}

	return nil, lastErr
}

func (r *resolver) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	resp, err := r.query(ctx, domain, mdns.TypeMX)
	if err != nil {
		return nil, err
	}

	var records []*net.MX

	for _, rr := range resp.Answer {
		if mx, ok := rr.(*mdns.MX); ok {
			records = append(records, &net.MX{
				Host: mx.Mx,
				Pref: mx.Preference,
			})
		}
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no mx records for %s", ErrNotFound, domain)
	}

	return records, nil
}

func (r *resolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	resp, err := r.query(ctx, name, mdns.TypeTXT)
	if err != nil {
		return nil, err
	}

	var records []string

	for _, rr := range resp.Answer {
		if txt, ok := rr.(*mdns.TXT); ok {
			// see RFC#7208 3.3, character strings are concatenated
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no txt records for %s", ErrNotFound, name)
	}

	return records, nil
}

func (r *resolver) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	var (
		ips     []net.IP
		lastErr error
	)

	for _, qtype := range [...]uint16{mdns.TypeA, mdns.TypeAAAA} {
		resp, err := r.query(ctx, host, qtype)
		if err != nil {
			if !IsNotFound(err) {
				lastErr = err
			}

			continue
		}

		for _, rr := range resp.Answer {
			switch rr := rr.(type) {
			case *mdns.A:
				ips = append(ips, rr.A)
			case *mdns.AAAA:
				ips = append(ips, rr.AAAA)
			}
		}
	}

	if len(ips) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}

		return nil, fmt.Errorf("%w: no addresses for %s", ErrNotFound, host)
	}

	return ips, nil
}
