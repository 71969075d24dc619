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

package auth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"

	"github.com/emersion/go-msgauth/authres"
	"github.com/emersion/go-msgauth/dkim"
	"github.com/google/wire"
	"github.com/spf13/afero"
	"github.com/zaccone/spf"

	"github.com/lukasdietrich/briefrelay/internal/arc"
	"github.com/lukasdietrich/briefrelay/internal/crypto"
	"github.com/lukasdietrich/briefrelay/internal/dns"
	"github.com/lukasdietrich/briefrelay/internal/log"
	"github.com/lukasdietrich/briefrelay/internal/mails"
)

// WireSet provides an Authenticator.
var WireSet = wire.NewSet(
	OptionsFromViper,
	NewAdapter,
	wire.Bind(new(Authenticator), new(*Adapter)),
)

// Facts are the session properties known when a message is received.
type Facts struct {
	// IP is the address of the connecting client.
	IP net.IP
	// Helo is the name the client announced with HELO or EHLO.
	Helo string
	// Hostname is the name of this relay, used as authserv-id.
	Hostname string
	// From is the reverse path. The zero Address is the null sender.
	From mails.Address
}

// Authenticator produces the authentication and seal header block of a
// message.
type Authenticator interface {
	// Authenticate returns a CRLF terminated header block to prepend to
	// message. An error means the message must not be relayed.
	Authenticate(ctx context.Context, facts Facts, message mails.Body) ([]byte, error)
}

type checkHostFunc func(ip net.IP, domain, sender string) (spf.Result, string, error)

// Adapter authenticates messages with SPF, DKIM and ARC and seals them with
// a new ARC set.
type Adapter struct {
	resolver  dns.Resolver
	verifier  *arc.Verifier
	sealer    *arc.Sealer
	checkHost checkHostFunc
	options   Options
}

// NewAdapter loads the sealing key and creates an Adapter.
func NewAdapter(fs afero.Fs, resolver dns.Resolver, options Options) (*Adapter, error) {
	signer, err := crypto.LoadSigner(fs, options.Keyfile)
	if err != nil {
		return nil, err
	}

	sealer, err := arc.NewSealer(options.Domain, options.Selector, signer, options.Headers)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("domain", sealer.Domain).
		Str("selector", sealer.Selector).
		Bool("spf", options.SPF).
		Bool("dkim", options.DKIM).
		Msg("arc sealing enabled")

	return &Adapter{
		resolver:  resolver,
		verifier:  &arc.Verifier{Resolver: resolver},
		sealer:    sealer,
		checkHost: spf.CheckHost,
		options:   options,
	}, nil
}

// Authenticate evaluates the enabled checks, records them in an
// Authentication-Results header and seals the message together with that
// header. The block contains ARC-Seal, ARC-Message-Signature,
// ARC-Authentication-Results and Authentication-Results in that order.
func (a *Adapter) Authenticate(ctx context.Context, facts Facts, message mails.Body) ([]byte, error) {
	var results []authres.Result

	if a.options.SPF {
		results = append(results, a.checkSPF(ctx, facts))
	}

	if a.options.DKIM {
		dkimResults, err := a.checkDKIM(ctx, message)
		if err != nil {
			return nil, err
		}

		results = append(results, dkimResults...)
	}

	chain, err := a.verifier.Verify(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("could not verify arc chain: %w", err)
	}

	if chain.Err != nil {
		log.DebugContext(ctx).
			Err(chain.Err).
			Int("instances", chain.Instances).
			Msg("arc chain failed")
	}

	results = append(results, &authres.GenericResult{
		Method: "arc",
		Value:  authres.ResultValue(chain.Status),
	})

	value := authres.Format(facts.Hostname, results)
	header := arc.FormatResults("Authentication-Results", value)

	block, err := a.sealer.Seal(withHeader{header: header, body: message}, value, chain)
	if err != nil {
		return nil, fmt.Errorf("could not seal message: %w", err)
	}

	log.DebugContext(ctx).
		Str("results", value).
		Msg("message sealed")

	return append(block, header...), nil
}

func (a *Adapter) checkSPF(ctx context.Context, facts Facts) authres.Result {
	from, err := facts.From.ASCII()
	if err != nil {
		from = facts.From
	}

	var (
		domain = from.Domain()
		sender = from.String()
	)

	if from.IsZero() {
		// RFC#7208 2.4, the null sender is checked with the helo identity
		domain = facts.Helo
		sender = "postmaster@" + facts.Helo
	}

	result := spf.None
	if facts.IP == nil {
		log.DebugContext(ctx).Msg("skipping spf check without client ip")
	} else if result, _, err = a.checkHost(facts.IP, domain, sender); err != nil {
		log.DebugContext(ctx).
			Str("domain", domain).
			Err(err).
			Msg("spf check reported an error")
	}

	log.DebugContext(ctx).
		Str("domain", domain).
		Stringer("result", result).
		Msg("spf result")

	r := &authres.SPFResult{Value: spfValue(result)}
	if from.IsZero() {
		r.Helo = facts.Helo
	} else {
		r.From = sender
	}

	return r
}

func spfValue(result spf.Result) authres.ResultValue {
	switch result {
	case spf.Pass:
		return authres.ResultPass
	case spf.Fail:
		return authres.ResultFail
	case spf.Softfail:
		return authres.ResultSoftFail
	case spf.Neutral:
		return authres.ResultNeutral
	case spf.Temperror:
		return authres.ResultTempError
	case spf.Permerror:
		return authres.ResultPermError
	default:
		return authres.ResultNone
	}
}

func (a *Adapter) checkDKIM(ctx context.Context, message mails.Body) ([]authres.Result, error) {
	r, err := message.Reader()
	if err != nil {
		return nil, err
	}

	verifications, err := dkim.VerifyWithOptions(r, &dkim.VerifyOptions{
		LookupTXT: func(domain string) ([]string, error) {
			return a.resolver.LookupTXT(ctx, domain)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not verify dkim: %w", err)
	}

	if len(verifications) == 0 {
		return []authres.Result{&authres.DKIMResult{Value: authres.ResultNone}}, nil
	}

	results := make([]authres.Result, len(verifications))

	for i, v := range verifications {
		result := &authres.DKIMResult{
			Value:      authres.ResultPass,
			Domain:     v.Domain,
			Identifier: v.Identifier,
		}

		switch {
		case v.Err == nil:
		case dkim.IsTempFail(v.Err):
			result.Value = authres.ResultTempError
		case dkim.IsPermFail(v.Err):
			result.Value = authres.ResultPermError
		default:
			result.Value = authres.ResultFail
		}

		if v.Err != nil {
			log.DebugContext(ctx).
				Str("domain", v.Domain).
				Err(v.Err).
				Msg("dkim signature did not verify")
		}

		results[i] = result
	}

	return results, nil
}

// withHeader is a message with a header field prepended.
type withHeader struct {
	header []byte
	body   mails.Body
}

func (w withHeader) Reader() (io.Reader, error) {
	r, err := w.body.Reader()
	if err != nil {
		return nil, err
	}

	return io.MultiReader(bytes.NewReader(w.header), r), nil
}
