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

package arc

import (
	"bufio"
	"crypto"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"strconv"
	"strings"
	"time"
)

// Message provides independent readers over the same message bytes.
type Message interface {
	Reader() (io.Reader, error)
}

// DefaultHeaders is the list of header fields covered by new message
// signatures.
var DefaultHeaders = []string{
	"from", "to", "cc", "subject", "date", "message-id", "reply-to",
	"in-reply-to", "references", "mime-version", "content-type",
	"content-transfer-encoding", "authentication-results", "dkim-signature",
}

// Sealer adds ARC sets to messages.
type Sealer struct {
	// Domain is the signing domain (d=).
	Domain string
	// Selector is the key selector (s=).
	Selector string
	// Signer is the private key. Supported are rsa and ed25519 keys.
	Signer crypto.Signer
	// Headers are the header fields covered by the message signature. From is
	// always covered.
	Headers []string
	// Clock returns the signing time. Defaults to time.Now.
	Clock func() time.Time
}

// NewSealer validates the key and domain and creates a Sealer.
func NewSealer(domain, selector string, signer crypto.Signer, headers []string) (*Sealer, error) {
	if domain == "" || selector == "" {
		return nil, fmt.Errorf("%w: domain and selector are required", ErrMissingTag)
	}

	if isPublicSuffix(domain) {
		return nil, fmt.Errorf("%w: %s", ErrPublicSuffix, domain)
	}

	if _, err := algorithmOf(signer); err != nil {
		return nil, err
	}

	if len(headers) == 0 {
		headers = DefaultHeaders
	}

	normalized := []string{"from"}
	for _, name := range headers {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" && name != "from" {
			normalized = append(normalized, name)
		}
	}

	return &Sealer{
		Domain:   strings.ToLower(domain),
		Selector: selector,
		Signer:   signer,
		Headers:  normalized,
	}, nil
}

func algorithmOf(signer crypto.Signer) (string, error) {
	if signer == nil {
		return "", fmt.Errorf("%w: no key", ErrAlgorithm)
	}

	for _, algorithm := range [...]string{algorithmRSA, algorithmEd25519} {
		if checkAlgorithm(algorithm, signer.Public()) == nil {
			return algorithm, nil
		}
	}

	return "", fmt.Errorf("%w: %T", ErrAlgorithm, signer.Public())
}

func (s *Sealer) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}

	return time.Now()
}

// Seal computes a new ARC set for message. results is the value of the
// Authentication-Results header field (authserv-id and results) recorded in
// the ARC-Authentication-Results of the new set. chain is the validation
// result of the existing chain. The returned block contains ARC-Seal,
// ARC-Message-Signature and ARC-Authentication-Results in that order.
func (s *Sealer) Seal(message Message, results string, chain *Result) ([]byte, error) {
	if chain == nil {
		chain = &Result{Status: StatusNone}
	}

	if chain.Instances >= MaxInstance {
		return nil, fmt.Errorf("%w: %d sets", ErrChainTooLong, chain.Instances)
	}

	algorithm, err := algorithmOf(s.Signer)
	if err != nil {
		return nil, err
	}

	r, err := message.Reader()
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(r)

	fields, err := readHeader(br)
	if err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}

	bodyHash := sha256.New()
	if err := canonicalBody(CanonRelaxed, bodyHash, br); err != nil {
		return nil, fmt.Errorf("could not read body: %w", err)
	}

	var (
		instance  = chain.Instances + 1
		timestamp = strconv.FormatInt(s.now().Unix(), 10)
		cv        = chain.Status
	)

	if chain.Instances == 0 {
		cv = StatusNone
	}

	aar := FormatResults("ARC-Authentication-Results",
		"i="+strconv.Itoa(instance)+"; "+strings.TrimSpace(results))

	signed := s.signedHeaders(fields)

	ams, err := s.signMessage(fields, signed, algorithm, instance, timestamp, bodyHash.Sum(nil))
	if err != nil {
		return nil, err
	}

	var prior []set
	if cv != StatusFail {
		if prior, _, err = collectSets(fields); err != nil {
			return nil, err
		}

		if len(prior) != chain.Instances {
			return nil, fmt.Errorf("%w: expected %d sets, found %d", ErrInvalidChain, chain.Instances, len(prior))
		}
	}

	seal, err := s.signSeal(prior, aar, ams, algorithm, instance, timestamp, cv)
	if err != nil {
		return nil, err
	}

	block := make([]byte, 0, len(seal)+len(ams)+len(aar))
	block = append(block, seal...)
	block = append(block, ams...)
	block = append(block, aar...)

	return block, nil
}

// signedHeaders lists every configured header field once per occurrence, so
// that all instances are covered.
func (s *Sealer) signedHeaders(fields []field) []string {
	counts := make(map[string]int)
	for _, f := range fields {
		counts[f.key]++
	}

	var signed []string
	for _, name := range s.Headers {
		n := counts[name]
		if n == 0 && name == "from" {
			n = 1
		}

		for i := 0; i < n; i++ {
			signed = append(signed, name)
		}
	}

	return signed
}

func (s *Sealer) signMessage(fields []field, signed []string, algorithm string, instance int, timestamp string, bodyHash []byte) ([]byte, error) {
	render := func(signature []byte) []byte {
		var w headerWriter

		w.add("", "ARC-Message-Signature: i="+strconv.Itoa(instance)+";")
		w.add(" ", "a="+algorithm+";")
		w.add(" ", "c=relaxed/relaxed;")
		w.add(" ", "d="+s.Domain+";")
		w.add(" ", "s="+s.Selector+";")
		w.add(" ", "t="+timestamp+";")

		for i, name := range signed {
			switch {
			case i == 0 && len(signed) == 1:
				w.add(" ", "h="+name+";")
			case i == 0:
				w.add(" ", "h="+name+":")
			case i == len(signed)-1:
				w.add("", name+";")
			default:
				w.add("", name+":")
			}
		}

		w.addBase64("bh", bodyHash)
		w.add("", ";")
		w.addBase64("b", signature)

		return w.bytes()
	}

	h := sha256.New()
	writeSignedHeaders(h, CanonRelaxed, fields, signed)
	h.Write(canonicalHeader(CanonRelaxed, render(nil))) // nolint:errcheck

	signature, err := sign(s.Signer, h.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("could not sign message: %w", err)
	}

	return render(signature), nil
}

func (s *Sealer) signSeal(prior []set, aar, ams []byte, algorithm string, instance int, timestamp string, cv ChainStatus) ([]byte, error) {
	render := func(signature []byte) []byte {
		var w headerWriter

		w.add("", "ARC-Seal: i="+strconv.Itoa(instance)+";")
		w.add(" ", "a="+algorithm+";")
		w.add(" ", "cv="+string(cv)+";")
		w.add(" ", "d="+s.Domain+";")
		w.add(" ", "s="+s.Selector+";")
		w.add(" ", "t="+timestamp+";")
		w.addBase64("b", signature)

		return w.bytes()
	}

	unsigned := render(nil)

	h := sha256.New()
	writeSealInput(h, prior, field{raw: aar}, field{raw: ams}, field{raw: unsigned})

	signature, err := sign(s.Signer, h.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("could not sign seal: %w", err)
	}

	return render(signature), nil
}

// writeSignedHeaders hashes the header fields listed in signed. Fields with
// the same name are consumed from the bottom up.
func writeSignedHeaders(h hash.Hash, canon Canonicalization, fields []field, signed []string) {
	used := make(map[int]bool)

	for _, name := range signed {
		name = strings.ToLower(strings.TrimSpace(name))

		for i := len(fields) - 1; i >= 0; i-- {
			if fields[i].key == name && !used[i] {
				used[i] = true

				h.Write(canonicalHeader(canon, fields[i].raw)) // nolint:errcheck
				h.Write(crlf)                                  // nolint:errcheck

				break
			}
		}
	}
}

// writeSealInput hashes the sets in instance order followed by the set being
// sealed, whose seal has its signature emptied and no trailing CRLF.
func writeSealInput(h hash.Hash, prior []set, aar, ams, seal field) {
	for _, s := range prior {
		for _, f := range [...]field{s.aar, s.ams, s.seal} {
			h.Write(canonicalHeader(CanonRelaxed, f.raw)) // nolint:errcheck
			h.Write(crlf)                                 // nolint:errcheck
		}
	}

	h.Write(canonicalHeader(CanonRelaxed, aar.raw))                  // nolint:errcheck
	h.Write(crlf)                                                    // nolint:errcheck
	h.Write(canonicalHeader(CanonRelaxed, ams.raw))                  // nolint:errcheck
	h.Write(crlf)                                                    // nolint:errcheck
	h.Write(canonicalHeader(CanonRelaxed, stripSignature(seal.raw))) // nolint:errcheck
}
