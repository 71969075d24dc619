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
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lukasdietrich/briefrelay/internal/dns"
)

// ChainStatus is the validation status of an ARC chain, as recorded in cv=.
type ChainStatus string

const (
	// StatusNone means the message carries no ARC chain.
	StatusNone ChainStatus = "none"
	// StatusPass means every set of the chain verified.
	StatusPass ChainStatus = "pass"
	// StatusFail means the chain is broken.
	StatusFail ChainStatus = "fail"
)

// Result is the outcome of verifying the ARC chain of a message.
type Result struct {
	Status ChainStatus
	// Instances is the highest instance number found in the message.
	Instances int
	// Err describes why the chain failed.
	Err error
}

func failed(instances int, err error) *Result {
	return &Result{Status: StatusFail, Instances: instances, Err: err}
}

// Verifier validates existing ARC chains.
type Verifier struct {
	Resolver dns.Resolver
	// MinRSAKeyBits defaults to 1024.
	MinRSAKeyBits int
}

// Verify validates the chain of message. Only the newest message signature
// is verified, while every seal is. The returned error is only set for
// failures reading the message; a broken chain is reported in the Result.
func (v *Verifier) Verify(ctx context.Context, message Message) (*Result, error) {
	r, err := message.Reader()
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(r)

	fields, err := readHeader(br)
	if err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}

	sets, highest, err := collectSets(fields)
	if err != nil {
		return failed(highest, err), nil
	}

	if highest == 0 {
		return &Result{Status: StatusNone}, nil
	}

	seals := make([]map[string]string, len(sets))

	for i, s := range sets {
		tags, err := parseTags(s.seal.value())
		if err != nil {
			return failed(highest, err), nil
		}

		if err := requireTags(tags, "a", "b", "cv", "d", "s"); err != nil {
			return failed(highest, err), nil
		}

		expected := StatusPass
		if i == 0 {
			expected = StatusNone
		}

		if cv := ChainStatus(strings.ToLower(tags["cv"])); cv != expected {
			return failed(highest, fmt.Errorf("%w: instance %d has cv=%s", ErrChainValidation, i+1, cv)), nil
		}

		seals[i] = tags
	}

	keys := keyLookup{
		resolver:      v.Resolver,
		minRSAKeyBits: v.MinRSAKeyBits,
	}

	if keys.minRSAKeyBits == 0 {
		keys.minRSAKeyBits = 1024
	}

	newest := sets[len(sets)-1]
	if err := v.verifyMessageSignature(ctx, &keys, fields, newest.ams, br); err != nil {
		return failed(highest, fmt.Errorf("instance %d: %w", newest.instance, err)), nil
	}

	for i := len(sets) - 1; i >= 0; i-- {
		if err := v.verifySeal(ctx, &keys, sets[:i+1], seals[i]); err != nil {
			return failed(highest, fmt.Errorf("instance %d: %w", i+1, err)), nil
		}
	}

	return &Result{Status: StatusPass, Instances: highest}, nil
}

func (v *Verifier) verifyMessageSignature(ctx context.Context, keys *keyLookup, fields []field, ams field, body io.Reader) error {
	tags, err := parseTags(ams.value())
	if err != nil {
		return err
	}

	if err := requireTags(tags, "a", "b", "bh", "d", "h", "s"); err != nil {
		return err
	}

	var signed []string
	for _, name := range strings.Split(tags["h"], ":") {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			signed = append(signed, name)
		}
	}

	if !containsString(signed, "from") {
		return ErrFromNotSigned
	}

	key, err := keys.lookup(ctx, tags["s"], strings.ToLower(tags["d"]))
	if err != nil {
		return err
	}

	algorithm := strings.ToLower(tags["a"])
	if err := checkAlgorithm(algorithm, key); err != nil {
		return err
	}

	headerCanon, bodyCanon := parseCanonicalization(tags["c"])

	expected, err := base64.StdEncoding.DecodeString(stripWhitespace(tags["bh"]))
	if err != nil {
		return fmt.Errorf("%w: bh=: %v", ErrSyntax, err)
	}

	bodyHash := sha256.New()

	var w io.Writer = bodyHash
	if l, ok := tags["l"]; ok {
		limit, err := strconv.ParseInt(l, 10, 64)
		if err != nil || limit < 0 {
			return fmt.Errorf("%w: l=%q", ErrSyntax, l)
		}

		w = &limitWriter{w: bodyHash, n: limit}
	}

	if err := canonicalBody(bodyCanon, w, body); err != nil {
		return err
	}

	if !bytes.Equal(bodyHash.Sum(nil), expected) {
		return ErrBodyHash
	}

	signature, err := base64.StdEncoding.DecodeString(stripWhitespace(tags["b"]))
	if err != nil {
		return fmt.Errorf("%w: b=: %v", ErrSyntax, err)
	}

	h := sha256.New()
	writeSignedHeaders(h, headerCanon, fields, signed)
	h.Write(canonicalHeader(headerCanon, stripSignature(ams.raw))) // nolint:errcheck

	return verifySignature(key, h.Sum(nil), signature)
}

func (v *Verifier) verifySeal(ctx context.Context, keys *keyLookup, sets []set, tags map[string]string) error {
	key, err := keys.lookup(ctx, tags["s"], strings.ToLower(tags["d"]))
	if err != nil {
		return err
	}

	if err := checkAlgorithm(strings.ToLower(tags["a"]), key); err != nil {
		return err
	}

	signature, err := base64.StdEncoding.DecodeString(stripWhitespace(tags["b"]))
	if err != nil {
		return fmt.Errorf("%w: b=: %v", ErrSyntax, err)
	}

	last := sets[len(sets)-1]

	h := sha256.New()
	writeSealInput(h, sets[:len(sets)-1], last.aar, last.ams, last.seal)

	return verifySignature(key, h.Sum(nil), signature)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}

	return false
}
