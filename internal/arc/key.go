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
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/lukasdietrich/briefrelay/internal/dns"
)

const (
	algorithmRSA     = "rsa-sha256"
	algorithmEd25519 = "ed25519-sha256"
)

// PublicKeyRecord returns the TXT record publishing the public part of signer
// at <selector>._domainkey.<domain>.
func PublicKeyRecord(signer crypto.Signer) (string, error) {
	switch key := signer.Public().(type) {
	case *rsa.PublicKey:
		der, err := x509.MarshalPKIXPublicKey(key)
		if err != nil {
			return "", err
		}

		return "v=DKIM1; k=rsa; p=" + base64.StdEncoding.EncodeToString(der), nil

	case ed25519.PublicKey:
		return "v=DKIM1; k=ed25519; p=" + base64.StdEncoding.EncodeToString(key), nil

	default:
		return "", fmt.Errorf("%w: %T", ErrAlgorithm, key)
	}
}

// parseKeyRecord decodes a DKIM key record.
func parseKeyRecord(txt string) (crypto.PublicKey, error) {
	tags, err := parseTags(txt)
	if err != nil {
		return nil, err
	}

	if v, ok := tags["v"]; ok && v != "DKIM1" {
		return nil, fmt.Errorf("%w: key version %q", ErrSyntax, v)
	}

	p, ok := tags["p"]
	if !ok {
		return nil, fmt.Errorf("%w: p=", ErrMissingTag)
	}

	p = stripWhitespace(p)
	if p == "" {
		return nil, ErrKeyRevoked
	}

	data, err := base64.StdEncoding.DecodeString(p)
	if err != nil {
		return nil, fmt.Errorf("%w: p=: %v", ErrSyntax, err)
	}

	switch k := strings.ToLower(tags["k"]); k {
	case "", "rsa":
		if key, err := x509.ParsePKIXPublicKey(data); err == nil {
			if rsaKey, ok := key.(*rsa.PublicKey); ok {
				return rsaKey, nil
			}

			return nil, fmt.Errorf("%w: expected rsa key", ErrSyntax)
		}

		rsaKey, err := x509.ParsePKCS1PublicKey(data)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid rsa key: %v", ErrSyntax, err)
		}

		return rsaKey, nil

	case "ed25519":
		if len(data) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: invalid ed25519 key size %d", ErrSyntax, len(data))
		}

		return ed25519.PublicKey(data), nil

	default:
		return nil, fmt.Errorf("%w: key type %q", ErrAlgorithm, k)
	}
}

// keyLookup fetches and caches key records for one verification.
type keyLookup struct {
	resolver      dns.Resolver
	minRSAKeyBits int
	keys          map[string]crypto.PublicKey
}

func (l *keyLookup) lookup(ctx context.Context, selector, domain string) (crypto.PublicKey, error) {
	if isPublicSuffix(domain) {
		return nil, fmt.Errorf("%w: %s", ErrPublicSuffix, domain)
	}

	name := selector + "._domainkey." + domain
	if key, ok := l.keys[name]; ok {
		return key, nil
	}

	records, err := l.resolver.LookupTXT(ctx, name)
	if err != nil {
		if dns.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoKey, name)
		}

		return nil, err
	}

	for _, record := range records {
		key, err := parseKeyRecord(record)
		if err != nil {
			if errors.Is(err, ErrKeyRevoked) {
				return nil, err
			}

			continue
		}

		if rsaKey, ok := key.(*rsa.PublicKey); ok && rsaKey.N.BitLen() < l.minRSAKeyBits {
			return nil, fmt.Errorf("%w: %d bits", ErrWeakKey, rsaKey.N.BitLen())
		}

		if l.keys == nil {
			l.keys = make(map[string]crypto.PublicKey)
		}

		l.keys[name] = key
		return key, nil
	}

	return nil, fmt.Errorf("%w: no valid record at %s", ErrNoKey, name)
}

// isPublicSuffix reports whether domain is a public suffix like "com" or
// "co.uk", which must not sign.
func isPublicSuffix(domain string) bool {
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	if domain == "" {
		return true
	}

	suffix, _ := publicsuffix.PublicSuffix(domain)
	return suffix == domain
}

func checkAlgorithm(algorithm string, key crypto.PublicKey) error {
	switch key.(type) {
	case *rsa.PublicKey:
		if algorithm == algorithmRSA {
			return nil
		}
	case ed25519.PublicKey:
		if algorithm == algorithmEd25519 {
			return nil
		}
	}

	return fmt.Errorf("%w: %q for %T", ErrAlgorithm, algorithm, key)
}

// verifySignature checks a signature over a sha256 digest.
func verifySignature(key crypto.PublicKey, digest, signature []byte) error {
	switch key := key.(type) {
	case *rsa.PublicKey:
		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest, signature); err != nil {
			return fmt.Errorf("%w: %v", ErrSignature, err)
		}

		return nil

	case ed25519.PublicKey:
		if !ed25519.Verify(key, digest, signature) {
			return ErrSignature
		}

		return nil

	default:
		return fmt.Errorf("%w: %T", ErrAlgorithm, key)
	}
}

// sign signs a sha256 digest. Ed25519 signs the digest itself (RFC 8463).
func sign(signer crypto.Signer, digest []byte) ([]byte, error) {
	switch signer.Public().(type) {
	case *rsa.PublicKey:
		return signer.Sign(rand.Reader, digest, crypto.SHA256)
	case ed25519.PublicKey:
		return signer.Sign(rand.Reader, digest, crypto.Hash(0))
	default:
		return nil, fmt.Errorf("%w: %T", ErrAlgorithm, signer.Public())
	}
}
