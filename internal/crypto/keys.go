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

package crypto

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/spf13/afero"
)

var (
	// ErrNoPEMBlock is returned when a key file does not contain PEM data.
	ErrNoPEMBlock = errors.New("crypto: no pem block found")
	// ErrUnsupportedKey is returned for keys, that cannot sign ARC headers.
	ErrUnsupportedKey = errors.New("crypto: unsupported key type")
)

// LoadSigner reads a PEM encoded private key. Supported are PKCS#1 RSA keys
// and PKCS#8 RSA or Ed25519 keys.
func LoadSigner(fs afero.Fs, filename string) (crypto.Signer, error) {
	data, err := afero.ReadFile(fs, filename)
	if err != nil {
		return nil, fmt.Errorf("could not read key %q: %w", filename, err)
	}

	return ParseSigner(data)
}

// ParseSigner decodes the first PEM block of data into a private key.
func ParseSigner(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrNoPEMBlock
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}

		return key, nil

	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}

		switch key := key.(type) {
		case *rsa.PrivateKey:
			return key, nil
		case ed25519.PrivateKey:
			return key, nil
		default:
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKey, block.Type)
	}
}

// Algorithm returns the DKIM signing algorithm name for a key, like
// "rsa-sha256".
func Algorithm(signer crypto.Signer) (string, error) {
	switch signer.Public().(type) {
	case *rsa.PublicKey:
		return "rsa-sha256", nil
	case ed25519.PublicKey:
		return "ed25519-sha256", nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedKey, signer.Public())
	}
}
