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
	"errors"
)

// MaxInstance is the highest instance number an ARC set may carry.
const MaxInstance = 50

var (
	// ErrSyntax is returned for malformed ARC header fields.
	ErrSyntax = errors.New("arc: syntax error")
	// ErrMissingTag is returned when a required tag is absent.
	ErrMissingTag = errors.New("arc: missing required tag")
	// ErrInvalidInstance is returned for instance numbers outside 1..MaxInstance.
	ErrInvalidInstance = errors.New("arc: invalid instance")
	// ErrInvalidChain is returned for chains with gaps, duplicates or incomplete sets.
	ErrInvalidChain = errors.New("arc: invalid chain")
	// ErrChainTooLong is returned when a message already carries MaxInstance sets.
	ErrChainTooLong = errors.New("arc: chain too long")
	// ErrChainValidation is returned when the cv= tags of a chain are inconsistent.
	ErrChainValidation = errors.New("arc: chain validation mismatch")
	// ErrAlgorithm is returned for unsupported signing algorithms.
	ErrAlgorithm = errors.New("arc: unsupported algorithm")
	// ErrBodyHash is returned when the body hash of a message signature does not match.
	ErrBodyHash = errors.New("arc: body hash mismatch")
	// ErrSignature is returned when a signature does not verify.
	ErrSignature = errors.New("arc: bad signature")
	// ErrFromNotSigned is returned when a message signature does not cover the From header.
	ErrFromNotSigned = errors.New("arc: from header not signed")
	// ErrNoKey is returned when no usable key record exists.
	ErrNoKey = errors.New("arc: no key record")
	// ErrKeyRevoked is returned for key records with an empty p= tag.
	ErrKeyRevoked = errors.New("arc: key revoked")
	// ErrWeakKey is returned for rsa keys below the minimum size.
	ErrWeakKey = errors.New("arc: key too weak")
	// ErrPublicSuffix is returned when the signing domain is a public suffix.
	ErrPublicSuffix = errors.New("arc: signing domain is a public suffix")
)
