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

package certs

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/google/wire"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/briefrelay/internal/log"
)

const (
	sourceNone    = "none"
	sourceFiles   = "files"
	sourceTraefik = "traefik"
)

func init() {
	viper.SetDefault("tls.source", sourceNone)
}

// WireSet provides the tls configuration of the smtp server.
var WireSet = wire.NewSet(OptionsFromViper, NewTLSConfig)

// Options select and configure the certificate source.
type Options struct {
	Source  string
	Files   FilesOptions
	Traefik TraefikOptions
}

// OptionsFromViper reads the `tls.*` keys.
func OptionsFromViper() Options {
	return Options{
		Source:  viper.GetString("tls.source"),
		Files:   filesOptionsFromViper(),
		Traefik: traefikOptionsFromViper(),
	}
}

type certSource interface {
	lastUpdate() (time.Time, error)
	load() (*tls.Certificate, error)
}

func newCertSource(fs afero.Fs, options Options) (certSource, error) {
	switch options.Source {
	case sourceNone:
		return nil, nil
	case sourceFiles:
		return newFilesCertSource(fs, options.Files), nil
	case sourceTraefik:
		return newTraefikCertSource(fs, options.Traefik), nil
	default:
		return nil, fmt.Errorf("unknown certificate source %q", options.Source)
	}
}

// NewTLSConfig creates the tls configuration for STARTTLS. The certificate is
// reloaded whenever the source reports an update. No configuration is
// returned for the source "none", which disables STARTTLS.
func NewTLSConfig(fs afero.Fs, options Options) (*tls.Config, error) {
	source, err := newCertSource(fs, options)
	if source == nil || err != nil {
		return nil, err
	}

	r := reloader{source: source}

	// fail at startup rather than at the first handshake
	if _, err := r.certificate(); err != nil {
		return nil, err
	}

	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return r.certificate()
		},
	}, nil
}

type reloader struct {
	source certSource

	lock     sync.Mutex
	lastCert *tls.Certificate
	lastTime time.Time
}

func (r *reloader) certificate() (*tls.Certificate, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	newTime, err := r.source.lastUpdate()
	if err != nil {
		return nil, fmt.Errorf("could not check for certificate updates: %w", err)
	}

	if r.lastCert == nil || newTime.After(r.lastTime) {
		newCert, err := r.source.load()
		if err != nil {
			return nil, fmt.Errorf("could not load certificate: %w", err)
		}

		r.lastTime = newTime
		r.lastCert = newCert

		log.Debug().
			Time("updated", newTime).
			Msg("new certificate loaded")
	}

	return r.lastCert, nil
}
