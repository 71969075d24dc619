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
	"github.com/spf13/viper"

	"github.com/lukasdietrich/briefrelay/internal/arc"
)

func init() {
	viper.SetDefault("auth.spf", true)
	viper.SetDefault("auth.dkim", true)

	viper.SetDefault("arc.domain", "")
	viper.SetDefault("arc.selector", "arc")
	viper.SetDefault("arc.keyfile", "arc.key")
	viper.SetDefault("arc.headers", arc.DefaultHeaders)
}

// Options configure the Adapter.
type Options struct {
	// SPF enables the spf check of the reverse path.
	SPF bool
	// DKIM enables verification of dkim signatures.
	DKIM bool
	// Domain is the arc signing domain. Defaults to the hostname.
	Domain string
	// Selector is the arc key selector.
	Selector string
	// Keyfile is a pem encoded rsa or ed25519 private key.
	Keyfile string
	// Headers are the header fields covered by arc message signatures.
	Headers []string
}

// OptionsFromViper reads the `auth.*` and `arc.*` keys.
func OptionsFromViper() Options {
	domain := viper.GetString("arc.domain")
	if domain == "" {
		domain = viper.GetString("general.hostname")
	}

	return Options{
		SPF:      viper.GetBool("auth.spf"),
		DKIM:     viper.GetBool("auth.dkim"),
		Domain:   domain,
		Selector: viper.GetString("arc.selector"),
		Keyfile:  viper.GetString("arc.keyfile"),
		Headers:  viper.GetStringSlice("arc.headers"),
	}
}
