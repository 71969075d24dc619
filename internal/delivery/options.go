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
	"time"

	"github.com/google/wire"
	"github.com/spf13/viper"
)

func init() {
	viper.SetDefault("delivery.port", 25)
	viper.SetDefault("delivery.timeout", "5m")
	viper.SetDefault("delivery.tls.verify", false)
}

// WireSet provides the delivery pipeline.
var WireSet = wire.NewSet(
	OptionsFromViper,
	NewAssembler,
	NewMXExchanger,
	wire.Bind(new(Exchanger), new(*MXExchanger)),
	NewClientTransport,
	wire.Bind(new(Transport), new(*ClientTransport)),
	NewCourier,
	NewMailman,
)

// Options configure outbound delivery.
type Options struct {
	// Hostname is the name of this relay used in trace headers and EHLO.
	Hostname string
	// Port of remote mail exchangers.
	Port int
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
	// VerifyTLS enables certificate verification after STARTTLS.
	VerifyTLS bool
}

// OptionsFromViper reads `general.hostname` and the `delivery.*` keys.
func OptionsFromViper() Options {
	return Options{
		Hostname:  viper.GetString("general.hostname"),
		Port:      viper.GetInt("delivery.port"),
		Timeout:   viper.GetDuration("delivery.timeout"),
		VerifyTLS: viper.GetBool("delivery.tls.verify"),
	}
}
