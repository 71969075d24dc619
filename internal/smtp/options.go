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

package smtp

import (
	"time"

	"github.com/google/wire"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/briefrelay/internal/delivery"
)

func init() {
	viper.SetDefault("smtp.address", ":25")
	viper.SetDefault("smtp.maxrecipients", 100)
	viper.SetDefault("smtp.timeout", "10m")
	viper.SetDefault("mail.sizelimit", "10mb")
}

// WireSet provides the inbound smtp server.
var WireSet = wire.NewSet(
	OptionsFromViper,
	NewBackend,
	wire.Bind(new(Pipeline), new(*delivery.Mailman)),
	NewServer,
)

// Options configure the inbound smtp server.
type Options struct {
	// Hostname is announced in the greeting and EHLO response.
	Hostname string
	// Address is the tcp address to listen on.
	Address string
	// MaxRecipients is the maximum number of accepted RCPT TO per message.
	MaxRecipients int
	// Timeout is the read and write timeout of a connection.
	Timeout time.Duration
	// MaxSize is the maximum size of a raw message in bytes. Zero disables
	// the limit.
	MaxSize int64
}

// OptionsFromViper reads `general.hostname`, `smtp.*` and `mail.sizelimit`.
func OptionsFromViper() Options {
	return Options{
		Hostname:      viper.GetString("general.hostname"),
		Address:       viper.GetString("smtp.address"),
		MaxRecipients: viper.GetInt("smtp.maxrecipients"),
		Timeout:       viper.GetDuration("smtp.timeout"),
		MaxSize:       int64(viper.GetSizeInBytes("mail.sizelimit")),
	}
}
