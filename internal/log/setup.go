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

package log

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

func init() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.pretty", false)
}

// Options configure the global Logger.
type Options struct {
	Level  string
	Pretty bool
}

// OptionsFromViper reads `log.level` and `log.pretty`.
func OptionsFromViper() Options {
	return Options{
		Level:  viper.GetString("log.level"),
		Pretty: viper.GetBool("log.pretty"),
	}
}

// Setup replaces the global Logger according to options.
func Setup(options Options) error {
	return setup(os.Stderr, options)
}

func setup(w io.Writer, options Options) error {
	level, err := zerolog.ParseLevel(options.Level)
	if err != nil {
		return fmt.Errorf("unknown log level %q: %w", options.Level, err)
	}

	if options.Pretty {
		w = zerolog.ConsoleWriter{Out: w}
	}

	Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return nil
}

// Printer adapts the global Logger to libraries expecting a Printf/Println
// style logger. Every line is logged at warn level.
type Printer struct {
	Origin string
}

func (p Printer) Printf(format string, v ...interface{}) {
	Warn().Str("origin", p.Origin).Msgf(format, v...)
}

func (p Printer) Println(v ...interface{}) {
	Warn().Str("origin", p.Origin).Msg(fmt.Sprint(v...))
}
