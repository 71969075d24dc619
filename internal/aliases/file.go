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

package aliases

import (
	"fmt"

	"github.com/google/wire"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/lukasdietrich/briefrelay/internal/log"
)

func init() {
	viper.SetDefault("aliases.filename", "")
	viper.SetDefault("aliases.normalize", false)
}

// WireSet provides the alias table.
var WireSet = wire.NewSet(
	OptionsFromViper,
	NewTable,
)

// Options configure where aliases are loaded from.
type Options struct {
	// Filename of a yaml file containing aliases. If empty, Entries are used.
	Filename string
	// Entries configured inline.
	Entries []Entry
	// Normalize enables local-part normalization.
	Normalize bool
}

// OptionsFromViper reads `aliases.filename`, `aliases.entries` and `aliases.normalize`.
func OptionsFromViper() (Options, error) {
	options := Options{
		Filename:  viper.GetString("aliases.filename"),
		Normalize: viper.GetBool("aliases.normalize"),
	}

	if err := viper.UnmarshalKey("aliases.entries", &options.Entries); err != nil {
		return options, fmt.Errorf("could not read aliases.entries: %w", err)
	}

	return options, nil
}

// aliases:
//   - address: user@example.com
//     targets:
//       - someone@example.org

type fileFormat struct {
	Aliases []Entry `yaml:"aliases"`
}

// NewTable loads the alias table once. The result is never modified.
func NewTable(fs afero.Fs, options Options) (*Table, error) {
	entries := options.Entries

	if options.Filename != "" {
		data, err := afero.ReadFile(fs, options.Filename)
		if err != nil {
			return nil, fmt.Errorf("could not read aliases: %w", err)
		}

		var file fileFormat
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("could not parse aliases %q: %w", options.Filename, err)
		}

		entries = append(entries, file.Aliases...)
	}

	table, err := NewTableFromEntries(entries, options.Normalize)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("filename", options.Filename).
		Int("aliases", table.Len()).
		Msg("alias table loaded")

	return table, nil
}
