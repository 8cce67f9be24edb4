package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// Viper adapts a *viper.Viper. Environment variables override leaf keys,
// e.g. CACHE_DEFAULT_HOST with prefix "" or APP_CACHE_DEFAULT_HOST with "APP".
type Viper struct {
	v *viper.Viper
}

// NewViper reads file (YAML, JSON or TOML by extension) when it exists and
// binds the environment under envPrefix. A missing file is not an error.
func NewViper(file, envPrefix string) (*Viper, error) {
	v := viper.New()
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) && !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}
	return &Viper{v: v}, nil
}

// FromViper wraps an already configured instance.
func FromViper(v *viper.Viper) *Viper { return &Viper{v: v} }

func (p *Viper) Lookup(key string) (any, bool) {
	if !p.v.IsSet(key) {
		return nil, false
	}
	return p.v.Get(key), true
}

// Viper exposes the wrapped instance.
func (p *Viper) Viper() *viper.Viper { return p.v }
