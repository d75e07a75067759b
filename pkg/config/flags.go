package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps override flags to the configuration keys they set.
var flagKeys = []struct {
	name, key, usage string
}{
	{"http-port", "http.port", "listing API port"},
	{"mgmt-port", "management.port", "management server port"},
	{"db-url", "database.url", "document store connection URL"},
	{"cache-type", "cache.type", "cache backend: redis or memory"},
	{"cache-url", "cache.url", "redis URL"},
	{"log-level", "observability.log_level", "debug, info, warn or error"},
	{"log-format", "observability.log_format", "json or text"},
}

// RegisterFlags adds the override flags to fs. A flag set on the command
// line beats the environment, the secrets file and the config file.
func RegisterFlags(fs *pflag.FlagSet) {
	defaults := DefaultConfig()
	for _, f := range flagKeys {
		if fs.Lookup(f.name) != nil {
			continue
		}
		switch f.key {
		case "http.port":
			fs.Int(f.name, defaults.HTTP.Port, f.usage)
		case "management.port":
			fs.Int(f.name, defaults.Management.Port, f.usage)
		default:
			fs.String(f.name, "", f.usage)
		}
	}
}

// WithFlags makes Load honour the override flags registered on fs.
func (l *ViperLoader) WithFlags(fs *pflag.FlagSet) *ViperLoader {
	l.flags = fs
	return l
}

func (l *ViperLoader) bindFlags(v *viper.Viper) error {
	if l.flags == nil {
		return nil
	}
	for _, f := range flagKeys {
		flag := l.flags.Lookup(f.name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(f.key, flag); err != nil {
			return fmt.Errorf("bind flag --%s: %w", f.name, err)
		}
	}
	return nil
}
