package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// RegisterFlags adds the flags shared by every command to fs. Unset flags
// fall back to the environment, the config file and the defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (yaml, toml or json)")
	fs.StringP("language", "l", "en", "wikipedia language: en or he")
	fs.String("backend", BackendWiki, "link source: wiki or markdown")
	fs.String("markdown-root", "", "directory of markdown pages for the markdown backend")
	fs.IntP("max-path-length", "m", 0, "longest acceptable path in pages, 0 for no bound")
	fs.StringSliceP("forbidden", "f", nil, "pages never to pass through")
	fs.Bool("no-nav-boxes", false, "ignore links in navigation boxes, infoboxes and tables")
	fs.String("oracle", OracleTokens, "similarity oracle: tokens, openai or service")
	fs.String("cache", CacheNone, "link cache: none, file, badger or redis")
	fs.String("cache-dir", "", "cache directory for the file and badger caches")
	fs.Int("prefetch", 0, "workers prefetching neighbor links, 0 to disable")
	fs.String("log-format", "text", "log format: text or json")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
}

// RegisterServerFlags adds the flags of the HTTP server to fs.
func RegisterServerFlags(fs *pflag.FlagSet) {
	fs.String("addr", ":8080", "listen address")
	fs.String("tls-cert", "", "TLS certificate PEM file")
	fs.String("tls-key", "", "TLS private key PEM file")
	fs.Duration("search-timeout", 0, "bound on a single search, 0 for none")
	fs.String("tokens-file", "", "TOML file of API tokens; the API is open when unset")
}

// BindFlags binds every known flag present in fs to its key in v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range FlagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// FromFlags loads the configuration for a command whose flags were
// registered with RegisterFlags and have been parsed.
func FromFlags(fs *pflag.FlagSet) (*Config, error) {
	v := New()
	if err := BindFlags(v, fs); err != nil {
		return nil, err
	}
	file, err := fs.GetString("config")
	if err != nil {
		return nil, err
	}
	return Load(v, file)
}
