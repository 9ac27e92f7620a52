package config

// ConfigBackend abstracts the platform-native config store behind the
// GARITA_* environment overrides: the `defaults` domain com.garita.app on
// macOS, a JSON file under $XDG_CONFIG_HOME/garita elsewhere. Lookups
// report absence via ok so defaults can fill the gaps.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
