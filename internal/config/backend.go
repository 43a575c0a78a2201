package config

// Backend is the platform store for non-secret settings. Keys are the dotted
// names from the key table, e.g. "scoring.threshold".
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
