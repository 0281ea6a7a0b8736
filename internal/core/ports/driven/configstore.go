package driven

// ConfigSource is a read-only view of configuration. Keys are dotted paths
// such as "cache.ttl". Typed getters return the zero value when a key is
// absent or holds another type; callers that must tell the two apart use Get.
type ConfigSource interface {
	Get(key string) (any, bool)
	GetInt(key string) int
	GetFloat(key string) float64
	GetBool(key string) bool
	GetStringSlice(key string) []string

	// Keys lists every stored key, sorted.
	Keys() []string
}

// ConfigStore is an editable ConfigSource backed by a file.
type ConfigStore interface {
	ConfigSource

	// Set stores and persists a value. On failure the previous value is kept.
	Set(key string, value any) error

	// Unset removes a key and persists the change. Missing keys are not an error.
	Unset(key string) error

	// Path returns the backing file.
	Path() string
}
