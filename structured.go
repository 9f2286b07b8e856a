package locker

import (
	"fmt"

	"github.com/magiconair/properties"
)

// parseStructured decodes plaintext as properties text: one key=value or key: value
// entry per line, with # and ! comment lines and the usual escapes.
// Values are taken literally; ${key} references are not expanded.
func parseStructured(name, plaintext string) (map[string]string, error) {
	if plaintext == "" {
		return nil, NewSecretNotFoundError(name)
	}
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadBytes([]byte(plaintext))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParseFailure, name, err)
	}
	return props.Map(), nil
}
