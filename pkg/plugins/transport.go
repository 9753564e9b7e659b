package plugins

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/llx/pkg/dylib"
)

// Transport is the raw byte boundary into one plugin instance. Implementations
// need not be safe for concurrent use; Handle serializes access.
type Transport interface {
	ProtocolVersion() (uint32, error)
	Call(req []byte) ([]byte, error)
	Close() error
}

// Opener opens the plugin library at path.
type Opener func(path string) (Transport, error)

// OpenLibrary is the default Opener, backed by the platform dynamic loader.
func OpenLibrary(path string) (Transport, error) {
	lib, err := dylib.Open(path)
	if err != nil {
		if errors.Is(err, dylib.ErrMissingSymbol) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPlugin, err)
		}
		return nil, err
	}
	return lib, nil
}
