//go:build !(cgo && hyperscan)

package scan

import (
	"fmt"
	"log/slog"

	"github.com/praetorian-inc/scanrt/pkg/backend"
	"github.com/praetorian-inc/scanrt/pkg/backend/portable"
)

// HyperscanAvailable reports whether the hyperscan backend is compiled in.
func HyperscanAvailable() bool {
	return false
}

func defaultBackend(logger *slog.Logger) backend.Backend {
	return portable.New(portable.WithLogger(logger))
}

// BackendByName returns a backend by name. An empty name selects the
// default.
func BackendByName(name string, logger *slog.Logger) (backend.Backend, error) {
	switch name {
	case "", "portable":
		return portable.New(portable.WithLogger(logger)), nil
	case "hyperscan", "vectorscan":
		return nil, fmt.Errorf("hyperscan requires CGO (build with CGO_ENABLED=1 and -tags=hyperscan)")
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}
