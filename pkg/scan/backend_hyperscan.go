//go:build cgo && hyperscan

package scan

import (
	"fmt"
	"log/slog"

	"github.com/praetorian-inc/scanrt/pkg/backend"
	"github.com/praetorian-inc/scanrt/pkg/backend/hyperscan"
	"github.com/praetorian-inc/scanrt/pkg/backend/portable"
)

// HyperscanAvailable reports whether the hyperscan backend is compiled in.
func HyperscanAvailable() bool {
	return true
}

func defaultBackend(logger *slog.Logger) backend.Backend {
	return hyperscan.New()
}

// BackendByName returns a backend by name. An empty name selects the
// default.
func BackendByName(name string, logger *slog.Logger) (backend.Backend, error) {
	switch name {
	case "", "hyperscan", "vectorscan":
		return hyperscan.New(), nil
	case "portable":
		return portable.New(portable.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}
