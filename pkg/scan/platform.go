package scan

import (
	"sync"

	"github.com/praetorian-inc/scanrt/pkg/backend"
)

type platformCheck struct {
	once sync.Once
	err  error
}

var platformChecks sync.Map // backend name -> *platformCheck

// ValidPlatform checks once per backend that the host can run it and caches
// the answer.
func ValidPlatform(b backend.Backend) error {
	v, _ := platformChecks.LoadOrStore(b.Name(), &platformCheck{})
	pc := v.(*platformCheck)
	pc.once.Do(func() {
		if err := b.ValidPlatform(); err != nil {
			e := translate("platform check", err).(*Error)
			if e.Kind == KindUnknown || e.Kind == KindInvalidArgument {
				e.Kind = KindUnsupportedArchitecture
			}
			pc.err = e
		}
	})
	return pc.err
}
