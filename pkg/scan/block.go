package scan

import "github.com/praetorian-inc/scanrt/pkg/backend"

// Scan scans data in one backend call. h is invoked for each match in the
// order the backend finds them; Terminate stops the scan and Scan returns
// Terminated with a nil error.
func (d *BlockDatabase) Scan(data []byte, scratch *Scratch, h MatchHandler) (Outcome, error) {
	return d.run("block scan", scratch, h, int64(len(data)), func(sc backend.Scratch, fn backend.MatchFunc) error {
		return d.db.ScanBlock(data, sc, fn)
	})
}
