package scan

import "github.com/praetorian-inc/scanrt/pkg/backend"

// Scan scans the segments of data as one logical input. Reported offsets
// are into the concatenation; segments are passed to the backend as given.
func (d *VectoredDatabase) Scan(data [][]byte, scratch *Scratch, h MatchHandler) (Outcome, error) {
	const op = "vectored scan"
	if data == nil {
		return Completed, newError(op, KindInvalidArgument, "nil segment list")
	}
	var size int64
	for _, seg := range data {
		size += int64(len(seg))
	}
	return d.run(op, scratch, h, size, func(sc backend.Scratch, fn backend.MatchFunc) error {
		return d.db.ScanVector(data, sc, fn)
	})
}
