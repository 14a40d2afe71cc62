package types

// MatchEvent is a single match reported by a backend.
// From and To are byte offsets into the logical input: the buffer for block
// scans, the concatenation of all segments for vectored scans, and
// everything written so far for streams.
type MatchEvent struct {
	ID    uint32 // pattern ID
	From  uint64 // start offset (inclusive)
	To    uint64 // end offset (exclusive)
	Flags uint32 // backend-defined, currently always zero
}

// Len returns the match length in bytes.
func (e MatchEvent) Len() uint64 {
	if e.To < e.From {
		return 0
	}
	return e.To - e.From
}

// Slice returns the matched bytes of data, or nil when the offsets fall
// outside of it.
func (e MatchEvent) Slice(data []byte) []byte {
	if e.From > e.To || e.To > uint64(len(data)) {
		return nil
	}
	return data[e.From:e.To]
}
