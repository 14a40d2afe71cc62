package portable

import (
	"sort"
	"unicode/utf8"

	"github.com/praetorian-inc/scanrt/pkg/backend"
)

// event is a match found in the current window, in window byte offsets.
type event struct {
	idx      int
	from, to int
}

// state is the matching position of one block scan, vectored scan or stream.
//
// buf holds the retained history; buf[0] is at logical offset base. Each
// pattern resumes searching at resume[i], the end of its last consumed
// match. A match whose end touches the unfinished end of the window is held
// back and searched again when more data arrives, since more data may extend
// it or make it fail.
//
// A whole state keeps every byte it was given. Vectored scans use one: the
// input is already in memory, and the horizon must not apply to them.
type state struct {
	db     *database
	buf    []byte
	base   uint64
	resume []uint64
	done   []bool // SingleMatch patterns that already reported
	whole  bool
}

func newState(d *database) *state {
	return &state{
		db:     d,
		resume: make([]uint64, len(d.patterns)),
		done:   make([]bool, len(d.patterns)),
	}
}

// scan appends data to the window and reports every match that can no longer
// change. final marks end of input: nothing is held back.
func (st *state) scan(data []byte, final bool, s *scratch, fn backend.MatchFunc) error {
	st.buf = append(st.buf, data...)
	win := st.buf
	d := st.db

	s.mask = d.prefilter.Filter(win, s.mask)

	var needBytes, needRunes bool
	for i, p := range d.patterns {
		if st.done[i] || !s.mask[i] {
			continue
		}
		if p.utf8 {
			needRunes = true
		} else {
			needBytes = true
		}
	}
	if needBytes {
		s.bytes = byteRunes(win, s.bytes)
	}
	utfAvail := len(win)
	if needRunes {
		s.runes, s.offsets = decodeRunes(win, s.runes, s.offsets)
		if !final {
			utfAvail = completePrefix(win)
		}
	}

	// cutoff is the earliest start of a held match. Matches ending after it
	// wait for the next call so delivery stays ordered by end offset.
	cutoff := len(win) + 1
	s.events = s.events[:0]
	for i, p := range d.patterns {
		if st.done[i] || !s.mask[i] {
			continue
		}
		start := int(st.resume[i] - st.base)
		if start > len(win) {
			continue
		}
		avail := len(win)
		if p.utf8 {
			avail = utfAvail
		}
		held, err := st.collect(i, p, start, avail, final, s)
		if err != nil {
			if isTimeout(err) {
				d.backend.logger.Warn("regex timeout, skipping pattern for this input", "pattern", p.src.Label())
			} else {
				d.backend.logger.Warn("regex error, skipping pattern for this input", "pattern", p.src.Label(), "error", err)
			}
			continue
		}
		if held >= 0 && held < cutoff {
			cutoff = held
		}
	}

	events := s.events
	sort.Slice(events, func(a, b int) bool {
		ea, eb := events[a], events[b]
		if ea.to != eb.to {
			return ea.to < eb.to
		}
		ida, idb := d.patterns[ea.idx].src.ID, d.patterns[eb.idx].src.ID
		if ida != idb {
			return ida < idb
		}
		if ea.from != eb.from {
			return ea.from < eb.from
		}
		return ea.idx < eb.idx
	})

	terminated := false
	for _, ev := range events {
		if terminated {
			// Matches suppressed by termination are discarded, not redelivered.
			st.consume(ev)
			continue
		}
		if !final && ev.to > cutoff {
			continue
		}
		st.consume(ev)
		id := d.patterns[ev.idx].src.ID
		if !fn(id, st.base+uint64(ev.from), st.base+uint64(ev.to), 0) {
			terminated = true
		}
	}

	if !final && !st.whole {
		st.trim()
	}
	if terminated {
		return backend.StatusScanTerminated
	}
	return nil
}

// collect appends the matches of pattern i found from window offset start.
// It returns the start of a held-back match, or -1.
func (st *state) collect(i int, p *pattern, start, avail int, final bool, s *scratch) (int, error) {
	runes := s.bytes
	rs := start
	if p.utf8 {
		runes = s.runes
		rs = sort.SearchInts(s.offsets[:len(s.offsets)-1], start)
	}
	toByte := func(r int) int {
		if p.utf8 {
			return s.offsets[r]
		}
		return r
	}

	m, err := p.re.FindRunesMatchStartingAt(runes, rs)
	for m != nil && err == nil {
		from, to := toByte(m.Index), toByte(m.Index+m.Length)
		if from == to && !p.allowEmpty {
			m, err = p.re.FindNextMatch(m)
			continue
		}
		if !final && (to >= avail || p.lookaround && to+lookahead >= avail) {
			return from, nil
		}
		s.events = append(s.events, event{idx: i, from: from, to: to})
		if p.single {
			return -1, nil
		}
		m, err = p.re.FindNextMatch(m)
	}
	return -1, err
}

// consume advances pattern resume offsets past ev.
func (st *state) consume(ev event) {
	next := st.base + uint64(ev.to)
	if ev.from == ev.to {
		next++
	}
	if next > st.resume[ev.idx] {
		st.resume[ev.idx] = next
	}
	if st.db.patterns[ev.idx].single {
		st.done[ev.idx] = true
	}
}

// trim applies the horizon and drops history no pattern can still use.
// Resume offsets are raised to the horizon floor, so a match that would
// start before it is never found.
func (st *state) trim() {
	end := st.base + uint64(len(st.buf))
	horizon := uint64(st.db.backend.horizon)

	var floor uint64
	if end > horizon {
		floor = end - horizon
	}
	low := end
	for i := range st.resume {
		if st.done[i] {
			continue
		}
		if st.resume[i] < floor {
			st.resume[i] = floor
		}
		if st.resume[i] < low {
			low = st.resume[i]
		}
	}

	keep := st.base
	if low > st.base+lookbehind {
		keep = low - lookbehind
	}
	if keep > st.base {
		drop := int(keep - st.base)
		st.buf = append(st.buf[:0], st.buf[drop:]...)
		st.base = keep
	}
}

// byteRunes presents every byte as one rune so regexp2 indexes are byte
// offsets.
func byteRunes(b []byte, dst []rune) []rune {
	if cap(dst) < len(b) {
		dst = make([]rune, len(b))
	}
	dst = dst[:len(b)]
	for i, c := range b {
		dst[i] = rune(c)
	}
	return dst
}

// decodeRunes decodes UTF-8. offsets[k] is the byte offset of rune k and
// offsets[len(runes)] is len(b). Invalid bytes decode to utf8.RuneError one
// byte at a time.
func decodeRunes(b []byte, runes []rune, offsets []int) ([]rune, []int) {
	runes = runes[:0]
	offsets = offsets[:0]
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		runes = append(runes, r)
		offsets = append(offsets, i)
		i += size
	}
	offsets = append(offsets, len(b))
	return runes, offsets
}

// completePrefix returns the length of b without a trailing incomplete UTF-8
// sequence.
func completePrefix(b []byte) int {
	for k := 1; k <= utf8.UTFMax && k <= len(b); k++ {
		if utf8.RuneStart(b[len(b)-k]) {
			if !utf8.FullRune(b[len(b)-k:]) {
				return len(b) - k
			}
			break
		}
	}
	return len(b)
}
