package types

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Pattern is one expression handed to the compiler.
type Pattern struct {
	ID         uint32      // reported back in every MatchEvent
	Name       string      // human-readable label, optional
	Expression string      // regular expression
	Flags      CompileFlag // per-pattern compile flags
	Keywords   []string    // literals that every match must contain (prefilter)

	// Documentation carried by pattern files. Examples must match and
	// NegativeExamples must not; see rule.Validate.
	Description      string
	Examples         []string
	NegativeExamples []string
}

// NewPattern creates a pattern with the given expression, flags and ID.
func NewPattern(expr string, flags CompileFlag, id uint32) *Pattern {
	return &Pattern{ID: id, Expression: expr, Flags: flags}
}

// ComputeStructuralID computes SHA-1 over the expression and flags.
// Two patterns with the same structural ID compile to the same automaton.
func (p *Pattern) ComputeStructuralID() string {
	h := sha1.New()
	h.Write([]byte(p.Expression))
	h.Write([]byte{0})
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(p.Flags))
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Label returns Name when set, otherwise the numeric ID.
func (p *Pattern) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("%d", p.ID)
}

// Validate checks required fields. It does not compile the expression.
func (p *Pattern) Validate() error {
	if p == nil {
		return fmt.Errorf("pattern is nil")
	}
	if p.Expression == "" && !p.Flags.Has(AllowEmpty) {
		return fmt.Errorf("pattern %s: expression is required", p.Label())
	}
	return nil
}
