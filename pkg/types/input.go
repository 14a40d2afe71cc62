package types

import (
	"crypto/sha1"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
)

// InputID identifies scanned content by a Git-style SHA-1 digest:
// SHA-1("blob {len}\0{content}").
type InputID [20]byte

// ComputeInputID digests a complete buffer.
func ComputeInputID(content []byte) InputID {
	d := NewInputDigest(int64(len(content)))
	d.Write(content)
	return d.Sum()
}

// InputDigest computes an InputID incrementally, for streams whose length is
// known up front.
type InputDigest struct {
	h hash.Hash
}

// NewInputDigest starts a digest for content of the given length.
func NewInputDigest(length int64) *InputDigest {
	h := sha1.New()
	h.Write([]byte("blob " + strconv.FormatInt(length, 10) + "\x00"))
	return &InputDigest{h: h}
}

// Write adds content to the digest. It never fails.
func (d *InputDigest) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

// Sum returns the digest of everything written so far.
func (d *InputDigest) Sum() InputID {
	var id InputID
	copy(id[:], d.h.Sum(nil))
	return id
}

// Hex returns the 40-character hex form.
func (id InputID) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id InputID) String() string {
	return id.Hex()
}

// IsZero reports whether id is unset.
func (id InputID) IsZero() bool {
	return id == InputID{}
}

// ParseInputID parses the 40-character hex form.
func ParseInputID(s string) (InputID, error) {
	if len(s) != 40 {
		return InputID{}, fmt.Errorf("invalid input ID length: expected 40, got %d", len(s))
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return InputID{}, fmt.Errorf("invalid hex string: %w", err)
	}
	var id InputID
	copy(id[:], decoded)
	return id, nil
}

// MarshalText implements encoding.TextMarshaler.
func (id InputID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *InputID) UnmarshalText(data []byte) error {
	parsed, err := ParseInputID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Value implements driver.Valuer.
func (id InputID) Value() (driver.Value, error) {
	return id.Hex(), nil
}

// Scan implements sql.Scanner.
func (id *InputID) Scan(value any) error {
	switch v := value.(type) {
	case string:
		return id.UnmarshalText([]byte(v))
	case []byte:
		return id.UnmarshalText(v)
	case nil:
		return fmt.Errorf("cannot scan nil into InputID")
	default:
		return fmt.Errorf("cannot scan type %T into InputID", value)
	}
}
