package enum

import (
	"context"
)

// CombinedEnumerator runs multiple enumerators in order and yields each input
// name at most once.
type CombinedEnumerator struct {
	enumerators []Enumerator
}

// NewCombinedEnumerator wraps the provided enumerators.
func NewCombinedEnumerator(enumerators ...Enumerator) *CombinedEnumerator {
	return &CombinedEnumerator{enumerators: enumerators}
}

// Enumerate runs each child enumerator in sequence, skipping names already
// seen.
func (c *CombinedEnumerator) Enumerate(ctx context.Context, fn func(Input) error) error {
	seen := make(map[string]bool)

	for _, e := range c.enumerators {
		err := e.Enumerate(ctx, func(in Input) error {
			if seen[in.Name] {
				return nil
			}
			seen[in.Name] = true
			return fn(in)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
