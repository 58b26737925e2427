package step

import (
	"encoding/json"

	"github.com/bits-and-blooms/bitset"
)

// Set records completed steps as a fixed-size bitset indexed by step order.
// The zero value is an empty set. Copies share storage, so use Clone before
// handing a set to another owner. Set is not safe for concurrent mutation.
type Set struct {
	bits bitset.BitSet
}

// NewSet returns a set holding the given steps.
func NewSet(steps ...Step) Set {
	var s Set
	for _, st := range steps {
		s.Add(st)
	}
	return s
}

// Add marks st as done.
func (s *Set) Add(st Step) {
	if st.Valid() {
		s.bits.Set(uint(st))
	}
}

// Has reports whether st is done.
func (s Set) Has(st Step) bool {
	return st.Valid() && s.bits.Test(uint(st))
}

// Clear empties the set.
func (s *Set) Clear() {
	s.bits.ClearAll()
}

// Len returns the number of done steps.
func (s Set) Len() int {
	return int(s.bits.Count())
}

// Empty reports whether no step is done.
func (s Set) Empty() bool {
	return s.bits.None()
}

// Latest returns the highest done step.
func (s Set) Latest() (Step, bool) {
	for i := int(Last); i >= int(First); i-- {
		if s.bits.Test(uint(i)) {
			return Step(i), true
		}
	}
	return 0, false
}

// Reached reports whether target and every step before it are done.
func (s Set) Reached(target Step) bool {
	return len(s.Needed(target)) == 0
}

// Needed returns the steps in [First, target] that are not done, in order.
func (s Set) Needed(target Step) []Step {
	if !target.Valid() {
		return nil
	}
	var span bitset.BitSet
	span.FlipRange(uint(First), uint(target)+1)
	missing := span.Difference(&s.bits)

	out := make([]Step, 0, missing.Count())
	for i, ok := missing.NextSet(0); ok; i, ok = missing.NextSet(i + 1) {
		out = append(out, Step(i))
	}
	return out
}

// Steps lists done steps in order.
func (s Set) Steps() []Step {
	out := make([]Step, 0, s.bits.Count())
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		out = append(out, Step(i))
	}
	return out
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	var out Set
	s.bits.CopyFull(&out.bits)
	return out
}

// Equal reports whether both sets hold the same steps.
func (s Set) Equal(other Set) bool {
	return s.bits.SymmetricDifference(&other.bits).None()
}

// MarshalJSON encodes the set as an ordered list of step names.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Steps())
}

// UnmarshalJSON decodes a list of step names.
func (s *Set) UnmarshalJSON(data []byte) error {
	var steps []Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return err
	}
	s.Clear()
	for _, st := range steps {
		s.Add(st)
	}
	return nil
}
