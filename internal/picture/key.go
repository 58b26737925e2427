package picture

import "fmt"

// Key names one raster variant of a page.
type Key uint8

const (
	// Base is the initial gray image of the page.
	Base Key = iota
	// Binary is the black and white image produced by the binarization filter.
	Binary
	// Gaussian is Binary smoothed with a binomial kernel.
	Gaussian
	// Median is Binary cleaned by a median filter.
	Median
	// NoStaff is Median with the staff-line glyphs erased.
	NoStaff

	keyCount
)

var keyNames = [keyCount]string{"BASE", "BINARY", "GAUSSIAN", "MEDIAN", "NO_STAFF"}

func (k Key) String() string {
	if k >= keyCount {
		return fmt.Sprintf("Key(%d)", uint8(k))
	}
	return keyNames[k]
}

// Keys lists every variant in dependency order.
func Keys() []Key {
	return []Key{Base, Binary, Gaussian, Median, NoStaff}
}

// Dependency returns the variant k is computed from. Base has none.
func (k Key) Dependency() (Key, bool) {
	switch k {
	case Binary:
		return Base, true
	case Gaussian, Median:
		return Binary, true
	case NoStaff:
		return Median, true
	default:
		return 0, false
	}
}

// dependents lists the variants directly computed from k.
func (k Key) dependents() []Key {
	var out []Key
	for _, other := range Keys() {
		if dep, ok := other.Dependency(); ok && dep == k {
			out = append(out, other)
		}
	}
	return out
}
