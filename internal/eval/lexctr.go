package eval

import "strconv"

// FormatLex renders n so that byte-wise string order equals numeric order.
//
// The decimal digits are prefixed by a letter encoding their count:
// 0..9 become "a0".."a9", 10..99 become "b10".."b99", and so on up to
// "t" for twenty-digit values.
func FormatLex(n uint64) string {
	digits := strconv.FormatUint(n, 10)
	buf := make([]byte, 0, len(digits)+1)
	buf = append(buf, byte('a'+len(digits)-1))
	return string(append(buf, digits...))
}
