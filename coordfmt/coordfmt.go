/*
Package coordfmt implements the Number Codec: decoding fixed-point
digit strings found in Gerber coordinate blocks and Excellon drill
coordinates into float64 values, and the reverse, under a configurable
CoordinateFormat.

The zero-suppression terminology follows the Gerber convention (a
format names which zeros are *omitted* from the string). excellon.go
maps an Excellon LZ directive to ZeroSuppressionLeading and TZ to
ZeroSuppressionTrailing as written; it does not invert them to the
Excellon reading, in which the letters name the zeros that are *kept*.
*/
package coordfmt

import (
	"errors"
	"strconv"
	"strings"

	"github.com/curtacircuitos/pcb-tools/gerberbasetypes"
)

// CoordinateFormat is the (integer_digits, decimal_digits,
// zero_suppression, notation, units) tuple governing decoding of bare
// digit strings into fixed-point coordinates. It is fixed once set for
// the remainder of a parse (§3 invariant).
type CoordinateFormat struct {
	IntegerDigits int
	DecimalDigits int
	ZeroSuppress  gerberbasetypes.ZeroSuppression
	Notation      gerberbasetypes.Notation
	Units         gerberbasetypes.Units
}

// Width is the fixed digit-string width this format expects once
// zero-filled: IntegerDigits + DecimalDigits.
func (cf CoordinateFormat) Width() int {
	return cf.IntegerDigits + cf.DecimalDigits
}

// IsSet reports whether the format has been given concrete digit
// widths. A zero-value CoordinateFormat is "undefined" per §3.
func (cf CoordinateFormat) IsSet() bool {
	return cf.IntegerDigits > 0 || cf.DecimalDigits > 0
}

// NumberOverflow is returned when a digit string's length, after
// stripping any sign, exceeds the format's configured width, or, under
// ZeroSuppressionNone, differs from it.
type NumberOverflow struct {
	Value  string
	Format CoordinateFormat
}

func (e *NumberOverflow) Error() string {
	return "coordfmt: value " + strconv.Quote(e.Value) + " does not fit format " +
		strconv.Itoa(e.Format.IntegerDigits) + ":" + strconv.Itoa(e.Format.DecimalDigits)
}

// Decode converts a raw digit string to its fixed-point value under
// format cf.
//
// A value containing a literal decimal point (as seen in parameter
// fields such as %ADD…, macro arguments and Excellon ;FILE_FORMAT
// comments) is parsed directly as a rational and never consults cf,
// matching gerber.utils.parse_gerber_value's "edge case with explicit
// decimal" handling.
func Decode(raw string, cf CoordinateFormat) (float64, error) {
	if strings.ContainsRune(raw, '.') {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, err
		}
		return v, nil
	}

	negative := false
	s := raw
	switch {
	case strings.HasPrefix(s, "-"):
		negative = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !isDigitString(s) {
		return 0, errors.New("coordfmt: " + strconv.Quote(raw) + " is not a digit string")
	}

	width := cf.Width()
	if len(s) > width {
		return 0, &NumberOverflow{Value: raw, Format: cf}
	}

	var digits string
	switch cf.ZeroSuppress {
	case gerberbasetypes.ZeroSuppressionTrailing:
		// right-pad: value is left-aligned, zeros fill the tail.
		digits = s + strings.Repeat("0", width-len(s))
	case gerberbasetypes.ZeroSuppressionNone:
		if len(s) != width {
			return 0, &NumberOverflow{Value: raw, Format: cf}
		}
		digits = s
	default:
		// leading (also the default/zero value): left-pad, value is
		// right-aligned.
		digits = strings.Repeat("0", width-len(s)) + s
	}

	intPart := digits[:cf.IntegerDigits]
	decPart := digits[cf.IntegerDigits:]

	ip, err := strconv.ParseFloat(intPart, 64)
	if err != nil {
		return 0, err
	}
	var dp float64
	if len(decPart) > 0 {
		dp, err = strconv.ParseFloat(decPart, 64)
		if err != nil {
			return 0, err
		}
	}
	value := ip + dp/pow10(cf.DecimalDigits)
	if negative {
		value = -value
	}
	return value, nil
}

// Encode is the inverse of Decode: it renders value back into a digit
// string canonicalized under cf's zero-suppression mode. Used by
// property S8-1 (number round-trip) in tests; not required for
// parsing itself.
func Encode(value float64, cf CoordinateFormat) string {
	width := cf.Width()
	negative := value < 0
	if negative {
		value = -value
	}
	scaled := int64(value*pow10(cf.DecimalDigits) + 0.5)
	digits := strconv.FormatInt(scaled, 10)
	if len(digits) < width {
		digits = strings.Repeat("0", width-len(digits)) + digits
	}

	switch cf.ZeroSuppress {
	case gerberbasetypes.ZeroSuppressionTrailing:
		digits = strings.TrimRight(digits, "0")
	case gerberbasetypes.ZeroSuppressionNone:
		// keep full width
	default:
		digits = strings.TrimLeft(digits, "0")
	}
	if digits == "" {
		digits = "0"
	}
	if negative {
		digits = "-" + digits
	}
	return digits
}

func isDigitString(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func pow10(n int) float64 {
	r := 1.0
	for i := 0; i < n; i++ {
		r *= 10
	}
	return r
}
