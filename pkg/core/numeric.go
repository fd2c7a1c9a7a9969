package core

// Remap linearly maps v from [fromLo, fromHi] onto [toLo, toHi].
// The result is not clamped, so values outside the source range land outside the
// destination range. A zero-width source range maps every v to toLo.
func Remap(v, fromLo, fromHi, toLo, toHi float32) float32 {
	width := fromHi - fromLo
	if width == 0 {
		return toLo
	}
	return toLo + (v-fromLo)/width*(toHi-toLo)
}

// Restrict clamps v to the closed range [lo, hi]
func Restrict(v, lo, hi float32) float32 {
	return max(lo, min(hi, v))
}

// RestrictMin clamps v from below only
func RestrictMin(v, lo float32) float32 {
	return max(lo, v)
}
