package demo

// FracBits is the number of fractional bits of a Fixed value.
const FracBits = 16

// FracUnit is 1.0 in Fixed.
const FracUnit Fixed = 1 << FracBits

// Fixed is a 16.16 fixed-point map coordinate.
type Fixed int32

// Angle is a binary angle where 1<<32 is a full turn.
type Angle uint32

// MapUnits truncates the value to whole map units (arithmetic shift, rounds toward -inf).
func (f Fixed) MapUnits() int32 { return int32(f) >> FracBits }

// FixedMul multiplies two fixed-point values.
func FixedMul(a, b Fixed) Fixed {
	return Fixed((int64(a) * int64(b)) >> FracBits)
}

// FixedDiv divides a by b. Division by zero saturates in the direction of a.
func FixedDiv(a, b Fixed) Fixed {
	if b == 0 {
		if a < 0 {
			return Fixed(-1 << 31)
		}
		return Fixed(1<<31 - 1)
	}
	return Fixed((int64(a) << FracBits) / int64(b))
}

// Bucket returns the 8 most significant bits of the angle.
func (a Angle) Bucket() uint8 { return uint8(a >> 24) }

// AngleFromBucket restores an angle stored as its top byte.
func AngleFromBucket(b uint8) Angle { return Angle(b) << 24 }
