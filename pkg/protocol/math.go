package protocol

import "math/bits"

// ratePortion computes floor(amount * rate / 100) with the multiplication
// carried out in 128-bit width so it cannot overflow before the division.
// The quotient always fits in a uint64 because rate <= 100.
func ratePortion(amount uint64, rate uint8) uint64 {
	hi, lo := bits.Mul64(amount, uint64(rate))
	q, _ := bits.Div64(hi, lo, 100)
	return q
}

// checkedAdd returns a+b or ErrArithmeticOverflow. Balance mutations must
// never wrap silently.
func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// checkedSub returns a-b or ErrArithmeticUnderflow.
func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmeticUnderflow
	}
	return diff, nil
}
