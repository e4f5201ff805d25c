package ledger

import "math/bits"

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrOverflow
	}
	return diff, nil
}

// CheckedAdd is exported for callers that sum balances across accounts.
func CheckedAdd(values ...uint64) (uint64, error) {
	var total uint64
	for _, value := range values {
		next, err := checkedAdd(total, value)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}
