package common

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrAmountOverflow is returned when a balance or counter would exceed 256 bits.
	ErrAmountOverflow = errors.New("amount overflow")
	// ErrAmountUnderflow is returned when a subtraction would go negative.
	ErrAmountUnderflow = errors.New("amount underflow")
	// ErrNegativeAmount is returned for negative inputs.
	ErrNegativeAmount = errors.New("amount must not be negative")
)

// ToUint256 converts a non-negative big integer. Nil is treated as zero.
func ToUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return out, nil
}

// AddAmounts returns a+b, failing instead of wrapping.
func AddAmounts(a, b *big.Int) (*big.Int, error) {
	x, err := ToUint256(a)
	if err != nil {
		return nil, err
	}
	y, err := ToUint256(b)
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return sum.ToBig(), nil
}

// SubAmounts returns a-b, failing with ErrAmountUnderflow when b > a.
func SubAmounts(a, b *big.Int) (*big.Int, error) {
	x, err := ToUint256(a)
	if err != nil {
		return nil, err
	}
	y, err := ToUint256(b)
	if err != nil {
		return nil, err
	}
	diff, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrAmountUnderflow
	}
	return diff.ToBig(), nil
}

// MulDiv returns floor(a*b/d) with a 512-bit intermediate product.
func MulDiv(a, b, d *big.Int) (*big.Int, error) {
	x, err := ToUint256(a)
	if err != nil {
		return nil, err
	}
	y, err := ToUint256(b)
	if err != nil {
		return nil, err
	}
	z, err := ToUint256(d)
	if err != nil {
		return nil, err
	}
	if z.IsZero() {
		return nil, errors.New("division by zero")
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, y, z)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return out.ToBig(), nil
}

// Positive reports whether v is set and greater than zero.
func Positive(v *big.Int) bool { return v != nil && v.Sign() > 0 }
