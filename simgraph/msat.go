package simgraph

import (
	"fmt"
	"math/bits"
)

const (
	// mSatScale is a value that's used to scale satoshis to
	// milli-satoshis, and the other way around.
	mSatScale uint64 = 1000

	// feeRateParts is the total number of parts a proportional fee rate
	// is expressed in, i.e. the rate is given in millionths of the
	// forwarded amount.
	feeRateParts uint64 = 1_000_000

	// MaxMilliSatoshi is the maximum number of msats that can be expressed
	// in this data type.
	MaxMilliSatoshi = ^MilliSatoshi(0)
)

// MilliSatoshi are the native unit of the Lightning Network. A milli-satoshi
// is simply 1/1000th of a satoshi. Within the simulated network, all HTLC
// amounts, balances and fees are denominated in milli-satoshis.
type MilliSatoshi uint64

// NewMSatFromSatoshis creates a new MilliSatoshi instance from a target
// amount of satoshis.
func NewMSatFromSatoshis(sat uint64) MilliSatoshi {
	return MilliSatoshi(sat * mSatScale)
}

// ToSatoshis converts the target MilliSatoshi amount to satoshis. Simply,
// this sheds a factor of 1000 from the mSAT amount in order to convert it to
// SAT.
func (m MilliSatoshi) ToSatoshis() uint64 {
	return uint64(m) / mSatScale
}

// String returns the string representation of the mSAT amount.
func (m MilliSatoshi) String() string {
	return fmt.Sprintf("%v mSAT", uint64(m))
}

// ProportionalFee computes amt * rate / 1e6 without overflowing an
// intermediate uint64. The product of a large payment amount and a large ppm
// rate exceeds 64 bits, so the multiplication is carried out in 128-bit
// precision.
func ProportionalFee(amt MilliSatoshi, ratePPM uint64) MilliSatoshi {
	hi, lo := bits.Mul64(uint64(amt), ratePPM)
	if hi >= feeRateParts {
		// The quotient itself would overflow 64 bits. No sane policy
		// produces such a fee; saturate rather than wrap.
		return MaxMilliSatoshi
	}
	quo, _ := bits.Div64(hi, lo, feeRateParts)

	return MilliSatoshi(quo)
}
