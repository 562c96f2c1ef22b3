package transaction

import (
	"fmt"
	"strings"

	"cosmossdk.io/math"
	"github.com/shopspring/decimal"

	nerrors "github.com/nami-protocol/nami-client/namiClient/errors"
)

// DisplayPlaces is how many decimals amounts are shown with.
const DisplayPlaces = 3

// ParseAmount converts a human amount such as "12.5" into base units of a
// token with the given number of decimals.
func ParseAmount(s string, decimals int) (math.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.Int{}, nerrors.ErrAmountMissing
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return math.Int{}, nerrors.NewValidationError("", fmt.Sprintf("invalid amount %q", s))
	}
	if !d.IsPositive() {
		return math.Int{}, nerrors.NewValidationError("", "amount must be greater than zero")
	}
	if -d.Exponent() > int32(decimals) && !d.Equal(d.Truncate(int32(decimals))) {
		return math.Int{}, nerrors.NewValidationError("", fmt.Sprintf("amount %s has more than %d decimals", s, decimals))
	}
	return math.NewIntFromBigInt(d.Shift(int32(decimals)).BigInt()), nil
}

// FormatAmount renders base units as a human amount with places decimals.
func FormatAmount(amount math.Int, decimals int, places int) string {
	if amount.IsNil() {
		amount = math.ZeroInt()
	}
	return decimal.NewFromBigInt(amount.BigInt(), -int32(decimals)).StringFixed(int32(places))
}
