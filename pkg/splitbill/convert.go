package splitbill

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ethFractionalDigits is the wei precision of one ETH.
const ethFractionalDigits = 18

// ConvertFiat converts a fiat amount into an ETH amount string using the
// supplied rate (units of fiat per 1 ETH). The quotient is re-quantized to 18
// fractional digits so the result round-trips exactly into a wei value with no
// binary floating-point drift. Pure function.
func ConvertFiat(rawFiatAmount string, ratePerEth string) (string, error) {
	fiat, err := decimal.NewFromString(strings.TrimSpace(rawFiatAmount))
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, rawFiatAmount)
	}
	if fiat.Sign() < 0 {
		return "", fmt.Errorf("%w: amount must be non-negative", ErrInvalidAmount)
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(ratePerEth))
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a decimal number", ErrInvalidRate, ratePerEth)
	}
	if rate.Sign() <= 0 {
		return "", fmt.Errorf("%w: rate must be positive", ErrInvalidRate)
	}
	return fiat.DivRound(rate, ethFractionalDigits).StringFixed(ethFractionalDigits), nil
}

// ConvertFiatWithRates resolves the currency's rate from a rate map before
// converting. Returns ErrNoRateAvailable when the currency is absent, which is
// the degraded state before the price feed has loaded.
func ConvertFiatWithRates(rawFiatAmount string, currencyCode string, rates map[string]string) (string, error) {
	rate, found := rates[strings.ToUpper(strings.TrimSpace(currencyCode))]
	if !found {
		return "", fmt.Errorf("%w: currency %q", ErrNoRateAvailable, currencyCode)
	}
	return ConvertFiat(rawFiatAmount, rate)
}

// WeiFromEthString parses a decimal ETH amount into an exact wei integer.
// Digits beyond wei precision are truncated.
func WeiFromEthString(ethAmount string) (*big.Int, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(ethAmount))
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, ethAmount)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("%w: amount must be non-negative", ErrInvalidAmount)
	}
	return parsed.Shift(ethFractionalDigits).Truncate(0).BigInt(), nil
}

// EthStringFromWei renders a wei amount as a minimal decimal ETH string.
func EthStringFromWei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -ethFractionalDigits).String()
}
