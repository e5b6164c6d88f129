package wallet

import (
	"math/big"

	"github.com/lisanmuaddib/balance-sweeper/pkg/chain"
)

// GasStrategy defines how EIP-1559 fee parameters are derived from the
// chain's current base fee and suggested tip.
type GasStrategy struct {
	// BaseFeeMultiplier scales the latest base fee into the fee cap so the
	// transaction stays valid while the base fee rises for a few blocks
	BaseFeeMultiplier int64

	// MinTipCap is a floor for the priority fee in wei, nil for none
	MinTipCap *big.Int

	// GasLimitMultiplier adds a safety buffer to estimated gas.
	// For example, 1.2 adds 20% to the estimated gas limit
	GasLimitMultiplier float64
}

// DefaultGasStrategy returns the usual 2x base fee cap with no tip floor
// and no gas limit buffer.
func DefaultGasStrategy() GasStrategy {
	return GasStrategy{
		BaseFeeMultiplier:  2,
		GasLimitMultiplier: 1.0,
	}
}

// GasLimit applies the gas limit multiplier to an estimate.
func (s GasStrategy) GasLimit(estimated uint64) uint64 {
	if s.GasLimitMultiplier <= 1.0 {
		return estimated
	}
	return uint64(float64(estimated) * s.GasLimitMultiplier)
}

// TipCap applies the tip floor to a suggested tip.
func (s GasStrategy) TipCap(suggested *big.Int) *big.Int {
	if s.MinTipCap != nil && suggested.Cmp(s.MinTipCap) < 0 {
		return new(big.Int).Set(s.MinTipCap)
	}
	return new(big.Int).Set(suggested)
}

// FeeCap computes maxFeePerGas = baseFee * BaseFeeMultiplier + tip.
func (s GasStrategy) FeeCap(baseFee, tip *big.Int) *big.Int {
	multiplier := s.BaseFeeMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(multiplier))
	return feeCap.Add(feeCap, tip)
}

// Estimate builds the fee quote for one transaction. SuggestedMaxFee is
// gasLimit * feeCap, the most the sender can be charged.
func (s GasStrategy) Estimate(estimatedGas uint64, baseFee, suggestedTip *big.Int) chain.FeeEstimate {
	gasLimit := s.GasLimit(estimatedGas)
	tip := s.TipCap(suggestedTip)
	feeCap := s.FeeCap(baseFee, tip)

	maxFee := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), feeCap)

	return chain.FeeEstimate{
		SuggestedMaxFee: maxFee,
		GasLimit:        gasLimit,
		GasFeeCap:       feeCap,
		GasTipCap:       tip,
	}
}
