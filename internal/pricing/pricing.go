package pricing

import "time"

// Rates are expressed in basis points so all arithmetic stays integral.
// Amounts are currency minor units throughout.
const (
	DefaultCommissionBps  = 2500
	DefaultRefundRateBps  = 7500
	DefaultRefundCutoff   = 48 * time.Hour
	bpsDenominator        = 10000
)

// CommissionSplit divides totalPaid between the platform and the driver at
// the rate frozen for this booking. Commission rounds half up (in the
// platform's favour); the payout absorbs the remainder, so
// commission+payout == totalPaid exactly.
func CommissionSplit(totalPaid int64, rateBps int) (commission, payout int64) {
	commission = roundHalfUpBps(totalPaid, rateBps)
	payout = totalPaid - commission
	return commission, payout
}

// PassengerCancellationRefund returns the partial refund owed when a
// passenger cancels a confirmed booking. Cancelling more than cutoff before
// departure refunds totalPaid at rateBps; any later cancellation refunds
// nothing.
func PassengerCancellationRefund(totalPaid int64, departure, now time.Time, cutoff time.Duration, rateBps int) int64 {
	if departure.Sub(now) > cutoff {
		return roundHalfUpBps(totalPaid, rateBps)
	}
	return 0
}

// DriverCancellationRefund is always the full amount. A driver walking away
// from a confirmed booking never leaves the passenger partially out of pocket.
func DriverCancellationRefund(totalPaid int64) int64 {
	return totalPaid
}

// roundHalfUpBps computes amount*bps/10000 rounded half up.
// Amounts are non-negative by construction.
func roundHalfUpBps(amount int64, bps int) int64 {
	return (amount*int64(bps) + bpsDenominator/2) / bpsDenominator
}
