package payment

import "github.com/shopspring/decimal"

// Summarize derives the budget position of a job from its rows. Nothing is
// cached; every call recomputes from scratch.
func Summarize(totalBudget int64, requests []*PaymentRequest, txs []*Transaction) BudgetSummary {
	var paid, pending int64
	for _, t := range txs {
		if t.Status == TransactionStatusProcessed {
			paid += t.Amount
		}
	}
	for _, pr := range requests {
		if pr.Status == RequestStatusPending {
			pending += pr.Amount
		}
	}

	return BudgetSummary{
		TotalBudget:           totalBudget,
		AmountPaid:            paid,
		AmountPending:         pending,
		RemainingBudget:       totalBudget - paid - pending,
		UtilizationPercentage: utilization(paid, totalBudget),
	}
}

// utilization is paid/total as a whole percentage, halves rounded up
func utilization(paid, total int64) int64 {
	if total <= 0 {
		return 0
	}
	return decimal.NewFromInt(paid).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(total), 0).
		IntPart()
}
