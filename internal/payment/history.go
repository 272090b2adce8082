package payment

import "sort"

// sortRequests orders newest first, ties broken by ID descending
func sortRequests(requests []*PaymentRequest) {
	sort.Slice(requests, func(i, j int) bool {
		a, b := requests[i], requests[j]
		if !a.RequestedAt.Equal(b.RequestedAt) {
			return a.RequestedAt.After(b.RequestedAt)
		}
		return a.ID > b.ID
	})
}

// sortTransactions orders newest first, ties broken by ID descending
func sortTransactions(txs []*Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

// AssembleHistory builds the timeline of a job from a snapshot of its rows
func AssembleHistory(totalBudget int64, snap *Snapshot) *History {
	requests := snap.Requests
	if requests == nil {
		requests = []*PaymentRequest{}
	}
	txs := snap.Transactions
	if txs == nil {
		txs = []*Transaction{}
	}
	sortRequests(requests)
	sortTransactions(txs)

	return &History{
		Summary:         Summarize(totalBudget, requests, txs),
		PaymentRequests: requests,
		Transactions:    txs,
	}
}
