package dto

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skalice/ledger-engine/internal/core/domain"
)

// SubmitTransactionRequest defines the data needed to submit a transaction.
// Amount is a positive magnitude; kind decides the sign.
type SubmitTransactionRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"required,positivedec"`
	Kind        string          `json:"kind" binding:"required,oneof=debit credit DEBIT CREDIT"`
	Description string          `json:"description" binding:"required,max=10"`
}

// DomainKind normalizes the request's kind to the domain constant.
func (r SubmitTransactionRequest) DomainKind() domain.TransactionKind {
	return domain.TransactionKind(strings.ToUpper(r.Kind))
}

// TransactionResult defines the data returned after a committed (or, in
// relay mode, accepted) transaction.
type TransactionResult struct {
	Balance     decimal.Decimal `json:"balance"`
	CreditLimit decimal.Decimal `json:"creditLimit"`
}

// ToTransactionResult converts a domain.AccountSummary to its response DTO.
func ToTransactionResult(summary *domain.AccountSummary) TransactionResult {
	return TransactionResult{
		Balance:     summary.Balance,
		CreditLimit: summary.CreditLimit,
	}
}

// BalanceBlock is the balance section of a statement response.
type BalanceBlock struct {
	Total       decimal.Decimal `json:"total"`
	CreditLimit decimal.Decimal `json:"creditLimit"`
	Timestamp   time.Time       `json:"timestamp"`
}

// TransactionEntry is one line of the recent-history window.
type TransactionEntry struct {
	Amount      decimal.Decimal `json:"amount"`
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// StatementResponse defines the snapshot returned for an account: the
// balance block plus at most the ten most recent transactions, newest first.
type StatementResponse struct {
	Balance            BalanceBlock       `json:"balance"`
	RecentTransactions []TransactionEntry `json:"recentTransactions"`
}

// ToStatementResponse converts a domain.AccountSnapshot to its response DTO.
func ToStatementResponse(snapshot *domain.AccountSnapshot) StatementResponse {
	entries := make([]TransactionEntry, 0, len(snapshot.RecentTransactions))
	for _, record := range snapshot.RecentTransactions {
		entries = append(entries, TransactionEntry{
			Amount:      record.Amount,
			Kind:        strings.ToLower(string(record.Kind)),
			Description: record.Description,
			OccurredAt:  record.OccurredAt,
		})
	}
	return StatementResponse{
		Balance: BalanceBlock{
			Total:       snapshot.Balance,
			CreditLimit: snapshot.CreditLimit,
			Timestamp:   snapshot.TakenAt,
		},
		RecentTransactions: entries,
	}
}
