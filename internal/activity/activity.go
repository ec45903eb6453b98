// Package activity derives account activity metrics for fraud heuristics.
package activity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	// Window is how far back transactions are considered.
	Window = 90 * 24 * time.Hour

	// RecentWindow bounds the "recent" counts: unrelated incoming funds,
	// outgoing transactions and the largest deposit.
	RecentWindow = 30 * 24 * time.Hour

	day = 24 * time.Hour
)

// Service calculates activity metrics for applicants.
type Service struct {
	repo domain.Repository
	now  func() time.Time
}

// NewService creates a new activity service.
func NewService(repo domain.Repository) *Service {
	return &Service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Metrics loads the applicant's recent transactions and summarizes them.
// It returns nil, nil when the applicant has no account activity on record.
func (s *Service) Metrics(ctx context.Context, a *domain.Applicant) (*domain.ActivityMetrics, error) {
	if a == nil || a.ID == "" {
		return nil, fmt.Errorf("applicant is required")
	}

	now := s.now()
	txs, err := s.repo.GetTransactionsByApplicant(ctx, a.ID, now.Add(-Window))
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	opened := a.AccountOpenedAt
	if opened == nil {
		opened, err = s.repo.GetFirstTransactionTime(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get first transaction: %w", err)
		}
	}
	if opened == nil && len(txs) == 0 {
		return nil, nil
	}

	m := Compute(txs, opened, now)

	// a dormant account keeps the balance of its last movement
	if !hasBalance(txs, now) {
		last, err := s.repo.GetLatestBalance(ctx, a.ID, now.Add(-Window))
		if err != nil {
			return nil, fmt.Errorf("failed to get latest balance: %w", err)
		}
		if last != nil {
			m.CurrentBalance = *last
		}
	}
	return m, nil
}

func hasBalance(txs []*domain.Transaction, now time.Time) bool {
	for _, tx := range txs {
		if tx.BalanceAfter != nil && !tx.Timestamp.After(now) {
			return true
		}
	}
	return false
}

// Compute summarizes transactions as of now. openedAt is the account
// opening time, or nil when unknown.
func Compute(txs []*domain.Transaction, openedAt *time.Time, now time.Time) *domain.ActivityMetrics {
	sorted := make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !tx.Timestamp.After(now) {
			sorted = append(sorted, tx)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	recentStart := now.Add(-RecentWindow)
	windowStart := now.Add(-Window)
	if openedAt != nil && openedAt.After(windowStart) {
		windowStart = *openedAt
	}

	m := &domain.ActivityMetrics{}
	var (
		depositTotal  float64
		depositCount  int
		largestRecent float64
		lastDebit     = windowStart
		longestGap    time.Duration
	)

	for _, tx := range sorted {
		recent := !tx.Timestamp.Before(recentStart)
		switch tx.Direction {
		case domain.DirectionCredit:
			if tx.Timestamp.Before(now.Add(-Window)) {
				break
			}
			depositTotal += tx.Amount
			depositCount++
			if recent {
				if !tx.Related {
					m.UnrelatedIncomingTransactions++
				}
				if tx.Amount > largestRecent {
					largestRecent = tx.Amount
				}
			}
		case domain.DirectionDebit:
			if recent {
				m.OutgoingTransactions++
			}
			if tx.Timestamp.After(lastDebit) {
				if gap := tx.Timestamp.Sub(lastDebit); gap > longestGap {
					longestGap = gap
				}
				lastDebit = tx.Timestamp
			}
		}
		if tx.BalanceAfter != nil {
			m.CurrentBalance = *tx.BalanceAfter
		}
	}
	if gap := now.Sub(lastDebit); gap > longestGap {
		longestGap = gap
	}
	m.NoExpensePeriodDays = int(longestGap / day)

	if depositCount >= 2 && depositTotal > 0 {
		mean := depositTotal / float64(depositCount)
		m.SuddenDepositMultiple = largestRecent / mean
	}

	switch {
	case openedAt != nil:
		m.AccountAgeDays = int(now.Sub(*openedAt) / day)
	case len(sorted) > 0:
		m.AccountAgeDays = int(now.Sub(sorted[0].Timestamp) / day)
	}

	return m
}
