// Package store provides in-memory cooperative.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/farmlink/cooperative/cooperative"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu            sync.RWMutex
	members       map[cooperative.MemberID]cooperative.Member
	contributions map[cooperative.MemberID][]cooperative.Contribution
	references    map[string]cooperative.Contribution
	loans         map[cooperative.LoanID]cooperative.Loan
	installments  map[cooperative.LoanID][]cooperative.Installment
}

var _ cooperative.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		members:       make(map[cooperative.MemberID]cooperative.Member),
		contributions: make(map[cooperative.MemberID][]cooperative.Contribution),
		references:    make(map[string]cooperative.Contribution),
		loans:         make(map[cooperative.LoanID]cooperative.Loan),
		installments:  make(map[cooperative.LoanID][]cooperative.Installment),
	}
}

// =============================================================================
// MEMBERS
// =============================================================================

func (m *Memory) SaveMember(_ context.Context, member cooperative.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[member.ID] = member
	return nil
}

func (m *Memory) GetMember(_ context.Context, id cooperative.MemberID) (*cooperative.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getMemberLocked(id), nil
}

func (m *Memory) getMemberLocked(id cooperative.MemberID) *cooperative.Member {
	member, ok := m.members[id]
	if !ok {
		return nil
	}
	return &member
}

func (m *Memory) ListMembers(_ context.Context) ([]cooperative.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listMembersLocked(), nil
}

func (m *Memory) listMembersLocked() []cooperative.Member {
	result := make([]cooperative.Member, 0, len(m.members))
	for _, member := range m.members {
		result = append(result, member)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// =============================================================================
// SAVINGS LEDGER
// =============================================================================

// AppendContribution adds a ledger entry. Append-only.
func (m *Memory) AppendContribution(_ context.Context, c cooperative.Contribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendContributionLocked(c)
}

func (m *Memory) appendContributionLocked(c cooperative.Contribution) error {
	if _, exists := m.references[c.PaymentReference]; exists {
		return cooperative.ErrDuplicatePaymentReference
	}

	txs := m.contributions[c.MemberID]
	// Keep the ledger ordered by payment time
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].PaidAt.After(c.PaidAt)
	})
	txs = append(txs, cooperative.Contribution{})
	copy(txs[i+1:], txs[i:])
	txs[i] = c
	m.contributions[c.MemberID] = txs
	m.references[c.PaymentReference] = c
	return nil
}

func (m *Memory) ContributionByReference(_ context.Context, reference string) (*cooperative.Contribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contributionByReferenceLocked(reference), nil
}

func (m *Memory) contributionByReferenceLocked(reference string) *cooperative.Contribution {
	c, ok := m.references[reference]
	if !ok {
		return nil
	}
	return &c
}

func (m *Memory) Contributions(_ context.Context, memberID cooperative.MemberID) ([]cooperative.Contribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contributionsLocked(memberID), nil
}

func (m *Memory) contributionsLocked(memberID cooperative.MemberID) []cooperative.Contribution {
	result := make([]cooperative.Contribution, len(m.contributions[memberID]))
	copy(result, m.contributions[memberID])
	return result
}

func (m *Memory) ContributionTotal(_ context.Context, memberID cooperative.MemberID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contributionTotalLocked(memberID), nil
}

func (m *Memory) contributionTotalLocked(memberID cooperative.MemberID) decimal.Decimal {
	total := decimal.Zero
	for _, c := range m.contributions[memberID] {
		total = total.Add(c.Amount)
	}
	return total
}

// =============================================================================
// LOANS
// =============================================================================

func (m *Memory) CreateLoan(_ context.Context, loan cooperative.Loan, schedule []cooperative.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLoanLocked(loan, schedule)
}

func (m *Memory) createLoanLocked(loan cooperative.Loan, schedule []cooperative.Installment) error {
	if loan.Status == cooperative.LoanActive && m.activeLoanLocked(loan.MemberID) != nil {
		return cooperative.ErrActiveLoanExists
	}
	m.loans[loan.ID] = loan
	installments := make([]cooperative.Installment, len(schedule))
	copy(installments, schedule)
	m.installments[loan.ID] = installments
	return nil
}

func (m *Memory) GetLoan(_ context.Context, id cooperative.LoanID) (*cooperative.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLoanLocked(id), nil
}

func (m *Memory) getLoanLocked(id cooperative.LoanID) *cooperative.Loan {
	loan, ok := m.loans[id]
	if !ok {
		return nil
	}
	return &loan
}

func (m *Memory) LoansByMember(_ context.Context, memberID cooperative.MemberID) ([]cooperative.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loansByMemberLocked(memberID), nil
}

func (m *Memory) loansByMemberLocked(memberID cooperative.MemberID) []cooperative.Loan {
	var result []cooperative.Loan
	for _, loan := range m.loans {
		if loan.MemberID == memberID {
			result = append(result, loan)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result
}

func (m *Memory) ActiveLoan(_ context.Context, memberID cooperative.MemberID) (*cooperative.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLoanLocked(memberID), nil
}

func (m *Memory) activeLoanLocked(memberID cooperative.MemberID) *cooperative.Loan {
	for _, loan := range m.loans {
		if loan.MemberID == memberID && loan.Status == cooperative.LoanActive {
			l := loan
			return &l
		}
	}
	return nil
}

func (m *Memory) CloseLoan(_ context.Context, id cooperative.LoanID, closedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLoanLocked(id, closedAt)
}

func (m *Memory) closeLoanLocked(id cooperative.LoanID, closedAt time.Time) error {
	loan, ok := m.loans[id]
	if !ok {
		return cooperative.ErrLoanNotFound
	}
	loan.Status = cooperative.LoanRepaid
	loan.ClosedAt = &closedAt
	m.loans[id] = loan
	return nil
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

func (m *Memory) Installments(_ context.Context, loanID cooperative.LoanID) ([]cooperative.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.installmentsLocked(loanID), nil
}

func (m *Memory) installmentsLocked(loanID cooperative.LoanID) []cooperative.Installment {
	result := make([]cooperative.Installment, len(m.installments[loanID]))
	copy(result, m.installments[loanID])
	return result
}

func (m *Memory) MarkInstallmentPaid(_ context.Context, loanID cooperative.LoanID, number int, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markPaidLocked(loanID, number, paidAt)
}

func (m *Memory) markPaidLocked(loanID cooperative.LoanID, number int, paidAt time.Time) error {
	insts := m.installments[loanID]
	for i := range insts {
		if insts[i].Number == number {
			insts[i].Paid = true
			insts[i].PaidAt = &paidAt
			return nil
		}
	}
	return cooperative.ErrInstallmentNotFound
}

func (m *Memory) UnpaidInstallments(_ context.Context, dueBefore time.Time) ([]cooperative.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unpaidLocked(dueBefore), nil
}

func (m *Memory) unpaidLocked(dueBefore time.Time) []cooperative.Installment {
	var result []cooperative.Installment
	for loanID, insts := range m.installments {
		if m.loans[loanID].Status != cooperative.LoanActive {
			continue
		}
		for _, inst := range insts {
			if !inst.Paid && inst.DueDate.Before(dueBefore) {
				result = append(result, inst)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DueDate.Equal(result[j].DueDate) {
			return result[i].LoanID < result[j].LoanID
		}
		return result[i].DueDate.Before(result[j].DueDate)
	})
	return result
}

func (m *Memory) RecordPenalty(_ context.Context, a cooperative.PenaltyAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordPenaltyLocked(a)
}

func (m *Memory) recordPenaltyLocked(a cooperative.PenaltyAssessment) error {
	insts := m.installments[a.LoanID]
	for i := range insts {
		if insts[i].Number == a.InstallmentNumber {
			assessedAt := a.AssessedAt
			insts[i].Penalty = a.Result.Penalty
			insts[i].DaysOverdue = a.Result.DaysOverdue
			insts[i].PenaltyAssessedAt = &assessedAt
			return nil
		}
	}
	return cooperative.ErrInstallmentNotFound
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For the memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(cooperative.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	members       map[cooperative.MemberID]cooperative.Member
	contributions map[cooperative.MemberID][]cooperative.Contribution
	references    map[string]cooperative.Contribution
	loans         map[cooperative.LoanID]cooperative.Loan
	installments  map[cooperative.LoanID][]cooperative.Installment
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		members:       make(map[cooperative.MemberID]cooperative.Member, len(m.members)),
		contributions: make(map[cooperative.MemberID][]cooperative.Contribution, len(m.contributions)),
		references:    make(map[string]cooperative.Contribution, len(m.references)),
		loans:         make(map[cooperative.LoanID]cooperative.Loan, len(m.loans)),
		installments:  make(map[cooperative.LoanID][]cooperative.Installment, len(m.installments)),
	}
	for k, v := range m.members {
		s.members[k] = v
	}
	for k, v := range m.contributions {
		s.contributions[k] = append([]cooperative.Contribution{}, v...)
	}
	for k, v := range m.references {
		s.references[k] = v
	}
	for k, v := range m.loans {
		s.loans[k] = v
	}
	for k, v := range m.installments {
		s.installments[k] = append([]cooperative.Installment{}, v...)
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.members = s.members
	m.contributions = s.contributions
	m.references = s.references
	m.loans = s.loans
	m.installments = s.installments
}

// txView runs against the parent with its lock already held by WithTx.
type txView struct {
	parent *Memory
}

func (tv *txView) SaveMember(_ context.Context, member cooperative.Member) error {
	tv.parent.members[member.ID] = member
	return nil
}

func (tv *txView) GetMember(_ context.Context, id cooperative.MemberID) (*cooperative.Member, error) {
	return tv.parent.getMemberLocked(id), nil
}

func (tv *txView) ListMembers(_ context.Context) ([]cooperative.Member, error) {
	return tv.parent.listMembersLocked(), nil
}

func (tv *txView) AppendContribution(_ context.Context, c cooperative.Contribution) error {
	return tv.parent.appendContributionLocked(c)
}

func (tv *txView) ContributionByReference(_ context.Context, reference string) (*cooperative.Contribution, error) {
	return tv.parent.contributionByReferenceLocked(reference), nil
}

func (tv *txView) Contributions(_ context.Context, memberID cooperative.MemberID) ([]cooperative.Contribution, error) {
	return tv.parent.contributionsLocked(memberID), nil
}

func (tv *txView) ContributionTotal(_ context.Context, memberID cooperative.MemberID) (decimal.Decimal, error) {
	return tv.parent.contributionTotalLocked(memberID), nil
}

func (tv *txView) CreateLoan(_ context.Context, loan cooperative.Loan, schedule []cooperative.Installment) error {
	return tv.parent.createLoanLocked(loan, schedule)
}

func (tv *txView) GetLoan(_ context.Context, id cooperative.LoanID) (*cooperative.Loan, error) {
	return tv.parent.getLoanLocked(id), nil
}

func (tv *txView) LoansByMember(_ context.Context, memberID cooperative.MemberID) ([]cooperative.Loan, error) {
	return tv.parent.loansByMemberLocked(memberID), nil
}

func (tv *txView) ActiveLoan(_ context.Context, memberID cooperative.MemberID) (*cooperative.Loan, error) {
	return tv.parent.activeLoanLocked(memberID), nil
}

func (tv *txView) CloseLoan(_ context.Context, id cooperative.LoanID, closedAt time.Time) error {
	return tv.parent.closeLoanLocked(id, closedAt)
}

func (tv *txView) Installments(_ context.Context, loanID cooperative.LoanID) ([]cooperative.Installment, error) {
	return tv.parent.installmentsLocked(loanID), nil
}

func (tv *txView) MarkInstallmentPaid(_ context.Context, loanID cooperative.LoanID, number int, paidAt time.Time) error {
	return tv.parent.markPaidLocked(loanID, number, paidAt)
}

func (tv *txView) UnpaidInstallments(_ context.Context, dueBefore time.Time) ([]cooperative.Installment, error) {
	return tv.parent.unpaidLocked(dueBefore), nil
}

func (tv *txView) RecordPenalty(_ context.Context, a cooperative.PenaltyAssessment) error {
	return tv.parent.recordPenaltyLocked(a)
}
