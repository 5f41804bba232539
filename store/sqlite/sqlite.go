/*
Package sqlite provides a SQLite-backed implementation of cooperative.TxStore.

PURPOSE:
  Persists members, the savings ledger, loans and their installments.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  The contributions table is never updated or deleted from:
  - No UPDATE statements on contributions
  - No DELETE statements on contributions
  - Corrections are new entries

KEY TABLES:
  members:        Member records
  contributions:  Immutable savings ledger, unique payment_reference
  loans:          Granted loans with their cost summary
  installments:   Schedule lines with payment and penalty state

INDEXES:
  - contributions.payment_reference UNIQUE: Idempotent payment recording
  - idx_loans_one_active: At most one active loan per member, enforced by
    the database even when two applications race
  - idx_installments_unpaid_due: Penalty sweep (hot path)

MONEY AND TIME:
  Amounts are stored as decimal TEXT and summed in Go, never in SQL, so no
  value passes through a float. Instants are stored as fixed-width UTC text
  so string comparison matches time order.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole transaction.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency.

USAGE:
  store, err := sqlite.New("./data/cooperative.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := cooperative.NewService(store, engine, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - cooperative/store.go: Interface definitions
  - cooperative/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/farmlink/cooperative/cooperative"
	"github.com/farmlink/cooperative/lending"
)

// timeLayout is fixed-width so stored instants sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements cooperative.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	q  queries
}

var _ cooperative.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and SQLite
	// allows a single writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, q: queries{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Members
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		joined_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Contributions (append-only savings ledger)
	CREATE TABLE IF NOT EXISTS contributions (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id),
		amount TEXT NOT NULL,
		payment_reference TEXT NOT NULL UNIQUE,
		channel TEXT,
		paid_at TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contributions_member_paid
		ON contributions(member_id, paid_at);

	-- Loans
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id),
		tier TEXT NOT NULL,
		principal TEXT NOT NULL,
		monthly_interest_percent TEXT NOT NULL,
		duration_months INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		total_interest TEXT NOT NULL,
		total_repayment TEXT NOT NULL,
		monthly_payment TEXT NOT NULL,
		created_at TEXT NOT NULL,
		closed_at TEXT
	);

	-- CRITICAL: A member can hold at most one active loan
	CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_one_active
		ON loans(member_id) WHERE status = 'active';

	CREATE INDEX IF NOT EXISTS idx_loans_member_created
		ON loans(member_id, created_at DESC);

	-- Installments
	CREATE TABLE IF NOT EXISTS installments (
		loan_id TEXT NOT NULL REFERENCES loans(id),
		number INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		principal TEXT NOT NULL,
		interest TEXT NOT NULL,
		total_due TEXT NOT NULL,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		paid_at TEXT,
		penalty TEXT NOT NULL DEFAULT '0',
		days_overdue INTEGER NOT NULL DEFAULT 0,
		penalty_assessed_at TEXT,
		PRIMARY KEY (loan_id, number)
	);

	CREATE INDEX IF NOT EXISTS idx_installments_unpaid_due
		ON installments(due_date) WHERE paid = FALSE;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// MEMBERS
// =============================================================================

func (s *Store) SaveMember(ctx context.Context, m cooperative.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.saveMember(ctx, m)
}

// GetMember retrieves a member by ID. Returns (nil, nil) if missing.
func (s *Store) GetMember(ctx context.Context, id cooperative.MemberID) (*cooperative.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getMember(ctx, id)
}

func (s *Store) ListMembers(ctx context.Context) ([]cooperative.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listMembers(ctx)
}

// =============================================================================
// SAVINGS LEDGER
// =============================================================================

func (s *Store) AppendContribution(ctx context.Context, c cooperative.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.appendContribution(ctx, c)
}

func (s *Store) ContributionByReference(ctx context.Context, reference string) (*cooperative.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.contributionByReference(ctx, reference)
}

func (s *Store) Contributions(ctx context.Context, memberID cooperative.MemberID) ([]cooperative.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.contributions(ctx, memberID)
}

func (s *Store) ContributionTotal(ctx context.Context, memberID cooperative.MemberID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.contributionTotal(ctx, memberID)
}

// =============================================================================
// LOANS
// =============================================================================

// CreateLoan inserts the loan and its schedule atomically.
func (s *Store) CreateLoan(ctx context.Context, loan cooperative.Loan, schedule []cooperative.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := (queries{db: sqlTx}).createLoan(ctx, loan, schedule); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) GetLoan(ctx context.Context, id cooperative.LoanID) (*cooperative.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getLoan(ctx, id)
}

func (s *Store) LoansByMember(ctx context.Context, memberID cooperative.MemberID) ([]cooperative.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.loansByMember(ctx, memberID)
}

func (s *Store) ActiveLoan(ctx context.Context, memberID cooperative.MemberID) (*cooperative.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.activeLoan(ctx, memberID)
}

func (s *Store) CloseLoan(ctx context.Context, id cooperative.LoanID, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.closeLoan(ctx, id, closedAt)
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

func (s *Store) Installments(ctx context.Context, loanID cooperative.LoanID) ([]cooperative.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.installments(ctx, loanID)
}

func (s *Store) MarkInstallmentPaid(ctx context.Context, loanID cooperative.LoanID, number int, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.markInstallmentPaid(ctx, loanID, number, paidAt)
}

func (s *Store) UnpaidInstallments(ctx context.Context, dueBefore time.Time) ([]cooperative.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.unpaidInstallments(ctx, dueBefore)
}

func (s *Store) RecordPenalty(ctx context.Context, a cooperative.PenaltyAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.recordPenalty(ctx, a)
}

// =============================================================================
// TRANSACTIONAL STORE (cooperative.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store cooperative.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: queries{db: sqlTx}}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every operation on the open transaction. The parent lock is
// already held by WithTx.
type txStore struct {
	q queries
}

func (ts *txStore) SaveMember(ctx context.Context, m cooperative.Member) error {
	return ts.q.saveMember(ctx, m)
}

func (ts *txStore) GetMember(ctx context.Context, id cooperative.MemberID) (*cooperative.Member, error) {
	return ts.q.getMember(ctx, id)
}

func (ts *txStore) ListMembers(ctx context.Context) ([]cooperative.Member, error) {
	return ts.q.listMembers(ctx)
}

func (ts *txStore) AppendContribution(ctx context.Context, c cooperative.Contribution) error {
	return ts.q.appendContribution(ctx, c)
}

func (ts *txStore) ContributionByReference(ctx context.Context, reference string) (*cooperative.Contribution, error) {
	return ts.q.contributionByReference(ctx, reference)
}

func (ts *txStore) Contributions(ctx context.Context, memberID cooperative.MemberID) ([]cooperative.Contribution, error) {
	return ts.q.contributions(ctx, memberID)
}

func (ts *txStore) ContributionTotal(ctx context.Context, memberID cooperative.MemberID) (decimal.Decimal, error) {
	return ts.q.contributionTotal(ctx, memberID)
}

func (ts *txStore) CreateLoan(ctx context.Context, loan cooperative.Loan, schedule []cooperative.Installment) error {
	return ts.q.createLoan(ctx, loan, schedule)
}

func (ts *txStore) GetLoan(ctx context.Context, id cooperative.LoanID) (*cooperative.Loan, error) {
	return ts.q.getLoan(ctx, id)
}

func (ts *txStore) LoansByMember(ctx context.Context, memberID cooperative.MemberID) ([]cooperative.Loan, error) {
	return ts.q.loansByMember(ctx, memberID)
}

func (ts *txStore) ActiveLoan(ctx context.Context, memberID cooperative.MemberID) (*cooperative.Loan, error) {
	return ts.q.activeLoan(ctx, memberID)
}

func (ts *txStore) CloseLoan(ctx context.Context, id cooperative.LoanID, closedAt time.Time) error {
	return ts.q.closeLoan(ctx, id, closedAt)
}

func (ts *txStore) Installments(ctx context.Context, loanID cooperative.LoanID) ([]cooperative.Installment, error) {
	return ts.q.installments(ctx, loanID)
}

func (ts *txStore) MarkInstallmentPaid(ctx context.Context, loanID cooperative.LoanID, number int, paidAt time.Time) error {
	return ts.q.markInstallmentPaid(ctx, loanID, number, paidAt)
}

func (ts *txStore) UnpaidInstallments(ctx context.Context, dueBefore time.Time) ([]cooperative.Installment, error) {
	return ts.q.unpaidInstallments(ctx, dueBefore)
}

func (ts *txStore) RecordPenalty(ctx context.Context, a cooperative.PenaltyAssessment) error {
	return ts.q.recordPenalty(ctx, a)
}

// =============================================================================
// QUERIES - shared by Store and txStore
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

func (q queries) saveMember(ctx context.Context, m cooperative.Member) error {
	query := `
		INSERT INTO members (id, name, email, phone, joined_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone
	`
	_, err := q.db.ExecContext(ctx, query,
		m.ID, m.Name, nullString(m.Email), nullString(m.Phone),
		formatTime(m.JoinedAt),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save member: %w", err)
	}
	return nil
}

const memberColumns = "id, name, email, phone, joined_at"

func (q queries) getMember(ctx context.Context, id cooperative.MemberID) (*cooperative.Member, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+memberColumns+" FROM members WHERE id = ?", id)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (q queries) listMembers(ctx context.Context) ([]cooperative.Member, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT "+memberColumns+" FROM members ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []cooperative.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (q queries) appendContribution(ctx context.Context, c cooperative.Contribution) error {
	query := `
		INSERT INTO contributions
		(id, member_id, amount, payment_reference, channel, paid_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.db.ExecContext(ctx, query,
		c.ID, c.MemberID, c.Amount.String(), c.PaymentReference,
		nullString(c.Channel), formatTime(c.PaidAt), formatTime(c.RecordedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) && strings.Contains(err.Error(), "payment_reference") {
			return cooperative.ErrDuplicatePaymentReference
		}
		return fmt.Errorf("failed to append contribution: %w", err)
	}
	return nil
}

const contributionColumns = "id, member_id, amount, payment_reference, channel, paid_at, recorded_at"

func (q queries) contributionByReference(ctx context.Context, reference string) (*cooperative.Contribution, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+contributionColumns+" FROM contributions WHERE payment_reference = ?", reference)
	c, err := scanContribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (q queries) contributions(ctx context.Context, memberID cooperative.MemberID) ([]cooperative.Contribution, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+contributionColumns+" FROM contributions WHERE member_id = ? ORDER BY paid_at ASC, recorded_at ASC",
		memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contributions: %w", err)
	}
	defer rows.Close()

	var result []cooperative.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (q queries) contributionTotal(ctx context.Context, memberID cooperative.MemberID) (decimal.Decimal, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT amount FROM contributions WHERE member_id = ?", memberID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query contribution total: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan contribution amount: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid stored amount %q: %w", raw, err)
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}

func (q queries) createLoan(ctx context.Context, loan cooperative.Loan, schedule []cooperative.Installment) error {
	query := `
		INSERT INTO loans
		(id, member_id, tier, principal, monthly_interest_percent, duration_months, start_date,
		 status, total_interest, total_repayment, monthly_payment, created_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.db.ExecContext(ctx, query,
		loan.ID, loan.MemberID, string(loan.Tier),
		loan.Principal.String(), loan.MonthlyInterestPercent.String(), loan.DurationMonths,
		formatTime(loan.StartDate), string(loan.Status),
		loan.Cost.TotalInterest.String(), loan.Cost.TotalRepayment.String(), loan.Cost.MonthlyPayment.String(),
		formatTime(loan.CreatedAt), nullTime(loan.ClosedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) && strings.Contains(err.Error(), "loans.member_id") {
			return cooperative.ErrActiveLoanExists
		}
		return fmt.Errorf("failed to insert loan: %w", err)
	}

	for _, inst := range schedule {
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO installments
			(loan_id, number, due_date, principal, interest, total_due, paid, paid_at, penalty, days_overdue, penalty_assessed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			loan.ID, inst.Number, formatTime(inst.DueDate),
			inst.Principal.String(), inst.Interest.String(), inst.TotalDue.String(),
			inst.Paid, nullTime(inst.PaidAt),
			inst.Penalty.String(), inst.DaysOverdue, nullTime(inst.PenaltyAssessedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert installment %d: %w", inst.Number, err)
		}
	}
	return nil
}

const loanColumns = `id, member_id, tier, principal, monthly_interest_percent, duration_months, start_date,
	status, total_interest, total_repayment, monthly_payment, created_at, closed_at`

func (q queries) getLoan(ctx context.Context, id cooperative.LoanID) (*cooperative.Loan, error) {
	return q.queryOneLoan(ctx, "SELECT "+loanColumns+" FROM loans WHERE id = ?", id)
}

func (q queries) activeLoan(ctx context.Context, memberID cooperative.MemberID) (*cooperative.Loan, error) {
	return q.queryOneLoan(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE member_id = ? AND status = ?",
		memberID, string(cooperative.LoanActive))
}

func (q queries) queryOneLoan(ctx context.Context, query string, args ...any) (*cooperative.Loan, error) {
	loan, err := scanLoan(q.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (q queries) loansByMember(ctx context.Context, memberID cooperative.MemberID) ([]cooperative.Loan, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE member_id = ? ORDER BY created_at DESC", memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []cooperative.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

func (q queries) closeLoan(ctx context.Context, id cooperative.LoanID, closedAt time.Time) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE loans SET status = ?, closed_at = ? WHERE id = ?",
		string(cooperative.LoanRepaid), formatTime(closedAt), id)
	if err != nil {
		return fmt.Errorf("failed to close loan: %w", err)
	}
	return requireAffected(res, cooperative.ErrLoanNotFound)
}

const installmentColumns = `i.loan_id, i.number, i.due_date, i.principal, i.interest, i.total_due,
	i.paid, i.paid_at, i.penalty, i.days_overdue, i.penalty_assessed_at`

func (q queries) installments(ctx context.Context, loanID cooperative.LoanID) ([]cooperative.Installment, error) {
	return q.queryInstallments(ctx,
		"SELECT "+installmentColumns+" FROM installments i WHERE i.loan_id = ? ORDER BY i.number", loanID)
}

func (q queries) unpaidInstallments(ctx context.Context, dueBefore time.Time) ([]cooperative.Installment, error) {
	return q.queryInstallments(ctx, `
		SELECT `+installmentColumns+`
		FROM installments i
		JOIN loans l ON l.id = i.loan_id
		WHERE i.paid = FALSE AND l.status = ? AND i.due_date < ?
		ORDER BY i.due_date ASC, i.loan_id ASC, i.number ASC
	`, string(cooperative.LoanActive), formatTime(dueBefore))
}

func (q queries) queryInstallments(ctx context.Context, query string, args ...any) ([]cooperative.Installment, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query installments: %w", err)
	}
	defer rows.Close()

	var result []cooperative.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

func (q queries) markInstallmentPaid(ctx context.Context, loanID cooperative.LoanID, number int, paidAt time.Time) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE installments SET paid = TRUE, paid_at = ? WHERE loan_id = ? AND number = ?",
		formatTime(paidAt), loanID, number)
	if err != nil {
		return fmt.Errorf("failed to mark installment paid: %w", err)
	}
	return requireAffected(res, cooperative.ErrInstallmentNotFound)
}

func (q queries) recordPenalty(ctx context.Context, a cooperative.PenaltyAssessment) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE installments
		SET penalty = ?, days_overdue = ?, penalty_assessed_at = ?
		WHERE loan_id = ? AND number = ?
	`,
		a.Result.Penalty.String(), a.Result.DaysOverdue, formatTime(a.AssessedAt),
		a.LoanID, a.InstallmentNumber)
	if err != nil {
		return fmt.Errorf("failed to record penalty: %w", err)
	}
	return requireAffected(res, cooperative.ErrInstallmentNotFound)
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(row scanner) (cooperative.Member, error) {
	var (
		m        cooperative.Member
		email    sql.NullString
		phone    sql.NullString
		joinedAt string
	)
	if err := row.Scan(&m.ID, &m.Name, &email, &phone, &joinedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return m, err
		}
		return m, fmt.Errorf("failed to scan member: %w", err)
	}
	m.Email = email.String
	m.Phone = phone.String
	m.JoinedAt = parseTime(joinedAt)
	return m, nil
}

func scanContribution(row scanner) (cooperative.Contribution, error) {
	var (
		c          cooperative.Contribution
		amount     string
		channel    sql.NullString
		paidAt     string
		recordedAt string
	)
	err := row.Scan(&c.ID, &c.MemberID, &amount, &c.PaymentReference, &channel, &paidAt, &recordedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("failed to scan contribution: %w", err)
	}
	if c.Amount, err = decimal.NewFromString(amount); err != nil {
		return c, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	c.Channel = channel.String
	c.PaidAt = parseTime(paidAt)
	c.RecordedAt = parseTime(recordedAt)
	return c, nil
}

func scanLoan(row scanner) (cooperative.Loan, error) {
	var (
		loan                                   cooperative.Loan
		tier, status                           string
		principal, rate                        string
		totalInterest, totalRepayment, monthly string
		startDate, createdAt                   string
		closedAt                               sql.NullString
	)
	err := row.Scan(
		&loan.ID, &loan.MemberID, &tier, &principal, &rate, &loan.DurationMonths, &startDate,
		&status, &totalInterest, &totalRepayment, &monthly, &createdAt, &closedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return loan, err
		}
		return loan, fmt.Errorf("failed to scan loan: %w", err)
	}

	t, ok := lending.ParseTier(tier)
	if !ok {
		return loan, fmt.Errorf("invalid stored tier %q for loan %s", tier, loan.ID)
	}
	loan.Tier = t
	loan.Status = cooperative.LoanStatus(status)
	loan.Principal = decimal.RequireFromString(principal)
	loan.MonthlyInterestPercent = decimal.RequireFromString(rate)
	loan.StartDate = parseTime(startDate)
	loan.CreatedAt = parseTime(createdAt)
	loan.ClosedAt = parseNullTime(closedAt)
	loan.Cost = lending.LoanCostSummary{
		Principal:      loan.Principal,
		TotalInterest:  decimal.RequireFromString(totalInterest),
		TotalRepayment: decimal.RequireFromString(totalRepayment),
		MonthlyPayment: decimal.RequireFromString(monthly),
		DurationMonths: loan.DurationMonths,
	}
	return loan, nil
}

func scanInstallment(row scanner) (cooperative.Installment, error) {
	var (
		inst                       cooperative.Installment
		dueDate                    string
		principal, interest, total string
		penalty                    string
		paidAt, penaltyAssessedAt  sql.NullString
	)
	err := row.Scan(
		&inst.LoanID, &inst.Number, &dueDate, &principal, &interest, &total,
		&inst.Paid, &paidAt, &penalty, &inst.DaysOverdue, &penaltyAssessedAt,
	)
	if err != nil {
		return inst, fmt.Errorf("failed to scan installment: %w", err)
	}
	inst.DueDate = parseTime(dueDate)
	inst.Principal = decimal.RequireFromString(principal)
	inst.Interest = decimal.RequireFromString(interest)
	inst.TotalDue = decimal.RequireFromString(total)
	inst.Penalty = decimal.RequireFromString(penalty)
	inst.PaidAt = parseNullTime(paidAt)
	inst.PenaltyAssessedAt = parseNullTime(penaltyAssessedAt)
	return inst, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
