package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"ferrepos/backend/internal/domain"
	"ferrepos/backend/internal/store"
	"ferrepos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	branch.Name = strings.TrimSpace(branch.Name)
	if branch.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if branch.ID == "" {
		branch.ID = xid.New("branch")
	}
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, name, address, created_at)
		VALUES ($1,$2,$3,$4)
	`, branch.ID, branch.Name, nullIfEmpty(branch.Address), branch.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := branch
	return &created, nil
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(address,''), created_at
		FROM branches
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 16)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

func (s *Store) GetBranch(ctx context.Context, id string) (*domain.Branch, error) {
	var branch domain.Branch
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(address,''), created_at
		FROM branches
		WHERE id = $1
	`, id).Scan(&branch.ID, &branch.Name, &branch.Address, &branch.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	branch.CreatedAt = branch.CreatedAt.UTC()
	return &branch, nil
}

func (s *Store) CreateRegister(ctx context.Context, register domain.CashRegister) (*domain.CashRegister, error) {
	register.Code = strings.ToLower(strings.TrimSpace(register.Code))
	register.Name = strings.TrimSpace(register.Name)
	if register.Code == "" || register.Name == "" || register.BranchID == "" {
		return nil, store.ErrInvalidInput
	}
	if register.ID == "" {
		register.ID = xid.New("reg")
	}
	if register.CreatedAt.IsZero() {
		register.CreatedAt = time.Now().UTC()
	}
	register.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_registers (id, branch_id, code, name, default_opening, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, register.ID, register.BranchID, register.Code, register.Name, register.DefaultOpening, register.Active, register.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := register
	return &created, nil
}

func (s *Store) ListRegisters(ctx context.Context, branchID string) ([]domain.CashRegister, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, code, name, default_opening, active, created_at
		FROM cash_registers
		WHERE ($1 = '' OR branch_id = $1)
		ORDER BY code ASC, id ASC
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	registers := make([]domain.CashRegister, 0, 16)
	for rows.Next() {
		var r domain.CashRegister
		if err := rows.Scan(&r.ID, &r.BranchID, &r.Code, &r.Name, &r.DefaultOpening, &r.Active, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		registers = append(registers, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return registers, nil
}

func (s *Store) GetRegister(ctx context.Context, id string) (*domain.CashRegister, error) {
	var register domain.CashRegister
	err := s.db.QueryRowContext(ctx, `
		SELECT id, branch_id, code, name, default_opening, active, created_at
		FROM cash_registers
		WHERE id = $1
	`, id).Scan(&register.ID, &register.BranchID, &register.Code, &register.Name, &register.DefaultOpening, &register.Active, &register.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	register.CreatedAt = register.CreatedAt.UTC()
	return &register, nil
}

func (s *Store) CreateSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error) {
	if session.RegisterID == "" || strings.TrimSpace(session.Operator) == "" {
		return nil, store.ErrInvalidInput
	}
	if session.OpeningBalance.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if session.ID == "" {
		session.ID = xid.New("ses")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.Status = domain.SessionStatusOpen

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var active bool
	err = tx.QueryRowContext(ctx, `
		SELECT active FROM cash_registers WHERE id = $1 FOR UPDATE
	`, session.RegisterID).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if !active {
		return nil, store.ErrInvalidState
	}

	// The partial unique index uq_open_session_per_register backs this
	// check for concurrent writers.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cash_sessions (
			id, register_id, operator, status, opening_balance, opening_notes, opened_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, session.ID, session.RegisterID, session.Operator, session.Status,
		session.OpeningBalance, strings.TrimSpace(session.OpeningNotes), session.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := session
	return &created, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.CashSession, error) {
	return s.getSession(ctx, s.db, id, false)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getSession(ctx context.Context, q queryRower, id string, forUpdate bool) (*domain.CashSession, error) {
	query := `
		SELECT id, register_id, operator, status, opening_balance,
			expected_balance, actual_balance, difference,
			COALESCE(opening_notes,''), COALESCE(closing_notes,''), opened_at, closed_at
		FROM cash_sessions
		WHERE id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var session domain.CashSession
	var expected, actual, difference decimal.NullDecimal
	var closedAt sql.NullTime
	err := q.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.RegisterID,
		&session.Operator,
		&session.Status,
		&session.OpeningBalance,
		&expected,
		&actual,
		&difference,
		&session.OpeningNotes,
		&session.ClosingNotes,
		&session.OpenedAt,
		&closedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	session.OpenedAt = session.OpenedAt.UTC()
	if expected.Valid {
		session.ExpectedBalance = &expected.Decimal
	}
	if actual.Valid {
		session.ActualBalance = &actual.Decimal
	}
	if difference.Valid {
		session.Difference = &difference.Decimal
	}
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		session.ClosedAt = &at
	}
	return &session, nil
}

func (s *Store) ListSessions(ctx context.Context, registerID string, status string, limit int) ([]domain.CashSession, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, register_id, operator, status, opening_balance,
			expected_balance, actual_balance, difference,
			COALESCE(opening_notes,''), COALESCE(closing_notes,''), opened_at, closed_at
		FROM cash_sessions
		WHERE ($1 = '' OR register_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY opened_at DESC
		LIMIT $3
	`, registerID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.CashSession, 0, limit)
	for rows.Next() {
		var session domain.CashSession
		var expected, actual, difference decimal.NullDecimal
		var closedAt sql.NullTime
		if err := rows.Scan(
			&session.ID,
			&session.RegisterID,
			&session.Operator,
			&session.Status,
			&session.OpeningBalance,
			&expected,
			&actual,
			&difference,
			&session.OpeningNotes,
			&session.ClosingNotes,
			&session.OpenedAt,
			&closedAt,
		); err != nil {
			return nil, err
		}
		session.OpenedAt = session.OpenedAt.UTC()
		if expected.Valid {
			session.ExpectedBalance = &expected.Decimal
		}
		if actual.Valid {
			session.ActualBalance = &actual.Decimal
		}
		if difference.Valid {
			session.Difference = &difference.Decimal
		}
		if closedAt.Valid {
			at := closedAt.Time.UTC()
			session.ClosedAt = &at
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Store) GetOpenSessionByRegister(ctx context.Context, registerID string) (*domain.CashSession, error) {
	var sessionID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id
		FROM cash_sessions
		WHERE register_id = $1 AND status = $2
		ORDER BY opened_at DESC
		LIMIT 1
	`, registerID, domain.SessionStatusOpen).Scan(&sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return s.GetSession(ctx, sessionID)
}

// CloseSession reconciles against the ledger and flips the session to
// closed inside one serializable transaction, so a movement appended
// concurrently either lands before the balance snapshot or fails
// against the closed session.
func (s *Store) CloseSession(ctx context.Context, id string, actual decimal.Decimal, closingNotes string, closedAt time.Time) (*domain.CashSession, error) {
	if actual.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	session, err := s.getSession(ctx, tx, id, true)
	if err != nil {
		return nil, txError(err)
	}
	if session.Status != domain.SessionStatusOpen {
		return nil, store.ErrInvalidState
	}

	var income, outflow decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN type IN ('sale','credit_payment','income','transfer_in') THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type IN ('expense','transfer_out','purchase','adjustment') THEN amount ELSE 0 END), 0)
		FROM cash_movements
		WHERE session_id = $1
	`, id).Scan(&income, &outflow)
	if err != nil {
		return nil, txError(err)
	}

	expected := session.OpeningBalance.Add(income).Sub(outflow)
	difference := actual.Sub(expected)

	_, err = tx.ExecContext(ctx, `
		UPDATE cash_sessions
		SET status = $2, expected_balance = $3, actual_balance = $4, difference = $5,
			closing_notes = $6, closed_at = $7
		WHERE id = $1
	`, id, domain.SessionStatusClosed, expected, actual, difference, strings.TrimSpace(closingNotes), closedAt)
	if err != nil {
		return nil, txError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, txError(err)
	}

	session.Status = domain.SessionStatusClosed
	session.ExpectedBalance = &expected
	session.ActualBalance = &actual
	session.Difference = &difference
	session.ClosingNotes = strings.TrimSpace(closingNotes)
	session.ClosedAt = &closedAt
	return session, nil
}

func (s *Store) ReopenSession(ctx context.Context, id string) (*domain.CashSession, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	session, err := s.getSession(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionStatusClosed {
		return nil, store.ErrInvalidState
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE cash_sessions
		SET status = $2, expected_balance = NULL, actual_balance = NULL, difference = NULL,
			closing_notes = '', closed_at = NULL
		WHERE id = $1
	`, id, domain.SessionStatusOpen)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, txError(err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, txError(err)
	}

	session.Status = domain.SessionStatusOpen
	session.ExpectedBalance = nil
	session.ActualBalance = nil
	session.Difference = nil
	session.ClosingNotes = ""
	session.ClosedAt = nil
	return session, nil
}

func (s *Store) AppendMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	created, err := s.appendMovementTx(ctx, tx, movement)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) appendMovementTx(ctx context.Context, tx *sql.Tx, movement domain.CashMovement) (*domain.CashMovement, error) {
	if !domain.IsValidMovementType(movement.Type) {
		return nil, store.ErrInvalidInput
	}
	if !movement.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	if movement.PaymentMethod == "" {
		movement.PaymentMethod = "cash"
	}

	var status string
	err := tx.QueryRowContext(ctx, `
		SELECT status FROM cash_sessions WHERE id = $1 FOR UPDATE
	`, movement.SessionID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.SessionStatusOpen {
		return nil, store.ErrInvalidState
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cash_movements (
			id, session_id, type, amount, payment_method, description, reference, notes, recorded_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, movement.ID, movement.SessionID, movement.Type, movement.Amount, movement.PaymentMethod,
		strings.TrimSpace(movement.Description), nullIfEmpty(movement.Reference),
		strings.TrimSpace(movement.Notes), movement.RecordedBy, movement.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := movement
	return &created, nil
}

func (s *Store) ListMovements(ctx context.Context, sessionID string, movementType string, paymentMethod string) ([]domain.CashMovement, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM cash_sessions WHERE id = $1)
	`, sessionID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, type, amount, payment_method, COALESCE(description,''),
			COALESCE(reference,''), COALESCE(notes,''), recorded_by, created_at
		FROM cash_movements
		WHERE session_id = $1
			AND ($2 = '' OR type = $2)
			AND ($3 = '' OR payment_method = $3)
		ORDER BY created_at ASC, id ASC
	`, sessionID, movementType, paymentMethod)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.CashMovement, 0, 64)
	for rows.Next() {
		var m domain.CashMovement
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Type, &m.Amount, &m.PaymentMethod, &m.Description, &m.Reference, &m.Notes, &m.RecordedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) CreateSaleWithPayments(ctx context.Context, sale domain.Sale, payments []domain.Payment) (*domain.Sale, []domain.Payment, error) {
	if strings.TrimSpace(sale.Customer) == "" || !sale.TotalAmount.IsPositive() || len(payments) == 0 {
		return nil, nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.SaleType == "" {
		sale.SaleType = "credit"
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, branch_id, customer, total_amount, sale_type, notes, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sale.ID, nullIfEmpty(sale.BranchID), sale.Customer, sale.TotalAmount, sale.SaleType,
		strings.TrimSpace(sale.Notes), sale.CreatedBy, sale.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}

	saved := make([]domain.Payment, 0, len(payments))
	for i, p := range payments {
		if !p.Amount.IsPositive() {
			return nil, nil, store.ErrInvalidInput
		}
		p.SaleID = sale.ID
		if p.ID == "" {
			p.ID = xid.New("pay")
		}
		if p.InstallmentNumber == 0 {
			p.InstallmentNumber = i + 1
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = sale.CreatedAt
		}
		p.PaidAmount = decimal.Zero
		p.Status = domain.PaymentStatusPending

		_, err := tx.ExecContext(ctx, `
			INSERT INTO payments (
				id, sale_id, installment_number, amount, paid_amount, status, due_date, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, p.ID, p.SaleID, p.InstallmentNumber, p.Amount, p.PaidAmount, p.Status, p.DueDate, p.CreatedAt)
		if err != nil {
			return nil, nil, err
		}
		saved = append(saved, p)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	createdSale := sale
	return &createdSale, saved, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	var branchID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, branch_id, customer, total_amount, sale_type, COALESCE(notes,''), created_by, created_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &branchID, &sale.Customer, &sale.TotalAmount, &sale.SaleType, &sale.Notes, &sale.CreatedBy, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if branchID.Valid {
		sale.BranchID = branchID.String
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

func (s *Store) ListPaymentsBySale(ctx context.Context, saleID string) ([]domain.Payment, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM sales WHERE id = $1)
	`, saleID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, installment_number, amount, paid_amount, status, due_date,
			paid_at, COALESCE(payment_method,''), COALESCE(transaction_reference,''),
			COALESCE(notes,''), created_at
		FROM payments
		WHERE sale_id = $1
		ORDER BY installment_number ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPayments(rows)
}

func (s *Store) ListOutstandingPayments(ctx context.Context, branchID string, limit int) ([]domain.Payment, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.sale_id, p.installment_number, p.amount, p.paid_amount, p.status,
			p.due_date, p.paid_at, COALESCE(p.payment_method,''),
			COALESCE(p.transaction_reference,''), COALESCE(p.notes,''), p.created_at
		FROM payments p
		JOIN sales s ON s.id = p.sale_id
		WHERE p.amount > p.paid_amount
			AND ($1 = '' OR s.branch_id = $1)
		ORDER BY p.due_date ASC, p.id ASC
		LIMIT $2
	`, branchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPayments(rows)
}

func (s *Store) GetPaymentsByIDs(ctx context.Context, ids []string) (map[string]domain.Payment, error) {
	result := make(map[string]domain.Payment, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, installment_number, amount, paid_amount, status, due_date,
			paid_at, COALESCE(payment_method,''), COALESCE(transaction_reference,''),
			COALESCE(notes,''), created_at
		FROM payments
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments, err := scanPayments(rows)
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		result[p.ID] = p
	}
	return result, nil
}

// ApplySettlement locks every allocated payment, validates the full
// batch, then applies it. Any failure rolls back the whole settlement
// including ledger entries.
func (s *Store) ApplySettlement(ctx context.Context, allocations []store.PaymentAllocation, paymentMethod string, txRef string, notes string, sessionID string, operator string, at time.Time) ([]domain.Payment, error) {
	if len(allocations) == 0 {
		return nil, store.ErrInvalidInput
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	type lockedPayment struct {
		amount      decimal.Decimal
		paid        decimal.Decimal
		due         time.Time
		installment int
	}
	locked := make(map[string]lockedPayment, len(allocations))
	for _, alloc := range allocations {
		if _, dup := locked[alloc.PaymentID]; dup {
			return nil, store.ErrInvalidInput
		}
		if !alloc.Amount.IsPositive() {
			return nil, store.ErrInvalidInput
		}
		var lp lockedPayment
		err := tx.QueryRowContext(ctx, `
			SELECT amount, paid_amount, due_date, installment_number
			FROM payments
			WHERE id = $1
			FOR UPDATE
		`, alloc.PaymentID).Scan(&lp.amount, &lp.paid, &lp.due, &lp.installment)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, txError(err)
		}
		remaining := lp.amount.Sub(lp.paid)
		if !remaining.IsPositive() {
			return nil, store.ErrConflict
		}
		if alloc.Amount.GreaterThan(remaining) {
			return nil, store.ErrInvalidInput
		}
		locked[alloc.PaymentID] = lp
	}

	updated := make([]domain.Payment, 0, len(allocations))
	for _, alloc := range allocations {
		lp := locked[alloc.PaymentID]
		newPaid := lp.paid.Add(alloc.Amount)
		status := domain.DerivePaymentStatus(lp.amount, newPaid, lp.due, at)
		var paidAt *time.Time
		if status == domain.PaymentStatusPaid {
			t := at
			paidAt = &t
		}

		// Method and reference are only persisted by the allocation
		// that pays the installment off.
		_, err := tx.ExecContext(ctx, `
			UPDATE payments
			SET paid_amount = $2, status = $3, paid_at = $4,
				payment_method = CASE WHEN $3 = 'paid' THEN $5 ELSE payment_method END,
				transaction_reference = CASE WHEN $3 = 'paid' THEN $6 ELSE transaction_reference END,
				notes = CASE WHEN $7 <> '' THEN $7 ELSE notes END
			WHERE id = $1
		`, alloc.PaymentID, newPaid, status, nullTime(paidAt), paymentMethod,
			nullIfEmpty(txRef), strings.TrimSpace(notes))
		if err != nil {
			return nil, txError(err)
		}

		if sessionID != "" {
			if _, err := s.appendMovementTx(ctx, tx, domain.CashMovement{
				SessionID:     sessionID,
				Type:          domain.MovementCreditPayment,
				Amount:        alloc.Amount,
				PaymentMethod: paymentMethod,
				Description:   fmt.Sprintf("Abono cuota %d", lp.installment),
				Reference:     alloc.PaymentID,
				Notes:         notes,
				RecordedBy:    operator,
				CreatedAt:     at,
			}); err != nil {
				return nil, txError(err)
			}
		}
	}

	ids := make([]string, 0, len(allocations))
	for _, alloc := range allocations {
		ids = append(ids, alloc.PaymentID)
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT id, sale_id, installment_number, amount, paid_amount, status, due_date,
			paid_at, COALESCE(payment_method,''), COALESCE(transaction_reference,''),
			COALESCE(notes,''), created_at
		FROM payments
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, txError(err)
	}
	fetched, err := scanPayments(rows)
	rows.Close()
	if err != nil {
		return nil, txError(err)
	}
	byID := make(map[string]domain.Payment, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}
	for _, alloc := range allocations {
		updated = append(updated, byID[alloc.PaymentID])
	}

	if err := tx.Commit(); err != nil {
		return nil, txError(err)
	}
	return updated, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanPayments(rows *sql.Rows) ([]domain.Payment, error) {
	payments := make([]domain.Payment, 0, 16)
	for rows.Next() {
		var p domain.Payment
		var paidAt sql.NullTime
		if err := rows.Scan(
			&p.ID,
			&p.SaleID,
			&p.InstallmentNumber,
			&p.Amount,
			&p.PaidAmount,
			&p.Status,
			&p.DueDate,
			&paidAt,
			&p.PaymentMethod,
			&p.TransactionReference,
			&p.Notes,
			&p.CreatedAt,
		); err != nil {
			return nil, err
		}
		p.DueDate = p.DueDate.UTC()
		p.CreatedAt = p.CreatedAt.UTC()
		if paidAt.Valid {
			at := paidAt.Time.UTC()
			p.PaidAt = &at
		}
		p.Derive(time.Now().UTC())
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// txError maps serialization and deadlock failures from overlapping
// serializable transactions onto ErrConflict so the loser surfaces as
// a retryable conflict instead of a raw driver error.
func txError(err error) error {
	if isSerializationFailure(err) {
		return store.ErrConflict
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
