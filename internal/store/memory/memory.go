package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"ferrepos/backend/internal/domain"
	"ferrepos/backend/internal/store"
	"ferrepos/backend/internal/xid"
)

type Store struct {
	mu                 sync.RWMutex
	branchesByID       map[string]domain.Branch
	registersByID      map[string]domain.CashRegister
	sessionsByID       map[string]*domain.CashSession
	openSessionByReg   map[string]string
	movementsBySession map[string][]domain.CashMovement
	salesByID          map[string]domain.Sale
	paymentsByID       map[string]*domain.Payment
	paymentIDsBySale   map[string][]string
	auditLogs          []domain.AuditLog
	usersByUsername    map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	branch := domain.Branch{
		ID:        "branch-central",
		Name:      "Ferretería Central",
		Address:   "Av. Principal 742",
		CreatedAt: now,
	}
	defaultFloat := decimal.NewFromInt(100)
	registers := []domain.CashRegister{
		{ID: "reg-1", BranchID: branch.ID, Code: "caja-1", Name: "Caja 1", DefaultOpening: defaultFloat, Active: true, CreatedAt: now},
		{ID: "reg-2", BranchID: branch.ID, Code: "caja-2", Name: "Caja 2", DefaultOpening: defaultFloat, Active: true, CreatedAt: now},
		{ID: "reg-3", BranchID: branch.ID, Code: "mostrador", Name: "Mostrador", DefaultOpening: defaultFloat, Active: true, CreatedAt: now},
	}

	registerMap := make(map[string]domain.CashRegister, len(registers))
	for _, r := range registers {
		registerMap[r.ID] = r
	}

	return &Store{
		branchesByID:       map[string]domain.Branch{branch.ID: branch},
		registersByID:      registerMap,
		sessionsByID:       make(map[string]*domain.CashSession),
		openSessionByReg:   make(map[string]string),
		movementsBySession: make(map[string][]domain.CashMovement),
		salesByID:          make(map[string]domain.Sale),
		paymentsByID:       make(map[string]*domain.Payment),
		paymentIDsBySale:   make(map[string][]string),
		auditLogs:          make([]domain.AuditLog, 0, 128),
		usersByUsername:    seedUsers(),
	}
}

func (s *Store) CreateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
	if _, exists := s.branchesByID[branch.ID]; exists {
		return nil, store.ErrConflict
	}

	s.branchesByID[branch.ID] = branch
	created := branch
	return &created, nil
}

func (s *Store) ListBranches(_ context.Context) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branches := make([]domain.Branch, 0, len(s.branchesByID))
	for _, b := range s.branchesByID {
		branches = append(branches, b)
	}
	slices.SortFunc(branches, func(a, b domain.Branch) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return branches, nil
}

func (s *Store) GetBranch(_ context.Context, id string) (*domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branch, exists := s.branchesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyBranch := branch
	return &copyBranch, nil
}

func (s *Store) CreateRegister(_ context.Context, register domain.CashRegister) (*domain.CashRegister, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	register.Code = strings.ToLower(strings.TrimSpace(register.Code))
	register.Name = strings.TrimSpace(register.Name)
	if register.Code == "" || register.Name == "" || register.BranchID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.branchesByID[register.BranchID]; !exists {
		return nil, store.ErrNotFound
	}
	for _, existing := range s.registersByID {
		if existing.BranchID == register.BranchID && existing.Code == register.Code {
			return nil, store.ErrConflict
		}
	}
	if register.ID == "" {
		register.ID = xid.New("reg")
	}
	if register.CreatedAt.IsZero() {
		register.CreatedAt = time.Now().UTC()
	}
	register.Active = true

	s.registersByID[register.ID] = register
	created := register
	return &created, nil
}

func (s *Store) ListRegisters(_ context.Context, branchID string) ([]domain.CashRegister, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	registers := make([]domain.CashRegister, 0, len(s.registersByID))
	for _, r := range s.registersByID {
		if branchID != "" && r.BranchID != branchID {
			continue
		}
		registers = append(registers, r)
	}
	slices.SortFunc(registers, func(a, b domain.CashRegister) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
	return registers, nil
}

func (s *Store) GetRegister(_ context.Context, id string) (*domain.CashRegister, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	register, exists := s.registersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyRegister := register
	return &copyRegister, nil
}

func (s *Store) CreateSession(_ context.Context, session domain.CashSession) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.RegisterID == "" || strings.TrimSpace(session.Operator) == "" {
		return nil, store.ErrInvalidInput
	}
	if session.OpeningBalance.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	register, exists := s.registersByID[session.RegisterID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !register.Active {
		return nil, store.ErrInvalidState
	}
	if _, open := s.openSessionByReg[session.RegisterID]; open {
		return nil, store.ErrConflict
	}

	if session.ID == "" {
		session.ID = xid.New("ses")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.Status = domain.SessionStatusOpen
	session.ExpectedBalance = nil
	session.ActualBalance = nil
	session.Difference = nil
	session.ClosedAt = nil
	session.ClosingNotes = ""

	saved := cloneSession(&session)
	s.sessionsByID[session.ID] = saved
	s.openSessionByReg[session.RegisterID] = session.ID
	return cloneSession(saved), nil
}

func (s *Store) GetSession(_ context.Context, id string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSession(session), nil
}

func (s *Store) ListSessions(_ context.Context, registerID string, status string, limit int) ([]domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashSession, 0, len(s.sessionsByID))
	for _, session := range s.sessionsByID {
		if registerID != "" && session.RegisterID != registerID {
			continue
		}
		if status != "" && session.Status != status {
			continue
		}
		result = append(result, *cloneSession(session))
	}
	slices.SortFunc(result, func(a, b domain.CashSession) int {
		if a.OpenedAt.Equal(b.OpenedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.OpenedAt.After(b.OpenedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetOpenSessionByRegister(_ context.Context, registerID string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionID, exists := s.openSessionByReg[registerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	session, exists := s.sessionsByID[sessionID]
	if !exists || session.Status != domain.SessionStatusOpen {
		return nil, store.ErrNotFound
	}
	return cloneSession(session), nil
}

// CloseSession reconciles and closes an open session in one step. The
// expected balance is recomputed from the ledger under the same lock
// that flips the status, so no movement can slip in between.
func (s *Store) CloseSession(_ context.Context, id string, actual decimal.Decimal, closingNotes string, closedAt time.Time) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if actual.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	session, exists := s.sessionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if session.Status != domain.SessionStatusOpen {
		return nil, store.ErrInvalidState
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	income, outflow := domain.SumMovements(s.movementsBySession[id])
	expected := session.OpeningBalance.Add(income).Sub(outflow)
	difference := actual.Sub(expected)

	session.Status = domain.SessionStatusClosed
	session.ExpectedBalance = &expected
	session.ActualBalance = &actual
	session.Difference = &difference
	session.ClosingNotes = closingNotes
	session.ClosedAt = &closedAt

	delete(s.openSessionByReg, session.RegisterID)
	return cloneSession(session), nil
}

// ReopenSession puts a closed session back in the open state, wiping
// the reconciliation snapshot so the next close recomputes it.
func (s *Store) ReopenSession(_ context.Context, id string) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if session.Status != domain.SessionStatusClosed {
		return nil, store.ErrInvalidState
	}
	if _, open := s.openSessionByReg[session.RegisterID]; open {
		return nil, store.ErrConflict
	}

	session.Status = domain.SessionStatusOpen
	session.ExpectedBalance = nil
	session.ActualBalance = nil
	session.Difference = nil
	session.ClosingNotes = ""
	session.ClosedAt = nil

	s.openSessionByReg[session.RegisterID] = session.ID
	return cloneSession(session), nil
}

func (s *Store) AppendMovement(_ context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.appendMovementLocked(movement)
	if err != nil {
		return nil, err
	}
	copyMovement := *created
	return &copyMovement, nil
}

func (s *Store) appendMovementLocked(movement domain.CashMovement) (*domain.CashMovement, error) {
	if !domain.IsValidMovementType(movement.Type) {
		return nil, store.ErrInvalidInput
	}
	if !movement.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	session, exists := s.sessionsByID[movement.SessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if session.Status != domain.SessionStatusOpen {
		return nil, store.ErrInvalidState
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

	s.movementsBySession[movement.SessionID] = append(s.movementsBySession[movement.SessionID], movement)
	return &movement, nil
}

func (s *Store) ListMovements(_ context.Context, sessionID string, movementType string, paymentMethod string) ([]domain.CashMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.sessionsByID[sessionID]; !exists {
		return nil, store.ErrNotFound
	}

	movements := s.movementsBySession[sessionID]
	result := make([]domain.CashMovement, 0, len(movements))
	for _, m := range movements {
		if movementType != "" && m.Type != movementType {
			continue
		}
		if paymentMethod != "" && m.PaymentMethod != paymentMethod {
			continue
		}
		result = append(result, m)
	}
	slices.SortFunc(result, func(a, b domain.CashMovement) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) CreateSaleWithPayments(_ context.Context, sale domain.Sale, payments []domain.Payment) (*domain.Sale, []domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(sale.Customer) == "" || !sale.TotalAmount.IsPositive() || len(payments) == 0 {
		return nil, nil, store.ErrInvalidInput
	}
	if sale.BranchID != "" {
		if _, exists := s.branchesByID[sale.BranchID]; !exists {
			return nil, nil, store.ErrNotFound
		}
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

	saved := make([]domain.Payment, 0, len(payments))
	ids := make([]string, 0, len(payments))
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
		saved = append(saved, p)
		ids = append(ids, p.ID)
	}

	s.salesByID[sale.ID] = sale
	for i := range saved {
		p := saved[i]
		s.paymentsByID[p.ID] = &p
	}
	s.paymentIDsBySale[sale.ID] = ids

	createdSale := sale
	return &createdSale, saved, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySale := sale
	return &copySale, nil
}

func (s *Store) ListPaymentsBySale(_ context.Context, saleID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.salesByID[saleID]; !exists {
		return nil, store.ErrNotFound
	}

	today := time.Now().UTC()
	result := make([]domain.Payment, 0, len(s.paymentIDsBySale[saleID]))
	for _, id := range s.paymentIDsBySale[saleID] {
		if p, ok := s.paymentsByID[id]; ok {
			copyPayment := *p
			copyPayment.Derive(today)
			result = append(result, copyPayment)
		}
	}
	slices.SortFunc(result, func(a, b domain.Payment) int {
		return a.InstallmentNumber - b.InstallmentNumber
	})
	return result, nil
}

func (s *Store) ListOutstandingPayments(_ context.Context, branchID string, limit int) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	today := time.Now().UTC()
	result := make([]domain.Payment, 0, 64)
	for _, p := range s.paymentsByID {
		if branchID != "" {
			sale, ok := s.salesByID[p.SaleID]
			if !ok || sale.BranchID != branchID {
				continue
			}
		}
		if !p.Remaining().IsPositive() {
			continue
		}
		copyPayment := *p
		copyPayment.Derive(today)
		result = append(result, copyPayment)
	}
	slices.SortFunc(result, func(a, b domain.Payment) int {
		if a.DueDate.Equal(b.DueDate) {
			return cmpString(a.ID, b.ID)
		}
		if a.DueDate.Before(b.DueDate) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetPaymentsByIDs(_ context.Context, ids []string) (map[string]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	today := time.Now().UTC()
	result := make(map[string]domain.Payment, len(ids))
	for _, id := range ids {
		if p, ok := s.paymentsByID[id]; ok {
			copyPayment := *p
			copyPayment.Derive(today)
			result[id] = copyPayment
		}
	}
	return result, nil
}

// ApplySettlement mutates every allocated payment, or none of them. All
// allocations are validated before the first write, and when a session
// is supplied a credit_payment movement is appended per payment under
// the same lock.
func (s *Store) ApplySettlement(_ context.Context, allocations []store.PaymentAllocation, paymentMethod string, txRef string, notes string, sessionID string, operator string, at time.Time) ([]domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(allocations) == 0 {
		return nil, store.ErrInvalidInput
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	seen := make(map[string]struct{}, len(allocations))
	for _, alloc := range allocations {
		if _, dup := seen[alloc.PaymentID]; dup {
			return nil, store.ErrInvalidInput
		}
		seen[alloc.PaymentID] = struct{}{}
		if !alloc.Amount.IsPositive() {
			return nil, store.ErrInvalidInput
		}
		payment, exists := s.paymentsByID[alloc.PaymentID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if !payment.Remaining().IsPositive() {
			return nil, store.ErrConflict
		}
		if alloc.Amount.GreaterThan(payment.Remaining()) {
			return nil, store.ErrInvalidInput
		}
	}

	if sessionID != "" {
		session, exists := s.sessionsByID[sessionID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if session.Status != domain.SessionStatusOpen {
			return nil, store.ErrInvalidState
		}
	}

	updated := make([]domain.Payment, 0, len(allocations))
	for _, alloc := range allocations {
		payment := s.paymentsByID[alloc.PaymentID]
		payment.PaidAmount = payment.PaidAmount.Add(alloc.Amount)
		payment.Derive(at)
		// Method and reference belong to the receipt that pays the
		// installment off; partial allocations leave them unset.
		if payment.Status == domain.PaymentStatusPaid {
			paidAt := at
			payment.PaidAt = &paidAt
			payment.PaymentMethod = paymentMethod
			payment.TransactionReference = txRef
		}
		if notes != "" {
			payment.Notes = notes
		}

		if sessionID != "" {
			if _, err := s.appendMovementLocked(domain.CashMovement{
				SessionID:     sessionID,
				Type:          domain.MovementCreditPayment,
				Amount:        alloc.Amount,
				PaymentMethod: paymentMethod,
				Description:   fmt.Sprintf("Abono cuota %d", payment.InstallmentNumber),
				Reference:     payment.ID,
				Notes:         notes,
				RecordedBy:    operator,
				CreatedAt:     at,
			}); err != nil {
				return nil, err
			}
		}

		copyPayment := *payment
		updated = append(updated, copyPayment)
	}

	return updated, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSession(src *domain.CashSession) *domain.CashSession {
	if src == nil {
		return nil
	}
	dup := *src
	if src.ExpectedBalance != nil {
		expected := *src.ExpectedBalance
		dup.ExpectedBalance = &expected
	}
	if src.ActualBalance != nil {
		actual := *src.ActualBalance
		dup.ActualBalance = &actual
	}
	if src.Difference != nil {
		diff := *src.Difference
		dup.Difference = &diff
	}
	if src.ClosedAt != nil {
		closedAt := *src.ClosedAt
		dup.ClosedAt = &closedAt
	}
	return &dup
}
