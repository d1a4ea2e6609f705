package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ferrepos/backend/internal/cache"
	"ferrepos/backend/internal/domain"
	"ferrepos/backend/internal/store"
	"ferrepos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Options carries settlement policy and summary cache tuning.
type Options struct {
	SummaryTTL      time.Duration
	RejectUnderpaid bool
	RequireSession  bool
}

type Service struct {
	repo            store.Repository
	summaries       cache.SummaryCache
	summaryTTL      time.Duration
	rejectUnderpaid bool
	requireSession  bool
}

func New(repo store.Repository, summaries cache.SummaryCache, opts Options) *Service {
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	if opts.SummaryTTL <= 0 {
		opts.SummaryTTL = 30 * time.Second
	}

	return &Service{
		repo:            repo,
		summaries:       summaries,
		summaryTTL:      opts.SummaryTTL,
		rejectUnderpaid: opts.RejectUnderpaid,
		requireSession:  opts.RequireSession,
	}
}

func (s *Service) CreateBranch(ctx context.Context, req domain.BranchCreateRequest) (domain.Branch, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Branch{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	if req.Name == "" {
		return domain.Branch{}, store.ErrInvalidInput
	}

	branch := domain.Branch{
		ID:        xid.New("br"),
		Name:      req.Name,
		Address:   req.Address,
		CreatedAt: time.Now().UTC(),
	}
	saved, err := s.repo.CreateBranch(ctx, branch)
	if err != nil {
		return domain.Branch{}, err
	}

	s.logAudit(ctx, "branch_create", "branch", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	return s.repo.ListBranches(ctx)
}

func (s *Service) CreateRegister(ctx context.Context, req domain.RegisterCreateRequest) (domain.CashRegister, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.CashRegister{}, fmt.Errorf("admin role required")
	}

	req.BranchID = strings.TrimSpace(req.BranchID)
	req.Code = strings.ToLower(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	if req.BranchID == "" || req.Code == "" || req.Name == "" {
		return domain.CashRegister{}, store.ErrInvalidInput
	}

	defaultOpening := decimal.Zero
	if req.DefaultOpening != nil {
		if req.DefaultOpening.IsNegative() {
			return domain.CashRegister{}, store.ErrInvalidInput
		}
		defaultOpening = *req.DefaultOpening
	}

	if _, err := s.repo.GetBranch(ctx, req.BranchID); err != nil {
		return domain.CashRegister{}, err
	}

	register := domain.CashRegister{
		ID:             xid.New("reg"),
		BranchID:       req.BranchID,
		Code:           req.Code,
		Name:           req.Name,
		DefaultOpening: defaultOpening,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}
	saved, err := s.repo.CreateRegister(ctx, register)
	if err != nil {
		return domain.CashRegister{}, err
	}

	s.logAudit(ctx, "register_create", "register", saved.ID, fmt.Sprintf("branch=%s,code=%s", saved.BranchID, saved.Code))
	return *saved, nil
}

func (s *Service) ListRegisters(ctx context.Context, branchID string) ([]domain.CashRegister, error) {
	return s.repo.ListRegisters(ctx, strings.TrimSpace(branchID))
}

func (s *Service) OpenSession(ctx context.Context, req domain.SessionOpenRequest) (domain.SessionResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SessionResponse{}, fmt.Errorf("authenticated operator required")
	}

	req.RegisterID = strings.TrimSpace(req.RegisterID)
	if req.RegisterID == "" {
		return domain.SessionResponse{}, store.ErrInvalidInput
	}

	// An omitted opening balance falls back to the register's configured
	// default float.
	opening := decimal.Zero
	if req.OpeningBalance != nil {
		if req.OpeningBalance.IsNegative() {
			return domain.SessionResponse{}, store.ErrInvalidInput
		}
		opening = *req.OpeningBalance
	} else {
		register, err := s.repo.GetRegister(ctx, req.RegisterID)
		if err != nil {
			return domain.SessionResponse{}, err
		}
		opening = register.DefaultOpening
	}

	session := domain.CashSession{
		RegisterID:     req.RegisterID,
		Operator:       actor.Username,
		Status:         domain.SessionStatusOpen,
		OpeningBalance: opening,
		OpeningNotes:   strings.TrimSpace(req.Notes),
		OpenedAt:       time.Now().UTC(),
	}
	saved, err := s.repo.CreateSession(ctx, session)
	if err != nil {
		return domain.SessionResponse{}, err
	}

	s.logAudit(ctx, "session_open", "session", saved.ID, fmt.Sprintf("register=%s,opening=%s", saved.RegisterID, saved.OpeningBalance.StringFixed(2)))
	return domain.SessionResponse{Session: *saved}, nil
}

func (s *Service) CloseSession(ctx context.Context, req domain.SessionCloseRequest) (domain.SessionResponse, error) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" || req.ActualBalance == nil {
		return domain.SessionResponse{}, store.ErrInvalidInput
	}
	if req.ActualBalance.IsNegative() {
		return domain.SessionResponse{}, store.ErrInvalidInput
	}

	closed, err := s.repo.CloseSession(ctx, req.SessionID, *req.ActualBalance, strings.TrimSpace(req.Notes), time.Now().UTC())
	if err != nil {
		return domain.SessionResponse{}, err
	}
	s.invalidateSummary(ctx, closed.ID)

	difference := "0.00"
	if closed.Difference != nil {
		difference = closed.Difference.StringFixed(2)
	}
	s.logAudit(ctx, "session_close", "session", closed.ID, fmt.Sprintf("actual=%s,difference=%s", req.ActualBalance.StringFixed(2), difference))

	return domain.SessionResponse{Session: *closed}, nil
}

// ReopenSession flips a closed session back to open and discards the
// close-time snapshot. The HTTP layer gates this behind the manager PIN.
func (s *Service) ReopenSession(ctx context.Context, sessionID string) (domain.SessionResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.SessionResponse{}, fmt.Errorf("admin role required")
	}

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.SessionResponse{}, store.ErrInvalidInput
	}

	reopened, err := s.repo.ReopenSession(ctx, sessionID)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	s.invalidateSummary(ctx, reopened.ID)

	s.logAudit(ctx, "session_reopen", "session", reopened.ID, fmt.Sprintf("register=%s", reopened.RegisterID))
	return domain.SessionResponse{Session: *reopened}, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (domain.SessionResponse, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.SessionResponse{}, store.ErrInvalidInput
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	return domain.SessionResponse{Session: *session}, nil
}

func (s *Service) ListSessions(ctx context.Context, registerID string, status string, limit int) (domain.SessionListResponse, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && status != domain.SessionStatusOpen && status != domain.SessionStatusClosed {
		return domain.SessionListResponse{}, store.ErrInvalidInput
	}
	if limit < 1 {
		limit = 50
	}

	sessions, err := s.repo.ListSessions(ctx, strings.TrimSpace(registerID), status, limit)
	if err != nil {
		return domain.SessionListResponse{}, err
	}
	return domain.SessionListResponse{Sessions: sessions}, nil
}

func (s *Service) GetOpenSession(ctx context.Context, registerID string) (domain.SessionResponse, error) {
	registerID = strings.TrimSpace(registerID)
	if registerID == "" {
		return domain.SessionResponse{}, store.ErrInvalidInput
	}

	session, err := s.repo.GetOpenSessionByRegister(ctx, registerID)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	return domain.SessionResponse{Session: *session}, nil
}

func (s *Service) RecordMovement(ctx context.Context, req domain.MovementRecordRequest) (domain.MovementResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.MovementResponse{}, fmt.Errorf("authenticated operator required")
	}

	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Type = strings.ToLower(strings.TrimSpace(req.Type))
	req.Description = strings.TrimSpace(req.Description)
	if req.SessionID == "" || req.Amount == nil || !req.Amount.IsPositive() || req.Description == "" {
		return domain.MovementResponse{}, store.ErrInvalidInput
	}
	if !domain.IsValidMovementType(req.Type) {
		return domain.MovementResponse{}, store.ErrInvalidInput
	}

	movement := domain.CashMovement{
		SessionID:     req.SessionID,
		Type:          req.Type,
		Amount:        *req.Amount,
		PaymentMethod: strings.ToLower(strings.TrimSpace(req.PaymentMethod)),
		Description:   req.Description,
		Reference:     strings.TrimSpace(req.Reference),
		Notes:         strings.TrimSpace(req.Notes),
		RecordedBy:    actor.Username,
		CreatedAt:     time.Now().UTC(),
	}
	saved, err := s.repo.AppendMovement(ctx, movement)
	if err != nil {
		return domain.MovementResponse{}, err
	}
	s.invalidateSummary(ctx, saved.SessionID)

	s.logAudit(ctx, "movement_record", "movement", saved.ID, fmt.Sprintf("session=%s,type=%s,amount=%s", saved.SessionID, saved.Type, saved.Amount.StringFixed(2)))
	return domain.MovementResponse{Movement: *saved}, nil
}

func (s *Service) ListMovements(ctx context.Context, sessionID string, movementType string, paymentMethod string) (domain.MovementListResponse, error) {
	sessionID = strings.TrimSpace(sessionID)
	movementType = strings.ToLower(strings.TrimSpace(movementType))
	if sessionID == "" {
		return domain.MovementListResponse{}, store.ErrInvalidInput
	}
	if movementType != "" && !domain.IsValidMovementType(movementType) {
		return domain.MovementListResponse{}, store.ErrInvalidInput
	}

	movements, err := s.repo.ListMovements(ctx, sessionID, movementType, strings.ToLower(strings.TrimSpace(paymentMethod)))
	if err != nil {
		return domain.MovementListResponse{}, err
	}
	return domain.MovementListResponse{Movements: movements}, nil
}

func (s *Service) GetSessionSummary(ctx context.Context, sessionID string) (domain.SessionSummaryResponse, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.SessionSummaryResponse{}, store.ErrInvalidInput
	}

	key := summaryCacheKey(sessionID)
	if cached, ok, err := s.summaries.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: summary cache read session=%s: %v", sessionID, err)
	} else if ok {
		return domain.SessionSummaryResponse{Summary: *cached}, nil
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SessionSummaryResponse{}, err
	}
	movements, err := s.repo.ListMovements(ctx, sessionID, "", "")
	if err != nil {
		return domain.SessionSummaryResponse{}, err
	}

	income, outflow := domain.SumMovements(movements)
	summary := domain.SessionSummary{
		Session:         *session,
		TotalIncome:     income,
		TotalOutflow:    outflow,
		ExpectedBalance: session.OpeningBalance.Add(income).Sub(outflow),
		MovementCount:   len(movements),
		ByType:          totalsByType(movements),
		ByPayment:       totalsByPayment(movements),
	}

	if err := s.summaries.Set(ctx, key, &summary, s.summaryTTL); err != nil {
		log.Printf("[service] WARN: summary cache write session=%s: %v", sessionID, err)
	}

	return domain.SessionSummaryResponse{Summary: summary}, nil
}

func (s *Service) CreateCreditSale(ctx context.Context, req domain.CreditSaleCreateRequest) (domain.CreditSaleResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CreditSaleResponse{}, fmt.Errorf("authenticated operator required")
	}

	req.Customer = strings.TrimSpace(req.Customer)
	req.BranchID = strings.TrimSpace(req.BranchID)
	if req.Customer == "" || req.TotalAmount == nil || !req.TotalAmount.IsPositive() {
		return domain.CreditSaleResponse{}, store.ErrInvalidInput
	}
	if req.Installments < 1 {
		req.Installments = 1
	}
	if req.Installments > 60 {
		return domain.CreditSaleResponse{}, store.ErrInvalidInput
	}
	if req.IntervalDays < 1 {
		req.IntervalDays = 30
	}

	firstDue, err := time.Parse("2006-01-02", strings.TrimSpace(req.FirstDueDate))
	if err != nil {
		return domain.CreditSaleResponse{}, store.ErrInvalidInput
	}
	firstDue = firstDue.UTC()

	amounts, err := splitInstallments(*req.TotalAmount, req.Installments)
	if err != nil {
		return domain.CreditSaleResponse{}, err
	}

	payments := make([]domain.Payment, 0, len(amounts))
	for i, amount := range amounts {
		payments = append(payments, domain.Payment{
			InstallmentNumber: i + 1,
			Amount:            amount,
			Status:            domain.PaymentStatusPending,
			DueDate:           firstDue.AddDate(0, 0, i*req.IntervalDays),
		})
	}

	sale := domain.Sale{
		BranchID:    req.BranchID,
		Customer:    req.Customer,
		TotalAmount: *req.TotalAmount,
		SaleType:    "credit",
		Notes:       strings.TrimSpace(req.Notes),
		CreatedBy:   actor.Username,
		CreatedAt:   time.Now().UTC(),
	}
	savedSale, savedPayments, err := s.repo.CreateSaleWithPayments(ctx, sale, payments)
	if err != nil {
		return domain.CreditSaleResponse{}, err
	}

	s.logAudit(ctx, "credit_sale_create", "sale", savedSale.ID, fmt.Sprintf("customer=%s,total=%s,installments=%d", savedSale.Customer, savedSale.TotalAmount.StringFixed(2), len(savedPayments)))
	return domain.CreditSaleResponse{Sale: *savedSale, Payments: savedPayments}, nil
}

func (s *Service) GetCreditSale(ctx context.Context, saleID string) (domain.CreditSaleResponse, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.CreditSaleResponse{}, store.ErrInvalidInput
	}

	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.CreditSaleResponse{}, err
	}
	payments, err := s.repo.ListPaymentsBySale(ctx, saleID)
	if err != nil {
		return domain.CreditSaleResponse{}, err
	}
	return domain.CreditSaleResponse{Sale: *sale, Payments: payments}, nil
}

func (s *Service) ListOutstandingPayments(ctx context.Context, branchID string, limit int) (domain.PaymentListResponse, error) {
	if limit < 1 {
		limit = 100
	}

	payments, err := s.repo.ListOutstandingPayments(ctx, strings.TrimSpace(branchID), limit)
	if err != nil {
		return domain.PaymentListResponse{}, err
	}
	return domain.PaymentListResponse{Payments: payments}, nil
}

// SettleMultiple applies one received amount across several installments.
// The whole batch commits or none of it does.
func (s *Service) SettleMultiple(ctx context.Context, req domain.SettleMultipleRequest) (domain.SettlementResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SettlementResponse{}, fmt.Errorf("authenticated operator required")
	}

	ids := make([]string, 0, len(req.PaymentIDs))
	for _, id := range req.PaymentIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return domain.SettlementResponse{}, store.ErrInvalidInput
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return domain.SettlementResponse{}, store.ErrInvalidInput
	}

	current, err := s.repo.GetPaymentsByIDs(ctx, ids)
	if err != nil {
		return domain.SettlementResponse{}, err
	}

	allocations := make([]store.PaymentAllocation, 0, len(ids))
	total := decimal.Zero
	for _, id := range ids {
		payment, exists := current[id]
		if !exists {
			return domain.SettlementResponse{}, store.ErrNotFound
		}
		if !payment.Remaining().IsPositive() {
			return domain.SettlementResponse{}, store.ErrConflict
		}

		amount, ok := req.PaymentAmounts[id]
		if !ok || !amount.IsPositive() || amount.GreaterThan(payment.Remaining()) {
			return domain.SettlementResponse{}, store.ErrInvalidInput
		}

		allocations = append(allocations, store.PaymentAllocation{PaymentID: id, Amount: amount})
		total = total.Add(amount)
	}

	change := decimal.Zero
	if req.ReceivedAmount != nil {
		change = req.ReceivedAmount.Sub(total)
		if change.IsNegative() {
			if s.rejectUnderpaid {
				return domain.SettlementResponse{}, store.ErrInvalidInput
			}
			change = decimal.Zero
		}
	}

	sessionID, err := s.resolveSettlementSession(ctx, req.SessionID)
	if err != nil {
		return domain.SettlementResponse{}, err
	}

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = "cash"
	}

	settled, err := s.repo.ApplySettlement(ctx, allocations, method, strings.TrimSpace(req.TransactionReference), strings.TrimSpace(req.Notes), sessionID, actor.Username, time.Now().UTC())
	if err != nil {
		return domain.SettlementResponse{}, err
	}
	if sessionID != "" {
		s.invalidateSummary(ctx, sessionID)
	}

	s.logAudit(ctx, "payments_settle", "settlement", xid.New("stl"), fmt.Sprintf("count=%d,total=%s,change=%s,session=%s", len(settled), total.StringFixed(2), change.StringFixed(2), sessionID))

	return domain.SettlementResponse{
		ProcessedCount: len(settled),
		TotalAmount:    total,
		ChangeAmount:   change,
		Payments:       settled,
	}, nil
}

// SettleSingle is the one-installment convenience form of SettleMultiple.
// Without an explicit amount it allocates the full remaining balance.
func (s *Service) SettleSingle(ctx context.Context, paymentID string, req domain.SettleSingleRequest) (domain.SettlementResponse, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return domain.SettlementResponse{}, store.ErrInvalidInput
	}

	current, err := s.repo.GetPaymentsByIDs(ctx, []string{paymentID})
	if err != nil {
		return domain.SettlementResponse{}, err
	}
	payment, exists := current[paymentID]
	if !exists {
		return domain.SettlementResponse{}, store.ErrNotFound
	}
	if !payment.Remaining().IsPositive() {
		return domain.SettlementResponse{}, store.ErrConflict
	}

	amount := payment.Remaining()
	if req.Amount != nil {
		amount = *req.Amount
	}

	return s.SettleMultiple(ctx, domain.SettleMultipleRequest{
		PaymentIDs:           []string{paymentID},
		PaymentAmounts:       map[string]decimal.Decimal{paymentID: amount},
		ReceivedAmount:       req.ReceivedAmount,
		PaymentMethod:        req.PaymentMethod,
		TransactionReference: req.TransactionReference,
		Notes:                req.Notes,
		SessionID:            req.SessionID,
	})
}

// resolveSettlementSession decides which session, if any, receives the
// settlement's ledger movements. When the session is not open the strict
// policy rejects the batch; the lenient one settles without ledger entries.
func (s *Service) resolveSettlementSession(ctx context.Context, sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		if s.requireSession {
			return "", store.ErrInvalidState
		}
		return "", nil
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session.Status != domain.SessionStatusOpen {
		if s.requireSession {
			return "", store.ErrInvalidState
		}
		return "", nil
	}
	return sessionID, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidInput
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// splitInstallments divides a total into n two-decimal parts, putting any
// rounding remainder on the last installment.
func splitInstallments(total decimal.Decimal, n int) ([]decimal.Decimal, error) {
	per := total.DivRound(decimal.NewFromInt(int64(n)), 2)
	last := total.Sub(per.Mul(decimal.NewFromInt(int64(n - 1))))
	if !per.IsPositive() || !last.IsPositive() {
		return nil, store.ErrInvalidInput
	}

	amounts := make([]decimal.Decimal, n)
	for i := 0; i < n-1; i++ {
		amounts[i] = per
	}
	amounts[n-1] = last
	return amounts, nil
}

func totalsByType(movements []domain.CashMovement) []domain.MovementTypeTotal {
	acc := make(map[string]*domain.MovementTypeTotal, 8)
	for _, m := range movements {
		entry, exists := acc[m.Type]
		if !exists {
			entry = &domain.MovementTypeTotal{Type: m.Type}
			acc[m.Type] = entry
		}
		entry.Count++
		entry.Total = entry.Total.Add(m.Amount)
	}

	totals := make([]domain.MovementTypeTotal, 0, len(acc))
	for _, entry := range acc {
		totals = append(totals, *entry)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Type < totals[j].Type })
	return totals
}

func totalsByPayment(movements []domain.CashMovement) []domain.PaymentMethodTotal {
	acc := make(map[string]*domain.PaymentMethodTotal, 4)
	for _, m := range movements {
		entry, exists := acc[m.PaymentMethod]
		if !exists {
			entry = &domain.PaymentMethodTotal{PaymentMethod: m.PaymentMethod}
			acc[m.PaymentMethod] = entry
		}
		entry.Count++
		entry.Total = entry.Total.Add(m.Amount)
	}

	totals := make([]domain.PaymentMethodTotal, 0, len(acc))
	for _, entry := range acc {
		totals = append(totals, *entry)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].PaymentMethod < totals[j].PaymentMethod })
	return totals
}

func summaryCacheKey(sessionID string) string {
	return "session-summary:" + sessionID
}

func (s *Service) invalidateSummary(ctx context.Context, sessionID string) {
	if err := s.summaries.Invalidate(ctx, summaryCacheKey(sessionID)); err != nil {
		log.Printf("[service] WARN: summary cache invalidate session=%s: %v", sessionID, err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
