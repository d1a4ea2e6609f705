package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"ferrepos/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
)

// PaymentAllocation is one payment's share of a settlement, already
// validated against the installment's remaining amount by the caller.
type PaymentAllocation struct {
	PaymentID string
	Amount    decimal.Decimal
}

type Repository interface {
	CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)
	ListBranches(ctx context.Context) ([]domain.Branch, error)
	GetBranch(ctx context.Context, id string) (*domain.Branch, error)
	CreateRegister(ctx context.Context, register domain.CashRegister) (*domain.CashRegister, error)
	ListRegisters(ctx context.Context, branchID string) ([]domain.CashRegister, error)
	GetRegister(ctx context.Context, id string) (*domain.CashRegister, error)
	CreateSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error)
	GetSession(ctx context.Context, id string) (*domain.CashSession, error)
	ListSessions(ctx context.Context, registerID string, status string, limit int) ([]domain.CashSession, error)
	GetOpenSessionByRegister(ctx context.Context, registerID string) (*domain.CashSession, error)
	CloseSession(ctx context.Context, id string, actual decimal.Decimal, closingNotes string, closedAt time.Time) (*domain.CashSession, error)
	ReopenSession(ctx context.Context, id string) (*domain.CashSession, error)
	AppendMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error)
	ListMovements(ctx context.Context, sessionID string, movementType string, paymentMethod string) ([]domain.CashMovement, error)
	CreateSaleWithPayments(ctx context.Context, sale domain.Sale, payments []domain.Payment) (*domain.Sale, []domain.Payment, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListPaymentsBySale(ctx context.Context, saleID string) ([]domain.Payment, error)
	ListOutstandingPayments(ctx context.Context, branchID string, limit int) ([]domain.Payment, error)
	GetPaymentsByIDs(ctx context.Context, ids []string) (map[string]domain.Payment, error)
	ApplySettlement(ctx context.Context, allocations []PaymentAllocation, paymentMethod string, txRef string, notes string, sessionID string, operator string, at time.Time) ([]domain.Payment, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
