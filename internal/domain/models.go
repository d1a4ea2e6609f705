package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Branch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type BranchCreateRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type CashRegister struct {
	ID             string          `json:"id"`
	BranchID       string          `json:"branch_id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	DefaultOpening decimal.Decimal `json:"default_opening"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
}

type RegisterCreateRequest struct {
	BranchID       string           `json:"branch_id"`
	Code           string           `json:"code"`
	Name           string           `json:"name"`
	DefaultOpening *decimal.Decimal `json:"default_opening"`
}

const (
	SessionStatusOpen   = "open"
	SessionStatusClosed = "closed"
)

// CashSession is one operator turn at a register. Expected balance,
// actual balance and difference are only set once the session closes.
type CashSession struct {
	ID              string           `json:"id"`
	RegisterID      string           `json:"register_id"`
	Operator        string           `json:"operator"`
	Status          string           `json:"status"`
	OpeningBalance  decimal.Decimal  `json:"opening_balance"`
	ExpectedBalance *decimal.Decimal `json:"expected_balance,omitempty"`
	ActualBalance   *decimal.Decimal `json:"actual_balance,omitempty"`
	Difference      *decimal.Decimal `json:"difference,omitempty"`
	OpeningNotes    string           `json:"opening_notes,omitempty"`
	ClosingNotes    string           `json:"closing_notes,omitempty"`
	OpenedAt        time.Time        `json:"opened_at"`
	ClosedAt        *time.Time       `json:"closed_at,omitempty"`
}

type SessionOpenRequest struct {
	RegisterID     string           `json:"register_id"`
	OpeningBalance *decimal.Decimal `json:"opening_balance"`
	Notes          string           `json:"notes"`
}

type SessionCloseRequest struct {
	SessionID     string           `json:"session_id"`
	ActualBalance *decimal.Decimal `json:"actual_balance"`
	Notes         string           `json:"notes"`
}

type SessionReopenRequest struct {
	SessionID  string `json:"session_id"`
	ManagerPIN string `json:"manager_pin"`
}

type SessionResponse struct {
	Session CashSession `json:"session"`
}

type SessionListResponse struct {
	Sessions []CashSession `json:"sessions"`
}

const (
	MovementSale          = "sale"
	MovementCreditPayment = "credit_payment"
	MovementIncome        = "income"
	MovementExpense       = "expense"
	MovementTransferIn    = "transfer_in"
	MovementTransferOut   = "transfer_out"
	MovementPurchase      = "purchase"
	MovementAdjustment    = "adjustment"
)

// movementTypes maps each valid movement type to whether it counts as
// income (true) or outflow (false) when reconciling a session.
var movementTypes = map[string]bool{
	MovementSale:          true,
	MovementCreditPayment: true,
	MovementIncome:        true,
	MovementTransferIn:    true,
	MovementExpense:       false,
	MovementTransferOut:   false,
	MovementPurchase:      false,
	MovementAdjustment:    false,
}

func IsValidMovementType(t string) bool {
	_, ok := movementTypes[t]
	return ok
}

func IsIncomeMovement(t string) bool {
	return movementTypes[t]
}

type CashMovement struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Description   string          `json:"description"`
	Reference     string          `json:"reference,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	RecordedBy    string          `json:"recorded_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

type MovementRecordRequest struct {
	SessionID     string           `json:"session_id"`
	Type          string           `json:"type"`
	Amount        *decimal.Decimal `json:"amount"`
	PaymentMethod string           `json:"payment_method"`
	Description   string           `json:"description"`
	Reference     string           `json:"reference"`
	Notes         string           `json:"notes"`
}

type MovementResponse struct {
	Movement CashMovement `json:"movement"`
}

type MovementListResponse struct {
	Movements []CashMovement `json:"movements"`
}

// SumMovements splits a movement list into income and outflow totals.
func SumMovements(movements []CashMovement) (income, outflow decimal.Decimal) {
	for _, m := range movements {
		if IsIncomeMovement(m.Type) {
			income = income.Add(m.Amount)
		} else {
			outflow = outflow.Add(m.Amount)
		}
	}
	return income, outflow
}

type MovementTypeTotal struct {
	Type  string          `json:"type"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

type PaymentMethodTotal struct {
	PaymentMethod string          `json:"payment_method"`
	Count         int             `json:"count"`
	Total         decimal.Decimal `json:"total"`
}

type SessionSummary struct {
	Session         CashSession          `json:"session"`
	TotalIncome     decimal.Decimal      `json:"total_income"`
	TotalOutflow    decimal.Decimal      `json:"total_outflow"`
	ExpectedBalance decimal.Decimal      `json:"expected_balance"`
	MovementCount   int                  `json:"movement_count"`
	ByType          []MovementTypeTotal  `json:"by_type"`
	ByPayment       []PaymentMethodTotal `json:"by_payment"`
}

type SessionSummaryResponse struct {
	Summary SessionSummary `json:"summary"`
}

type Sale struct {
	ID          string          `json:"id"`
	BranchID    string          `json:"branch_id"`
	Customer    string          `json:"customer"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	SaleType    string          `json:"sale_type"`
	Notes       string          `json:"notes,omitempty"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

const (
	PaymentStatusPending = "pending"
	PaymentStatusPartial = "partial"
	PaymentStatusPaid    = "paid"
	PaymentStatusOverdue = "overdue"
)

type Payment struct {
	ID                   string           `json:"id"`
	SaleID               string           `json:"sale_id"`
	InstallmentNumber    int              `json:"installment_number"`
	Amount               decimal.Decimal  `json:"amount"`
	PaidAmount           decimal.Decimal  `json:"paid_amount"`
	Status               string           `json:"status"`
	DueDate              time.Time        `json:"due_date"`
	PaidAt               *time.Time       `json:"paid_at,omitempty"`
	PaymentMethod        string           `json:"payment_method,omitempty"`
	TransactionReference string           `json:"transaction_reference,omitempty"`
	Notes                string           `json:"notes,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
}

// Remaining is how much of the installment is still owed.
func (p *Payment) Remaining() decimal.Decimal {
	return p.Amount.Sub(p.PaidAmount)
}

// DerivePaymentStatus computes an installment's status from its amounts
// and due date. Stored status is a snapshot; reads re-derive.
func DerivePaymentStatus(amount, paid decimal.Decimal, dueDate, today time.Time) string {
	if amount.Sub(paid).LessThanOrEqual(decimal.Zero) {
		return PaymentStatusPaid
	}
	if truncateDay(dueDate).Before(truncateDay(today)) {
		return PaymentStatusOverdue
	}
	if paid.IsPositive() {
		return PaymentStatusPartial
	}
	return PaymentStatusPending
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Derive refreshes the payment's status field in place.
func (p *Payment) Derive(today time.Time) {
	p.Status = DerivePaymentStatus(p.Amount, p.PaidAmount, p.DueDate, today)
}

type CreditSaleCreateRequest struct {
	BranchID     string           `json:"branch_id"`
	Customer     string           `json:"customer"`
	TotalAmount  *decimal.Decimal `json:"total_amount"`
	Installments int              `json:"installments"`
	FirstDueDate string           `json:"first_due_date"`
	IntervalDays int              `json:"interval_days"`
	Notes        string           `json:"notes"`
}

type CreditSaleResponse struct {
	Sale     Sale      `json:"sale"`
	Payments []Payment `json:"payments"`
}

type PaymentListResponse struct {
	Payments []Payment `json:"payments"`
}

type SettleMultipleRequest struct {
	PaymentIDs           []string                   `json:"payment_ids"`
	PaymentAmounts       map[string]decimal.Decimal `json:"payment_amounts"`
	ReceivedAmount       *decimal.Decimal           `json:"received_amount"`
	PaymentMethod        string                     `json:"payment_method"`
	TransactionReference string                     `json:"transaction_reference"`
	Notes                string                     `json:"notes"`
	SessionID            string                     `json:"session_id"`
}

type SettleSingleRequest struct {
	Amount               *decimal.Decimal `json:"amount"`
	ReceivedAmount       *decimal.Decimal `json:"received_amount"`
	PaymentMethod        string           `json:"payment_method"`
	TransactionReference string           `json:"transaction_reference"`
	Notes                string           `json:"notes"`
	SessionID            string           `json:"session_id"`
}

type SettlementResponse struct {
	ProcessedCount int             `json:"processed_count"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ChangeAmount   decimal.Decimal `json:"change_amount"`
	Payments       []Payment       `json:"payments"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
