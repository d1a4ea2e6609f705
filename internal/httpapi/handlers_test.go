package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ferrepos/backend/internal/cache"
	"ferrepos/backend/internal/domain"
	"ferrepos/backend/internal/service"
	"ferrepos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopSummaryCache{}, service.Options{})
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo)

	return New(svc, auth, "*")
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

// doJSON performs an authenticated JSON request against the API and decodes
// the response body into dest when dest is non-nil.
func doJSON(t *testing.T, api *API, method, path, token, csrf string, payload any, dest any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if dest != nil && rec.Code < 300 {
		if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return rec
}

func openSessionViaAPI(t *testing.T, api *API, token, csrf, registerID, opening string) domain.CashSession {
	t.Helper()

	var resp domain.SessionResponse
	rec := doJSON(t, api, http.MethodPost, "/api/v1/sessions/open", token, csrf, map[string]any{
		"register_id":     registerID,
		"opening_balance": opening,
	}, &resp)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open session returned %d: %s", rec.Code, rec.Body.String())
	}
	return resp.Session
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "admin123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["access_token"] == "" || body["access_token"] == nil {
		t.Fatalf("expected access_token in response, got %v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleSessions_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	session := openSessionViaAPI(t, api, token, csrf, "reg-1", "100.00")

	// Second open on the same register conflicts.
	rec := doJSON(t, api, http.MethodPost, "/api/v1/sessions/open", token, csrf, map[string]any{
		"register_id":     "reg-1",
		"opening_balance": "20.00",
	}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate open, got %d: %s", rec.Code, rec.Body.String())
	}

	var current domain.SessionResponse
	rec = doJSON(t, api, http.MethodGet, "/api/v1/registers/reg-1/session", token, "", nil, &current)
	if rec.Code != http.StatusOK {
		t.Fatalf("open session lookup returned %d: %s", rec.Code, rec.Body.String())
	}
	if current.Session.ID != session.ID {
		t.Fatalf("expected open session %s for register, got %s", session.ID, current.Session.ID)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/movements", token, csrf, map[string]any{
		"session_id":  session.ID,
		"type":        "sale",
		"amount":      "250.00",
		"description": "venta mostrador",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("record movement returned %d: %s", rec.Code, rec.Body.String())
	}

	var closeResp domain.SessionResponse
	rec = doJSON(t, api, http.MethodPost, "/api/v1/sessions/close", token, csrf, map[string]any{
		"session_id":     session.ID,
		"actual_balance": "350.00",
	}, &closeResp)
	if rec.Code != http.StatusOK {
		t.Fatalf("close session returned %d: %s", rec.Code, rec.Body.String())
	}
	if closeResp.Session.Difference == nil || !closeResp.Session.Difference.IsZero() {
		t.Fatalf("expected zero difference, got %v", closeResp.Session.Difference)
	}

	// Further movements are rejected with 422.
	rec = doJSON(t, api, http.MethodPost, "/api/v1/movements", token, csrf, map[string]any{
		"session_id":  session.ID,
		"type":        "expense",
		"amount":      "5.00",
		"description": "compra insumos",
	}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for movement on closed session, got %d", rec.Code)
	}

	var reopenResp domain.SessionResponse
	rec = doJSON(t, api, http.MethodPost, "/api/v1/sessions/"+session.ID+"/reopen", token, csrf, map[string]any{
		"manager_pin": "123456",
	}, &reopenResp)
	if rec.Code != http.StatusOK {
		t.Fatalf("reopen returned %d: %s", rec.Code, rec.Body.String())
	}
	if reopenResp.Session.Status != domain.SessionStatusOpen {
		t.Fatalf("expected reopened session, got %s", reopenResp.Session.Status)
	}
}

func TestReopenRejectsWrongManagerPIN(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	session := openSessionViaAPI(t, api, token, csrf, "reg-2", "50.00")
	rec := doJSON(t, api, http.MethodPost, "/api/v1/sessions/close", token, csrf, map[string]any{
		"session_id":     session.ID,
		"actual_balance": "50.00",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("close session returned %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/sessions/"+session.ID+"/reopen", token, csrf, map[string]any{
		"manager_pin": "000000",
	}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong pin, got %d", rec.Code)
	}
}

func TestSessionSummaryFormats(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	session := openSessionViaAPI(t, api, token, csrf, "reg-1", "100.00")
	rec := doJSON(t, api, http.MethodPost, "/api/v1/movements", token, csrf, map[string]any{
		"session_id":  session.ID,
		"type":        "sale",
		"amount":      "40.00",
		"description": "venta mostrador",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("record movement returned %d", rec.Code)
	}

	var summary domain.SessionSummaryResponse
	rec = doJSON(t, api, http.MethodGet, "/api/v1/sessions/"+session.ID+"/summary", token, "", nil, &summary)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary returned %d: %s", rec.Code, rec.Body.String())
	}
	if summary.Summary.MovementCount != 1 {
		t.Fatalf("expected 1 movement in summary, got %d", summary.Summary.MovementCount)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+session.ID+"/summary?format=csv", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("csv summary returned %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("expected csv content type, got %q", ct)
	}
	if !bytes.Contains(res.Body.Bytes(), []byte("expected_balance,140.00")) {
		t.Fatalf("expected csv to carry the expected balance, got %s", res.Body.String())
	}
}

func TestCreditSaleAndSettlementOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	var sale domain.CreditSaleResponse
	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales/credit", token, csrf, map[string]any{
		"branch_id":      "branch-central",
		"customer":       "Taller Gómez",
		"total_amount":   "130.00",
		"installments":   2,
		"first_due_date": time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02"),
	}, &sale)
	if rec.Code != http.StatusCreated {
		t.Fatalf("credit sale returned %d: %s", rec.Code, rec.Body.String())
	}
	if len(sale.Payments) != 2 {
		t.Fatalf("expected 2 installments, got %d", len(sale.Payments))
	}

	var outstanding domain.PaymentListResponse
	rec = doJSON(t, api, http.MethodGet, "/api/v1/payments/outstanding", token, "", nil, &outstanding)
	if rec.Code != http.StatusOK {
		t.Fatalf("outstanding returned %d", rec.Code)
	}
	if len(outstanding.Payments) != 2 {
		t.Fatalf("expected 2 outstanding payments, got %d", len(outstanding.Payments))
	}

	var settled domain.SettlementResponse
	rec = doJSON(t, api, http.MethodPost, "/api/v1/payments/settle", token, csrf, map[string]any{
		"payment_ids": []string{sale.Payments[0].ID, sale.Payments[1].ID},
		"payment_amounts": map[string]string{
			sale.Payments[0].ID: "65.00",
			sale.Payments[1].ID: "65.00",
		},
		"received_amount": "150.00",
	}, &settled)
	if rec.Code != http.StatusOK {
		t.Fatalf("settle returned %d: %s", rec.Code, rec.Body.String())
	}
	if settled.ProcessedCount != 2 {
		t.Fatalf("expected 2 processed payments, got %d", settled.ProcessedCount)
	}
	if settled.ChangeAmount.StringFixed(2) != "20.00" {
		t.Fatalf("expected change 20.00, got %s", settled.ChangeAmount)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/payments/"+sale.Payments[0].ID+"/settle", token, csrf, map[string]any{
		"amount": "10.00",
	}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for settling a paid installment, got %d", rec.Code)
	}
}

func TestAuditLogsRequireAdminRole(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	// Log in as the seeded cashier, who must not see audit logs.
	payload, _ := json.Marshal(map[string]string{
		"username": "cashier",
		"password": "cashier123",
	})
	loginReq := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	loginReq.Header.Set("Content-Type", "application/json")
	loginRec := httptest.NewRecorder()
	handler.ServeHTTP(loginRec, loginReq)
	if loginRec.Code != http.StatusOK {
		t.Fatalf("cashier login failed: %d", loginRec.Code)
	}

	var loginResp domain.LoginResponse
	if err := json.NewDecoder(loginRec.Body).Decode(&loginResp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier on audit logs, got %d", rec.Code)
	}
}

// TestMustHashPassword verifies that the test helper produces valid bcrypt hashes
// (used to confirm test infrastructure is sound).
func TestMustHashPassword(t *testing.T) {
	hash := mustHashPassword(t, "secret")
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Fatalf("hash verification failed: %v", err)
	}
}
