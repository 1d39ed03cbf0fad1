package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/fredSavings/pkg/models"
	"github.com/mcclellann/fredSavings/pkg/notify"
	"github.com/mcclellann/fredSavings/pkg/proofs"
	"github.com/mcclellann/fredSavings/pkg/society"
	"github.com/mcclellann/fredSavings/pkg/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"
)

type testAPI struct {
	router *mux.Router
	admin  *models.Member
}

func setupTestServer(t *testing.T) *testAPI {
	t.Helper()
	dir := t.TempDir()

	s, err := store.NewSQLiteStore(filepath.Join(dir, "test_api.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	proofStore, err := proofs.NewLocalStore(filepath.Join(dir, "uploads"), 1<<20)
	if err != nil {
		t.Fatalf("Failed to create proof store: %v", err)
	}

	svc := society.NewService(s, proofStore, notify.NewConsoleMailer("test", zerolog.Nop()), zerolog.Nop())
	admin, err := svc.EnsureAdmin(society.Registration{Name: "Admin", Email: "admin@example.com", Password: "admin-password"})
	if err != nil {
		t.Fatalf("Failed to bootstrap admin: %v", err)
	}

	server := NewServer(svc, s, 1<<20)
	return &testAPI{
		router: newRouter(server, zerolog.Nop(), noop.NewTracerProvider().Tracer("test")),
		admin:  admin,
	}
}

func (api *testAPI) do(t *testing.T, method, path string, actor uuid.UUID, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if actor != uuid.Nil {
		req.Header.Set(memberHeader, actor.String())
	}
	rr := httptest.NewRecorder()
	api.router.ServeHTTP(rr, req)
	return rr
}

func (api *testAPI) submit(t *testing.T, actor uuid.UUID, amount, month string, proof []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("amount", amount)
	mw.WriteField("month", month)
	if proof != nil {
		fw, err := mw.CreateFormFile("proof", "receipt.png")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(proof)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/installments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(memberHeader, actor.String())
	rr := httptest.NewRecorder()
	api.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode %q: %v", rr.Body.String(), err)
	}
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// activeMember registers a member over the API and has the admin activate them.
func (api *testAPI) activeMember(t *testing.T, name, email string) models.Member {
	t.Helper()
	rr := api.do(t, "POST", "/register", uuid.Nil, map[string]string{"name": name, "email": email, "password": "long-enough"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var m models.Member
	decode(t, rr, &m)

	rr = api.do(t, "POST", "/members/"+m.ID.String()+"/activate", api.admin.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on activate, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	decode(t, rr, &m)
	return m
}

func TestAPI_RegisterLoginActivate(t *testing.T) {
	api := setupTestServer(t)

	rr := api.do(t, "POST", "/register", uuid.Nil, map[string]string{"name": "Alice", "email": "alice@example.com", "password": "long-enough"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", rr.Code)
	}
	var alice models.Member
	decode(t, rr, &alice)
	if alice.Status != models.MemberStatusPending {
		t.Errorf("Expected pending, got %s", alice.Status)
	}
	if bytes.Contains(rr.Body.Bytes(), []byte("password")) {
		t.Error("Expected the password hash to stay out of the response")
	}

	login := map[string]string{"email": "alice@example.com", "password": "long-enough"}
	if rr := api.do(t, "POST", "/login", uuid.Nil, login); rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for a pending member, got %d", rr.Code)
	}

	if rr := api.do(t, "POST", "/members/"+alice.ID.String()+"/activate", alice.ID, nil); rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for self-activation, got %d", rr.Code)
	}
	if rr := api.do(t, "POST", "/members/"+alice.ID.String()+"/activate", api.admin.ID, nil); rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 on activate, got %d", rr.Code)
	}
	if rr := api.do(t, "POST", "/login", uuid.Nil, login); rr.Code != http.StatusOK {
		t.Errorf("Expected 200 on login, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	login["password"] = "wrong-password"
	if rr := api.do(t, "POST", "/login", uuid.Nil, login); rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for a wrong password, got %d", rr.Code)
	}

	rr = api.do(t, "POST", "/register", uuid.Nil, map[string]string{"name": "", "email": "bad", "password": "x"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for invalid registration, got %d", rr.Code)
	}
	var errBody errorResponse
	decode(t, rr, &errBody)
	if len(errBody.Fields) != 3 {
		t.Errorf("Expected 3 field errors, got %+v", errBody.Fields)
	}
}

func TestAPI_InstallmentReviewFlow(t *testing.T) {
	api := setupTestServer(t)
	alice := api.activeMember(t, "Alice", "alice@example.com")
	month := time.Now().Format("January 2006")

	rr := api.submit(t, alice.ID, "5000", month, pngBytes)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var inst models.Installment
	decode(t, rr, &inst)
	if inst.Status != models.InstallmentStatusPending {
		t.Errorf("Expected Pending, got %s", inst.Status)
	}
	if !inst.LateFee.IsZero() {
		t.Errorf("Expected no late fee for the current month, got %s", inst.LateFee)
	}
	if !inst.Amount.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("Expected amount 5000, got %s", inst.Amount)
	}

	review := map[string]string{"decision": "Approved"}
	if rr := api.do(t, "POST", "/installments/"+inst.ID.String()+"/review", alice.ID, review); rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for a member reviewing, got %d", rr.Code)
	}
	rr = api.do(t, "POST", "/installments/"+inst.ID.String()+"/review", api.admin.ID, review)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 on review, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var reviewed models.Installment
	decode(t, rr, &reviewed)
	if reviewed.ApprovedAt == nil || reviewed.ProofRef != "" {
		t.Errorf("Expected ApprovedAt set and proof cleared, got %+v", reviewed)
	}

	if rr := api.do(t, "POST", "/installments/"+inst.ID.String()+"/review", api.admin.ID, review); rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 on second review, got %d", rr.Code)
	}
	if rr := api.do(t, "POST", "/installments/"+uuid.NewString()+"/review", api.admin.ID, review); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown instalment, got %d", rr.Code)
	}

	rr = api.do(t, "GET", "/installments?status=Approved", alice.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 on list, got %d", rr.Code)
	}
	var list []models.Installment
	decode(t, rr, &list)
	if len(list) != 1 {
		t.Errorf("Expected 1 approved instalment, got %d", len(list))
	}

	rr = api.do(t, "GET", "/members/"+alice.ID.String()+"/dashboard", alice.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 on member dashboard, got %d", rr.Code)
	}
	var summary struct {
		Installments decimal.Decimal `json:"installments"`
	}
	decode(t, rr, &summary)
	if !summary.Installments.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("Expected 5000 approved on dashboard, got %s", summary.Installments)
	}
}

func TestAPI_SubmitInstallmentValidation(t *testing.T) {
	api := setupTestServer(t)
	alice := api.activeMember(t, "Alice", "alice@example.com")

	tests := []struct {
		name   string
		amount string
		month  string
		proof  []byte
	}{
		{"zero amount", "0", "June 2025", pngBytes},
		{"bad amount", "lots", "June 2025", pngBytes},
		{"bad month", "100", "Juneteenth", pngBytes},
		{"missing proof", "100", "June 2025", nil},
		{"not an image", "100", "June 2025", []byte("hello, world")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.submit(t, alice.ID, tt.amount, tt.month, tt.proof)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d. Body: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestAPI_LateFeeQuote(t *testing.T) {
	api := setupTestServer(t)

	rr := api.do(t, "GET", "/late-fee?month=January+2000", uuid.Nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var body struct {
		LateFee decimal.Decimal `json:"late_fee"`
	}
	decode(t, rr, &body)
	if !body.LateFee.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected 1000 for a long-past month, got %s", body.LateFee)
	}

	if rr := api.do(t, "GET", "/late-fee?month=soon", uuid.Nil, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an unparseable month, got %d", rr.Code)
	}
}

func TestAPI_DepositsAndDistribution(t *testing.T) {
	api := setupTestServer(t)
	alice := api.activeMember(t, "Alice", "alice@example.com")

	deposit := map[string]interface{}{
		"owner_member_id": alice.ID,
		"principal":       "100000",
		"annual_rate":     "9.75",
		"tenure_months":   36,
		"start_month":     1,
		"start_year":      2020,
	}
	if rr := api.do(t, "POST", "/deposits", alice.ID, deposit); rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for a member creating a deposit, got %d", rr.Code)
	}
	rr := api.do(t, "POST", "/deposits", api.admin.ID, deposit)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var view struct {
		ID         uuid.UUID `json:"id"`
		Evaluation struct {
			Matured  bool            `json:"matured"`
			Interest decimal.Decimal `json:"interest"`
		} `json:"evaluation"`
	}
	decode(t, rr, &view)
	if !view.Evaluation.Matured || !view.Evaluation.Interest.Equal(decimal.NewFromInt(29250)) {
		t.Errorf("Expected matured deposit with 29250 interest, got %+v", view.Evaluation)
	}

	rr = api.do(t, "GET", "/dashboard?pool=realized", alice.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 on dashboard, got %d", rr.Code)
	}
	var dash society.SocietyDashboard
	decode(t, rr, &dash)
	if !dash.TotalFund.Equal(decimal.NewFromInt(129250)) {
		t.Errorf("Expected fund 129250, got %s", dash.TotalFund)
	}

	req := map[string]interface{}{"pool": "29250", "basis": "deposits", "description": "FD interest 2023"}
	rr = api.do(t, "POST", "/distributions/preview", api.admin.ID, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 on preview, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var preview struct {
		Key string `json:"key"`
	}
	decode(t, rr, &preview)
	req["key"] = preview.Key

	if rr := api.do(t, "POST", "/distributions", api.admin.ID, req); rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201 on apply, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	if rr := api.do(t, "POST", "/distributions", api.admin.ID, req); rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 on second apply, got %d", rr.Code)
	}
	req["key"] = "stale"
	if rr := api.do(t, "POST", "/distributions", api.admin.ID, req); rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a stale key, got %d", rr.Code)
	}

	rr = api.do(t, "GET", "/reports?pool=distributed&basis=deposits", api.admin.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 on report, got %d", rr.Code)
	}
	var report struct {
		Members []struct {
			MemberID       uuid.UUID       `json:"member_id"`
			ProfitReceived decimal.Decimal `json:"profit_received"`
		} `json:"members"`
	}
	decode(t, rr, &report)
	for _, m := range report.Members {
		if m.MemberID == alice.ID && !m.ProfitReceived.Equal(decimal.NewFromInt(29250)) {
			t.Errorf("Expected Alice to have received 29250, got %s", m.ProfitReceived)
		}
	}

	if rr := api.do(t, "DELETE", "/deposits/"+view.ID.String(), api.admin.ID, nil); rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204 on delete, got %d", rr.Code)
	}
	if rr := api.do(t, "DELETE", "/deposits/"+view.ID.String(), api.admin.ID, nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", rr.Code)
	}
}

func TestAPI_Settings(t *testing.T) {
	api := setupTestServer(t)

	if rr := api.do(t, "GET", "/settings/society_name", uuid.Nil, nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a missing setting, got %d", rr.Code)
	}
	if rr := api.do(t, "PUT", "/settings/society_name", api.admin.ID, map[string]string{"value": "Fred Savings"}); rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 on put, got %d", rr.Code)
	}
	rr := api.do(t, "GET", "/settings/society_name", uuid.Nil, nil)
	var setting models.Setting
	decode(t, rr, &setting)
	if setting.Value != "Fred Savings" {
		t.Errorf("Expected Fred Savings, got %q", setting.Value)
	}
}

func TestAPI_RequiresMemberHeader(t *testing.T) {
	api := setupTestServer(t)

	if rr := api.do(t, "GET", "/members", uuid.Nil, nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without %s, got %d", memberHeader, rr.Code)
	}
	if rr := api.do(t, "GET", "/members", uuid.New(), nil); rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for an unknown member, got %d", rr.Code)
	}
	for _, path := range []string{"/deposits", "/dashboard", "/members/" + api.admin.ID.String() + "/dashboard"} {
		if rr := api.do(t, "GET", path, uuid.New(), nil); rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403 on %s for an unknown member, got %d", path, rr.Code)
		}
	}
	if rr := api.do(t, "POST", "/members/not-a-uuid/activate", api.admin.ID, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a malformed ID, got %d", rr.Code)
	}
	if rr := api.do(t, "GET", "/metrics", uuid.Nil, nil); rr.Code != http.StatusOK {
		t.Errorf("Expected 200 from /metrics, got %d", rr.Code)
	}
}
