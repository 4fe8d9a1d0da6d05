package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"finsight/internal/assist"
	"finsight/internal/core"
	"finsight/internal/events"
	"finsight/internal/llm"
	"finsight/internal/store/memory"
)

const testSecret = "test-secret"

type fakeModel struct {
	reply  string
	err    error
	chunks []string
}

func (f *fakeModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f.reply, f.err
}

func (f *fakeModel) Stream(ctx context.Context, system, prompt string) (<-chan llm.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		for _, c := range f.chunks {
			out <- llm.Chunk{Text: c}
		}
	}()
	return out, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*events.TransactionEvent
}

func (f *fakePublisher) Publish(ctx context.Context, ev *events.TransactionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) published() []*events.TransactionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*events.TransactionEvent(nil), f.events...)
}

func newTestServer(t *testing.T, model *fakeModel) *Server {
	t.Helper()
	st := memory.New("") // no snapshot persistence in tests
	as := assist.NewService(st, model, model)
	return NewServer(":0", st, as, nil, testSecret)
}

func bearerToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

func doRequest(t *testing.T, s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, &fakeModel{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doRequest(t, s, http.MethodGet, path, "", "")
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, &fakeModel{})

	rec := doRequest(t, s, http.MethodGet, "/api/transactions", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/transactions", "Bearer garbage", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}

	// Token signed with the wrong key must be rejected.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"})
	signed, _ := token.SignedString([]byte("other-secret"))
	rec = doRequest(t, s, http.MethodGet, "/api/transactions", "Bearer "+signed, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", rec.Code)
	}
}

func TestTransactionCRUD(t *testing.T) {
	s := newTestServer(t, &fakeModel{})
	token := bearerToken(t, "alice")

	rec := doRequest(t, s, http.MethodPost, "/api/transactions", token,
		`{"amount": 25.00, "description": "lunch", "category": "Food & Dining", "type": "expense", "date": "2025-06-15"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created transactionDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created: %v", err)
	}
	if created.ID == "" {
		t.Error("created transaction has no id")
	}
	if created.Amount != 25.00 {
		t.Errorf("Amount = %v, want 25", created.Amount)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/transactions", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var listed []transactionDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Errorf("list = %+v, want the created record", listed)
	}

	// Other owners see nothing.
	rec = doRequest(t, s, http.MethodGet, "/api/transactions", bearerToken(t, "bob"), "")
	var bobs []transactionDTO
	json.Unmarshal(rec.Body.Bytes(), &bobs)
	if len(bobs) != 0 {
		t.Errorf("bob sees %d records, want 0", len(bobs))
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/transactions/"+created.ID, token, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d, want 204", rec.Code)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/transactions/"+created.ID, token, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete again: status = %d, want 404", rec.Code)
	}
}

func TestCreateTransaction_Invalid(t *testing.T) {
	s := newTestServer(t, &fakeModel{})
	token := bearerToken(t, "alice")

	tests := []struct {
		name string
		body string
	}{
		{"negative amount", `{"amount": -5, "description": "x", "category": "Other", "type": "expense"}`},
		{"zero amount", `{"amount": 0, "description": "x", "category": "Other", "type": "expense"}`},
		{"empty description", `{"amount": 5, "description": "", "category": "Other", "type": "expense"}`},
		{"unknown category", `{"amount": 5, "description": "x", "category": "Gambling", "type": "expense"}`},
		{"unknown type", `{"amount": 5, "description": "x", "category": "Other", "type": "transfer"}`},
		{"bad date", `{"amount": 5, "description": "x", "category": "Other", "type": "expense", "date": "15/06/2025"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/api/transactions", token, tt.body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSummary(t *testing.T) {
	s := newTestServer(t, &fakeModel{})
	token := bearerToken(t, "alice")

	doRequest(t, s, http.MethodPost, "/api/transactions", token,
		`{"amount": 500, "description": "salary", "category": "Salary", "type": "income"}`)
	doRequest(t, s, http.MethodPost, "/api/transactions", token,
		`{"amount": 120, "description": "power bill", "category": "Bills & Utilities", "type": "expense"}`)

	rec := doRequest(t, s, http.MethodGet, "/api/summary", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: status = %d", rec.Code)
	}

	var got summaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if got.TotalIncome != 500 || got.TotalExpenses != 120 || got.NetBalance != 380 {
		t.Errorf("totals = %v/%v/%v, want 500/120/380", got.TotalIncome, got.TotalExpenses, got.NetBalance)
	}
	if got.Count != 2 {
		t.Errorf("Count = %d, want 2", got.Count)
	}
	if got.ByCategory["Bills & Utilities"] != 120 {
		t.Errorf("ByCategory = %v, want Bills & Utilities: 120", got.ByCategory)
	}

	// A mutation drops the cached summary via the store subscription.
	doRequest(t, s, http.MethodPost, "/api/transactions", token,
		`{"amount": 20, "description": "coffee", "category": "Food & Dining", "type": "expense"}`)
	awaitSummaryCount(t, s, token, 3)
}

// awaitSummaryCount polls the summary endpoint until the expected record
// count shows up. Cache invalidation rides the store's change feed, so it
// lands shortly after the mutation rather than within it.
func awaitSummaryCount(t *testing.T, s *Server, token string, want int) summaryResponse {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := doRequest(t, s, http.MethodGet, "/api/summary", token, "")
		var got summaryResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("unmarshal summary: %v", err)
		}
		if got.Count == want {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("summary Count = %d, want %d", got.Count, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSummary_InvalidatedOnDirectStoreMutation(t *testing.T) {
	st := memory.New("")
	model := &fakeModel{}
	s := NewServer(":0", st, assist.NewService(st, model, model), nil, testSecret)
	token := bearerToken(t, "alice")

	got := awaitSummaryCount(t, s, token, 0)
	if got.TotalIncome != 0 {
		t.Errorf("TotalIncome = %v, want 0", got.TotalIncome)
	}

	// Mutations that bypass the handlers still refresh the summary.
	_, err := st.Insert(context.Background(), "alice", core.Transaction{
		Amount:      core.Money{Cents: 2500},
		Description: "lunch",
		Category:    core.FoodAndDining,
		Type:        core.Expense,
		Date:        core.NewDate(2025, 6, 15),
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got = awaitSummaryCount(t, s, token, 1)
	if got.TotalExpenses != 25 {
		t.Errorf("TotalExpenses = %v, want 25", got.TotalExpenses)
	}
}

func TestDeleteTransaction_PublishesEvent(t *testing.T) {
	st := memory.New("")
	model := &fakeModel{}
	pub := &fakePublisher{}
	s := NewServer(":0", st, assist.NewService(st, model, model), pub, testSecret)
	token := bearerToken(t, "alice")

	rec := doRequest(t, s, http.MethodPost, "/api/transactions", token,
		`{"amount": 25, "description": "lunch", "category": "Food & Dining", "type": "expense"}`)
	var created transactionDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created: %v", err)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/transactions/"+created.ID, token, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}

	published := pub.published()
	if len(published) != 2 {
		t.Fatalf("published %d events, want 2", len(published))
	}
	ev := published[1]
	if ev.Kind != events.TransactionDeleted || ev.ID != created.ID || ev.Owner != "alice" {
		t.Errorf("deleted event = %+v", ev)
	}
}

func TestChat_StoresExtractedTransaction(t *testing.T) {
	model := &fakeModel{
		reply: "Got it, adding your lunch expense.\n" +
			assist.TransactionMarker + ` {"amount": 12.50, "description": "lunch", "category": "Food & Dining", "type": "expense"}`,
	}
	s := newTestServer(t, model)
	token := bearerToken(t, "alice")

	rec := doRequest(t, s, http.MethodPost, "/api/chat", token, `{"message": "I spent 12.50 on lunch"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat: status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal chat: %v", err)
	}
	if !strings.Contains(resp.Response, "Transaction added successfully!") {
		t.Errorf("Response = %q, want confirmation note", resp.Response)
	}
	if resp.Transaction == nil {
		t.Fatal("Transaction missing from response")
	}
	if resp.Transaction.Amount != 12.50 {
		t.Errorf("Amount = %v, want 12.5", resp.Transaction.Amount)
	}

	// The record must now be in the store.
	rec = doRequest(t, s, http.MethodGet, "/api/transactions", token, "")
	var listed []transactionDTO
	json.Unmarshal(rec.Body.Bytes(), &listed)
	if len(listed) != 1 {
		t.Fatalf("list after chat = %d records, want 1", len(listed))
	}
}

func TestChat_ApologyOnModelFailure(t *testing.T) {
	model := &fakeModel{err: io.ErrUnexpectedEOF}
	s := newTestServer(t, model)

	rec := doRequest(t, s, http.MethodPost, "/api/chat", bearerToken(t, "alice"), `{"message": "hello"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("chat: status = %d, want 502 with apology", rec.Code)
	}
	var resp chatResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Response != assist.ApologyMessage {
		t.Errorf("Response = %q, want apology", resp.Response)
	}
	if resp.Transaction != nil {
		t.Error("Transaction present on failed chat")
	}
}

func TestChat_EmptyMessage(t *testing.T) {
	s := newTestServer(t, &fakeModel{})
	rec := doRequest(t, s, http.MethodPost, "/api/chat", bearerToken(t, "alice"), `{"message": "   "}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestInsights_StreamsChunks(t *testing.T) {
	model := &fakeModel{chunks: []string{"Spending ", "looks ", "healthy."}}
	s := newTestServer(t, model)
	token := bearerToken(t, "alice")

	doRequest(t, s, http.MethodPost, "/api/transactions", token,
		`{"amount": 30, "description": "groceries", "category": "Shopping", "type": "expense"}`)

	rec := doRequest(t, s, http.MethodPost, "/api/insights", token, `{"question": "How am I doing?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("insights: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "Spending looks healthy." {
		t.Errorf("streamed body = %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
}

func TestRequestLogging_FieldNames(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	s := newTestServer(t, &fakeModel{})
	doRequest(t, s, http.MethodGet, "/healthz", "", "")

	out := buf.String()
	for _, key := range []string{"request_id=", "method=GET", "path=/healthz", "status_code=200", "duration_ms=", "client_ip="} {
		if !strings.Contains(out, key) {
			t.Errorf("request log missing %q:\n%s", key, out)
		}
	}
}

func TestInsights_ModelUnavailable(t *testing.T) {
	model := &fakeModel{err: io.ErrUnexpectedEOF}
	s := newTestServer(t, model)

	rec := doRequest(t, s, http.MethodPost, "/api/insights", bearerToken(t, "alice"), "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}
