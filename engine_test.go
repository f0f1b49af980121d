package magiccode

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestIssueLoginStoresIdentityOnly(t *testing.T) {
	cfg := testConfig()
	cfg.CodeLength = 6
	storage := NewMemoryStorage()
	te := buildTestEngine(t, cfg, storage)
	ctx := context.Background()

	res, err := te.Issue(ctx, Record{"email": "a@b.com", "name": "Ann"}, Options{Action: ActionLogin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if res.Outcome != OutcomePass || res.UserKey != "a@b.com" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.ExpiresAt.Equal(te.clock.Now().Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", res.ExpiresAt)
	}

	if storage.Len() != 1 {
		t.Fatalf("expected one stored token, got %d", storage.Len())
	}
	sent := te.sender.last(t)
	tok, found, err := storage.Get(ctx, strconv.Itoa(sent.code))
	if err != nil || !found {
		t.Fatalf("expected token under sent code, found=%v err=%v", found, err)
	}
	if !reflect.DeepEqual(tok.User, Record{"email": "a@b.com"}) {
		t.Fatalf("expected identity-only projection, got %#v", tok.User)
	}
	if sent.record["name"] != "Ann" {
		t.Fatalf("sender should receive the full record, got %#v", sent.record)
	}
}

func TestIssueRegisterStoresFullRecord(t *testing.T) {
	storage := NewMemoryStorage()
	te := buildTestEngine(t, testConfig(), storage)
	ctx := context.Background()

	rec := Record{"email": "new@b.com", "name": "Neo", "plan": "pro"}
	if _, err := te.Issue(ctx, rec, Options{Action: ActionRegister}); err != nil {
		t.Fatalf("issue: %v", err)
	}
	rec["plan"] = "free"

	tok, _, _ := storage.Get(ctx, strconv.Itoa(te.sender.last(t).code))
	if tok.User["plan"] != "pro" || tok.User["name"] != "Neo" {
		t.Fatalf("expected full record copy, got %#v", tok.User)
	}
}

func TestIssueThenVerifySucceedsExactlyOnce(t *testing.T) {
	cfg := testConfig()
	cfg.CodeLength = 6
	storage := NewMemoryStorage()
	te := buildTestEngine(t, cfg, storage)
	ctx := context.Background()

	if _, err := te.Issue(ctx, Record{"email": "a@b.com"}, Options{Action: ActionLogin}); err != nil {
		t.Fatalf("issue: %v", err)
	}
	code := te.sender.last(t).code

	input := []Source{{"code": strconv.Itoa(code), "email": "a@b.com"}}
	res, err := te.Verify(ctx, input, Options{Action: ActionCallback})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Outcome != OutcomeSuccess || res.Principal != "principal:a@b.com" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if storage.Len() != 0 {
		t.Fatalf("expected token to be consumed, %d left", storage.Len())
	}
	if len(te.verifier.users) != 1 || !reflect.DeepEqual(te.verifier.users[0], Record{"email": "a@b.com"}) {
		t.Fatalf("verifier received %#v", te.verifier.users)
	}

	_, err = te.Verify(ctx, input, Options{Action: ActionCallback})
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode on replay, got %v", err)
	}
	if KindOf(err) != KindAuth || StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("unexpected kind/status %q/%d", KindOf(err), StatusOf(err))
	}
	if te.verifier.calls() != 1 {
		t.Fatalf("verifier must not run on replay, calls=%d", te.verifier.calls())
	}
}

func TestVerifyExpiredTokenRejected(t *testing.T) {
	storage := NewMemoryStorage()
	te := buildTestEngine(t, testConfig(), storage)
	ctx := context.Background()

	if err := storage.Set(ctx, "4321", Token{
		ExpiresAt: te.clock.Now().Add(-1000 * time.Millisecond),
		User:      Record{"email": "a@b.com"},
	}); err != nil {
		t.Fatalf("set: %v", err)
	}

	_, err := te.Verify(ctx, []Source{{"code": "4321", "email": "a@b.com"}}, Options{})
	if !errors.Is(err, ErrInvalidCode) || StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected invalid code with status 400, got %v", err)
	}
	if te.verifier.calls() != 0 {
		t.Fatal("verifier must not run for expired tokens")
	}
}

func TestVerifyExpiresAfterConfiguredLifetime(t *testing.T) {
	te := buildTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	if _, err := te.Issue(ctx, Record{"email": "a@b.com"}, Options{}); err != nil {
		t.Fatalf("issue: %v", err)
	}
	te.clock.Advance(30 * time.Minute)

	code := strconv.Itoa(te.sender.last(t).code)
	_, err := te.Verify(ctx, []Source{{"code": code, "email": "a@b.com"}}, Options{})
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected token to be expired at exactly its lifetime, got %v", err)
	}
}

func TestVerifyMissingFieldsBeforeStorage(t *testing.T) {
	tests := []struct {
		name     string
		sources  []Source
		wantCode string
	}{
		{name: "no sources", sources: nil, wantCode: "Missing field: code"},
		{name: "code absent", sources: []Source{{"email": "a@b.com"}}, wantCode: "Missing field: code"},
		{name: "code empty", sources: []Source{{"code": "", "email": "a@b.com"}}, wantCode: "Missing field: code"},
		{name: "identity absent", sources: []Source{{"code": "1234"}}, wantCode: "Missing field: email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := newCountingStorage()
			te := buildTestEngine(t, testConfig(), storage)

			_, err := te.Verify(context.Background(), tt.sources, Options{})
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			var e *Error
			if !errors.As(err, &e) || e.Code != tt.wantCode || e.Status != http.StatusBadRequest {
				t.Fatalf("unexpected error %#v", err)
			}
			if storage.total() != 0 {
				t.Fatalf("expected zero storage calls, got %d", storage.total())
			}
		})
	}
}

func TestVerifyBodyTakesPrecedenceOverQuery(t *testing.T) {
	te := buildTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	if _, err := te.Issue(ctx, Record{"email": "a@b.com"}, Options{}); err != nil {
		t.Fatalf("issue: %v", err)
	}
	code := strconv.Itoa(te.sender.last(t).code)

	req := Request{
		Options: Options{Action: ActionCallback},
		Body:    Source{"code": code},
		Query:   Source{"code": "0000", "email": "a@b.com"},
		Params:  Source{"email": "other@b.com"},
	}
	if _, err := te.Authenticate(ctx, req); err != nil {
		t.Fatalf("expected body code and query identity to verify: %v", err)
	}
}

func TestVerifyIdentityMismatchKeepsToken(t *testing.T) {
	for name, storage := range map[string]Storage{
		"consumer":       NewMemoryStorage(),
		"get-and-delete": newCountingStorage(),
	} {
		t.Run(name, func(t *testing.T) {
			te := buildTestEngine(t, testConfig(), storage)
			ctx := context.Background()

			if _, err := te.Issue(ctx, Record{"email": "a@b.com"}, Options{}); err != nil {
				t.Fatalf("issue: %v", err)
			}
			code := strconv.Itoa(te.sender.last(t).code)

			_, err := te.Verify(ctx, []Source{{"code": code, "email": "mallory@b.com"}}, Options{})
			if !errors.Is(err, ErrInvalidCode) {
				t.Fatalf("expected ErrInvalidCode, got %v", err)
			}
			if _, found, _ := storage.Get(ctx, code); !found {
				t.Fatal("a rejected verification must not consume the token")
			}
			if _, err := te.Verify(ctx, []Source{{"code": code, "email": "a@b.com"}}, Options{}); err != nil {
				t.Fatalf("owner should still verify: %v", err)
			}
		})
	}
}

func TestVerifyCallbackErrorReturnedVerbatimAfterDelete(t *testing.T) {
	storage := NewMemoryStorage()
	te := buildTestEngine(t, testConfig(), storage)
	ctx := context.Background()

	hookErr := errors.New("user banned")
	te.verifier.err = hookErr

	if _, err := te.Issue(ctx, Record{"email": "a@b.com"}, Options{}); err != nil {
		t.Fatalf("issue: %v", err)
	}
	code := strconv.Itoa(te.sender.last(t).code)

	_, err := te.Verify(ctx, []Source{{"code": code, "email": "a@b.com"}}, Options{})
	if err != hookErr {
		t.Fatalf("expected hook error unchanged, got %v", err)
	}
	if storage.Len() != 0 {
		t.Fatal("token must be deleted before the verifier runs")
	}
}

func TestIssueDeliveryFailurePersistsNothing(t *testing.T) {
	storage := newCountingStorage()
	te := buildTestEngine(t, testConfig(), storage)

	sendErr := errors.New("smtp down")
	te.sender.err = sendErr

	_, err := te.Issue(context.Background(), Record{"email": "a@b.com"}, Options{})
	if !errors.Is(err, ErrDelivery) || !errors.Is(err, sendErr) {
		t.Fatalf("expected delivery error wrapping cause, got %v", err)
	}
	if StatusOf(err) != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", StatusOf(err))
	}
	if storage.sets.Load() != 0 {
		t.Fatal("nothing may be persisted when delivery fails")
	}
}

func TestIssueIdentityValidation(t *testing.T) {
	storage := newCountingStorage()
	te := buildTestEngine(t, testConfig(), storage)
	ctx := context.Background()

	_, err := te.Issue(ctx, Record{"name": "Ann"}, Options{})
	var e *Error
	if !errors.As(err, &e) || e.Code != "Missing field: email" {
		t.Fatalf("expected missing field, got %v", err)
	}

	_, err = te.Issue(ctx, Record{"email": 42}, Options{})
	if !errors.As(err, &e) || e.Code != "Invalid field: email" || e.Kind != KindValidation {
		t.Fatalf("expected invalid field, got %v", err)
	}

	if len(te.sender.sent) != 0 || storage.total() != 0 {
		t.Fatal("invalid records must not reach the sender or storage")
	}
}

func TestIssueCodeDigits(t *testing.T) {
	for n := 4; n <= 9; n++ {
		cfg := testConfig()
		cfg.CodeLength = n
		te := buildTestEngine(t, cfg, nil)

		hi := 1
		for i := 0; i < n; i++ {
			hi *= 10
		}
		lo := hi / 10
		hi--

		for i := 0; i < 50; i++ {
			if _, err := te.Issue(context.Background(), Record{"email": "a@b.com"}, Options{}); err != nil {
				t.Fatalf("issue: %v", err)
			}
			code := te.sender.last(t).code
			if code < lo || code >= hi || len(strconv.Itoa(code)) != n {
				t.Fatalf("code %d out of range for %d digits", code, n)
			}
		}
	}
}

func TestIssueReceipt(t *testing.T) {
	cfg := testConfig()
	cfg.Receipt.Enabled = true
	te := buildTestEngine(t, cfg, nil)

	res, err := te.Issue(context.Background(), Record{"email": "a@b.com"}, Options{Action: ActionRegister})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if res.Receipt == "" {
		t.Fatal("expected receipt")
	}
	claims, err := te.ParseReceipt(res.Receipt)
	if err != nil {
		t.Fatalf("parse receipt: %v", err)
	}
	if claims.Subject != "a@b.com" || claims.Action != "register" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	plain := buildTestEngine(t, testConfig(), nil)
	if _, err := plain.ParseReceipt(res.Receipt); err == nil {
		t.Fatal("expected ParseReceipt to fail when receipts are disabled")
	}
}

func TestAuthenticateDispatch(t *testing.T) {
	storage := NewMemoryStorage()
	te := buildTestEngine(t, testConfig(), storage)
	ctx := context.Background()

	res, err := te.Authenticate(ctx, Request{
		Options: Options{Action: ActionLogin},
		Body:    Source{"email": "a@b.com"},
	})
	if err != nil || res.Outcome != OutcomePass {
		t.Fatalf("login: res=%+v err=%v", res, err)
	}

	res, err = te.Authenticate(ctx, Request{
		Options: Options{Action: ActionCallback},
		Query:   Source{"code": strconv.Itoa(te.sender.last(t).code), "email": "a@b.com"},
	})
	if err != nil || res.Outcome != OutcomeSuccess {
		t.Fatalf("callback: res=%+v err=%v", res, err)
	}

	_, err = te.Authenticate(ctx, Request{Options: Options{Action: "logout"}})
	if !errors.Is(err, ErrUnknownAction) || KindOf(err) != KindUnknownAction {
		t.Fatalf("expected unknown action, got %v", err)
	}
	if StatusOf(err) != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", StatusOf(err))
	}
	if got := te.MetricsSnapshot().Counters[MetricUnknownAction]; got != 1 {
		t.Fatalf("expected unknown action metric 1, got %d", got)
	}
}

func TestConcurrentVerifySingleWinner(t *testing.T) {
	te := buildTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	if _, err := te.Issue(ctx, Record{"email": "a@b.com"}, Options{}); err != nil {
		t.Fatalf("issue: %v", err)
	}
	input := []Source{{"code": strconv.Itoa(te.sender.last(t).code), "email": "a@b.com"}}

	const workers = 32
	var wins atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := te.Verify(ctx, input, Options{}); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one successful verification, got %d", wins.Load())
	}
}

func TestEngineMetrics(t *testing.T) {
	te := buildTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	_, _ = te.Issue(ctx, Record{"email": "a@b.com"}, Options{})
	code := strconv.Itoa(te.sender.last(t).code)
	_, _ = te.Verify(ctx, []Source{{"code": code, "email": "a@b.com"}}, Options{})
	_, _ = te.Verify(ctx, []Source{{"code": code, "email": "a@b.com"}}, Options{})
	_, _ = te.Verify(ctx, []Source{{"email": "a@b.com"}}, Options{})

	snap := te.MetricsSnapshot()
	want := map[MetricID]uint64{
		MetricIssueRequest:       1,
		MetricIssueSuccess:       1,
		MetricVerifyRequest:      3,
		MetricVerifySuccess:      1,
		MetricVerifyFailure:      1,
		MetricVerifyMissingField: 1,
	}
	for id, v := range want {
		if snap.Counters[id] != v {
			t.Fatalf("metric %d: expected %d, got %d", id, v, snap.Counters[id])
		}
	}
}

func TestZeroEngineNotReady(t *testing.T) {
	var e Engine
	if _, err := e.Issue(context.Background(), Record{"email": "a"}, Options{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Verify(context.Background(), nil, Options{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}
