package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lukasbauer/habitvoice/internal/store"
)

type fakePushStore struct {
	tokens map[string]string // token -> user
	err    error
}

func (f *fakePushStore) RegisterPushToken(ctx context.Context, userID, token, platform string) error {
	if f.err != nil {
		return f.err
	}
	f.tokens[token] = userID
	return nil
}

func (f *fakePushStore) UnregisterPushToken(ctx context.Context, token string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.tokens, token)
	return nil
}

func (f *fakePushStore) GetUserPushTokens(ctx context.Context, userID string) ([]store.DevicePushToken, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []store.DevicePushToken
	for token, owner := range f.tokens {
		if owner == userID {
			out = append(out, store.DevicePushToken{UserID: owner, Token: token, Platform: "ios"})
		}
	}
	return out, nil
}

type fakePusher struct {
	sent []string
	fail string
}

func (p *fakePusher) SendTestNotification(deviceToken, message string) error {
	if deviceToken == p.fail {
		return errors.New("bad device token")
	}
	p.sent = append(p.sent, deviceToken)
	return nil
}

func TestHandlePushRegister(t *testing.T) {
	push := &fakePushStore{tokens: map[string]string{}}
	r := &Router{logger: testLogger(), push: push}
	authCtx := context.WithValue(context.Background(), userContextKey, &AuthUser{ID: "user-123"})

	tests := []struct {
		name    string
		ctx     context.Context
		body    string
		want    int
		wantErr string
	}{
		{"unauthorized without auth", context.Background(), `{"token": "t", "platform": "ios"}`, http.StatusUnauthorized, ""},
		{"invalid request body", authCtx, "invalid json", http.StatusBadRequest, "invalid request body"},
		{"missing token", authCtx, `{"token": "", "platform": "ios"}`, http.StatusBadRequest, "token is required"},
		{"invalid platform", authCtx, `{"token": "t", "platform": "windows"}`, http.StatusBadRequest, "platform must be"},
		{"ok", authCtx, `{"token": "device-token", "platform": "ios"}`, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/push/register", strings.NewReader(tt.body)).WithContext(tt.ctx)
			rec := httptest.NewRecorder()
			r.handlePushRegister(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.wantErr != "" {
				var resp map[string]string
				_ = json.NewDecoder(rec.Body).Decode(&resp)
				if !strings.Contains(resp["error"], tt.wantErr) {
					t.Errorf("error = %q, want it to mention %q", resp["error"], tt.wantErr)
				}
			}
		})
	}
	if push.tokens["device-token"] != "user-123" {
		t.Errorf("tokens = %v", push.tokens)
	}
}

func TestHandlePushUnregister(t *testing.T) {
	push := &fakePushStore{tokens: map[string]string{"device-token": "user-123"}}
	r := &Router{logger: testLogger(), push: push}
	ctx := context.WithValue(context.Background(), userContextKey, &AuthUser{ID: "user-123"})

	req := httptest.NewRequest(http.MethodPost, "/api/push/unregister", strings.NewReader(`{"token": ""}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	r.handlePushUnregister(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing token status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/push/unregister", strings.NewReader(`{"token": "device-token"}`)).WithContext(ctx)
	rec = httptest.NewRecorder()
	r.handlePushUnregister(rec, req)
	if rec.Code != http.StatusOK || len(push.tokens) != 0 {
		t.Errorf("status = %d tokens = %v", rec.Code, push.tokens)
	}

	push.err = errors.New("db down")
	req = httptest.NewRequest(http.MethodPost, "/api/push/unregister", strings.NewReader(`{"token": "x"}`)).WithContext(ctx)
	rec = httptest.NewRecorder()
	r.handlePushUnregister(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("store error status = %d", rec.Code)
	}
}

func TestHandlePush_NotConfigured(t *testing.T) {
	r := &Router{logger: testLogger()}
	ctx := context.WithValue(context.Background(), userContextKey, &AuthUser{ID: "user-123"})
	req := httptest.NewRequest(http.MethodPost, "/api/push/register", strings.NewReader(`{"token": "t", "platform": "ios"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	r.handlePushRegister(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandlePushTest(t *testing.T) {
	ctx := context.WithValue(context.Background(), userContextKey, &AuthUser{ID: "user-123"})
	post := func(r *Router) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/push/test", nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		r.handlePushTest(rec, req)
		return rec
	}

	if rec := post(&Router{logger: testLogger(), push: &fakePushStore{tokens: map[string]string{}}}); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no pusher status = %d, want 503", rec.Code)
	}

	pusher := &fakePusher{}
	empty := &Router{logger: testLogger(), push: &fakePushStore{tokens: map[string]string{"other": "user-999"}}, pusher: pusher}
	if rec := post(empty); rec.Code != http.StatusNotFound {
		t.Errorf("no devices status = %d, want 404", rec.Code)
	}

	pusher = &fakePusher{fail: "phone-b"}
	r := &Router{
		logger: testLogger(),
		push:   &fakePushStore{tokens: map[string]string{"phone-a": "user-123", "phone-b": "user-123"}},
		pusher: pusher,
	}
	rec := post(r)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["sent"] != 1 || resp["devices"] != 2 {
		t.Errorf("resp = %v, want sent=1 devices=2", resp)
	}
	if len(pusher.sent) != 1 || pusher.sent[0] != "phone-a" {
		t.Errorf("sent = %v", pusher.sent)
	}
}
