package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/almsbox/internal/auth"
)

func echoIdentity(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	_, _ = w.Write([]byte(id.Subject.String()))
}

func TestRequire(t *testing.T) {
	tokens := auth.NewTokens("secret", "almsbox", time.Hour)
	id := auth.Identity{Subject: uuid.New(), Role: auth.RoleUser}

	tok, err := tokens.Issue(id)
	require.NoError(t, err)

	h := auth.Require(tokens)(http.HandlerFunc(echoIdentity))

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "Bearer",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) },
			wantStatus: http.StatusOK,
			wantBody:   id.Subject.String(),
		},
		{
			name:       "Cookie",
			setup:      func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "token", Value: tok}) },
			wantStatus: http.StatusOK,
			wantBody:   id.Subject.String(),
		},
		{
			name:       "Missing",
			setup:      func(*http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "WrongScheme",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Basic "+tok) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Invalid",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"unauthenticated","message":"not authorized to access this route"}`, rec.Body.String())
				return
			}

			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestOptional(t *testing.T) {
	tokens := auth.NewTokens("secret", "almsbox", time.Hour)
	h := auth.Optional(tokens)(http.HandlerFunc(echoIdentity))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer broken")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
