package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/users"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubAuthService struct {
	login        *auth.LoginRequest
	accessToken  string
	refreshToken string
	err          error
}

func (s *stubAuthService) Register(ctx context.Context, req auth.RegisterRequest) (*users.UserDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &users.UserDTO{ID: uuid.New(), Email: req.Email}, nil
}

func (s *stubAuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	s.login = &req
	if s.err != nil {
		return nil, s.err
	}
	return &auth.LoginResponse{
		TokenPair: auth.TokenPair{AccessToken: "access", RefreshToken: "refresh"},
		User:      &users.UserDTO{ID: uuid.New(), Email: req.Email},
	}, nil
}

func (s *stubAuthService) Refresh(ctx context.Context, accessToken, refreshToken string) (*auth.TokenPair, error) {
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	if s.err != nil {
		return nil, s.err
	}
	return &auth.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}

func (s *stubAuthService) Logout(ctx context.Context, accessToken string) error {
	s.accessToken = accessToken
	return s.err
}

func TestLoginReturnsTokens(t *testing.T) {
	svc := &stubAuthService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":" buyer@example.com ","password":"  spaced  "}`))
	rec := httptest.NewRecorder()

	Login(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "buyer@example.com", svc.login.Email)
	assert.Equal(t, "  spaced  ", svc.login.Password)

	var body struct {
		Data struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "access", body.Data.AccessToken)
	assert.Equal(t, "refresh", body.Data.RefreshToken)
}

func TestLoginRejectsMalformedEmail(t *testing.T) {
	svc := &stubAuthService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"nope","password":"x"}`))
	rec := httptest.NewRecorder()

	Login(svc, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.login)
}

func TestRefreshUsesBearerAndBody(t *testing.T) {
	svc := &stubAuthService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader(`{"refreshToken":"rt-1"}`))
	req.Header.Set("Authorization", "Bearer expired-access")
	rec := httptest.NewRecorder()

	Refresh(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "expired-access", svc.accessToken)
	assert.Equal(t, "rt-1", svc.refreshToken)
}

func TestLogout(t *testing.T) {
	svc := &stubAuthService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer access")
	rec := httptest.NewRecorder()

	Logout(svc, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	svc.err = pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid token")
	rec = httptest.NewRecorder()
	Logout(svc, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterDuplicateIsConflict(t *testing.T) {
	svc := &stubAuthService{err: pkgerrors.New(pkgerrors.CodeConflict, "email already registered")}
	body := `{"email":"a@example.com","password":"correct-horse","firstName":"A","lastName":"B"}`
	rec := httptest.NewRecorder()

	Register(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body)))

	assert.Equal(t, http.StatusConflict, rec.Code)
}
