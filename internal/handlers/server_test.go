package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/escrow/internal/logger"
	"github.com/nkiryanov/escrow/internal/models"
	"github.com/nkiryanov/escrow/internal/repository"
	"github.com/nkiryanov/escrow/internal/repository/postgres"
	"github.com/nkiryanov/escrow/internal/service/auth"
	"github.com/nkiryanov/escrow/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/escrow/internal/service/notify"
	"github.com/nkiryanov/escrow/internal/service/payment"
	"github.com/nkiryanov/escrow/internal/service/review"
	"github.com/nkiryanov/escrow/internal/service/user"
	"github.com/nkiryanov/escrow/internal/service/withdrawal"
	"github.com/nkiryanov/escrow/internal/service/workorder"
)

const testAdmin = "root"

// Production services on top of a test transaction
type testServer struct {
	URL     string
	storage repository.Storage
	tokens  *tokenmanager.TokenManager
	users   *user.UserService
	hub     *notify.Hub
	redis   *miniredis.Miniredis
}

func newTestServer(t *testing.T, tx pgx.Tx) *testServer {
	t.Helper()

	l := logger.NewNoOpLogger()
	storage := postgres.NewStorage(tx)

	tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"}, storage)
	require.NoError(t, err, "token manager should be created without errors")

	users := user.NewService(auth.BcryptHasher{}, storage, testAdmin)
	authService, err := auth.NewService(auth.Config{}, tokens, users)
	require.NoError(t, err, "auth service starting error")

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	hub := notify.NewHub()
	gateway := payment.SimulatedGateway{ApprovedCardNumber: payment.DefaultApprovedCardNumber}

	router := NewRouter(Services{
		Auth:        authService,
		Users:       users,
		Payments:    payment.NewService(storage, gateway, notify.Discard, l),
		WorkOrders:  workorder.NewService(storage, notify.Discard, l),
		Withdrawals: withdrawal.NewService(storage, notify.Discard, l),
		Reviews:     review.NewService(storage),
		Hub:         hub,
	}, Options{
		Cache:          cache,
		IdempotencyTTL: time.Minute,
	}, l)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{
		URL:     srv.URL,
		storage: storage,
		tokens:  tokens,
		users:   users,
		hub:     hub,
		redis:   mr,
	}
}

// bearer returns Authorization header value for the user
func (s *testServer) bearer(t *testing.T, u models.User) string {
	t.Helper()
	pair, err := s.tokens.GeneratePair(t.Context(), u)
	require.NoError(t, err)
	return "Bearer " + pair.Access.Value
}

type apiResponse struct {
	Code   int
	Body   string
	Header http.Header
	Resp   *http.Response
}

// JSON decodes body into a generic map
func (r apiResponse) JSON(t *testing.T) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.Body), &v), "body: %s", r.Body)
	return v
}

func (r apiResponse) List(t *testing.T) []map[string]any {
	t.Helper()
	var v []map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.Body), &v), "body: %s", r.Body)
	return v
}

// do sends request; headers go as key/value pairs
func (s *testServer) do(t *testing.T, method string, path string, body string, headers ...string) apiResponse {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck

	return apiResponse{Code: resp.StatusCode, Body: string(data), Header: resp.Header, Resp: resp}
}
