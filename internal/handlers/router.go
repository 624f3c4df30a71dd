package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/escrow/internal/handlers/middleware"
	"github.com/nkiryanov/escrow/internal/logger"
	"github.com/nkiryanov/escrow/internal/models"
	"github.com/nkiryanov/escrow/internal/service/notify"
	"github.com/nkiryanov/escrow/internal/service/payment"
	"github.com/nkiryanov/escrow/internal/service/withdrawal"
	"github.com/nkiryanov/escrow/internal/service/workorder"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type Services struct {
	Auth        authService
	Users       userService
	Payments    paymentService
	WorkOrders  workOrderService
	Withdrawals withdrawalService
	Reviews     reviewService
	Hub         *notify.Hub
}

type Options struct {
	// Idempotency-Key responses are kept here. Without cache the header is not enforced.
	Cache          redis.Cmdable
	IdempotencyTTL time.Duration

	CORSOrigins []string
}

func NewRouter(s Services, opts Options, logger logger.Logger) http.Handler {
	withAuth := middleware.AuthMiddleware(s.Auth)
	withAdmin := func(h http.Handler) http.Handler {
		return chain(h, withAuth, middleware.RequireAdmin)
	}
	withIdempotency := func(h http.Handler) http.Handler {
		if opts.Cache == nil {
			return chain(h, withAuth)
		}
		return chain(h, withAuth, middleware.Idempotency(opts.Cache, opts.IdempotencyTTL, logger))
	}

	apiuser := http.NewServeMux()

	apiuser.Handle("POST /login", handleLogin(s.Auth, logger))
	apiuser.Handle("POST /register", handleRegister(s.Auth, logger))
	apiuser.Handle("POST /refresh", handleTokenRefresh(s.Auth, logger))

	apiuser.Handle("GET /me", withAuth(handleUserMe()))
	apiuser.Handle("GET /balance", withAuth(handleUserBalance(s.Users, logger)))
	apiuser.Handle("GET /withdrawals", withAuth(handleListWithdrawals(s.Withdrawals, logger)))
	apiuser.Handle("POST /withdrawals", withIdempotency(handleRequestWithdrawal(s.Withdrawals, logger)))
	apiuser.Handle("GET /payments/{ref}", withAuth(handleGetPayment(s.Payments, logger)))

	root := http.NewServeMux()
	root.Handle("/api/user/", http.StripPrefix("/api/user", apiuser))

	root.Handle("POST /api/payments", withIdempotency(handleCreatePayment(s.Payments, logger)))

	root.Handle("POST /api/orders", withAuth(handleCreateOrder(s.WorkOrders, logger)))
	root.Handle("GET /api/orders", withAuth(handleListOrders(s.WorkOrders, logger)))
	root.Handle("GET /api/orders/{id}", withAuth(handleGetOrder(s.WorkOrders, logger)))
	root.Handle("POST /api/orders/{id}/transition", withAuth(handleTransition(s.WorkOrders, logger)))
	root.Handle("POST /api/orders/{id}/review", withAuth(handleCreateReview(s.Reviews, logger)))
	root.Handle("GET /api/orders/{id}/review", withAuth(handleGetReview(s.Reviews, logger)))

	root.Handle("GET /api/admin/withdrawals", withAdmin(handleListPendingWithdrawals(s.Withdrawals, logger)))
	root.Handle("POST /api/admin/withdrawals/{id}/approve", withAdmin(handleResolveWithdrawal(s.Withdrawals, withdrawal.Approve, logger)))
	root.Handle("POST /api/admin/withdrawals/{id}/reject", withAdmin(handleResolveWithdrawal(s.Withdrawals, withdrawal.Reject, logger)))

	if s.Hub != nil {
		root.Handle("GET /api/notifications/ws", withAuth(handleNotifications(s.Hub, logger)))
	}

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	if len(opts.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.IdempotencyKeyHeader},
			ExposedHeaders:   []string{"Authorization"},
			AllowCredentials: true,
		}).Handler(handler)
	}

	return handler
}

type authService interface {
	// Register user with username and password
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	Register(ctx context.Context, username string, password string) (models.TokenPair, error)

	// Login user with username and password
	// Has to return apperrors.ErrUserNotFound if user not found
	Login(ctx context.Context, username string, password string) (models.TokenPair, error)

	// Refresh tokens using refresh token
	// If token expired: has to return apperrors.ErrRefreshTokenExpired
	// If token not found: has to return apperrors.ErrRefreshTokenNotFound
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)

	// Set auth tokens (access, refresh) to response
	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)

	// Get refresh token from request
	GetRefreshString(r *http.Request) (string, error)

	// Get request and return user if it authenticated or error
	GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error)
}

type userService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (models.Account, error)
}

type paymentService interface {
	// Failed payments are returned together with the cause
	RequestPayment(ctx context.Context, req payment.Request) (models.LedgerEntry, error)
	GetPayment(ctx context.Context, userID uuid.UUID, externalRef string) (models.LedgerEntry, error)
}

type workOrderService interface {
	CreateOffer(ctx context.Context, contractorID uuid.UUID, p workorder.OfferParams) (models.WorkOrder, error)
	GetWorkOrder(ctx context.Context, orderID uuid.UUID, actorID uuid.UUID) (models.WorkOrder, error)
	ListWorkOrders(ctx context.Context, actorID uuid.UUID) ([]models.WorkOrder, error)
	Transition(ctx context.Context, orderID uuid.UUID, actorID uuid.UUID, target models.WorkOrderStatus) (models.WorkOrder, error)
}

type withdrawalService interface {
	RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, externalRef string) (models.LedgerEntry, error)
	ListUserWithdrawals(ctx context.Context, userID uuid.UUID) ([]models.LedgerEntry, error)
	ListPending(ctx context.Context) ([]models.LedgerEntry, error)
	Resolve(ctx context.Context, entryID uuid.UUID, adminID uuid.UUID, decision withdrawal.Decision) (models.LedgerEntry, error)
}

type reviewService interface {
	CreateReview(ctx context.Context, orderID uuid.UUID, authorID uuid.UUID, rating int, comment string) (models.Review, error)
	GetReview(ctx context.Context, orderID uuid.UUID, actorID uuid.UUID) (models.Review, error)
}
