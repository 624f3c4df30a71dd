package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/escrow/internal/testutil"
)

func TestRouter(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	withServer := func(t *testing.T, fn func(s *testServer)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			fn(newTestServer(t, tx))
		})
	}

	notFound := `{"error": "service_error", "message": "Not found or you are not authorized for this action"}`
	processed := `{"error": "service_error", "message": "This request was already processed"}`

	t.Run("work order lifecycle", func(t *testing.T) {
		withServer(t, func(s *testServer) {
			hiring := testutil.CreateUser(t, s.storage, "hiring", "1000")
			contractor := testutil.CreateUser(t, s.storage, "contractor", "0")
			stranger := testutil.CreateUser(t, s.storage, "stranger", "0")
			asHiring := s.bearer(t, hiring)
			asContractor := s.bearer(t, contractor)
			asStranger := s.bearer(t, stranger)

			offer := s.do(t, "POST", "/api/orders",
				fmt.Sprintf(`{"hiring_party_id": %q, "title": "Logo", "price": 300, "duration_days": 7}`, hiring.ID),
				"Authorization", asContractor)
			require.Equalf(t, http.StatusCreated, offer.Code, "body: %s", offer.Body)
			require.Equal(t, "OFFER_PENDING", offer.JSON(t)["status"])
			orderPath := "/api/orders/" + offer.JSON(t)["id"].(string)

			transition := func(token string, status string) apiResponse {
				return s.do(t, "POST", orderPath+"/transition", fmt.Sprintf(`{"status": %q}`, status), "Authorization", token)
			}

			res := s.do(t, "GET", orderPath, "", "Authorization", asStranger)
			require.Equal(t, http.StatusNotFound, res.Code)
			require.JSONEq(t, notFound, res.Body)

			res = transition(asContractor, "IN_PROGRESS")
			require.Equal(t, http.StatusNotFound, res.Code, "contractor can't accept own offer")

			res = transition(asHiring, "IN_PROGRESS")
			require.Equalf(t, http.StatusOK, res.Code, "body: %s", res.Body)
			require.Equal(t, "700.00", testutil.Balance(t, s.storage, hiring.ID), "price is held on accept")

			res = transition(asContractor, "SUBMITTED")
			require.Equal(t, http.StatusOK, res.Code)

			res = transition(asHiring, "COMPLETED")
			require.Equal(t, http.StatusOK, res.Code)
			require.Equal(t, "COMPLETED", res.JSON(t)["status"])
			require.NotEmpty(t, res.JSON(t)["completed_at"])
			require.Equal(t, "300.00", testutil.Balance(t, s.storage, contractor.ID))

			res = transition(asHiring, "COMPLETED")
			require.Equal(t, http.StatusNotFound, res.Code, "completed order is terminal")
			require.JSONEq(t, notFound, res.Body)
			require.Equal(t, "300.00", testutil.Balance(t, s.storage, contractor.ID), "paid only once")

			res = transition(asHiring, "FINISHED")
			require.Equal(t, http.StatusBadRequest, res.Code)

			list := s.do(t, "GET", "/api/orders", "", "Authorization", asContractor)
			require.Equal(t, http.StatusOK, list.Code)
			require.Len(t, list.List(t), 1)

			res = s.do(t, "POST", orderPath+"/review", `{"rating": 5, "comment": "on time"}`, "Authorization", asContractor)
			require.Equal(t, http.StatusNotFound, res.Code, "only hiring party reviews")

			res = s.do(t, "POST", orderPath+"/review", `{"rating": 5, "comment": "on time"}`, "Authorization", asHiring)
			require.Equalf(t, http.StatusCreated, res.Code, "body: %s", res.Body)

			res = s.do(t, "POST", orderPath+"/review", `{"rating": 1}`, "Authorization", asHiring)
			require.Equal(t, http.StatusConflict, res.Code)
			require.JSONEq(t, processed, res.Body)

			res = s.do(t, "GET", orderPath+"/review", "", "Authorization", asContractor)
			require.Equal(t, http.StatusOK, res.Code)
			require.EqualValues(t, 5, res.JSON(t)["rating"])
			require.Equal(t, contractor.ID.String(), res.JSON(t)["subject_id"])
		})
	})

	t.Run("malformed order id", func(t *testing.T) {
		withServer(t, func(s *testServer) {
			u := testutil.CreateUser(t, s.storage, "someone", "0")

			res := s.do(t, "GET", "/api/orders/not-a-uuid", "", "Authorization", s.bearer(t, u))

			require.Equal(t, http.StatusNotFound, res.Code)
			require.JSONEq(t, notFound, res.Body)
		})
	})

	t.Run("payments", func(t *testing.T) {
		withServer(t, func(s *testServer) {
			payer := testutil.CreateUser(t, s.storage, "payer", "500")
			receiver := testutil.CreateUser(t, s.storage, "receiver", "0")
			stranger := testutil.CreateUser(t, s.storage, "stranger", "0")
			asPayer := s.bearer(t, payer)

			pay := func(key string, body string) apiResponse {
				return s.do(t, "POST", "/api/payments", body, "Authorization", asPayer, "Idempotency-Key", key)
			}

			t.Run("wallet transfer replayed", func(t *testing.T) {
				body := fmt.Sprintf(`{"receiver_id": %q, "amount": 100, "method": "WALLET"}`, receiver.ID)

				first := pay("transfer-1", body)
				second := pay("transfer-1", body)

				require.Equalf(t, http.StatusCreated, first.Code, "body: %s", first.Body)
				require.Equal(t, "SUCCESS", first.JSON(t)["status"])
				require.Equal(t, payer.ID.String()+":payment:transfer-1", first.JSON(t)["external_ref"], "idempotency key is the ledger reference")
				require.Equal(t, first.Body, second.Body)
				require.Equal(t, "true", second.Header.Get("Idempotent-Replayed"))
				require.Equal(t, "400.00", testutil.Balance(t, s.storage, payer.ID))
				require.Equal(t, "100.00", testutil.Balance(t, s.storage, receiver.ID))
			})

			t.Run("lookup by ref", func(t *testing.T) {
				path := "/api/user/payments/" + payer.ID.String() + ":payment:transfer-1"

				res := s.do(t, "GET", "/api/user/payments/payment:transfer-1", "", "Authorization", asPayer)
				require.Equal(t, http.StatusOK, res.Code, "payer looks up by own ref")

				res = s.do(t, "GET", path, "", "Authorization", s.bearer(t, receiver))
				require.Equal(t, http.StatusOK, res.Code, "receiver looks up by stored ref")
				require.Equal(t, "TRANSFER", res.JSON(t)["kind"])

				res = s.do(t, "GET", path, "", "Authorization", s.bearer(t, stranger))
				require.Equal(t, http.StatusNotFound, res.Code)
			})

			t.Run("reused ref with new key", func(t *testing.T) {
				res := pay("transfer-2", fmt.Sprintf(`{"receiver_id": %q, "amount": 100, "method": "WALLET", "external_ref": "payment:transfer-1"}`, receiver.ID))

				require.Equal(t, http.StatusConflict, res.Code)
				require.JSONEq(t, processed, res.Body)
				require.Equal(t, "400.00", testutil.Balance(t, s.storage, payer.ID))
			})

			t.Run("insufficient funds recorded", func(t *testing.T) {
				res := pay("transfer-3", fmt.Sprintf(`{"receiver_id": %q, "amount": 10000, "method": "WALLET"}`, receiver.ID))

				require.Equalf(t, http.StatusPaymentRequired, res.Code, "body: %s", res.Body)
				require.Equal(t, "FAILED", res.JSON(t)["status"])
				require.NotEmpty(t, res.JSON(t)["failure_reason"])
			})

			t.Run("card", func(t *testing.T) {
				tests := []struct {
					name       string
					card       string
					wantCode   int
					wantStatus string
				}{
					{"approved", "4242424242424242", http.StatusCreated, "SUCCESS"},
					{"declined", "4111111111111111", http.StatusPaymentRequired, "FAILED"},
				}

				for _, tc := range tests {
					t.Run(tc.name, func(t *testing.T) {
						res := pay("card-"+tc.name, fmt.Sprintf(`{"receiver_id": %q, "amount": 50, "method": "CARD", "card_number": %q}`, payer.ID, tc.card))

						require.Equalf(t, tc.wantCode, res.Code, "body: %s", res.Body)
						require.Equal(t, tc.wantStatus, res.JSON(t)["status"])
					})
				}
				require.Equal(t, "450.00", testutil.Balance(t, s.storage, payer.ID), "only approved card tops up")
			})

			t.Run("rejected requests", func(t *testing.T) {
				tests := []struct {
					name        string
					body        string
					wantCode    int
					wantMessage string
				}{
					{"bad card number", fmt.Sprintf(`{"receiver_id": %q, "amount": 50, "method": "CARD", "card_number": "4242424242424241"}`, payer.ID), http.StatusBadRequest, ""},
					{"unknown method", fmt.Sprintf(`{"receiver_id": %q, "amount": 50, "method": "CASH"}`, receiver.ID), http.StatusBadRequest, ""},
					{"zero amount", fmt.Sprintf(`{"receiver_id": %q, "amount": 0, "method": "WALLET"}`, receiver.ID), http.StatusUnprocessableEntity, ""},
					{"too large", fmt.Sprintf(`{"receiver_id": %q, "amount": 10000000000000, "method": "CARD", "card_number": "4242424242424242"}`, receiver.ID), http.StatusUnprocessableEntity, ""},
					{"to self", fmt.Sprintf(`{"receiver_id": %q, "amount": 1, "method": "WALLET"}`, payer.ID), http.StatusBadRequest, "wallet transfer to self"},
				}

				for _, tc := range tests {
					t.Run(tc.name, func(t *testing.T) {
						res := pay("rejected-"+tc.name, tc.body)

						require.Equalf(t, tc.wantCode, res.Code, "body: %s", res.Body)
						if tc.wantMessage != "" {
							require.Equal(t, tc.wantMessage, res.JSON(t)["message"])
						}
					})
				}
			})

			t.Run("idempotency key required", func(t *testing.T) {
				res := s.do(t, "POST", "/api/payments", fmt.Sprintf(`{"receiver_id": %q, "amount": 1, "method": "WALLET"}`, receiver.ID), "Authorization", asPayer)

				require.Equal(t, http.StatusBadRequest, res.Code)
			})
		})
	})

	t.Run("withdrawals", func(t *testing.T) {
		withServer(t, func(s *testServer) {
			requester := testutil.CreateUser(t, s.storage, "requester", "1000")
			asRequester := s.bearer(t, requester)
			admin, err := s.users.CreateUser(t.Context(), testAdmin, "StrongEnoughPassword")
			require.NoError(t, err)
			asAdmin := s.bearer(t, admin)

			withdraw := func(key string, amount string) apiResponse {
				return s.do(t, "POST", "/api/user/withdrawals", `{"amount": `+amount+`}`, "Authorization", asRequester, "Idempotency-Key", key)
			}

			first := withdraw("w-1", "400")
			require.Equalf(t, http.StatusAccepted, first.Code, "body: %s", first.Body)
			require.Equal(t, "PENDING", first.JSON(t)["status"])
			require.Equal(t, "600.00", testutil.Balance(t, s.storage, requester.ID), "funds are taken on request")
			second := withdraw("w-2", "100")
			require.Equal(t, http.StatusAccepted, second.Code)

			require.Equal(t, http.StatusUnprocessableEntity, withdraw("w-3", "0").Code)
			require.Equal(t, http.StatusPaymentRequired, withdraw("w-4", "5000").Code)

			mine := s.do(t, "GET", "/api/user/withdrawals", "", "Authorization", asRequester)
			require.Equal(t, http.StatusOK, mine.Code)
			require.Len(t, mine.List(t), 2)

			res := s.do(t, "GET", "/api/admin/withdrawals", "", "Authorization", asRequester)
			require.Equal(t, http.StatusNotFound, res.Code, "admin routes are hidden from users")

			pending := s.do(t, "GET", "/api/admin/withdrawals", "", "Authorization", asAdmin)
			require.Equal(t, http.StatusOK, pending.Code)
			require.Len(t, pending.List(t), 2)

			rejectPath := "/api/admin/withdrawals/" + first.JSON(t)["id"].(string) + "/reject"
			res = s.do(t, "POST", rejectPath, "", "Authorization", asAdmin)
			require.Equalf(t, http.StatusOK, res.Code, "body: %s", res.Body)
			require.Equal(t, "FAILED", res.JSON(t)["status"])
			require.Equal(t, "1000.00", testutil.Balance(t, s.storage, requester.ID), "rejected withdrawal is refunded")

			res = s.do(t, "POST", rejectPath, "", "Authorization", asAdmin)
			require.Equal(t, http.StatusConflict, res.Code)
			require.Equal(t, "1000.00", testutil.Balance(t, s.storage, requester.ID), "refunded once")

			approvePath := "/api/admin/withdrawals/" + second.JSON(t)["id"].(string) + "/approve"
			res = s.do(t, "POST", approvePath, "", "Authorization", asAdmin)
			require.Equal(t, http.StatusOK, res.Code)
			require.Equal(t, "SUCCESS", res.JSON(t)["status"])
			require.Equal(t, "1000.00", testutil.Balance(t, s.storage, requester.ID))

			pending = s.do(t, "GET", "/api/admin/withdrawals", "", "Authorization", asAdmin)
			require.Empty(t, pending.List(t))

			// The key already used for a withdrawal must not replay it on another endpoint
			res = s.do(t, "POST", "/api/payments", fmt.Sprintf(`{"receiver_id": %q, "amount": 10, "method": "WALLET"}`, admin.ID), "Authorization", asRequester, "Idempotency-Key", "w-2")
			require.Equalf(t, http.StatusCreated, res.Code, "body: %s", res.Body)
			require.Empty(t, res.Header.Get("Idempotent-Replayed"))
			require.Equal(t, "TRANSFER", res.JSON(t)["kind"])
			require.Equal(t, "990.00", testutil.Balance(t, s.storage, requester.ID))
		})
	})

	t.Run("notifications websocket", func(t *testing.T) {
		withServer(t, func(s *testServer) {
			u := testutil.CreateUser(t, s.storage, "listener", "0")

			wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/notifications/ws"
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {s.bearer(t, u)}})
			require.NoError(t, err)
			defer conn.Close() // nolint:errcheck
			require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

			require.Eventually(t, func() bool {
				return s.hub.Connections(u.ID.String()) == 1
			}, time.Second, 10*time.Millisecond)

			delivered := s.hub.Deliver(u.ID.String(), []byte(`{"kind":"payment.received"}`))
			require.Equal(t, 1, delivered)

			require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
			_, msg, err := conn.ReadMessage()
			require.NoError(t, err)
			require.JSONEq(t, `{"kind":"payment.received"}`, string(msg))
		})
	})

	t.Run("notifications need auth", func(t *testing.T) {
		withServer(t, func(s *testServer) {
			wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/notifications/ws"
			_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)

			require.Error(t, err)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	})

}
