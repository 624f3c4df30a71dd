package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/escrow/internal/models"
	"github.com/nkiryanov/escrow/internal/service/wallet"
	"github.com/nkiryanov/escrow/internal/testutil"
)

// Money in wallets plus money held in escrow equals what came in from outside minus what left.
const conservationQuery = `
SELECT
	(SELECT COALESCE(SUM(balance), 0) FROM accounts),
	COALESCE(SUM(amount) FILTER (WHERE kind = 'ESCROW_HOLD' AND status = 'SUCCESS'), 0)
		- COALESCE(SUM(amount) FILTER (WHERE kind = 'PAYOUT' AND status = 'SUCCESS'), 0),
	COALESCE(SUM(amount) FILTER (WHERE kind = 'DEPOSIT' AND status = 'SUCCESS'), 0)
		+ COALESCE(SUM(amount) FILTER (WHERE kind = 'ESCROW_HOLD' AND status = 'SUCCESS' AND method <> 'WALLET'), 0),
	COALESCE(SUM(amount) FILTER (WHERE kind = 'WITHDRAWAL' AND status IN ('PENDING', 'SUCCESS')), 0)
FROM ledger_entries`

func TestConservation(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
		s := newTestServer(t, tx)

		requireConserved := func(t *testing.T, step string) {
			t.Helper()
			var balances, held, inflow, outflow decimal.Decimal
			err := tx.QueryRow(t.Context(), conservationQuery).Scan(&balances, &held, &inflow, &outflow)
			require.NoError(t, err)

			require.Truef(t, balances.Add(held).Equal(inflow.Sub(outflow)),
				"after %s: balances %s + held %s != inflow %s - outflow %s", step, balances, held, inflow, outflow)
		}

		alice := testutil.CreateUser(t, s.storage, "alice", "0")
		bob := testutil.CreateUser(t, s.storage, "bob", "0")
		carol := testutil.CreateUser(t, s.storage, "carol", "0")
		admin, err := s.users.CreateUser(t.Context(), testAdmin, "StrongEnoughPassword")
		require.NoError(t, err)

		asAlice, asBob, asCarol, asAdmin := s.bearer(t, alice), s.bearer(t, bob), s.bearer(t, carol), s.bearer(t, admin)

		post := func(token string, key string, path string, body string) apiResponse {
			t.Helper()
			return s.do(t, "POST", path, body, "Authorization", token, "Idempotency-Key", key)
		}
		expect := func(res apiResponse, code int) apiResponse {
			t.Helper()
			require.Equalf(t, code, res.Code, "body: %s", res.Body)
			return res
		}

		expect(post(asAlice, "top-up", "/api/payments",
			fmt.Sprintf(`{"receiver_id": %q, "amount": 1000, "method": "CARD", "card_number": "4242424242424242"}`, alice.ID)), http.StatusCreated)
		requireConserved(t, "card deposit")

		expect(post(asAlice, "gift", "/api/payments",
			fmt.Sprintf(`{"receiver_id": %q, "amount": 200, "method": "WALLET"}`, bob.ID)), http.StatusCreated)
		requireConserved(t, "wallet transfer")

		expect(post(asBob, "declined", "/api/payments",
			fmt.Sprintf(`{"receiver_id": %q, "amount": 50, "method": "CARD", "card_number": "4111111111111111"}`, bob.ID)), http.StatusPaymentRequired)
		requireConserved(t, "declined card")

		// Order paid from wallet on accept and released on completion
		first := expect(post(asCarol, "offer-1", "/api/orders",
			fmt.Sprintf(`{"hiring_party_id": %q, "title": "Site", "price": 300, "duration_days": 3}`, alice.ID)), http.StatusCreated)
		firstPath := "/api/orders/" + first.JSON(t)["id"].(string)
		expect(post(asAlice, "", firstPath+"/transition", `{"status": "IN_PROGRESS"}`), http.StatusOK)
		requireConserved(t, "escrow hold from wallet")
		expect(post(asCarol, "", firstPath+"/transition", `{"status": "SUBMITTED"}`), http.StatusOK)
		expect(post(asAlice, "", firstPath+"/transition", `{"status": "COMPLETED"}`), http.StatusOK)
		requireConserved(t, "payout")

		// Order paid by card straight into escrow and left in progress
		second := expect(post(asCarol, "offer-2", "/api/orders",
			fmt.Sprintf(`{"hiring_party_id": %q, "title": "Copy", "price": 150, "duration_days": 1}`, bob.ID)), http.StatusCreated)
		expect(post(asBob, "card-escrow", "/api/payments",
			fmt.Sprintf(`{"work_order_id": %q, "amount": 150, "method": "CARD", "card_number": "4242424242424242"}`, second.JSON(t)["id"])), http.StatusCreated)
		requireConserved(t, "escrow hold by card")

		kept := expect(post(asCarol, "w-keep", "/api/user/withdrawals", `{"amount": 100}`), http.StatusAccepted)
		rejected := expect(post(asCarol, "w-reject", "/api/user/withdrawals", `{"amount": 50}`), http.StatusAccepted)
		approved := expect(post(asBob, "w-approve", "/api/user/withdrawals", `{"amount": 20}`), http.StatusAccepted)
		requireConserved(t, "pending withdrawals")

		expect(post(asAdmin, "", "/api/admin/withdrawals/"+rejected.JSON(t)["id"].(string)+"/reject", ""), http.StatusOK)
		expect(post(asAdmin, "", "/api/admin/withdrawals/"+approved.JSON(t)["id"].(string)+"/approve", ""), http.StatusOK)
		requireConserved(t, "resolved withdrawals")

		w := wallet.New()
		for _, tc := range []struct {
			name string
			user models.User
			want string
		}{
			{"alice", alice, "500"}, // 1000 - 200 - 300
			{"bob", bob, "180"},     // 200 - 20, card escrow doesn't touch wallet
			{"carol", carol, "200"}, // 300 - 100 pending, rejected 50 refunded
		} {
			balance, err := w.Balance(t.Context(), s.storage.Account(), tc.user.ID)
			require.NoError(t, err)
			testutil.RequireDecimal(t, tc.want, balance, tc.name)
		}

		require.Equal(t, "PENDING", kept.JSON(t)["status"])
	})
}
