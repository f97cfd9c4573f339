package services

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/yuliyu123/nft-auction/auction"
	"github.com/yuliyu123/nft-auction/crypto"
	"github.com/yuliyu123/nft-auction/testutil"
)

func setupService(t *testing.T) (*chi.Mux, *testutil.Env, *InMemoryStore) {
	t.Helper()

	env, err := testutil.NewEnv()
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewInMemoryStore()
	handler := NewAuctionHandler(env.Engine, store, NewEventFeed(log), log)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router, env, store
}

func postSigned[T any](t *testing.T, router http.Handler, path string, key crypto.PrivateKey, obj *T) *httptest.ResponseRecorder {
	t.Helper()

	signed, err := crypto.NewSigned(key, obj)
	require.NoError(t, err)
	body, err := json.Marshal(signed)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, router http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
	}
	return rec
}

func createAuction(t *testing.T, router http.Handler, env *testutil.Env, lifetime time.Duration) {
	t.Helper()

	rec := postSigned(t, router, "/auctions", env.Seller.PrivateKey, &CreateAuctionRequest{
		Collection:    env.Collection,
		AssetID:       1,
		PaymentMedium: env.Medium,
		MinPrice:      decimal.NewFromInt(2),
		Deadline:      env.Clock.Now().Add(lifetime),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func auctionPath(env *testutil.Env, suffix string) string {
	return "/auctions/" + env.Collection.String() + "/1" + suffix
}

func TestCreateAndQueryAuction(t *testing.T) {
	router, env, store := setupService(t)
	createAuction(t, router, env, time.Hour)

	var detail AuctionResponse
	rec := get(t, router, auctionPath(env, "/"), &detail)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, env.Seller.Address, detail.Record.Seller)
	require.True(t, detail.Record.IsActive)

	var owner OwnerResponse
	get(t, router, auctionPath(env, "/owner"), &owner)
	require.Equal(t, env.Engine.Address(), owner.Owner)

	var list ListResponse
	get(t, router, "/auctions", &list)
	require.Len(t, list.Auctions, 1)

	// Creation was persisted through the observer.
	stored, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, env.Seller.Address, stored[0].Record.Seller)

	rec = get(t, router, "/auctions/"+env.Collection.String()+"/99/", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBidOverHTTP(t *testing.T) {
	router, env, store := setupService(t)
	createAuction(t, router, env, time.Hour)

	bidder := env.Bidders[0]
	rec := postSigned(t, router, auctionPath(env, "/bids"), bidder.PrivateKey, &BidRequest{
		Collection: env.Collection,
		AssetID:    1,
		Amount:     decimal.NewFromInt(5),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AuctionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, bidder.Address, resp.Record.MaxBidUser)

	var escrow EscrowResponse
	get(t, router, auctionPath(env, "/escrow/"+bidder.Address.String()), &escrow)
	require.True(t, escrow.Amount.Equal(decimal.NewFromInt(5)))

	// Matching the current maximum is rejected as too low.
	rec = postSigned(t, router, auctionPath(env, "/bids"), env.Bidders[1].PrivateKey, &BidRequest{
		Collection: env.Collection,
		AssetID:    1,
		Amount:     decimal.NewFromInt(5),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// URL and body must address the same auction.
	rec = postSigned(t, router, auctionPath(env, "/bids"), env.Bidders[1].PrivateKey, &BidRequest{
		Collection: env.Collection,
		AssetID:    2,
		Amount:     decimal.NewFromInt(6),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Escrow entries are persisted alongside the record.
	stored, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.True(t, stored[0].Escrow[bidder.Address].Equal(decimal.NewFromInt(5)))
}

func TestTamperedRequestRejected(t *testing.T) {
	router, env, _ := setupService(t)
	createAuction(t, router, env, time.Hour)

	bidder := env.Bidders[0]
	signed, err := crypto.NewSigned(bidder.PrivateKey, &BidRequest{
		Collection: env.Collection,
		AssetID:    1,
		Amount:     decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	// Raise the amount after signing.
	signed.Object.Amount = decimal.NewFromInt(500)
	body, err := json.Marshal(signed)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, auctionPath(env, "/bids"), bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// The engine never saw the request.
	var detail AuctionResponse
	get(t, router, auctionPath(env, "/"), &detail)
	require.False(t, detail.Record.HasBid())
	require.True(t, env.Ledger.BalanceOf(bidder.Address).Equal(decimal.NewFromInt(10000)))
}

func TestStopResumeAuthorization(t *testing.T) {
	router, env, _ := setupService(t)
	createAuction(t, router, env, time.Hour)

	action := &AuctionActionRequest{Collection: env.Collection, AssetID: 1}

	rec := postSigned(t, router, auctionPath(env, "/stop"), env.Bidders[0].PrivateKey, action)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = postSigned(t, router, auctionPath(env, "/stop"), env.Seller.PrivateKey, action)
	require.Equal(t, http.StatusOK, rec.Code)

	// Bidding against a paused auction conflicts.
	rec = postSigned(t, router, auctionPath(env, "/bids"), env.Bidders[0].PrivateKey, &BidRequest{
		Collection: env.Collection,
		AssetID:    1,
		Amount:     decimal.NewFromInt(5),
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = postSigned(t, router, auctionPath(env, "/resume"), env.Seller.PrivateKey, action)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSettlementOverHTTP(t *testing.T) {
	router, env, _ := setupService(t)
	createAuction(t, router, env, time.Hour)

	loser, winner := env.Bidders[0], env.Bidders[1]
	rec := postSigned(t, router, auctionPath(env, "/bids"), loser.PrivateKey, &BidRequest{
		Collection: env.Collection, AssetID: 1, Amount: decimal.NewFromInt(5),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = postSigned(t, router, auctionPath(env, "/bids"), winner.PrivateKey, &BidRequest{
		Collection: env.Collection, AssetID: 1, Amount: decimal.NewFromInt(10),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	action := &AuctionActionRequest{Collection: env.Collection, AssetID: 1}

	// Too early to settle.
	rec = postSigned(t, router, auctionPath(env, "/finish"), winner.PrivateKey, action)
	require.Equal(t, http.StatusConflict, rec.Code)

	env.Clock.Advance(2 * time.Hour)

	rec = postSigned(t, router, auctionPath(env, "/finish"), winner.PrivateKey, action)
	require.Equal(t, http.StatusOK, rec.Code)

	var settlement SettlementResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&settlement))
	require.Equal(t, winner.Address, settlement.Report.Winner)
	require.True(t, settlement.Report.SalePrice.Equal(decimal.NewFromInt(10)))
	require.Len(t, settlement.Report.Refunded, 1)

	var owner OwnerResponse
	get(t, router, auctionPath(env, "/owner"), &owner)
	require.Equal(t, winner.Address, owner.Owner)

	require.True(t, env.Ledger.BalanceOf(env.Seller.Address).Equal(decimal.NewFromInt(10)))
	require.True(t, env.Ledger.BalanceOf(loser.Address).Equal(decimal.NewFromInt(10000)))

	// Settling twice conflicts.
	rec = postSigned(t, router, auctionPath(env, "/finish"), winner.PrivateKey, action)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRetryRefundsOverHTTP(t *testing.T) {
	router, env, _ := setupService(t)
	createAuction(t, router, env, time.Hour)

	loser, winner := env.Bidders[0], env.Bidders[1]
	postSigned(t, router, auctionPath(env, "/bids"), loser.PrivateKey, &BidRequest{
		Collection: env.Collection, AssetID: 1, Amount: decimal.NewFromInt(5),
	})
	postSigned(t, router, auctionPath(env, "/bids"), winner.PrivateKey, &BidRequest{
		Collection: env.Collection, AssetID: 1, Amount: decimal.NewFromInt(10),
	})

	env.Ledger.FailTransfersTo(loser.Address, true)
	env.Clock.Advance(2 * time.Hour)

	rec := postSigned(t, router, auctionPath(env, "/finish"), winner.PrivateKey,
		&AuctionActionRequest{Collection: env.Collection, AssetID: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	var settlement SettlementResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&settlement))
	require.Len(t, settlement.Report.Failed, 1)

	env.Ledger.FailTransfersTo(loser.Address, false)

	req := httptest.NewRequest(http.MethodPost, auctionPath(env, "/refunds/retry"), nil)
	retryRec := httptest.NewRecorder()
	router.ServeHTTP(retryRec, req)
	require.Equal(t, http.StatusOK, retryRec.Code)

	var retry SettlementResponse
	require.NoError(t, json.NewDecoder(retryRec.Body).Decode(&retry))
	require.Len(t, retry.Report.Refunded, 1)
	require.True(t, env.Ledger.BalanceOf(loser.Address).Equal(decimal.NewFromInt(10000)))
}

func TestEventFeedStreamsCommits(t *testing.T) {
	router, env, _ := setupService(t)

	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	createAuction(t, router, env, time.Hour)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev auction.Event
	require.NoError(t, json.Unmarshal(payload, &ev))
	require.Equal(t, auction.EventAuctionCreated, ev.Type)
	require.Equal(t, env.Collection, ev.Key.Collection)
}
