package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/yuliyu123/nft-auction/auction"
	"github.com/yuliyu123/nft-auction/crypto"
	"github.com/yuliyu123/nft-auction/metrics"
)

// AuctionHandler exposes the auction engine's operations over HTTP and fans
// committed events out to the store and the websocket feed.
type AuctionHandler struct {
	engine *auction.Engine
	store  Store
	feed   *EventFeed
	log    *slog.Logger
}

// NewAuctionHandler creates the handler and installs it as the engine's
// observer. Store and feed may be nil.
func NewAuctionHandler(engine *auction.Engine, store Store, feed *EventFeed, log *slog.Logger) *AuctionHandler {
	h := &AuctionHandler{
		engine: engine,
		store:  store,
		feed:   feed,
		log:    log,
	}
	engine.SetObserver(h.onEvent)
	return h
}

// RegisterRoutes registers the auction API on the router.
func (h *AuctionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auctions", h.handleCreate)
	r.Get("/auctions", h.handleList)

	r.Route("/auctions/{collection}/{asset_id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Get("/owner", h.handleOwner)
		r.Get("/escrow/{bidder}", h.handleEscrow)
		r.Post("/bids", h.handleBid)
		r.Post("/stop", h.handleStop)
		r.Post("/resume", h.handleResume)
		r.Post("/finish", h.handleFinish)
		r.Post("/refunds/retry", h.handleRetryRefunds)
	})

	if h.feed != nil {
		r.Get("/ws", h.feed.ServeWS)
	}
}

// onEvent persists the committed state and broadcasts it. Runs synchronously
// on the mutating call's goroutine; the feed hands off to subscriber queues.
func (h *AuctionHandler) onEvent(ev auction.Event) {
	switch ev.Type {
	case auction.EventAuctionCreated:
		metrics.AuctionsCreated.Inc()
	case auction.EventBidPlaced:
		metrics.BidsPlaced.Inc()
	case auction.EventAuctionFinalized:
		metrics.AuctionsSettled.Inc()
	}
	if ev.Report != nil {
		metrics.RefundsIssued.Add(len(ev.Report.Refunded))
		metrics.RefundsFailed.Add(len(ev.Report.Failed))
	}

	if h.store != nil {
		escrow := h.engine.EscrowEntries(ev.Key.Collection, ev.Key.AssetID)
		if err := h.store.SaveAuction(ev.Key, ev.Record, escrow); err != nil {
			h.log.Error("persisting auction state failed", "key", ev.Key.String(), "err", err)
		}
	}

	if h.feed != nil {
		h.feed.Broadcast(ev)
	}
}

func (h *AuctionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var signedReq crypto.Signed[CreateAuctionRequest]
	if err := json.NewDecoder(r.Body).Decode(&signedReq); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, signer, err := signedReq.Recover()
	if err != nil {
		writeError(w, http.StatusForbidden, fmt.Sprintf("invalid signature: %v", err))
		return
	}

	rec, err := h.engine.CreateTokenAuction(signer, req.Collection, req.AssetID, req.PaymentMedium, req.MinPrice, req.Deadline)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, &AuctionResponse{
		Collection: req.Collection,
		AssetID:    req.AssetID,
		Record:     rec,
	})
}

func (h *AuctionHandler) handleBid(w http.ResponseWriter, r *http.Request) {
	collection, assetID, ok := urlKey(w, r)
	if !ok {
		return
	}

	var signedReq crypto.Signed[BidRequest]
	if err := json.NewDecoder(r.Body).Decode(&signedReq); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, signer, err := signedReq.Recover()
	if err != nil {
		writeError(w, http.StatusForbidden, fmt.Sprintf("invalid signature: %v", err))
		return
	}

	if req.Collection != collection || req.AssetID != assetID {
		writeError(w, http.StatusBadRequest, "auction key mismatch between URL and body")
		return
	}

	rec, err := h.engine.Bid(signer, collection, assetID, req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &AuctionResponse{Collection: collection, AssetID: assetID, Record: rec})
}

func (h *AuctionHandler) handleStop(w http.ResponseWriter, r *http.Request) {
	h.handleSetActive(w, r, false)
}

func (h *AuctionHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.handleSetActive(w, r, true)
}

func (h *AuctionHandler) handleSetActive(w http.ResponseWriter, r *http.Request, active bool) {
	collection, assetID, signer, ok := h.recoverAction(w, r)
	if !ok {
		return
	}

	var (
		rec auction.Record
		err error
	)
	if active {
		rec, err = h.engine.ResumeAuction(signer, collection, assetID)
	} else {
		rec, err = h.engine.StopAuction(signer, collection, assetID)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &AuctionResponse{Collection: collection, AssetID: assetID, Record: rec})
}

func (h *AuctionHandler) handleFinish(w http.ResponseWriter, r *http.Request) {
	collection, assetID, signer, ok := h.recoverAction(w, r)
	if !ok {
		return
	}

	report, err := h.engine.FinishSale(signer, collection, assetID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &SettlementResponse{Report: report})
}

func (h *AuctionHandler) handleRetryRefunds(w http.ResponseWriter, r *http.Request) {
	collection, assetID, ok := urlKey(w, r)
	if !ok {
		return
	}

	report, err := h.engine.RetryRefunds(collection, assetID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &SettlementResponse{Report: report})
}

func (h *AuctionHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	collection, assetID, ok := urlKey(w, r)
	if !ok {
		return
	}

	rec, err := h.engine.GetAuctionDetails(collection, assetID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &AuctionResponse{Collection: collection, AssetID: assetID, Record: rec})
}

func (h *AuctionHandler) handleOwner(w http.ResponseWriter, r *http.Request) {
	collection, assetID, ok := urlKey(w, r)
	if !ok {
		return
	}

	owner, err := h.engine.OwnerOf(collection, assetID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &OwnerResponse{Owner: owner})
}

func (h *AuctionHandler) handleEscrow(w http.ResponseWriter, r *http.Request) {
	collection, assetID, ok := urlKey(w, r)
	if !ok {
		return
	}

	bidder, err := crypto.NewAddressFromString(chi.URLParam(r, "bidder"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bidder address")
		return
	}

	writeJSON(w, http.StatusOK, &EscrowResponse{
		Bidder: bidder,
		Amount: h.engine.AmountOwed(collection, assetID, bidder),
	})
}

func (h *AuctionHandler) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &ListResponse{Auctions: h.engine.List()})
}

// recoverAction decodes a signed action envelope and checks it against the
// URL key.
func (h *AuctionHandler) recoverAction(w http.ResponseWriter, r *http.Request) (crypto.Address, uint64, crypto.Address, bool) {
	collection, assetID, ok := urlKey(w, r)
	if !ok {
		return crypto.Address{}, 0, crypto.Address{}, false
	}

	var signedReq crypto.Signed[AuctionActionRequest]
	if err := json.NewDecoder(r.Body).Decode(&signedReq); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return crypto.Address{}, 0, crypto.Address{}, false
	}

	req, signer, err := signedReq.Recover()
	if err != nil {
		writeError(w, http.StatusForbidden, fmt.Sprintf("invalid signature: %v", err))
		return crypto.Address{}, 0, crypto.Address{}, false
	}

	if req.Collection != collection || req.AssetID != assetID {
		writeError(w, http.StatusBadRequest, "auction key mismatch between URL and body")
		return crypto.Address{}, 0, crypto.Address{}, false
	}

	return collection, assetID, signer, true
}

func urlKey(w http.ResponseWriter, r *http.Request) (crypto.Address, uint64, bool) {
	collection, err := crypto.NewAddressFromString(chi.URLParam(r, "collection"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid collection address")
		return crypto.Address{}, 0, false
	}

	assetID, err := strconv.ParseUint(chi.URLParam(r, "asset_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid asset id")
		return crypto.Address{}, 0, false
	}

	return collection, assetID, true
}

// writeEngineError maps engine error kinds to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auction.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, auction.ErrUnauthorized), errors.Is(err, auction.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, auction.ErrAlreadyListed),
		errors.Is(err, auction.ErrAlreadyFinalized),
		errors.Is(err, auction.ErrNotActive),
		errors.Is(err, auction.ErrExpired),
		errors.Is(err, auction.ErrTooEarly):
		status = http.StatusConflict
	case errors.Is(err, auction.ErrInvalidDuration), errors.Is(err, auction.ErrBidTooLow):
		status = http.StatusBadRequest
	case errors.Is(err, auction.ErrTransferFailed):
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	metrics.RequestsRejected.Inc()
	writeJSON(w, status, &ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
