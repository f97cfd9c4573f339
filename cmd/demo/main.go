// Command demo starts an auction service in process and drives a complete
// auction over its HTTP API: three bidders compete for one asset, the
// deadline passes, and an uninvolved caller settles the sale.
//
//	go run ./cmd/demo
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/yuliyu123/nft-auction/api/httpserver"
	"github.com/yuliyu123/nft-auction/assets"
	"github.com/yuliyu123/nft-auction/auction"
	"github.com/yuliyu123/nft-auction/cmd/common"
	"github.com/yuliyu123/nft-auction/crypto"
	"github.com/yuliyu123/nft-auction/services"
	"github.com/yuliyu123/nft-auction/testutil"
	"github.com/yuliyu123/nft-auction/token"
)

const assetID = 1

func main() {
	var (
		addr     = flag.String("addr", "127.0.0.1:8099", "Address for the demo service")
		lifetime = flag.Duration("lifetime", 5*time.Second, "Auction lifetime")
	)
	flag.Parse()

	if err := run(*addr, *lifetime); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(addr string, lifetime time.Duration) error {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	seller := testutil.MustGenerateAccount()
	bob := testutil.MustGenerateAccount()
	frank := testutil.MustGenerateAccount()
	tom := testutil.MustGenerateAccount()

	ledger := token.NewMockLedger()
	ledgers := token.NewRegistry()
	ledgers.Register(common.DevMedium, ledger)
	custodian := assets.NewMockRegistry()

	engine, err := auction.NewEngine(auction.EngineConfig{
		Self:      crypto.Address{0xEE},
		Ledgers:   ledgers,
		Custodian: custodian,
		Log:       log,
	})
	if err != nil {
		return err
	}

	for _, bidder := range []*testutil.Account{bob, frank, tom} {
		ledger.Mint(bidder.Address, decimal.NewFromInt(10000))
		if err := ledger.Approve(bidder.Address, engine.Address(), decimal.NewFromInt(10000)); err != nil {
			return err
		}
	}
	if err := custodian.Mint(seller.Address, common.DevCollection, assetID); err != nil {
		return err
	}
	if err := custodian.Approve(seller.Address, engine.Address(), common.DevCollection, assetID); err != nil {
		return err
	}

	feed := services.NewEventFeed(log)
	handler := services.NewAuctionHandler(engine, services.NewInMemoryStore(), feed, log)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               addr,
		Log:                      log,
		DrainDuration:            time.Second,
		GracefulShutdownDuration: 5 * time.Second,
	}, handler)
	if err != nil {
		return err
	}
	srv.RunInBackground()
	defer srv.Shutdown()

	base := "http://" + addr
	if err := waitReady(base); err != nil {
		return err
	}

	go streamEvents("ws://" + addr + "/ws")

	names := map[crypto.Address]string{
		seller.Address: "seller",
		bob.Address:    "bob",
		frank.Address:  "frank",
		tom.Address:    "tom",
	}

	fmt.Println("== Listing asset ==")
	deadline := time.Now().Add(lifetime)
	status, body, err := postSigned(base, "/auctions", seller.PrivateKey, &services.CreateAuctionRequest{
		Collection:    common.DevCollection,
		AssetID:       assetID,
		PaymentMedium: common.DevMedium,
		MinPrice:      decimal.NewFromInt(2),
		Deadline:      deadline,
	})
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("listing failed (%d): %s", status, body)
	}
	fmt.Printf("asset %s/%d listed by seller, min price 2, deadline in %s\n",
		common.DevCollection, assetID, lifetime)

	bids := []struct {
		account *testutil.Account
		amount  int64
	}{
		{bob, 2}, {frank, 3}, {bob, 4}, {tom, 5},
		{frank, 19}, {bob, 19}, {bob, 100}, {tom, 200},
	}

	fmt.Println("\n== Bidding ==")
	bidPath := fmt.Sprintf("/auctions/%s/%d/bids", common.DevCollection, assetID)
	for _, b := range bids {
		status, body, err := postSigned(base, bidPath, b.account.PrivateKey, &services.BidRequest{
			Collection: common.DevCollection,
			AssetID:    assetID,
			Amount:     decimal.NewFromInt(b.amount),
		})
		if err != nil {
			return err
		}
		name := names[b.account.Address]
		if status == http.StatusOK {
			fmt.Printf("%-6s bids %4d: accepted\n", name, b.amount)
		} else {
			fmt.Printf("%-6s bids %4d: rejected (%s)\n", name, b.amount, errorMessage(body))
		}
	}

	fmt.Println("\n== Pause and resume ==")
	action := &services.AuctionActionRequest{Collection: common.DevCollection, AssetID: assetID}
	stopPath := fmt.Sprintf("/auctions/%s/%d/stop", common.DevCollection, assetID)
	if status, body, err = postSigned(base, stopPath, seller.PrivateKey, action); err != nil {
		return err
	} else if status != http.StatusOK {
		return fmt.Errorf("pause failed (%d): %s", status, body)
	}
	status, body, err = postSigned(base, bidPath, bob.PrivateKey, &services.BidRequest{
		Collection: common.DevCollection,
		AssetID:    assetID,
		Amount:     decimal.NewFromInt(300),
	})
	if err != nil {
		return err
	}
	fmt.Printf("bob bids 300 while paused: rejected (%s)\n", errorMessage(body))
	resumePath := fmt.Sprintf("/auctions/%s/%d/resume", common.DevCollection, assetID)
	if status, body, err = postSigned(base, resumePath, seller.PrivateKey, action); err != nil {
		return err
	} else if status != http.StatusOK {
		return fmt.Errorf("resume failed (%d): %s", status, body)
	}
	fmt.Println("auction paused and resumed by the seller")

	fmt.Println("\n== Balances with escrow locked ==")
	printBalances(ledger, names, seller, bob, frank, tom)

	remaining := time.Until(deadline) + time.Second
	fmt.Printf("\nwaiting %s for the deadline...\n", remaining.Round(time.Second))
	time.Sleep(remaining)

	fmt.Println("\n== Settling (called by frank) ==")
	finishPath := fmt.Sprintf("/auctions/%s/%d/finish", common.DevCollection, assetID)
	status, body, err = postSigned(base, finishPath, frank.PrivateKey, &services.AuctionActionRequest{
		Collection: common.DevCollection,
		AssetID:    assetID,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("settlement failed (%d): %s", status, body)
	}

	var settlement services.SettlementResponse
	if err := json.Unmarshal(body, &settlement); err != nil {
		return err
	}
	fmt.Printf("winner: %s at price %s, refunds issued: %d, failed: %d\n",
		names[settlement.Report.Winner], settlement.Report.SalePrice,
		len(settlement.Report.Refunded), len(settlement.Report.Failed))

	owner, err := engine.OwnerOf(common.DevCollection, assetID)
	if err != nil {
		return err
	}
	fmt.Printf("asset now owned by: %s\n", names[owner])

	fmt.Println("\n== Final balances ==")
	printBalances(ledger, names, seller, bob, frank, tom)

	return nil
}

func waitReady(base string) error {
	for i := 0; i < 50; i++ {
		resp, err := http.Get(base + "/livez")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("service at %s never became ready", base)
}

func streamEvents(url string) {
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev auction.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			continue
		}
		fmt.Printf("  [event] %s %s\n", ev.Type, ev.Key)
	}
}

func postSigned[T any](base, path string, key crypto.PrivateKey, obj *T) (int, []byte, error) {
	signed, err := crypto.NewSigned(key, obj)
	if err != nil {
		return 0, nil, err
	}
	payload, err := json.Marshal(signed)
	if err != nil {
		return 0, nil, err
	}

	resp, err := http.Post(base+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

func errorMessage(body []byte) string {
	var errResp services.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return string(body)
	}
	return errResp.Error
}

func printBalances(ledger *token.MockLedger, names map[crypto.Address]string, accounts ...*testutil.Account) {
	for _, account := range accounts {
		fmt.Printf("%-6s %s\n", names[account.Address], ledger.BalanceOf(account.Address))
	}
}
