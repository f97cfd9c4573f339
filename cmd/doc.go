// Package cmd provides the CLI commands for the auction service.
//
// # Commands
//
// auctiond: Runs the auction HTTP service with in-process payment and asset
// collaborators, optional PostgreSQL persistence, metrics, and the websocket
// event feed.
//
//	go run ./cmd/auctiond --addr=:8080 --metrics-addr=:9090
//	go run ./cmd/auctiond --config=auctiond.yaml
//
// demo: Drives a complete auction against a locally started service: lists
// an asset, places competing bids from three bidders, settles after the
// deadline, and prints the resulting balances.
//
//	go run ./cmd/demo
//
// # Configuration
//
// Both commands support YAML configuration files via the --config flag.
// Command-line flags override config file values.
//
// Example config for auctiond:
//
//	listen_addr: ":8080"
//	metrics_addr: ":9090"
//	enable_pprof: false
//	engine_key: ""
//	postgres:
//	  host: "localhost"
//	  port: 5432
//	  user: "auction"
//	  password: "auction"
//	  database: "auction"
//	dev:
//	  enabled: true
//	  balance: "10000"
//	  accounts:
//	    - "0x6622d18b77a66e9a0223cf30f823b2fee7064a0e"
//	  assets:
//	    - owner: "0x6622d18b77a66e9a0223cf30f823b2fee7064a0e"
//	      id: 1
//
// With dev.enabled the service mints the configured balances and assets on
// its in-process collaborators and pre-approves the engine for all of them,
// so signed requests from those accounts work immediately.
package cmd
