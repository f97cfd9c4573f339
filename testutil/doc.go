// Package testutil provides fixtures for auction engine and service tests:
// funded accounts with real keypairs, mock ledger and asset registry setup,
// and a controllable clock. It is intended for tests only.
package testutil
