package services

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/yuliyu123/nft-auction/auction"
	"github.com/yuliyu123/nft-auction/crypto"
)

// StoredAuction is one persisted auction: the record plus its escrow entries.
type StoredAuction struct {
	Key    auction.Key
	Record auction.Record
	Escrow map[crypto.Address]decimal.Decimal
}

// Store persists auction state. The handler writes through on every
// committed event; LoadAll feeds the engine at startup.
type Store interface {
	// SaveAuction upserts the record and replaces its escrow entries.
	SaveAuction(key auction.Key, rec auction.Record, escrow map[crypto.Address]decimal.Decimal) error

	// LoadAll retrieves every persisted auction.
	LoadAll() ([]StoredAuction, error)

	// Close releases the underlying resources.
	Close() error
}

// RestoreAll replays persisted auctions into the engine.
func RestoreAll(engine *auction.Engine, store Store) error {
	stored, err := store.LoadAll()
	if err != nil {
		return err
	}
	for _, s := range stored {
		engine.Restore(s.Key, s.Record, s.Escrow)
	}
	return nil
}

// InMemoryStore implements Store without a database, for tests and
// single-process deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	auctions map[auction.Key]StoredAuction
}

// NewInMemoryStore creates an in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{auctions: make(map[auction.Key]StoredAuction)}
}

// SaveAuction stores a snapshot in memory.
func (s *InMemoryStore) SaveAuction(key auction.Key, rec auction.Record, escrow map[crypto.Address]decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[crypto.Address]decimal.Decimal, len(escrow))
	for bidder, amount := range escrow {
		copied[bidder] = amount
	}
	s.auctions[key] = StoredAuction{Key: key, Record: rec, Escrow: copied}
	return nil
}

// LoadAll returns all stored auctions.
func (s *InMemoryStore) LoadAll() ([]StoredAuction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]StoredAuction, 0, len(s.auctions))
	for _, stored := range s.auctions {
		result = append(result, stored)
	}
	return result, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
