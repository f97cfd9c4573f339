package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "github.com/lib/pq"

	"github.com/yuliyu123/nft-auction/auction"
	"github.com/yuliyu123/nft-auction/crypto"
)

// PostgresStore implements Store with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore opens the database, verifies connectivity, and runs
// migrations.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS auctions (
		collection VARCHAR(42) NOT NULL,
		asset_id BIGINT NOT NULL,
		seller VARCHAR(42) NOT NULL,
		payment_medium VARCHAR(42) NOT NULL,
		min_price NUMERIC(78, 18) NOT NULL,
		deadline TIMESTAMP WITH TIME ZONE NOT NULL,
		max_bid_user VARCHAR(42) NOT NULL,
		max_bid_amount NUMERIC(78, 18) NOT NULL,
		is_active BOOLEAN NOT NULL,
		is_finalized BOOLEAN NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (collection, asset_id)
	);

	CREATE TABLE IF NOT EXISTS escrow_entries (
		collection VARCHAR(42) NOT NULL,
		asset_id BIGINT NOT NULL,
		bidder VARCHAR(42) NOT NULL,
		amount NUMERIC(78, 18) NOT NULL,
		PRIMARY KEY (collection, asset_id, bidder)
	);

	CREATE INDEX IF NOT EXISTS idx_auctions_finalized ON auctions(is_finalized);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveAuction upserts the auction row and replaces its escrow entries in one
// transaction.
func (s *PostgresStore) SaveAuction(key auction.Key, rec auction.Record, escrow map[crypto.Address]decimal.Decimal) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO auctions
		(collection, asset_id, seller, payment_medium, min_price, deadline,
		 max_bid_user, max_bid_amount, is_active, is_finalized, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	ON CONFLICT (collection, asset_id) DO UPDATE SET
		seller = EXCLUDED.seller,
		payment_medium = EXCLUDED.payment_medium,
		min_price = EXCLUDED.min_price,
		deadline = EXCLUDED.deadline,
		max_bid_user = EXCLUDED.max_bid_user,
		max_bid_amount = EXCLUDED.max_bid_amount,
		is_active = EXCLUDED.is_active,
		is_finalized = EXCLUDED.is_finalized,
		created_at = EXCLUDED.created_at,
		updated_at = NOW()
	`,
		key.Collection.String(),
		int64(key.AssetID),
		rec.Seller.String(),
		rec.PaymentMedium.String(),
		rec.MinPrice.String(),
		rec.Deadline,
		rec.MaxBidUser.String(),
		rec.MaxBidAmount.String(),
		rec.IsActive,
		rec.IsFinalized,
		rec.CreatedAt,
	)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM escrow_entries WHERE collection = $1 AND asset_id = $2",
		key.Collection.String(), int64(key.AssetID))
	if err != nil {
		return err
	}

	for bidder, amount := range escrow {
		_, err = tx.ExecContext(ctx, `
		INSERT INTO escrow_entries (collection, asset_id, bidder, amount)
		VALUES ($1, $2, $3, $4)
		`, key.Collection.String(), int64(key.AssetID), bidder.String(), amount.String())
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadAll retrieves every persisted auction with its escrow entries.
func (s *PostgresStore) LoadAll() ([]StoredAuction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT collection, asset_id, seller, payment_medium, min_price, deadline,
		       max_bid_user, max_bid_amount, is_active, is_finalized, created_at
		FROM auctions
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byKey := make(map[auction.Key]*StoredAuction)
	var result []StoredAuction

	for rows.Next() {
		var (
			collection, seller, medium, maxBidUser string
			assetID                                int64
			minPrice, maxBidAmount                 string
			rec                                    auction.Record
		)
		if err := rows.Scan(&collection, &assetID, &seller, &medium, &minPrice, &rec.Deadline,
			&maxBidUser, &maxBidAmount, &rec.IsActive, &rec.IsFinalized, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning auction row: %w", err)
		}

		key, err := scanKey(collection, assetID)
		if err != nil {
			return nil, err
		}
		if rec.Seller, err = crypto.NewAddressFromString(seller); err != nil {
			return nil, err
		}
		if rec.PaymentMedium, err = crypto.NewAddressFromString(medium); err != nil {
			return nil, err
		}
		if rec.MaxBidUser, err = crypto.NewAddressFromString(maxBidUser); err != nil {
			return nil, err
		}
		if rec.MinPrice, err = decimal.NewFromString(minPrice); err != nil {
			return nil, err
		}
		if rec.MaxBidAmount, err = decimal.NewFromString(maxBidAmount); err != nil {
			return nil, err
		}

		byKey[key] = &StoredAuction{Key: key, Record: rec, Escrow: make(map[crypto.Address]decimal.Decimal)}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	escrowRows, err := s.db.QueryContext(ctx, "SELECT collection, asset_id, bidder, amount FROM escrow_entries")
	if err != nil {
		return nil, err
	}
	defer escrowRows.Close()

	for escrowRows.Next() {
		var (
			collection, bidder, amount string
			assetID                    int64
		)
		if err := escrowRows.Scan(&collection, &assetID, &bidder, &amount); err != nil {
			return nil, fmt.Errorf("scanning escrow row: %w", err)
		}

		key, err := scanKey(collection, assetID)
		if err != nil {
			return nil, err
		}
		stored, ok := byKey[key]
		if !ok {
			continue
		}

		addr, err := crypto.NewAddressFromString(bidder)
		if err != nil {
			return nil, err
		}
		locked, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, err
		}
		stored.Escrow[addr] = locked
	}
	if err := escrowRows.Err(); err != nil {
		return nil, err
	}

	for _, stored := range byKey {
		result = append(result, *stored)
	}
	return result, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func scanKey(collection string, assetID int64) (auction.Key, error) {
	addr, err := crypto.NewAddressFromString(collection)
	if err != nil {
		return auction.Key{}, fmt.Errorf("invalid stored collection %q: %w", collection, err)
	}
	return auction.Key{Collection: addr, AssetID: uint64(assetID)}, nil
}
