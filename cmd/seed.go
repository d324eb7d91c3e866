package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/config"
	"github.com/ccm-platform/carbon-admin/internal/db"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo admin users and managed rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo admin users...")

		if err := seedAdminUsers(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seeding demo managed rows...")

		if err := seedManagedRows(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed")
		return nil
	},
}

// seedAdminUsers inserts deterministic demo operators (idempotent).
func seedAdminUsers(dbx *sqlx.DB) error {
	admins := []model.AdminUser{
		{
			Username:     "root",
			Email:        "root@example.com",
			APIKey:       "11111111111111111111111111111111",
			Role:         "superadmin",
			Status:       "active",
			RateLimitRPS: intptr(50),
		},
		{
			Username:     "ops-alice",
			Email:        "alice@example.com",
			APIKey:       "22222222222222222222222222222222",
			Role:         "operator",
			Status:       "active",
			RateLimitRPS: intptr(20),
		},
		{
			Username:     "ops-bob",
			Email:        "bob@example.com",
			APIKey:       "33333333333333333333333333333333",
			Role:         "operator",
			Status:       "active",
			RateLimitRPS: intptr(5),
		},
		{
			Username:     "former-staff",
			Email:        "former@example.com",
			APIKey:       "44444444444444444444444444444444",
			Role:         "operator",
			Status:       "suspended",
			RateLimitRPS: nil,
		},
	}

	// idempotent upsert based on api_key (UNIQUE)
	const q = `
INSERT INTO admin_users
    (username, email, api_key, role, status, rate_limit_rps, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    username       = VALUES(username),
    email          = VALUES(email),
    role           = VALUES(role),
    status         = VALUES(status),
    rate_limit_rps = VALUES(rate_limit_rps),
    updated_at     = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, a := range admins {
		if _, err := tx.Exec(q, a.Username, a.Email, a.APIKey, a.Role, a.Status, a.RateLimitRPS, now, now); err != nil {
			return fmt.Errorf("insert admin %q: %w", a.Username, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit admins: %w", err)
	}
	return nil
}

// seedManagedRows inserts a few synced-looking entities so the list
// endpoints have data before any consumer runs (idempotent).
func seedManagedRows(dbx *sqlx.DB) error {
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()

	const qUsers = `
INSERT INTO managed_users
    (external_user_id, email, full_name, user_type, status, kyc_status, synced_at)
VALUES
    (?, ?, ?, ?, 'ACTIVE', ?, ?)
ON DUPLICATE KEY UPDATE email = email
`
	users := [][]any{
		{"usr-1001", "maria@example.com", "Maria Petrova", "EV_OWNER", "VERIFIED"},
		{"usr-1002", "chen@example.com", "Chen Wei", "BUYER", "PENDING"},
		{"usr-1003", "amira@example.com", "Amira Hassan", "CVA", "VERIFIED"},
	}
	for _, u := range users {
		if _, err := tx.Exec(qUsers, u[0], u[1], u[2], u[3], u[4], now); err != nil {
			return fmt.Errorf("insert managed user %v: %w", u[1], err)
		}
	}

	const qTxs = `
INSERT INTO managed_transactions
    (external_transaction_id, user_id, amount, status, completed_at, synced_at)
VALUES
    (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE external_transaction_id = external_transaction_id
`
	txs := [][]any{
		{"PAY_SEED_1", "usr-1002", "250.0000", "COMPLETED", now},
		{"PAY_SEED_2", "usr-1002", "80.5000", "PENDING", nil},
	}
	for _, t := range txs {
		if _, err := tx.Exec(qTxs, t[0], t[1], t[2], t[3], t[4], now); err != nil {
			return fmt.Errorf("insert managed transaction %v: %w", t[0], err)
		}
	}

	const qListings = `
INSERT INTO managed_listings
    (external_listing_id, owner_id, credits_amount, price_per_credit, listing_type, status, synced_at)
VALUES
    (?, ?, ?, ?, ?, 'ACTIVE', ?)
ON DUPLICATE KEY UPDATE external_listing_id = external_listing_id
`
	listings := [][]any{
		{"lst-2001", "usr-1001", "120.0000", "4.2500", "SELL"},
		{"lst-2002", "usr-1003", "300.0000", "3.9000", "SELL"},
	}
	for _, l := range listings {
		if _, err := tx.Exec(qListings, l[0], l[1], l[2], l[3], l[4], now); err != nil {
			return fmt.Errorf("insert managed listing %v: %w", l[0], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit managed rows: %w", err)
	}
	return nil
}

func intptr(i int) *int { return &i }
