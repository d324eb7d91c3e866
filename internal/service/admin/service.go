package admin

import (
	"errors"

	"github.com/ccm-platform/carbon-admin/internal/audit"
	"github.com/ccm-platform/carbon-admin/internal/command"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/ccm-platform/carbon-admin/internal/service/sync"
	"github.com/jmoiron/sqlx"
)

// Target service names, keys into the dispatcher's client map.
const (
	ServiceWallet  = "wallet"
	ServiceListing = "listing"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidState = errors.New("invalid state for operation")
)

// Service implements the back-office operations. Every mutation writes
// its local rows and its outbound event in one transaction; commands
// aimed at sibling services go through the dispatcher so the audit
// contract holds.
type Service struct {
	db        *sqlx.DB
	users     repository.UsersRepository
	txs       repository.TransactionsRepository
	walletTxs repository.WalletTransactionsRepository
	listings  repository.ListingsRepository

	emitter  *sync.Emitter
	audit    *audit.Service
	dispatch *command.Dispatcher
}

func New(
	db *sqlx.DB,
	users repository.UsersRepository,
	txs repository.TransactionsRepository,
	walletTxs repository.WalletTransactionsRepository,
	listings repository.ListingsRepository,
	emitter *sync.Emitter,
	auditSvc *audit.Service,
	dispatch *command.Dispatcher,
) *Service {
	return &Service{
		db:        db,
		users:     users,
		txs:       txs,
		walletTxs: walletTxs,
		listings:  listings,
		emitter:   emitter,
		audit:     auditSvc,
		dispatch:  dispatch,
	}
}
