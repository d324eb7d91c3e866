package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Managed entities are local read models of state owned by sibling
// services. Mirrored fields are refreshed by event consumption; overlay
// fields (suspension/flag/dispute reasons) exist only here and are
// never touched by sync.

type ManagedUserStatus string

const (
	UserActive    ManagedUserStatus = "ACTIVE"
	UserSuspended ManagedUserStatus = "SUSPENDED"
	UserLocked    ManagedUserStatus = "LOCKED"
)

func (s ManagedUserStatus) String() string { return string(s) }

func (s ManagedUserStatus) Valid() bool {
	return s == UserActive || s == UserSuspended || s == UserLocked
}

type UserType string

const (
	UserTypeEVOwner UserType = "EV_OWNER"
	UserTypeBuyer   UserType = "BUYER"
	UserTypeCVA     UserType = "CVA"
)

func (t UserType) String() string { return string(t) }

// ParseUserType normalizes input; unknown values fall back to EV_OWNER.
func ParseUserType(s string) (UserType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EV_OWNER":
		return UserTypeEVOwner, true
	case "BUYER":
		return UserTypeBuyer, true
	case "CVA":
		return UserTypeCVA, true
	default:
		return UserTypeEVOwner, false
	}
}

type KycStatus string

const (
	KycPending  KycStatus = "PENDING"
	KycVerified KycStatus = "VERIFIED"
	KycRejected KycStatus = "REJECTED"
)

func (s KycStatus) String() string { return string(s) }

func (s KycStatus) Valid() bool {
	return s == KycPending || s == KycVerified || s == KycRejected
}

// ParseKycStatus maps the user service's wire values onto local ones
// (the user service says APPROVED where we say VERIFIED).
func ParseKycStatus(s string) KycStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "APPROVED", "VERIFIED":
		return KycVerified
	case "REJECTED":
		return KycRejected
	default:
		return KycPending
	}
}

type ManagedUser struct {
	ID               int64             `db:"id"`
	ExternalUserID   *string           `db:"external_user_id"` // nil until first sync
	Email            string            `db:"email"`
	FullName         *string           `db:"full_name"`
	Phone            *string           `db:"phone"`
	UserType         UserType          `db:"user_type"`
	Status           ManagedUserStatus `db:"status"`
	KycStatus        KycStatus         `db:"kyc_status"`
	SuspensionReason *string           `db:"suspension_reason"` // overlay
	CreatedAt        time.Time         `db:"created_at"`
	SyncedAt         time.Time         `db:"synced_at"`
}

type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxCompleted TransactionStatus = "COMPLETED"
	TxCancelled TransactionStatus = "CANCELLED"
	TxRefunded  TransactionStatus = "REFUNDED"
)

func (s TransactionStatus) String() string { return string(s) }

func (s TransactionStatus) Valid() bool {
	return s == TxPending || s == TxCompleted || s == TxCancelled || s == TxRefunded
}

type ManagedTransaction struct {
	ID                    int64             `db:"id"`
	ExternalTransactionID string            `db:"external_transaction_id"` // payment code
	UserID                *string           `db:"user_id"`
	Amount                decimal.Decimal   `db:"amount"`
	Status                TransactionStatus `db:"status"`
	FailureReason         *string           `db:"failure_reason"` // mirrored from payment.failed
	DisputeReason         *string           `db:"dispute_reason"` // overlay
	CompletedAt           *time.Time        `db:"completed_at"`
	CreatedAt             time.Time         `db:"created_at"`
	SyncedAt              time.Time         `db:"synced_at"`
}

type WalletTxType string

const (
	WalletTxDeposit    WalletTxType = "DEPOSIT"
	WalletTxWithdrawal WalletTxType = "WITHDRAWAL"
	WalletTxTransfer   WalletTxType = "TRANSFER"
	WalletTxRefund     WalletTxType = "REFUND"
)

func (t WalletTxType) String() string { return string(t) }

func (t WalletTxType) Valid() bool {
	return t == WalletTxDeposit || t == WalletTxWithdrawal || t == WalletTxTransfer || t == WalletTxRefund
}

type WalletTxStatus string

const (
	WalletTxPending   WalletTxStatus = "PENDING"
	WalletTxConfirmed WalletTxStatus = "CONFIRMED"
	WalletTxReversed  WalletTxStatus = "REVERSED"
	WalletTxFailed    WalletTxStatus = "FAILED"
)

func (s WalletTxStatus) String() string { return string(s) }

func (s WalletTxStatus) Valid() bool {
	return s == WalletTxPending || s == WalletTxConfirmed || s == WalletTxReversed || s == WalletTxFailed
}

type ManagedWalletTransaction struct {
	ID                    int64           `db:"id"`
	ExternalTransactionID string          `db:"external_transaction_id"`
	ExternalWalletID      *string         `db:"external_wallet_id"`
	UserID                string          `db:"user_id"`
	TransactionType       WalletTxType    `db:"transaction_type"`
	Amount                decimal.Decimal `db:"amount"`
	Status                WalletTxStatus  `db:"status"`
	BankInfo              []byte          `db:"bank_info"` // raw JSON from the wallet service
	ConfirmedAt           *time.Time      `db:"confirmed_at"`
	CreatedAt             time.Time       `db:"created_at"`
	SyncedAt              time.Time       `db:"synced_at"`
}

type ListingStatus string

const (
	ListingActive    ListingStatus = "ACTIVE"
	ListingSuspended ListingStatus = "SUSPENDED"
	ListingSold      ListingStatus = "SOLD"
	ListingCancelled ListingStatus = "CANCELLED"
)

func (s ListingStatus) String() string { return string(s) }

func (s ListingStatus) Valid() bool {
	return s == ListingActive || s == ListingSuspended || s == ListingSold || s == ListingCancelled
}

type ManagedListing struct {
	ID                int64           `db:"id"`
	ExternalListingID string          `db:"external_listing_id"`
	OwnerID           *string         `db:"owner_id"`
	CreditsAmount     decimal.Decimal `db:"credits_amount"`
	PricePerCredit    decimal.Decimal `db:"price_per_credit"`
	ListingType       string          `db:"listing_type"`
	Status            ListingStatus   `db:"status"`
	SuspensionReason  *string         `db:"suspension_reason"` // overlay
	FlagType          *string         `db:"flag_type"`         // overlay
	FlagReason        *string         `db:"flag_reason"`       // overlay
	CreatedAt         time.Time       `db:"created_at"`
	SyncedAt          time.Time       `db:"synced_at"`
}
