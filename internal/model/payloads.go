package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payload shapes for the event families this service consumes and
// publishes. Field names follow the wire contract of the owning
// services, so optional fields stay pointers to distinguish "absent"
// from zero values.

type PaymentCompletedPayload struct {
	PaymentCode string          `json:"paymentCode"`
	Amount      decimal.Decimal `json:"amount"`
	UserID      string          `json:"userId,omitempty"`
	Timestamp   *time.Time      `json:"timestamp,omitempty"`
}

type PaymentFailedPayload struct {
	PaymentCode string     `json:"paymentCode"`
	Reason      string     `json:"reason,omitempty"`
	UserID      string     `json:"userId,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

type UserCreatedPayload struct {
	ID       int64   `json:"id"`
	Email    string  `json:"email"`
	FullName *string `json:"fullName,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	UserType string  `json:"userType"`
}

type UserUpdatedPayload struct {
	ID       int64   `json:"id"`
	Email    string  `json:"email"`
	FullName *string `json:"fullName,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	UserType *string `json:"userType,omitempty"`
}

type UserKycStatusPayload struct {
	UserID    int64  `json:"userId"`
	Email     string `json:"email"`
	KycStatus string `json:"kycStatus"` // PENDING | APPROVED | REJECTED
}

type WalletTransactionPayload struct {
	TransactionID string          `json:"transactionId"`
	WalletID      string          `json:"walletId,omitempty"`
	UserID        string          `json:"userId"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

type ListingPayload struct {
	ListingID      string          `json:"listingId"`
	OwnerID        string          `json:"ownerId,omitempty"`
	CreditsAmount  decimal.Decimal `json:"creditsAmount"`
	PricePerCredit decimal.Decimal `json:"pricePerCredit"`
	ListingType    string          `json:"listingType,omitempty"`
	Status         string          `json:"status,omitempty"`
}

// Admin-originated payloads, consumed by the owning services to merge
// back-office changes into their own state.

type AdminUserUpdatedPayload struct {
	UserID    string  `json:"userId"`
	Email     string  `json:"email"`
	FullName  *string `json:"fullName,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	UpdatedBy string  `json:"updatedBy"`
}

type AdminKycUpdatedPayload struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	KycStatus string `json:"kycStatus"` // PENDING | VERIFIED | REJECTED
	UpdatedBy string `json:"updatedBy"`
}

type AdminUserStatusPayload struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	Action    string `json:"action"` // LOCK | UNLOCK | SUSPEND | ACTIVATE
	Reason    string `json:"reason,omitempty"`
	UpdatedBy string `json:"updatedBy"`
}

type AdminListingFlaggedPayload struct {
	ListingID  string `json:"listingId"`
	FlagType   string `json:"flagType"`
	FlagReason string `json:"flagReason,omitempty"`
	UpdatedBy  string `json:"updatedBy"`
}
