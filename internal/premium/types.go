// Package premium sells time-limited premium packages to vendors through the
// same gateway as customer orders, using the premium order-code namespace.
package premium

import (
	"time"

	"github.com/imrishuroy/laundry-payflow/internal/aws"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
)

// Package is a catalog entry.
type Package struct {
	ID           string `dynamodbav:"id" json:"id"`
	Name         string `dynamodbav:"name" json:"name"`
	Price        int64  `dynamodbav:"price" json:"price"`
	DurationDays int    `dynamodbav:"duration_days" json:"durationDays"`
	Active       bool   `dynamodbav:"active" json:"active"`
}

// VendorPackage is one purchase of a catalog package by a vendor.
type VendorPackage struct {
	ID           string         `dynamodbav:"id" json:"id"` // PK
	VendorID     string         `dynamodbav:"vendor_id" json:"vendorId"`
	PackageID    string         `dynamodbav:"package_id" json:"packageId"`
	PackageName  string         `dynamodbav:"package_name" json:"packageName"`
	Price        int64          `dynamodbav:"price" json:"price"`
	DurationDays int            `dynamodbav:"duration_days" json:"durationDays"`
	Status       Status         `dynamodbav:"status" json:"status"`
	OrderCode    int64          `dynamodbav:"order_code" json:"orderCode"`
	CheckoutURL  string         `dynamodbav:"checkout_url" json:"checkoutUrl,omitempty"`
	ActivatedAt  *aws.Timestamp `dynamodbav:"activated_at,omitempty" json:"activatedAt,omitempty"`
	ExpiresAt    *aws.Timestamp `dynamodbav:"expires_at,omitempty" json:"expiresAt,omitempty"`
	CreatedAt    aws.Timestamp  `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt    aws.Timestamp  `dynamodbav:"updated_at" json:"updatedAt"`
}

// Duration is how long the package stays active once paid.
func (v VendorPackage) Duration() time.Duration {
	return time.Duration(v.DurationDays) * 24 * time.Hour
}

type Purchase struct {
	Package     VendorPackage `json:"package"`
	CheckoutURL string        `json:"checkoutUrl"`
	OrderCode   int64         `json:"orderCode"`
}
