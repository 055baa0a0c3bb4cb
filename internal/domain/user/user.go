package user

import (
	"errors"
	"time"
)

// Roles supported by the marketplace.
const (
	RoleCarOwner    = "car_owner"
	RoleGarageOwner = "garage_owner"
	RoleAdmin       = "admin"
)

// Payment status values on a garage profile.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// Approval status values on a garage profile.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

type User struct {
	ID            string         `json:"id" bson:"_id"`
	Name          string         `json:"name" bson:"name"`
	Email         string         `json:"email" bson:"email"`
	PasswordHash  string         `json:"-" bson:"password_hash"` // never expose hash in JSON
	Phone         string         `json:"phone,omitempty" bson:"phone"`
	Role          string         `json:"role" bson:"role"`
	Active        bool           `json:"active" bson:"active"`
	Deleted       bool           `json:"-" bson:"deleted"`
	DeletedAt     *time.Time     `json:"-" bson:"deleted_at,omitempty"`
	GarageProfile *GarageProfile `json:"garageProfile,omitempty" bson:"garage_profile,omitempty"`
	CreatedAt     time.Time      `json:"createdAt" bson:"created_at"`
	UpdatedAt     time.Time      `json:"updatedAt" bson:"updated_at"`
}

// GarageProfile is the garage-owner subdocument carrying business and
// workflow fields. Present only when Role == garage_owner.
type GarageProfile struct {
	LicenseNumber      string     `json:"licenseNumber" bson:"license_number"`
	LicenseDocument    string     `json:"licenseDocument,omitempty" bson:"license_document,omitempty"`
	GarageName         string     `json:"garageName" bson:"garage_name"`
	Address            string     `json:"address" bson:"address"`
	City               string     `json:"city,omitempty" bson:"city,omitempty"`
	HourlyRate         float64    `json:"hourlyRate" bson:"hourly_rate"`
	Capacity           int        `json:"capacity" bson:"capacity"`
	Description        string     `json:"description,omitempty" bson:"description,omitempty"`
	PaymentStatus      string     `json:"paymentStatus" bson:"payment_status"`
	ApprovalStatus     string     `json:"approvalStatus" bson:"approval_status"`
	SubscriptionExpiry *time.Time `json:"subscriptionExpiry,omitempty" bson:"subscription_expiry,omitempty"`
	PaymentCustomerRef string     `json:"-" bson:"payment_customer_ref,omitempty"`
	Services           []Service  `json:"services" bson:"services"`
}

// Service is an offered service embedded in a garage profile. Soft-deleted
// entries stay in storage and are filtered out of public reads.
type Service struct {
	ID              string     `json:"id" bson:"_id"`
	Name            string     `json:"name" bson:"name"`
	Price           float64    `json:"price" bson:"price"`
	DurationMinutes int        `json:"durationMinutes" bson:"duration_minutes"`
	Description     string     `json:"description,omitempty" bson:"description,omitempty"`
	Deleted         bool       `json:"deleted" bson:"deleted"`
	DeletedAt       *time.Time `json:"deletedAt,omitempty" bson:"deleted_at,omitempty"`
	CreatedAt       time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" bson:"updated_at"`
}

// ServiceByID scans the embedded list. The list belongs to a single owner
// document, so a linear scan is fine at catalog sizes.
func (p *GarageProfile) ServiceByID(id string) (Service, bool) {
	if p == nil {
		return Service{}, false
	}

	for _, s := range p.Services {
		if s.ID == id {
			return s, true
		}
	}

	return Service{}, false
}

// ActiveServices returns the non-soft-deleted services only.
func (p *GarageProfile) ActiveServices() []Service {
	if p == nil {
		return nil
	}

	out := make([]Service, 0, len(p.Services))

	for _, s := range p.Services {
		if !s.Deleted {
			out = append(out, s)
		}
	}

	return out
}

var (
	ErrNotFound         = errors.New("user not found")
	ErrServiceNotFound  = errors.New("service not found")
	ErrEmailAlreadyUsed = errors.New("email already used")
	ErrNotGarageOwner   = errors.New("user is not a garage owner")
)

// ListGaragesFilter narrows the public garage listing. Pointer fields are
// optional; page/limit are 1-based pagination.
type ListGaragesFilter struct {
	City    *string
	Service *string
	Page    int
	Limit   int
}

// AdminGaragesFilter narrows the admin garage listing by workflow status.
type AdminGaragesFilter struct {
	ApprovalStatus *string
	PaymentStatus  *string
}

// DashboardStats backs the admin dashboard counters.
type DashboardStats struct {
	TotalUsers      int64 `json:"totalUsers"`
	TotalGarages    int64 `json:"totalGarages"`
	PendingGarages  int64 `json:"pendingGarages"`
	PendingPayments int64 `json:"pendingPayments"`
}

type SignUpRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=120"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Phone    string `json:"phone" binding:"required,min=5,max=30"`
	Role     string `json:"role" binding:"omitempty,oneof=car_owner garage_owner"`

	// Required when role is garage_owner.
	LicenseNumber string `json:"licenseNumber" binding:"omitempty,max=60"`
	GarageName    string `json:"garageName" binding:"omitempty,max=120"`
	Address       string `json:"address" binding:"omitempty,max=240"`
	City          string `json:"city" binding:"omitempty,max=80"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateProfileRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=2,max=120"`
	Phone    *string `json:"phone" binding:"omitempty,min=5,max=30"`
	Password *string `json:"password" binding:"omitempty,min=8"`
}

type UpdateGarageProfileRequest struct {
	GarageName      *string  `json:"garageName" binding:"omitempty,max=120"`
	Address         *string  `json:"address" binding:"omitempty,max=240"`
	City            *string  `json:"city" binding:"omitempty,max=80"`
	HourlyRate      *float64 `json:"hourlyRate" binding:"omitempty,min=0"`
	Capacity        *int     `json:"capacity" binding:"omitempty,min=1"`
	Description     *string  `json:"description" binding:"omitempty,max=1000"`
	LicenseNumber   *string  `json:"licenseNumber" binding:"omitempty,max=60"`
	LicenseDocument *string  `json:"licenseDocument" binding:"omitempty,max=500"`
}

type AddServiceRequest struct {
	Name            string  `json:"name" binding:"required,min=2,max=120"`
	Price           float64 `json:"price" binding:"min=0"`
	DurationMinutes int     `json:"durationMinutes" binding:"required,min=1"`
	Description     string  `json:"description" binding:"omitempty,max=1000"`
}

// UpdateServiceRequest is an allow-list patch: name, price, duration and
// description only. Unknown fields in the payload are ignored by binding.
type UpdateServiceRequest struct {
	Name            *string  `json:"name" binding:"omitempty,min=2,max=120"`
	Price           *float64 `json:"price" binding:"omitempty,min=0"`
	DurationMinutes *int     `json:"durationMinutes" binding:"omitempty,min=1"`
	Description     *string  `json:"description" binding:"omitempty,max=1000"`
}
