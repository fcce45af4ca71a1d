package model

import (
	"fmt"
	"time"
)

// Kind selects the entity flavour a document belongs to.
type Kind string

// Entity kinds.
const (
	KindAsset   Kind = "asset"
	KindTracker Kind = "tracker"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindAsset || k == KindTracker
}

// ApprovalState is the governance state of an entity.
type ApprovalState string

// Approval states.
const (
	StateUnapproved    ApprovalState = "unapproved"
	StateApproved      ApprovalState = "approved"
	StateEditRequested ApprovalState = "edit_requested"
	StateEditApproved  ApprovalState = "edit_approved"
)

// Valid reports whether s is a known state.
func (s ApprovalState) Valid() bool {
	switch s {
	case StateUnapproved, StateApproved, StateEditRequested, StateEditApproved:
		return true
	}
	return false
}

// DepreciationRate is the period over which depreciationValue percent is lost.
type DepreciationRate string

// Depreciation rates.
const (
	RateDaily   DepreciationRate = "daily"
	RateWeekly  DepreciationRate = "weekly"
	RateMonthly DepreciationRate = "monthly"
	RateYearly  DepreciationRate = "yearly"
)

// PeriodDays returns the length of one depreciation period in days.
func (r DepreciationRate) PeriodDays() (int, error) {
	switch r {
	case RateDaily:
		return 1, nil
	case RateWeekly:
		return 7, nil
	case RateMonthly:
		return 30, nil
	case RateYearly:
		return 365, nil
	}
	return 0, fmt.Errorf("%w: unknown depreciation rate %q", ErrInvalidArgument, r)
}

// LocationPoint is one entry of a tracker's location history.
type LocationPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Longitude float64   `json:"longitude"`
	Latitude  float64   `json:"latitude"`
}

// Entity is an asset or tracker document.
type Entity struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Revision  int64     `json:"revision"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`

	// Asset only.
	OriginalPrice     float64          `json:"originalPrice,omitempty"`
	DepreciationRate  DepreciationRate `json:"depreciationRate,omitempty"`
	DepreciationValue float64          `json:"depreciationValue,omitempty"`
	PurchaseDate      *time.Time       `json:"purchaseDate,omitempty"`
	CurrentPrice      float64          `json:"currentPrice,omitempty"`
	TrackerID         string           `json:"trackerId,omitempty"`

	// Tracker only.
	Mobile          bool            `json:"mobile,omitempty"`
	VehicleType     string          `json:"vehicleType,omitempty"`
	PlateNumber     string          `json:"plateNumber,omitempty"`
	AssetID         string          `json:"assetId,omitempty"`
	LastLocation    *LocationPoint  `json:"lastLocation,omitempty"`
	LocationHistory []LocationPoint `json:"locationHistory,omitempty"`

	ImageURL string `json:"imageURL,omitempty"`
	QRCode   string `json:"qrCode,omitempty"`

	State           ApprovalState `json:"state"`
	ApprovedBy      string        `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time    `json:"approvedAt,omitempty"`
	EditRequestedBy string        `json:"editRequestedBy,omitempty"`
	EditRequestedAt *time.Time    `json:"editRequestedAt,omitempty"`
	ProposedChanges *Changes      `json:"proposedChanges,omitempty"`
	EditApprovedBy  string        `json:"editApprovedBy,omitempty"`
	EditApprovedAt  *time.Time    `json:"editApprovedAt,omitempty"`
}

// Approved reports whether the entity has ever been approved.
func (e *Entity) Approved() bool {
	return e.State != StateUnapproved && e.State != ""
}

// EditRequested reports whether an edit request is pending.
func (e *Entity) EditRequested() bool {
	return e.State == StateEditRequested
}

// EditApproved reports whether a one-shot edit grant is open.
func (e *Entity) EditApproved() bool {
	return e.State == StateEditApproved
}

// Filter narrows listEntities results. Zero values match everything.
type Filter struct {
	Approved  *bool
	State     ApprovalState
	TrackerID string
	CreatedBy string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e *Entity) bool {
	if f.Approved != nil && e.Approved() != *f.Approved {
		return false
	}
	if f.State != "" && e.State != f.State {
		return false
	}
	if f.TrackerID != "" && e.TrackerID != f.TrackerID {
		return false
	}
	if f.CreatedBy != "" && e.CreatedBy != f.CreatedBy {
		return false
	}
	return true
}
