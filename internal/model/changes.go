package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Changes is a caller-supplied partial update. Nil fields are left untouched.
// Derived and governance fields have no counterpart here.
type Changes struct {
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`

	OriginalPrice     *float64          `json:"originalPrice,omitempty"`
	DepreciationRate  *DepreciationRate `json:"depreciationRate,omitempty"`
	DepreciationValue *float64          `json:"depreciationValue,omitempty"`
	PurchaseDate      *time.Time        `json:"purchaseDate,omitempty"`
	TrackerID         *string           `json:"trackerId,omitempty"`

	Mobile      *bool   `json:"mobile,omitempty"`
	VehicleType *string `json:"vehicleType,omitempty"`
	PlateNumber *string `json:"plateNumber,omitempty"`
}

// DecodeChanges parses a JSON change document, rejecting unknown fields such as
// currentPrice or approved.
func DecodeChanges(data []byte) (*Changes, error) {
	var c Changes
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return &c, nil
}

// Empty reports whether c changes nothing.
func (c *Changes) Empty() bool {
	return c == nil || (c.Name == nil && c.Description == nil && c.Attributes == nil &&
		c.OriginalPrice == nil && c.DepreciationRate == nil && c.DepreciationValue == nil &&
		c.PurchaseDate == nil && c.TrackerID == nil &&
		c.Mobile == nil && c.VehicleType == nil && c.PlateNumber == nil)
}

// AffectsValuation reports whether c touches an input of the valuation.
func (c *Changes) AffectsValuation() bool {
	return c != nil && (c.OriginalPrice != nil || c.DepreciationRate != nil ||
		c.DepreciationValue != nil || c.PurchaseDate != nil)
}

// Validate checks field ownership for kind and scalar ranges.
func (c *Changes) Validate(kind Kind) error {
	if c == nil {
		return nil
	}
	if c.Name != nil && *c.Name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
	}

	switch kind {
	case KindAsset:
		if c.Mobile != nil || c.VehicleType != nil || c.PlateNumber != nil {
			return fmt.Errorf("%w: mobile, vehicleType and plateNumber apply to trackers only", ErrInvalidArgument)
		}
	case KindTracker:
		if c.AffectsValuation() || c.TrackerID != nil {
			return fmt.Errorf("%w: valuation fields and trackerId apply to assets only", ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidArgument, kind)
	}

	if c.OriginalPrice != nil && !finiteNonNegative(*c.OriginalPrice) {
		return fmt.Errorf("%w: originalPrice must be a non-negative number", ErrInvalidArgument)
	}
	if c.DepreciationValue != nil && !finiteNonNegative(*c.DepreciationValue) {
		return fmt.Errorf("%w: depreciationValue must be a non-negative number", ErrInvalidArgument)
	}
	if c.DepreciationRate != nil {
		if _, err := c.DepreciationRate.PeriodDays(); err != nil {
			return err
		}
	}
	return nil
}

// Apply copies the set fields of c onto e.
func (c *Changes) Apply(e *Entity) {
	if c == nil {
		return
	}
	if c.Name != nil {
		e.Name = *c.Name
	}
	if c.Description != nil {
		e.Description = *c.Description
	}
	if c.Attributes != nil {
		e.Attributes = c.Attributes
	}
	if c.OriginalPrice != nil {
		e.OriginalPrice = *c.OriginalPrice
	}
	if c.DepreciationRate != nil {
		e.DepreciationRate = *c.DepreciationRate
	}
	if c.DepreciationValue != nil {
		e.DepreciationValue = *c.DepreciationValue
	}
	if c.PurchaseDate != nil {
		t := c.PurchaseDate.UTC()
		e.PurchaseDate = &t
	}
	if c.TrackerID != nil {
		e.TrackerID = *c.TrackerID
	}
	if c.Mobile != nil {
		e.Mobile = *c.Mobile
	}
	if c.VehicleType != nil {
		e.VehicleType = *c.VehicleType
	}
	if c.PlateNumber != nil {
		e.PlateNumber = *c.PlateNumber
	}
}

// Fields renders c as a document patch.
func (c *Changes) Fields() (map[string]any, error) {
	out := map[string]any{}
	if c == nil {
		return out, nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding changes: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding changes: %w", err)
	}
	// omitempty drops an empty map, which is how attributes get cleared.
	if c.Attributes != nil {
		attrs := make(map[string]any, len(c.Attributes))
		for k, v := range c.Attributes {
			attrs[k] = v
		}
		out["attributes"] = attrs
	}
	return out, nil
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
