// Package valuation computes the straight-line depreciated value of an asset.
package valuation

import (
	"fmt"
	"math"
	"time"

	"github.com/erazemk/tracky/internal/model"
)

const day = 24 * time.Hour

// CurrentPrice returns the value of an asset bought on purchase for original,
// losing value percent of original per rate period, as of now.
//
// Elapsed time is rounded up to whole days and expressed as a possibly
// fractional number of periods. Nothing is lost before any time has elapsed,
// and the result never drops below zero.
func CurrentPrice(original float64, rate model.DepreciationRate, value float64, purchase, now time.Time) (float64, error) {
	if math.IsNaN(original) || math.IsInf(original, 0) || original < 0 {
		return 0, fmt.Errorf("%w: original price must be a non-negative number", model.ErrInvalidArgument)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, fmt.Errorf("%w: depreciation value must be a non-negative number", model.ErrInvalidArgument)
	}
	periodDays, err := rate.PeriodDays()
	if err != nil {
		return 0, err
	}

	elapsed := now.Sub(purchase)
	if elapsed <= 0 {
		return original, nil
	}

	days := math.Ceil(float64(elapsed) / float64(day))
	periods := days / float64(periodDays)

	price := original - original*(value/100)*periods
	return math.Max(0, price), nil
}

// Apply recomputes e.CurrentPrice as of now. Entities without a purchase date
// are valued from their creation time.
func Apply(e *model.Entity, now time.Time) error {
	if e.Kind != model.KindAsset {
		return nil
	}
	rate := e.DepreciationRate
	if rate == "" {
		rate = model.RateDaily
	}
	purchase := e.CreatedAt
	if e.PurchaseDate != nil {
		purchase = *e.PurchaseDate
	}

	price, err := CurrentPrice(e.OriginalPrice, rate, e.DepreciationValue, purchase, now)
	if err != nil {
		return err
	}
	e.CurrentPrice = price
	return nil
}
