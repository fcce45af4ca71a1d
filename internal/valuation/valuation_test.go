package valuation

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/erazemk/tracky/internal/model"
)

var purchase = time.Date(2022, 3, 15, 9, 0, 0, 0, time.UTC)

func TestCurrentPrice(t *testing.T) {
	tests := []struct {
		name     string
		original float64
		rate     model.DepreciationRate
		value    float64
		elapsed  time.Duration
		want     float64
	}{
		{"same instant", 100, model.RateDaily, 10, 0, 100},
		{"purchase in future", 100, model.RateDaily, 10, -48 * time.Hour, 100},
		{"one minute rounds to a day", 100, model.RateDaily, 10, time.Minute, 90},
		{"three days daily", 100, model.RateDaily, 10, 72 * time.Hour, 70},
		{"ten days weekly", 700, model.RateWeekly, 10, 240 * time.Hour, 700 - 700*0.1*10.0/7.0},
		{"thirty days monthly", 300, model.RateMonthly, 50, 30 * day, 150},
		{"floors at zero", 100, model.RateDaily, 50, 10 * day, 0},
		{"zero value keeps price", 100, model.RateYearly, 0, 1000 * day, 100},
		{"zero original", 0, model.RateDaily, 10, 5 * day, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CurrentPrice(tt.original, tt.rate, tt.value, purchase, purchase.Add(tt.elapsed))
			if err != nil {
				t.Fatalf("CurrentPrice: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCurrentPriceSameDayNoDecay(t *testing.T) {
	now := time.Now()
	got, err := CurrentPrice(100, model.RateDaily, 10, now, now)
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	if got != 100 {
		t.Errorf("expected 100, got %v", got)
	}
}

func TestCurrentPriceTwoYearsYearly(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	got, err := CurrentPrice(1000, model.RateYearly, 10, now.AddDate(-2, 0, 0), now)
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	if math.Abs(got-800) > 1 {
		t.Errorf("expected about 800, got %v", got)
	}
}

func TestCurrentPriceMonotonic(t *testing.T) {
	rates := []model.DepreciationRate{model.RateDaily, model.RateWeekly, model.RateMonthly, model.RateYearly}
	for _, rate := range rates {
		prev := 500.0
		for h := 0; h < 24*800; h += 7 {
			got, err := CurrentPrice(500, rate, 3, purchase, purchase.Add(time.Duration(h)*time.Hour))
			if err != nil {
				t.Fatalf("%s: CurrentPrice: %v", rate, err)
			}
			if got > prev {
				t.Fatalf("%s: price rose from %v to %v at %dh", rate, prev, got, h)
			}
			if got < 0 || got > 500 {
				t.Fatalf("%s: price %v out of [0, 500] at %dh", rate, got, h)
			}
			prev = got
		}
	}
}

func TestCurrentPriceRejectsInvalidInput(t *testing.T) {
	now := purchase.Add(day)
	tests := []struct {
		name     string
		original float64
		rate     model.DepreciationRate
		value    float64
	}{
		{"negative value", 100, model.RateDaily, -1},
		{"NaN value", 100, model.RateDaily, math.NaN()},
		{"infinite value", 100, model.RateDaily, math.Inf(1)},
		{"negative original", -5, model.RateDaily, 1},
		{"unknown rate", 100, model.DepreciationRate("hourly"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CurrentPrice(tt.original, tt.rate, tt.value, purchase, now)
			if !errors.Is(err, model.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestApply(t *testing.T) {
	bought := purchase
	e := &model.Entity{
		Kind:              model.KindAsset,
		OriginalPrice:     100,
		DepreciationRate:  model.RateDaily,
		DepreciationValue: 10,
		PurchaseDate:      &bought,
	}
	if err := Apply(e, purchase.Add(2*day)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if e.CurrentPrice != 80 {
		t.Errorf("expected 80, got %v", e.CurrentPrice)
	}

	tracker := &model.Entity{Kind: model.KindTracker, OriginalPrice: 100}
	if err := Apply(tracker, purchase); err != nil {
		t.Fatalf("Apply tracker: %v", err)
	}
	if tracker.CurrentPrice != 0 {
		t.Errorf("expected trackers to be left alone, got %v", tracker.CurrentPrice)
	}
}
