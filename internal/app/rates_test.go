package app

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestConvert_MultipliesByActiveRate(t *testing.T) {
	repo := baseRepo()
	converter := NewRateConverter(repo)

	got, err := converter.Convert(context.Background(), decimal.RequireFromString("250000"), "NGN", "CNY")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	want := decimal.RequireFromString("1200.00")
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestConvert_RoundsToTwoPlaces(t *testing.T) {
	repo := baseRepo()
	repo.rate.Rate = decimal.RequireFromString("0.004835")
	converter := NewRateConverter(repo)

	got, err := converter.Convert(context.Background(), decimal.RequireFromString("333"), "NGN", "CNY")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	// 333 * 0.004835 = 1.610055
	want := decimal.RequireFromString("1.61")
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestConvert_MissingRateFailsNotFound(t *testing.T) {
	repo := baseRepo()
	repo.rate = nil
	converter := NewRateConverter(repo)

	_, err := converter.Convert(context.Background(), decimal.RequireFromString("100"), "NGN", "EUR")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
