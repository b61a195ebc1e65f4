package service

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var purchaseDate = time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)

func TestNormalizeUSDIsNoOp(t *testing.T) {
	fx := &fakeFX{}
	purchase, err := NewPurchaseNormalizer(fx).Normalize(context.Background(), NormalizeInput{
		Source: "reddit", SourceID: "abc", Name: "bitcoin", Abbreviation: "btc",
		Amount: 2, TotalValue: 100, Currency: "usd", Date: purchaseDate,
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, purchase.Amount)
	assert.Equal(t, 100.0, purchase.TotalPurchaseValue)
	assert.Equal(t, 50.0, purchase.PurchasePricePerUnit)
	assert.Equal(t, "USD", purchase.OriginalCurrency)
	assert.Equal(t, "Bitcoin", purchase.Name)
	assert.Equal(t, "BTC", purchase.Abbreviation)
	assert.Zero(t, fx.calls)
}

func TestNormalizeUSDProperties(t *testing.T) {
	normalizer := NewPurchaseNormalizer(&fakeFX{})
	properties := gopter.NewProperties(nil)

	properties.Property("usd purchases keep amount and total value", prop.ForAll(
		func(amount, total float64) bool {
			p, err := normalizer.Normalize(context.Background(), NormalizeInput{
				Name: "Bitcoin", Abbreviation: "BTC", Amount: amount, TotalValue: total, Currency: "USD", Date: purchaseDate,
			})
			return err == nil && p.Amount == amount && p.TotalPurchaseValue == total && p.FXRate == 1.0
		},
		gen.Float64Range(0.0001, 1e6),
		gen.Float64Range(0, 1e9),
	))

	properties.TestingRun(t)
}

func TestNormalizeAppliesRate(t *testing.T) {
	fx := &fakeFX{rates: map[string]float64{"EUR": 1.25}}
	purchase, err := NewPurchaseNormalizer(fx).Normalize(context.Background(), NormalizeInput{
		Name: "Ethereum", Abbreviation: "ETH", Amount: 4, TotalValue: 1000, Currency: "eur", Date: purchaseDate,
	})
	require.NoError(t, err)
	assert.Equal(t, 5.0, purchase.Amount)
	assert.Equal(t, 800.0, purchase.TotalPurchaseValue)
	assert.Equal(t, 160.0, purchase.PurchasePricePerUnit)
	assert.Equal(t, "EUR", purchase.OriginalCurrency)
	assert.Equal(t, 1.25, purchase.FXRate)
}

func TestNormalizeFallsBackToRateOne(t *testing.T) {
	fx := &fakeFX{rates: map[string]float64{}}
	purchase, err := NewPurchaseNormalizer(fx).Normalize(context.Background(), NormalizeInput{
		Name: "Ethereum", Abbreviation: "ETH", Amount: 4, TotalValue: 1000, Currency: "GBP", Date: purchaseDate,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fx.calls)
	assert.Equal(t, 4.0, purchase.Amount)
	assert.Equal(t, 1000.0, purchase.TotalPurchaseValue)
	assert.Equal(t, 1.0, purchase.FXRate)
	assert.Equal(t, "GBP", purchase.OriginalCurrency)
}

func TestNormalizeRejectsZeroAmount(t *testing.T) {
	_, err := NewPurchaseNormalizer(nil).Normalize(context.Background(), NormalizeInput{
		Name: "Ethereum", Abbreviation: "ETH", Amount: 0, TotalValue: 10, Currency: "USD", Date: purchaseDate,
	})
	assert.Error(t, err)
}
