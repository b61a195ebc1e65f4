package models

import (
	"strings"
	"time"
	"unicode"

	"github.com/portfolio-evaluator/internal/types"
)

// Asset is a crypto asset known to at least one price provider
type Asset struct {
	Name            string    `json:"name" db:"name"`
	Abbreviation    string    `json:"abbreviation" db:"abbreviation"`
	CoinGeckoID     *string   `json:"coinGeckoId,omitempty" db:"coin_gecko_id"`
	CoinMarketCapID *string   `json:"coinMarketCapId,omitempty" db:"coin_market_cap_id"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

// NewAsset creates an asset in canonical form with whatever identifiers are known
func NewAsset(name, abbreviation string, ids types.ProviderIDs) *Asset {
	now := time.Now().UTC()
	a := &Asset{
		Name:         CanonicalName(name),
		Abbreviation: CanonicalAbbreviation(abbreviation),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	a.BackfillIdentifiers(ids)
	return a
}

// ProviderIDs returns the resolved provider identifiers of the asset
func (a *Asset) ProviderIDs() types.ProviderIDs {
	ids := types.ProviderIDs{}
	if a.CoinGeckoID != nil && *a.CoinGeckoID != "" {
		ids[types.ProviderCoinGecko] = *a.CoinGeckoID
	}
	if a.CoinMarketCapID != nil && *a.CoinMarketCapID != "" {
		ids[types.ProviderCoinMarketCap] = *a.CoinMarketCapID
	}
	return ids
}

// BackfillIdentifiers sets identifiers that are still missing. Identifiers
// that are already set are never replaced. Reports whether anything changed.
func (a *Asset) BackfillIdentifiers(ids types.ProviderIDs) bool {
	changed := false
	if id, ok := ids.Get(types.ProviderCoinGecko); ok && (a.CoinGeckoID == nil || *a.CoinGeckoID == "") {
		a.CoinGeckoID = &id
		changed = true
	}
	if id, ok := ids.Get(types.ProviderCoinMarketCap); ok && (a.CoinMarketCapID == nil || *a.CoinMarketCapID == "") {
		a.CoinMarketCapID = &id
		changed = true
	}
	if changed {
		a.UpdatedAt = time.Now().UTC()
	}
	return changed
}

// Key returns the case-insensitive identity of the asset
func (a *Asset) Key() AssetKey {
	return KeyOf(a.Name, a.Abbreviation)
}

// AssetKey is the lower-cased (name, abbreviation) pair used to key prices
type AssetKey struct {
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

// KeyOf builds the lower-cased key for an asset pair
func KeyOf(name, abbreviation string) AssetKey {
	return AssetKey{
		Name:         strings.ToLower(strings.TrimSpace(name)),
		Abbreviation: strings.ToLower(strings.TrimSpace(abbreviation)),
	}
}

func (k AssetKey) String() string {
	return k.Name + " (" + strings.ToUpper(k.Abbreviation) + ")"
}

// CanonicalName upper-cases the first letter and lower-cases the rest
func CanonicalName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	runes := []rune(strings.ToLower(name))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// CanonicalAbbreviation returns the upper-case ticker
func CanonicalAbbreviation(abbreviation string) string {
	return strings.ToUpper(strings.TrimSpace(abbreviation))
}
