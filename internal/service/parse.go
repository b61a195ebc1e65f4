package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// fencedJSON matches the first {...} object inside a ``` or ```json fence
var fencedJSON = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// metricPrefixes maps a trailing magnitude suffix to its multiplier
var metricPrefixes = []struct {
	suffix     string
	multiplier decimal.Decimal
}{
	{"bn", decimal.New(1, 9)},
	{"k", decimal.New(1, 3)},
	{"m", decimal.New(1, 6)},
	{"b", decimal.New(1, 9)},
	{"t", decimal.New(1, 12)},
}

// ModelPurchase is one purchase as returned by the structuring stage
type ModelPurchase struct {
	Name         string   `json:"name"`
	Abbreviation string   `json:"abbreviation"`
	Amount       Quantity `json:"amount"`
	Price        Quantity `json:"price"`
	Currency     string   `json:"currency"`
}

// ModelResult is the structuring stage JSON contract
type ModelResult struct {
	IsPortfolio *bool           `json:"is_portfolio"`
	Purchases   []ModelPurchase `json:"purchases"`
	// Positions is accepted as an alias of Purchases
	Positions []ModelPurchase `json:"positions"`
}

// Quantity is a number the model may return as a JSON number or as a string
// such as "1.5k" or "$1,200"
type Quantity float64

// UnmarshalJSON accepts numbers, numeric strings and null
func (q *Quantity) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*q = 0
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	v, err := ParseQuantity(raw)
	if err != nil {
		return err
	}
	*q = Quantity(v)
	return nil
}

// ParseQuantity parses a human written number. Thousands separators,
// currency symbols and whitespace are ignored and a trailing metric prefix
// (k, m, b, bn, t) is expanded. An empty string is zero.
func ParseQuantity(s string) (float64, error) {
	cleaned := strings.ToLower(strings.TrimSpace(s))
	cleaned = strings.NewReplacer(",", "", " ", "", "$", "", "€", "", "£", "", "¥", "", "_", "").Replace(cleaned)
	if cleaned == "" {
		return 0, nil
	}

	multiplier := decimal.NewFromInt(1)
	for _, p := range metricPrefixes {
		if strings.HasSuffix(cleaned, p.suffix) {
			cleaned = strings.TrimSuffix(cleaned, p.suffix)
			multiplier = p.multiplier
			break
		}
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	return d.Mul(multiplier).InexactFloat64(), nil
}

// ParseModelJSON decodes the structuring stage answer. The raw answer is
// parsed first; if that fails the first fenced {...} block is parsed. An
// answer that does not state is_portfolio is an error.
func ParseModelJSON(raw string) (*ModelResult, error) {
	result, err := decodeModelResult(strings.TrimSpace(raw))
	if err != nil {
		match := fencedJSON.FindStringSubmatch(raw)
		if match == nil {
			return nil, fmt.Errorf("model answer is not JSON and has no fenced JSON block: %w", err)
		}
		result, err = decodeModelResult(match[1])
		if err != nil {
			return nil, fmt.Errorf("fenced JSON block is invalid: %w", err)
		}
	}

	if result.IsPortfolio == nil {
		return nil, fmt.Errorf("model answer has no is_portfolio field")
	}
	if len(result.Purchases) == 0 && len(result.Positions) > 0 {
		result.Purchases = result.Positions
	}
	result.Positions = nil
	return result, nil
}

func decodeModelResult(s string) (*ModelResult, error) {
	var result ModelResult
	if err := json.Unmarshal([]byte(s), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
