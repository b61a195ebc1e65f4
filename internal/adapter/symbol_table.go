package adapter

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/portfolio-evaluator/internal/types"
)

// SymbolTable is an offline provider mapping loaded from CSV. The header
// must contain name, abbreviation (or symbol) and the identifier column.
type SymbolTable struct {
	provider types.Provider
	// byPair holds "name|abbreviation" -> id, byAbbreviation holds abbreviation -> id.
	// The first row wins for duplicate keys.
	byPair         map[string]string
	byAbbreviation map[string]string
}

// idColumns is the identifier column per provider
var idColumns = map[types.Provider]string{
	types.ProviderCoinGecko:     "id",
	types.ProviderCoinMarketCap: "slug",
}

// LoadSymbolTable reads a provider symbol table from path
func LoadSymbolTable(provider types.Provider, path string) (*SymbolTable, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open %s symbol table: %w", provider, err)
	}
	defer f.Close()

	return ParseSymbolTable(provider, f)
}

// ParseSymbolTable reads a provider symbol table from r
func ParseSymbolTable(provider types.Provider, r io.Reader) (*SymbolTable, error) {
	idColumn, ok := idColumns[provider]
	if !ok {
		return nil, fmt.Errorf("no symbol table layout for provider %s", provider)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s symbol table header: %w", provider, err)
	}

	nameIdx, abbrIdx, idIdx := -1, -1, -1
	for i, column := range header {
		switch strings.ToLower(strings.TrimSpace(column)) {
		case "name":
			nameIdx = i
		case "abbreviation", "symbol":
			if abbrIdx == -1 {
				abbrIdx = i
			}
		case idColumn:
			idIdx = i
		}
	}
	if nameIdx == -1 || abbrIdx == -1 || idIdx == -1 {
		return nil, fmt.Errorf("%s symbol table needs name, abbreviation and %s columns", provider, idColumn)
	}

	table := &SymbolTable{
		provider:       provider,
		byPair:         make(map[string]string),
		byAbbreviation: make(map[string]string),
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s symbol table: %w", provider, err)
		}
		maxIdx := max(nameIdx, abbrIdx, idIdx)
		if len(record) <= maxIdx {
			continue
		}
		id := strings.TrimSpace(record[idIdx])
		if id == "" {
			continue
		}
		abbr := normalizeSymbol(record[abbrIdx])
		pair := pairKey(record[nameIdx], record[abbrIdx])
		if _, exists := table.byPair[pair]; !exists {
			table.byPair[pair] = id
		}
		if _, exists := table.byAbbreviation[abbr]; !exists {
			table.byAbbreviation[abbr] = id
		}
	}

	return table, nil
}

// Provider returns the provider the table maps to
func (t *SymbolTable) Provider() types.Provider {
	return t.provider
}

// Lookup matches on (name, abbreviation) first and falls back to the abbreviation alone
func (t *SymbolTable) Lookup(name, abbreviation string) (string, bool) {
	if id, ok := t.byPair[pairKey(name, abbreviation)]; ok {
		return id, true
	}
	id, ok := t.byAbbreviation[normalizeSymbol(abbreviation)]
	return id, ok
}

// Len returns the number of distinct (name, abbreviation) pairs
func (t *SymbolTable) Len() int {
	return len(t.byPair)
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func pairKey(name, abbreviation string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + normalizeSymbol(abbreviation)
}
