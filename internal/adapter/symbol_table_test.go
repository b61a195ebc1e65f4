package adapter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/portfolio-evaluator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const coinGeckoCSV = `id,name,abbreviation
bitcoin,Bitcoin,btc
ethereum,Ethereum,eth
ethereum-wormhole,Ethereum (Wormhole),eth
binance-peg-ethereum,Ethereum,eth
`

func TestSymbolTableLookup(t *testing.T) {
	table, err := ParseSymbolTable(types.ProviderCoinGecko, strings.NewReader(coinGeckoCSV))
	require.NoError(t, err)
	assert.Equal(t, types.ProviderCoinGecko, table.Provider())
	assert.Equal(t, 3, table.Len())

	id, ok := table.Lookup("bitcoin", "BTC")
	assert.True(t, ok)
	assert.Equal(t, "bitcoin", id)

	// first row wins for a duplicate (name, abbreviation)
	id, ok = table.Lookup("ETHEREUM", "eth")
	assert.True(t, ok)
	assert.Equal(t, "ethereum", id)

	// unknown name falls back to the abbreviation
	id, ok = table.Lookup("Ether", "ETH")
	assert.True(t, ok)
	assert.Equal(t, "ethereum", id)

	_, ok = table.Lookup("Nothing", "NOPE")
	assert.False(t, ok)
}

func TestSymbolTableCoinMarketCapUsesSlug(t *testing.T) {
	csv := "abbreviation,id,name,slug\nBTC,1,Bitcoin,bitcoin\nXRP,52,XRP,xrp\n"
	table, err := ParseSymbolTable(types.ProviderCoinMarketCap, strings.NewReader(csv))
	require.NoError(t, err)

	id, ok := table.Lookup("Bitcoin", "btc")
	assert.True(t, ok)
	assert.Equal(t, "bitcoin", id)
}

func TestSymbolTableRejectsBadHeader(t *testing.T) {
	_, err := ParseSymbolTable(types.ProviderCoinMarketCap, strings.NewReader("id,name,symbol\n1,Bitcoin,BTC\n"))
	assert.Error(t, err)

	_, err = ParseSymbolTable(types.Provider("kraken"), strings.NewReader(coinGeckoCSV))
	assert.Error(t, err)
}

func TestLoadSymbolTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coingecko.csv")
	require.NoError(t, os.WriteFile(path, []byte(coinGeckoCSV), 0o600))

	table, err := LoadSymbolTable(types.ProviderCoinGecko, path)
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	_, err = LoadSymbolTable(types.ProviderCoinGecko, filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
