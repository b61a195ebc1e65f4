package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func liveSchema() map[string]map[string]bool {
	live := make(map[string]map[string]bool)
	for table, columns := range requiredColumns {
		live[table] = make(map[string]bool)
		for _, column := range columns {
			live[table][column] = true
		}
	}
	return live
}

func TestCheckColumns(t *testing.T) {
	live := liveSchema()
	assert.NoError(t, checkColumns(live))

	delete(live["purchases"], "fx_rate")
	delete(live, "portfolios")

	err := checkColumns(live)
	require.Error(t, err)

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, []string{"fx_rate"}, schemaErr.Missing["purchases"])
	assert.Len(t, schemaErr.Missing["portfolios"], len(requiredColumns["portfolios"]))
	assert.Contains(t, err.Error(), "purchases(fx_rate)")
}
