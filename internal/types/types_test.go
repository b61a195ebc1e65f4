package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestISOWeekMonday(t *testing.T) {
	tests := []struct {
		name string
		week ISOWeek
		want string
	}{
		{"first week of 2024", ISOWeek{Year: 2024, Week: 1}, "2024-01-01"},
		{"week one starts in previous year", ISOWeek{Year: 2020, Week: 1}, "2019-12-30"},
		{"week 53", ISOWeek{Year: 2020, Week: 53}, "2020-12-28"},
		{"mid year", ISOWeek{Year: 2025, Week: 23}, "2025-06-02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.week.Monday().Format(DateLayout))
		})
	}
}

func TestISOWeekOf(t *testing.T) {
	// 2021-01-03 is a Sunday belonging to ISO week 53 of 2020
	got := ISOWeekOf(time.Date(2021, time.January, 3, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, ISOWeek{Year: 2020, Week: 53}, got)
}

func TestISOWeekValid(t *testing.T) {
	assert.True(t, ISOWeek{Year: 2020, Week: 53}.Valid())
	assert.False(t, ISOWeek{Year: 2021, Week: 53}.Valid())
	assert.False(t, ISOWeek{Year: 2021, Week: 0}.Valid())
}

func TestISOWeekPrevious(t *testing.T) {
	assert.Equal(t, ISOWeek{Year: 2023, Week: 52}, ISOWeek{Year: 2024, Week: 1}.Previous(1))
	assert.Equal(t, ISOWeek{Year: 2024, Week: 10}, ISOWeek{Year: 2024, Week: 10}.Previous(0))
}

func TestProviderIDsGet(t *testing.T) {
	ids := ProviderIDs{ProviderCoinGecko: "bitcoin", ProviderCoinMarketCap: ""}

	id, ok := ids.Get(ProviderCoinGecko)
	assert.True(t, ok)
	assert.Equal(t, "bitcoin", id)

	_, ok = ids.Get(ProviderCoinMarketCap)
	assert.False(t, ok, "empty identifier counts as unresolved")
}
