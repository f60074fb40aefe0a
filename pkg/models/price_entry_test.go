package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriceEntryValidAt(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	t.Run("bounded window", func(t *testing.T) {
		entry := &PriceEntry{ValidFrom: from, ValidTo: &to}

		assert.True(t, entry.ValidAt(from))
		assert.True(t, entry.ValidAt(from.AddDate(0, 3, 0)))
		assert.True(t, entry.ValidAt(to))
		assert.False(t, entry.ValidAt(from.AddDate(0, 0, -1)))
		assert.False(t, entry.ValidAt(to.AddDate(0, 0, 1)))
	})

	t.Run("open ended window", func(t *testing.T) {
		entry := &PriceEntry{ValidFrom: from}

		assert.True(t, entry.ValidAt(from))
		assert.True(t, entry.ValidAt(from.AddDate(10, 0, 0)))
		assert.False(t, entry.ValidAt(from.AddDate(0, 0, -1)))
	})
}
