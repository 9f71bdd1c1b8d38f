package relation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDeterministicID(t *testing.T) {
	groupA := uuid.NewString()
	groupB := uuid.NewString()

	t.Run("same inputs produce the same id", func(t *testing.T) {
		first := ComputeDeterministicID("shop-1", groupA, "SKU-100", "SKU-200")
		second := ComputeDeterministicID("shop-1", groupA, "SKU-100", "SKU-200")
		assert.Equal(t, first, second)
	})

	t.Run("id is a valid uuid", func(t *testing.T) {
		id := ComputeDeterministicID("shop-1", groupA, "SKU-100", "SKU-200")
		_, err := uuid.Parse(id)
		require.NoError(t, err)
	})

	t.Run("direction matters", func(t *testing.T) {
		forward := ComputeDeterministicID("shop-1", groupA, "SKU-100", "SKU-200")
		reverse := ComputeDeterministicID("shop-1", groupA, "SKU-200", "SKU-100")
		assert.NotEqual(t, forward, reverse)
	})

	t.Run("different tenants get different ids", func(t *testing.T) {
		one := ComputeDeterministicID("shop-1", groupA, "SKU-100", "SKU-200")
		two := ComputeDeterministicID("shop-2", groupA, "SKU-100", "SKU-200")
		assert.NotEqual(t, one, two)
	})

	t.Run("different groups get different ids", func(t *testing.T) {
		one := ComputeDeterministicID("shop-1", groupA, "SKU-100", "SKU-200")
		two := ComputeDeterministicID("shop-1", groupB, "SKU-100", "SKU-200")
		assert.NotEqual(t, one, two)
	})

	t.Run("delimited fields do not collide on concatenation", func(t *testing.T) {
		one := ComputeDeterministicID("shop-1", groupA, "SKU-10", "0SKU-200")
		two := ComputeDeterministicID("shop-1", groupA, "SKU-100", "SKU-200")
		assert.NotEqual(t, one, two)
	})
}
