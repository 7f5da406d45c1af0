package migration

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
)

func TestIDMap_Deterministic(t *testing.T) {
	t.Parallel()

	a := NewIDMap("store-a")
	b := NewIDMap("store-a")
	other := NewIDMap("store-b")

	id := a.Assign(entities.KindItem, 7)
	assert.Equal(t, id, b.ID(entities.KindItem, 7), "same store and key must give the same ID")
	assert.NotEqual(t, id, other.ID(entities.KindItem, 7), "different stores must not collide")
	assert.NotEqual(t, id, a.ID(entities.KindLocation, 7), "different kinds must not collide")

	_, err := uuid.Parse(id)
	require.NoError(t, err)
}

func TestIDMap_Resolve(t *testing.T) {
	t.Parallel()

	m := NewIDMap("store")
	homeID := m.Assign(entities.KindHome, 1)
	pk := func(v int64) *int64 { return &v }

	tests := []struct {
		name         string
		ref          *int64
		wantID       *string
		wantDangling bool
	}{
		{name: "nil reference", ref: nil},
		{name: "known row", ref: pk(1), wantID: &homeID},
		{name: "missing row", ref: pk(99), wantDangling: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, dangling := m.Resolve(entities.KindHome, tt.ref)
			assert.Equal(t, tt.wantDangling, dangling)
			assert.Equal(t, tt.wantID, id)
		})
	}

	assert.Equal(t, 1, m.Len(entities.KindHome))
	assert.Zero(t, m.Len(entities.KindItem))
}
