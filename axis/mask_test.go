package axis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskTableDefaults(t *testing.T) {
	tbl := NewMaskTable()
	assert.Equal(t, []string{"Empty 1", "Empty 2", "Empty 3", "Empty 4", "Empty 5"}, tbl.Names())
	assert.Equal(t, Mask{ID: 9, Name: "Unknown"}, tbl.ByID(9))
}

func TestMaskTableSet(t *testing.T) {
	tbl := NewMaskTable()
	assert.NoError(t, tbl.Set(1, "Pinhole", 30))
	m := tbl.ByID(1)
	assert.Equal(t, "Pinhole", m.Name)
	assert.Equal(t, 30.0, m.Rotation)

	// the Unknown slot is reserved
	assert.Error(t, tbl.Set(9, "Nope", 0))
	assert.Error(t, tbl.Set(0, "Nope", 0))
	assert.Error(t, tbl.Set(6, "Nope", 0))
}

func TestMaskTableLookup(t *testing.T) {
	tbl := NewMaskTable()
	assert.NoError(t, tbl.Set(3, "Grid", 90))

	m, ok := tbl.ByName("Grid")
	assert.True(t, ok)
	assert.Equal(t, 3, m.ID)

	_, ok = tbl.ByName("missing")
	assert.False(t, ok)

	// a lost encoder reports an id outside the table
	assert.Equal(t, "Unknown", tbl.ByID(7).Name)
}
