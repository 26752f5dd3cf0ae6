package axis

import "fmt"

// UnknownMaskID is reported by the mask encoder when it cannot identify
// the installed mask. Slot 9 of the table is reserved for it.
const UnknownMaskID = 9

// Mask is one entry of the projector's mask wheel.
type Mask struct {
	ID       int
	Name     string
	Rotation float64
}

// MaskTable holds the five configurable mask slots plus the reserved
// Unknown slot. The zero value is not usable; call NewMaskTable.
type MaskTable struct {
	slots map[int]Mask
}

// NewMaskTable returns a table with placeholder names for slots 1-5 and
// the immutable Unknown entry in slot 9.
func NewMaskTable() *MaskTable {
	t := &MaskTable{slots: make(map[int]Mask, 6)}
	for id := 1; id <= 5; id++ {
		t.slots[id] = Mask{ID: id, Name: fmt.Sprintf("Empty %d", id)}
	}
	t.slots[UnknownMaskID] = Mask{ID: UnknownMaskID, Name: "Unknown"}
	return t
}

// Set configures the name and nominal rotation of one of the five user
// slots. The Unknown slot cannot be reconfigured.
func (t *MaskTable) Set(id int, name string, rotation float64) error {
	if id < 1 || id > 5 {
		return fmt.Errorf("mask slot %d not configurable", id)
	}
	t.slots[id] = Mask{ID: id, Name: name, Rotation: rotation}
	return nil
}

// ByID looks up a mask by its numeric slot. Unrecognized ids map to the
// Unknown entry, matching what the encoder reports when it is lost.
func (t *MaskTable) ByID(id int) Mask {
	if m, ok := t.slots[id]; ok {
		return m
	}
	return t.slots[UnknownMaskID]
}

// ByName looks up a mask by its configured display name.
func (t *MaskTable) ByName(name string) (Mask, bool) {
	for _, m := range t.slots {
		if m.Name == name {
			return m, true
		}
	}
	return Mask{}, false
}

// Names returns the display names of the five user slots in slot order.
func (t *MaskTable) Names() []string {
	names := make([]string, 0, 5)
	for id := 1; id <= 5; id++ {
		names = append(names, t.slots[id].Name)
	}
	return names
}
