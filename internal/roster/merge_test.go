package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBusSet(t *testing.T) {
	assert.Equal(t, BusSet{"BUS-7", "BUS-9"}, ParseBusSet(" BUS-7 ,BUS-9,, BUS-7"))
	assert.Nil(t, ParseBusSet(""))
	assert.Equal(t, "BUS-7, BUS-9", BusSet{"BUS-7", "BUS-9"}.String())
}

func TestBusSet_Add(t *testing.T) {
	var b BusSet
	b, ok := b.Add("BUS-7", 2)
	require.True(t, ok)
	_, ok = b.Add(" BUS-7", 2)
	assert.False(t, ok, "duplicate")
	b, ok = b.Add("BUS-9", 2)
	require.True(t, ok)
	_, ok = b.Add("BUS-11", 2)
	assert.False(t, ok, "cap reached")
	_, ok = b.Add("", 2)
	assert.False(t, ok, "blank")
	assert.Equal(t, BusSet{"BUS-7", "BUS-9"}, b)
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{"students": RoleStudent, "Staff": RoleStaff, " DRIVERS ": RoleDriver, "admin": RoleAdmin} {
		got, err := ParseRole(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseRole("visitor")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestIdentity_Validate(t *testing.T) {
	assert.NoError(t, Identity{ID: "S1", Role: RoleStudent, AssignedBus: BusSet{"A", "B"}}.Validate())
	assert.ErrorIs(t, Identity{ID: "S1", Role: RoleStudent, AssignedBus: BusSet{"A", "B", "C"}}.Validate(), ErrInvalidIdentity)
	assert.ErrorIs(t, Identity{ID: "D1", Role: RoleDriver, AssignedBus: BusSet{"A", "B"}}.Validate(), ErrInvalidIdentity)
	assert.ErrorIs(t, Identity{ID: "  ", Role: RoleStaff}.Validate(), ErrInvalidIdentity)
	assert.ErrorIs(t, Identity{ID: "X", Role: "Visitor"}.Validate(), ErrInvalidRole)
}

func TestMerge_CreatesNewIdentities(t *testing.T) {
	rows := []Identity{
		{ID: " S001 ", Name: "Asha", Credential: "pw1", BoardingPoint: "Gate 2", Shift: "Morning"},
		{ID: "", Name: "no id"},
		{ID: "S002", Name: "Ravi"},
	}
	out, n := Merge(nil, RoleStudent, "BUS-7", rows)

	assert.Equal(t, 2, n)
	require.Len(t, out, 2)
	assert.Equal(t, "S001", out[0].ID)
	assert.Equal(t, RoleStudent, out[0].Role)
	assert.Equal(t, BusSet{"BUS-7"}, out[0].AssignedBus)
	assert.Equal(t, "Gate 2", out[0].BoardingPoint)
	assert.Equal(t, BusSet{"BUS-7"}, out[1].AssignedBus)
}

func TestMerge_ExistingRiderGainsSecondBusOnly(t *testing.T) {
	existing := []Identity{{ID: "S001", Name: "Asha", Role: RoleStudent, Credential: "old", AssignedBus: BusSet{"BUS-7"}}}
	rows := []Identity{{ID: "S001", Name: "Renamed", Credential: "new"}}

	out, n := Merge(existing, RoleStudent, "BUS-9", rows)
	require.Equal(t, 1, n)
	require.Len(t, out, 1)
	assert.Equal(t, BusSet{"BUS-7", "BUS-9"}, out[0].AssignedBus)
	assert.Equal(t, "Asha", out[0].Name, "other attributes are untouched")
	assert.Equal(t, "old", out[0].Credential)

	out, _ = Merge(out, RoleStudent, "BUS-11", rows)
	assert.Equal(t, BusSet{"BUS-7", "BUS-9"}, out[0].AssignedBus, "cap of two")

	assert.Equal(t, BusSet{"BUS-7"}, existing[0].AssignedBus, "input not mutated")
}

func TestMerge_IdempotentForSameBus(t *testing.T) {
	rows := []Identity{{ID: "ST9", Name: "Meena"}}
	once, _ := Merge(nil, RoleStaff, "BUS-3", rows)
	twice, n := Merge(once, RoleStaff, "BUS-3", rows)

	assert.Equal(t, 1, n)
	assert.Equal(t, once, twice)
	assert.Equal(t, BusSet{"BUS-3"}, twice[0].AssignedBus)
}

func TestMerge_DuplicateRowsInOneImport(t *testing.T) {
	rows := []Identity{{ID: "S1"}, {ID: "S1"}, {ID: "S1"}}
	out, n := Merge(nil, RoleStudent, "BUS-1", rows)
	assert.Equal(t, 3, n)
	require.Len(t, out, 1)
	assert.Equal(t, BusSet{"BUS-1"}, out[0].AssignedBus)
}

func TestMerge_DriverOverwritesRoute(t *testing.T) {
	existing := []Identity{{ID: "D1", Name: "Old", Role: RoleDriver, Credential: "keep", Contact: "900", AssignedBus: BusSet{"BUS-1"}, DeviceID: "dev-1"}}
	rows := []Identity{{ID: "D1", Name: "Kumar", Contact: "901"}}

	out, n := Merge(existing, RoleDriver, "BUS-4", rows)
	require.Equal(t, 1, n)
	require.Len(t, out, 1)
	assert.Equal(t, BusSet{"BUS-4"}, out[0].AssignedBus)
	assert.Equal(t, "Kumar", out[0].Name)
	assert.Equal(t, "901", out[0].Contact)
	assert.Equal(t, "keep", out[0].Credential)
	assert.Equal(t, "dev-1", out[0].DeviceID)
}

func TestMerge_AdminsNeverGetBuses(t *testing.T) {
	out, n := Merge(nil, RoleAdmin, "BUS-4", []Identity{{ID: "root", Credential: "pw"}})
	assert.Equal(t, 1, n)
	assert.Empty(t, out[0].AssignedBus)
}
