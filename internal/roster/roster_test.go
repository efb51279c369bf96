package roster

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileRoster(t *testing.T, opts ...Option) (*Roster, *FileStore) {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return New(fs, opts...), fs
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	r, _ := newFileRoster(t)
	idents, err := r.List(context.Background(), RoleStudent)
	require.NoError(t, err)
	assert.Empty(t, idents)

	_, err = r.Lookup(context.Background(), RoleStudent, "S001")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_ToleratesMissingColumns(t *testing.T) {
	r, fs := newFileRoster(t)
	require.NoError(t, os.WriteFile(fs.Path(RoleStudent), []byte("ID,Name,Password\nS001,Asha,pw\n"), 0o644))

	ident, err := r.Lookup(context.Background(), RoleStudent, " S001 ")
	require.NoError(t, err)
	assert.Equal(t, "Asha", ident.Name)
	assert.Equal(t, "pw", ident.Credential)
	assert.Empty(t, ident.AssignedBus)
	assert.Equal(t, "", ident.Shift)
}

func TestFileStore_AdminKeyedByName(t *testing.T) {
	r, fs := newFileRoster(t)
	require.NoError(t, os.WriteFile(fs.Path(RoleAdmin), []byte("Name,Password\ntransport-office,secret\n"), 0o644))

	ident, err := r.Lookup(context.Background(), RoleAdmin, "transport-office")
	require.NoError(t, err)
	assert.Equal(t, "secret", ident.Credential)
}

func TestFileStore_UnreadableIsBackendUnavailable(t *testing.T) {
	r, fs := newFileRoster(t)
	require.NoError(t, os.Mkdir(fs.Path(RoleStaff), 0o755))

	_, err := r.List(context.Background(), RoleStaff)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestRoster_MergeImportPersists(t *testing.T) {
	r, fs := newFileRoster(t)
	ctx := context.Background()

	n, err := r.MergeImport(ctx, RoleStudent, "BUS-7", []Identity{
		{ID: "S001", Name: "Asha", Credential: "pw", BoardingPoint: "Gate 2", Shift: "Morning"},
		{ID: "S002", Name: "Ravi"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.MergeImport(ctx, RoleStudent, "BUS-9", []Identity{{ID: "S001"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	raw, err := os.ReadFile(fs.Path(RoleStudent))
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"ID,Name,Password,Contact,Assigned_Bus,Boarding_Point,Shift,Device_ID",
		`S001,Asha,pw,,"BUS-7, BUS-9",Gate 2,Morning,`,
		"S002,Ravi,,,BUS-7,,,",
		"",
	}, "\n"), string(raw))
}

func TestRoster_MergeImportHashesOnlyNewCredentials(t *testing.T) {
	var hashed []string
	hasher := func(s string) (string, error) {
		if strings.HasPrefix(s, "h:") {
			return s, nil
		}
		hashed = append(hashed, s)
		return "h:" + s, nil
	}
	r, _ := newFileRoster(t, WithCredentialHasher(hasher))
	ctx := context.Background()

	_, err := r.MergeImport(ctx, RoleStaff, "BUS-1", []Identity{{ID: "ST1", Credential: "one"}})
	require.NoError(t, err)
	_, err = r.MergeImport(ctx, RoleStaff, "BUS-2", []Identity{{ID: "ST1", Credential: "ignored"}, {ID: "ST2", Credential: "two"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two"}, hashed)
	ident, err := r.Lookup(ctx, RoleStaff, "ST1")
	require.NoError(t, err)
	assert.Equal(t, "h:one", ident.Credential)
}

func TestRoster_MergeImportHasherError(t *testing.T) {
	r, _ := newFileRoster(t, WithCredentialHasher(func(string) (string, error) { return "", errors.New("boom") }))
	_, err := r.MergeImport(context.Background(), RoleStudent, "BUS-1", []Identity{{ID: "S1", Credential: "x"}})
	assert.Error(t, err)
}

func TestRoster_LookupByContactAndAny(t *testing.T) {
	r, _ := newFileRoster(t)
	ctx := context.Background()
	_, err := r.MergeImport(ctx, RoleDriver, "BUS-4", []Identity{{ID: "D1", Name: "Kumar", Contact: "9000000001"}})
	require.NoError(t, err)
	_, err = r.MergeImport(ctx, RoleStaff, "BUS-4", []Identity{{ID: "ST1", Name: "Meena"}})
	require.NoError(t, err)

	d, err := r.LookupByContact(ctx, RoleDriver, " 9000000001 ")
	require.NoError(t, err)
	assert.Equal(t, "D1", d.ID)
	_, err = r.LookupByContact(ctx, RoleDriver, "")
	assert.ErrorIs(t, err, ErrNotFound)

	st, err := r.LookupAny(ctx, "ST1", RoleStudent, RoleStaff)
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, st.Role)
	_, err = r.LookupAny(ctx, "nobody", RoleStudent, RoleStaff)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRoster_BindDeviceIsOneWay(t *testing.T) {
	r, _ := newFileRoster(t)
	ctx := context.Background()
	_, err := r.MergeImport(ctx, RoleStudent, "BUS-7", []Identity{{ID: "S001"}})
	require.NoError(t, err)

	require.NoError(t, r.BindDevice(ctx, RoleStudent, "S001", "device-abc"))
	require.NoError(t, r.BindDevice(ctx, RoleStudent, "S001", "device-abc"), "same device is a no-op")
	assert.ErrorIs(t, r.BindDevice(ctx, RoleStudent, "S001", "device-xyz"), ErrDeviceAlreadyBound)
	assert.ErrorIs(t, r.BindDevice(ctx, RoleStudent, "S404", "device-xyz"), ErrNotFound)

	ident, err := r.Lookup(ctx, RoleStudent, "S001")
	require.NoError(t, err)
	assert.Equal(t, "device-abc", ident.DeviceID)
}

func TestRoster_Rehash(t *testing.T) {
	r, fs := newFileRoster(t, WithCredentialHasher(func(s string) (string, error) {
		if strings.HasPrefix(s, "h:") {
			return s, nil
		}
		return "h:" + s, nil
	}))
	require.NoError(t, os.WriteFile(fs.Path(RoleAdmin), []byte("ID,Password\na,pw\nb,h:done\nc,\n"), 0o644))

	n, err := r.Rehash(context.Background(), RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ident, err := r.Lookup(context.Background(), RoleAdmin, "a")
	require.NoError(t, err)
	assert.Equal(t, "h:pw", ident.Credential)
}

func TestRoster_InvalidRole(t *testing.T) {
	r, _ := newFileRoster(t)
	_, err := r.MergeImport(context.Background(), Role("Visitor"), "BUS-1", nil)
	assert.ErrorIs(t, err, ErrInvalidRole)
}
