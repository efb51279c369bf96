package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit/internal/attendance"
	"transit/internal/auth"
	"transit/internal/logger"
	"transit/internal/roster"
)

const (
	testKey    = "handler-test-key"
	testIssuer = "handler-test"
)

var ist = time.FixedZone("IST", 5*3600+1800)

type env struct {
	router *gin.Engine
	roster *roster.Roster
	now    time.Time
}

type authOpt = auth.AuthenticatorOption

func newEnv(t *testing.T, store roster.Store, opts ...authOpt) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	if store == nil {
		fs, err := roster.NewFileStore(dir)
		require.NoError(t, err)
		store = fs
	}
	ledger, err := attendance.NewFileLedger(filepath.Join(dir, "Attendance.csv"), ist)
	require.NoError(t, err)

	e := &env{now: time.Date(2024, 3, 1, 8, 0, 0, 0, ist)}
	e.roster = roster.New(store)
	svc := attendance.NewService(ledger,
		attendance.WithLocation(ist),
		attendance.WithLocker(attendance.NewMemoryLocker()),
		attendance.WithClock(func() time.Time { return e.now }),
		attendance.WithLogger(logger.NewForTests()))
	opts = append([]authOpt{auth.WithAuthLogger(logger.NewForTests())}, opts...)
	h := New(Deps{
		Roster:        e.roster,
		Authenticator: auth.NewAuthenticator(e.roster, opts...),
		Scans:         svc,
		JWTIssuer:     testIssuer,
		JWTSigningKey: testKey,
		SessionTTL:    time.Hour,
		Checks:        map[string]HealthCheck{"ledger": func(context.Context) bool { return true }},
	})
	e.router = NewRouter(h, RouterOptions{})
	return e
}

func (e *env) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := e.roster.MergeImport(ctx, roster.RoleStudent, "BUS-7", []roster.Identity{
		{ID: "S001", Name: "Asha", Credential: "pw1", BoardingPoint: "Gate 2", Shift: "Morning"},
		{ID: "S002", Name: "Ravi", Credential: "pw2"},
	})
	require.NoError(t, err)
	_, err = e.roster.MergeImport(ctx, roster.RoleStaff, "BUS-9", []roster.Identity{
		{ID: "T01", Name: "Meera", Credential: "pw3"},
	})
	require.NoError(t, err)
	_, err = e.roster.MergeImport(ctx, roster.RoleDriver, "BUS-7", []roster.Identity{
		{ID: "D1", Name: "Kumar Swamy", Contact: "9000000001", Credential: "drv"},
	})
	require.NoError(t, err)
	_, err = e.roster.MergeImport(ctx, roster.RoleAdmin, "", []roster.Identity{
		{ID: "Transport Office", Name: "Transport Office", Credential: "adm"},
	})
	require.NoError(t, err)
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) login(t *testing.T, role, id, password string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"role": role, "user_id": id, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func TestSelfScan_DailyCycle(t *testing.T) {
	e := newEnv(t, nil)
	e.seed(t)
	token := e.login(t, "Student", "S001", "pw1")

	w := e.do(t, http.MethodPost, "/v1/scans", token, gin.H{"bus_id": "BUS-7"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Morning IN", body["scan_slot"])
	assert.Equal(t, "Asha", body["name"])
	assert.Equal(t, "Gate 2", body["boarding_point"])

	w = e.do(t, http.MethodPost, "/v1/scans", token, gin.H{"bus_id": "BUS-9"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	body = decode(t, w)
	assert.Equal(t, "BUS_MISMATCH", body["code"])
	assert.Equal(t, []any{"BUS-7"}, body["authorized_buses"])

	for _, slot := range []string{"Morning OUT", "Afternoon IN", "Afternoon OUT"} {
		e.now = e.now.Add(time.Hour)
		w = e.do(t, http.MethodPost, "/v1/scans", token, gin.H{"bus_id": "BUS-7"})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, slot, decode(t, w)["scan_slot"])
	}

	w = e.do(t, http.MethodPost, "/v1/scans", token, gin.H{"bus_id": "BUS-7"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DAILY_LIMIT_REACHED", decode(t, w)["code"])

	w = e.do(t, http.MethodGet, "/v1/scans/today", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.EqualValues(t, 4, body["count"])
	assert.EqualValues(t, 0, body["remaining"])
	assert.Equal(t, "", body["next_slot"])
}

func TestSelfScan_RequiresSession(t *testing.T) {
	e := newEnv(t, nil)
	w := e.do(t, http.MethodPost, "/v1/scans", "", gin.H{"bus_id": "BUS-7"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "NOT_AUTHENTICATED", decode(t, w)["code"])
}

func TestLogin_Errors(t *testing.T) {
	e := newEnv(t, nil)
	e.seed(t)

	w := e.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"role": "Student", "user_id": "S001", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decode(t, w)["code"])

	w = e.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"role": "Conductor", "user_id": "S001", "password": "pw1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"role": "Student"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_DeviceBinding(t *testing.T) {
	e := newEnv(t, nil, auth.WithDeviceBinding(true))
	e.seed(t)

	w := e.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"role": "Student", "user_id": "S001", "password": "pw1", "device_id": "phone-1111"})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"role": "Student", "user_id": "S001", "password": "pw1", "device_id": "phone-2222"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "DEVICE_MISMATCH", decode(t, w)["code"])
}

func TestSession_EchoesProfile(t *testing.T) {
	e := newEnv(t, nil)
	e.seed(t)
	token := e.login(t, "Staff", "T01", "pw3")

	w := e.do(t, http.MethodGet, "/v1/session", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decode(t, w)["profile"].(map[string]any)
	assert.Equal(t, "T01", profile["id"])
	assert.Equal(t, "Staff", profile["role"])
	assert.Equal(t, []any{"BUS-9"}, profile["assigned_bus"])
	assert.NotContains(t, w.Body.String(), "pw3")
}

func TestDriverScanAndManifest(t *testing.T) {
	e := newEnv(t, nil)
	e.seed(t)

	w := e.do(t, http.MethodPost, "/v1/auth/driver/login", "", gin.H{"contact": "9000000001", "name": "kumar swamy"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	driver := resp.Token

	w = e.do(t, http.MethodPost, "/v1/driver/scans", driver, gin.H{"scanned_id": "S001"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	receipt := decode(t, w)["receipt"].(map[string]any)
	assert.Equal(t, "Morning IN", receipt["scan_slot"])
	assert.Equal(t, "BUS-7", receipt["bus_id"])

	e.now = e.now.Add(time.Minute)
	w = e.do(t, http.MethodPost, "/v1/driver/scans", driver, gin.H{"scanned_id": "S002"})
	require.Equal(t, http.StatusCreated, w.Code)

	// T01 rides BUS-9, not the driver's bus.
	w = e.do(t, http.MethodPost, "/v1/driver/scans", driver, gin.H{"scanned_id": "T01"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "BUS_MISMATCH", decode(t, w)["code"])

	w = e.do(t, http.MethodPost, "/v1/driver/scans", driver, gin.H{"scanned_id": "X999"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Drivers are operators, never subjects.
	w = e.do(t, http.MethodPost, "/v1/driver/scans", driver, gin.H{"scanned_id": "D1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodPost, "/v1/scans", driver, gin.H{"bus_id": "BUS-7"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodGet, "/v1/driver/manifest", driver, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 2, body["count"])
	events := body["events"].([]any)
	assert.Equal(t, "S002", events[0].(map[string]any)["id"])
	assert.Equal(t, "S001", events[1].(map[string]any)["id"])
}

func TestDriverLogin_WrongName(t *testing.T) {
	e := newEnv(t, nil)
	e.seed(t)
	w := e.do(t, http.MethodPost, "/v1/auth/driver/login", "", gin.H{"contact": "9000000001", "name": "Someone"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDriverLogin_FieldsFollowDriverMode(t *testing.T) {
	both := gin.H{"contact": "9000000001", "name": "Kumar Swamy", "password": "not-the-password"}

	e := newEnv(t, nil)
	e.seed(t)
	w := e.do(t, http.MethodPost, "/v1/auth/driver/login", "", both)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	e = newEnv(t, nil, auth.WithDriverMode(auth.DriverByPassword))
	e.seed(t)
	w = e.do(t, http.MethodPost, "/v1/auth/driver/login", "", both)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = e.do(t, http.MethodPost, "/v1/auth/driver/login", "", gin.H{"driver_id": "D1", "password": "drv"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func upload(t *testing.T, e *env, token string, fields map[string]string, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestAdminImportAndRoster(t *testing.T) {
	e := newEnv(t, nil)
	e.seed(t)
	admin := e.login(t, "Admin", "Transport Office", "adm")

	sheet := "ID,Name,Password,Boarding_Point,Shift,Notes\nS001,Asha,ignored,,,x\nS003,Kiran,pw,Main Gate,Evening,y\n"
	w := upload(t, e, admin, map[string]string{"role": "Students", "bus_id": "BUS-11"}, "students.csv", sheet)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 2, decode(t, w)["processed"])

	// The same sheet again does not add a duplicate bus.
	w = upload(t, e, admin, map[string]string{"role": "Student", "bus_id": "BUS-11"}, "students.csv", sheet)
	require.Equal(t, http.StatusOK, w.Code)

	s001, err := e.roster.Lookup(context.Background(), roster.RoleStudent, "S001")
	require.NoError(t, err)
	assert.Equal(t, roster.BusSet{"BUS-7", "BUS-11"}, s001.AssignedBus)
	assert.Equal(t, "pw1", s001.Credential)

	w = e.do(t, http.MethodGet, "/v1/admin/roster/Students", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode(t, w)["count"])
	assert.NotContains(t, w.Body.String(), "pw1")

	w = upload(t, e, admin, map[string]string{"role": "Student"}, "students.csv", sheet)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = upload(t, e, admin, map[string]string{"role": "Student", "bus_id": "BUS-1"}, "students.pdf", sheet)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = upload(t, e, admin, map[string]string{"role": "Student", "bus_id": "BUS-1"}, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	student := e.login(t, "Student", "S001", "pw1")
	w = upload(t, e, student, map[string]string{"role": "Student", "bus_id": "BUS-1"}, "students.csv", sheet)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminExportAndManifest(t *testing.T) {
	e := newEnv(t, nil)
	e.seed(t)
	student := e.login(t, "Student", "S001", "pw1")
	w := e.do(t, http.MethodPost, "/v1/scans", student, gin.H{"bus_id": "BUS-7"})
	require.Equal(t, http.StatusCreated, w.Code)

	admin := e.login(t, "Admin", "Transport Office", "adm")
	w = e.do(t, http.MethodGet, "/v1/admin/attendance/export", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Attendance.csv")
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv"))
	assert.Equal(t,
		"Timestamp,ID,Name,Role,Boarding_Point,Shift,Scan_Slot,Bus_ID\n"+
			"2024-03-01 08:00:00,S001,Asha,Student,Gate 2,Morning,Morning IN,BUS-7\n",
		w.Body.String())

	w = e.do(t, http.MethodGet, "/v1/admin/manifest/BUS-7", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = e.do(t, http.MethodGet, "/v1/admin/manifest/BUS-9", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, decode(t, w)["events"])
}

func TestQRCodes(t *testing.T) {
	e := newEnv(t, nil)
	e.seed(t)
	token := e.login(t, "Student", "S001", "pw1")

	for _, path := range []string{"/v1/qr/bus/BUS-7", "/v1/qr/me?size=128"} {
		w := e.do(t, http.MethodGet, path, token, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")), path)
	}
}

type downStore struct{}

func (downStore) Load(context.Context, roster.Role) ([]roster.Identity, error) {
	return nil, errors.Join(roster.ErrBackendUnavailable, errors.New("dial tcp: connection refused"))
}

func (downStore) Replace(context.Context, roster.Role, []roster.Identity) error {
	return roster.ErrBackendUnavailable
}

func TestBackendUnavailable(t *testing.T) {
	e := newEnv(t, downStore{})
	w := e.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"role": "Student", "user_id": "S001", "password": "pw1"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "BACKEND_UNAVAILABLE", decode(t, w)["code"])
}

func TestHealth(t *testing.T) {
	e := newEnv(t, nil)
	w := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	h := New(Deps{Checks: map[string]HealthCheck{"db": func(context.Context) bool { return false }}})
	r := NewRouter(h, RouterOptions{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, decode(t, rec)["db"])
}
