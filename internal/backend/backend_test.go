package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"

	"github.com/foxzi/phonebook/internal/models"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func strPtr(s string) *string { return &s }

var (
	extensionCols  = []string{"id", "number", "name", "department", "queue_id", "status", "metadata", "created_at", "updated_at"}
	departmentCols = []string{"id", "name", "description", "color", "order_index", "active", "created_at", "updated_at"}
	technicianCols = []string{"id", "name", "phone", "description", "region", "supervisor", "coordinator", "created_at", "updated_at"}
	allowedIPCols  = []string{"id", "ip", "description", "active", "created_at", "updated_at"}
)

func TestExtensionsList(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM extensions ORDER BY number`).
		WillReturnRows(pgxmock.NewRows(extensionCols).
			AddRow("e1", "2001", "Ana", "TI", strPtr("q1"), "active", []byte(`{"schema_version":1,"supervisor":true,"ramal_fisico":"A3"}`), now, now).
			AddRow("e2", "2002", "Bruno", "RH", (*string)(nil), "maintenance", []byte(`{}`), now, now))

	repo := NewExtensions(mock, time.Second)
	got, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List() returned %d extensions, want 2", len(got))
	}
	if got[0].QueueID != "q1" || !got[0].Metadata.Supervisor {
		t.Errorf("first extension = %+v", got[0])
	}
	if _, ok := got[0].Metadata.Extra["ramal_fisico"]; !ok {
		t.Error("unknown metadata key was not preserved")
	}
	if got[1].QueueID != "" || got[1].Status != models.StatusMaintenance {
		t.Errorf("second extension = %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestExtensionsCreateDefaultsStatus(t *testing.T) {
	mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO extensions`).
		WithArgs(pgxmock.AnyArg(), "2001", "Ana", "TI", pgxmock.AnyArg(), "active", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(extensionCols).
			AddRow("e1", "2001", "Ana", "TI", (*string)(nil), "active", []byte(`{"schema_version":1}`), now, now))

	repo := NewExtensions(mock, 0)
	e, err := repo.Create(context.Background(), models.ExtensionInput{Number: "2001", Name: "Ana", Department: "TI"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if e.Status != models.StatusActive {
		t.Errorf("Status = %q, want active", e.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestExtensionsUpdateNotFound(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`UPDATE extensions SET name = \$1, updated_at = \$2 WHERE id = \$3 RETURNING`).
		WithArgs("Carla", pgxmock.AnyArg(), "missing").
		WillReturnError(pgx.ErrNoRows)

	repo := NewExtensions(mock, time.Second)
	_, err := repo.Update(context.Background(), "missing", models.ExtensionPatch{Name: strPtr("Carla")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestExtensionsGetAndGetByNumber(t *testing.T) {
	mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM extensions WHERE id = \$1`).
		WithArgs("e1").
		WillReturnRows(pgxmock.NewRows(extensionCols).
			AddRow("e1", "2001", "Ana", "TI", (*string)(nil), "active", []byte(`{}`), now, now))
	mock.ExpectQuery(`SELECT .+ FROM extensions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT .+ FROM extensions WHERE number = \$1 ORDER BY created_at LIMIT 1`).
		WithArgs("2001").
		WillReturnRows(pgxmock.NewRows(extensionCols).
			AddRow("e1", "2001", "Ana", "TI", (*string)(nil), "active", []byte(`{}`), now, now))
	mock.ExpectQuery(`SELECT .+ FROM extensions WHERE department = \$1 ORDER BY number`).
		WithArgs("TI").
		WillReturnRows(pgxmock.NewRows(extensionCols).
			AddRow("e1", "2001", "Ana", "TI", (*string)(nil), "active", []byte(`{}`), now, now))

	repo := NewExtensions(mock, time.Second)
	ctx := context.Background()

	if e, err := repo.Get(ctx, "e1"); err != nil || e.Number != "2001" {
		t.Errorf("Get(e1) = %+v, %v", e, err)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if e, err := repo.GetByNumber(ctx, "2001"); err != nil || e.ID != "e1" {
		t.Errorf("GetByNumber(2001) = %+v, %v", e, err)
	}
	if list, err := repo.ListByDepartment(ctx, "TI"); err != nil || len(list) != 1 {
		t.Errorf("ListByDepartment(TI) = %v, %v", list, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestExtensionsDelete(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "deleted", affected: 1},
		{name: "missing", affected: 0, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			mock.ExpectExec(`DELETE FROM extensions WHERE id = \$1`).
				WithArgs("e1").
				WillReturnResult(pgxmock.NewResult("DELETE", tt.affected))

			err := NewExtensions(mock, 0).Delete(context.Background(), "e1")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Delete() error = %v, want %v", err, tt.wantErr)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestDepartmentsListActive(t *testing.T) {
	mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM departments WHERE active = TRUE ORDER BY order_index, name`).
		WillReturnRows(pgxmock.NewRows(departmentCols).
			AddRow("d1", "TI", strPtr("Tecnologia"), "#3b82f6", 1, true, now, now))

	got, err := NewDepartments(mock, 0).List(context.Background(), true)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 || got[0].Name != "TI" || got[0].Description == nil {
		t.Errorf("List() = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDepartmentsDeleteInUse(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM extensions`).
		WithArgs("d1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	err := NewDepartments(mock, 0).Delete(context.Background(), "d1")
	if !errors.Is(err, ErrDepartmentInUse) {
		t.Fatalf("Delete() error = %v, want ErrDepartmentInUse", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDepartmentsDeleteUnused(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM extensions`).
		WithArgs("d1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`DELETE FROM departments WHERE id = \$1`).
		WithArgs("d1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	if err := NewDepartments(mock, 0).Delete(context.Background(), "d1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTechniciansListByRegion(t *testing.T) {
	mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM technicians WHERE region = \$1 ORDER BY name`).
		WithArgs("Norte").
		WillReturnRows(pgxmock.NewRows(technicianCols).
			AddRow("t1", "Davi", "11999990000", "Fibra", "Norte", true, false, now, now))

	got, err := NewTechnicians(mock, 0).List(context.Background(), "Norte")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 || !got[0].Supervisor || got[0].Coordinator {
		t.Errorf("List() = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAllowedIPsCreate(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name      string
		ip        string
		setupMock func(pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name:    "invalid address",
			ip:      "10.0.0",
			wantErr: ErrInvalidIP,
		},
		{
			name:    "ipv6 rejected",
			ip:      "::1",
			wantErr: ErrInvalidIP,
		},
		{
			name:    "ipv4-mapped ipv6 rejected",
			ip:      "::ffff:10.0.0.1",
			wantErr: ErrInvalidIP,
		},
		{
			name: "duplicate",
			ip:   "10.0.0.1",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT EXISTS`).
					WithArgs("10.0.0.1", "").
					WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
			},
			wantErr: ErrDuplicateIP,
		},
		{
			name: "created",
			ip:   " 10.0.0.2 ",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT EXISTS`).
					WithArgs("10.0.0.2", "").
					WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
				mock.ExpectQuery(`INSERT INTO allowed_ips`).
					WithArgs(pgxmock.AnyArg(), "10.0.0.2", pgxmock.AnyArg(), true).
					WillReturnRows(pgxmock.NewRows(allowedIPCols).
						AddRow("a1", "10.0.0.2", strPtr("office"), true, now, now))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			if tt.setupMock != nil {
				tt.setupMock(mock)
			}

			_, err := NewAllowedIPs(mock, 0).Create(context.Background(), models.AllowedIP{
				IP:          tt.ip,
				Description: strPtr("office"),
				Active:      true,
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestAllowedIPsUpdateExcludesSelf(t *testing.T) {
	mock := newMock(t)
	now := time.Now().UTC()
	active := false

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("10.0.0.9", "a1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`UPDATE allowed_ips SET ip = \$1, active = \$2, updated_at = \$3 WHERE id = \$4`).
		WithArgs("10.0.0.9", false, pgxmock.AnyArg(), "a1").
		WillReturnRows(pgxmock.NewRows(allowedIPCols).
			AddRow("a1", "10.0.0.9", (*string)(nil), false, now, now))

	got, err := NewAllowedIPs(mock, 0).Update(context.Background(), "a1", models.AllowedIPPatch{
		IP:     strPtr("10.0.0.9"),
		Active: &active,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Active {
		t.Error("entry should be inactive")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestValidIPv4(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"192.168.0.1", true},
		{"0.0.0.0", true},
		{"256.1.1.1", false},
		{"10.0.0", false},
		{"::ffff:10.0.0.1", false},
		{"2001:db8::1", false},
		{"10.0.0.1/24", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidIPv4(tt.in); got != tt.want {
			t.Errorf("ValidIPv4(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestUpdateSet(t *testing.T) {
	var set updateSet
	set.add("name", "x")
	set.add("active", true)

	q, args := set.sql("departments", "d1", "id")
	want := "UPDATE departments SET name = $1, active = $2 WHERE id = $3 RETURNING id"
	if q != want {
		t.Errorf("sql() = %q, want %q", q, want)
	}
	if len(args) != 3 || args[2] != "d1" {
		t.Errorf("args = %v", args)
	}
}

func TestDecodeChange(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Change
		wantErr bool
	}{
		{name: "valid", payload: `{"table":"extensions","op":"UPDATE"}`, want: Change{Table: "extensions", Op: "UPDATE"}},
		{name: "missing table", payload: `{"op":"DELETE"}`, wantErr: true},
		{name: "not json", payload: `extensions`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeChange(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeChange() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("decodeChange() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFeedDispatch(t *testing.T) {
	feed := NewFeed(nil, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if feed.channel != DefaultNotifyChannel {
		t.Errorf("channel = %q, want default", feed.channel)
	}

	var ext, ips int
	unsubscribe := feed.Subscribe("extensions", func() { ext++ })
	feed.Subscribe("allowed_ips", func() { ips++ })

	if n := feed.dispatch(Change{Table: "extensions", Op: "INSERT"}); n != 1 {
		t.Errorf("dispatch() = %d, want 1", n)
	}
	feed.dispatch(Change{Table: "allowed_ips", Op: "DELETE"})
	feed.dispatch(Change{Table: "technicians", Op: "UPDATE"})

	unsubscribe()
	unsubscribe()
	feed.dispatch(Change{Table: "extensions", Op: "UPDATE"})

	if ext != 1 || ips != 1 {
		t.Errorf("ext = %d, ips = %d, want 1 and 1", ext, ips)
	}
}
