package files

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/cloudpad/tenantvault/internal/common"
	"github.com/cloudpad/tenantvault/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestGetByID_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "sub_project_id", "name", "file_type", "storage_path", "size_bytes", "created_at", "updated_at",
	}).AddRow("f1", "sp1", "notes.md", "markdown", "tenants/t1/sp1/f1/notes.md", int64(42), now, now)

	mock.ExpectQuery(`(?s)^\s*SELECT\s+id,.*FROM\s+files\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("f1").
		WillReturnRows(rows)

	f, err := repo.GetByID(context.Background(), "f1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.StoragePath != "tenants/t1/sp1/f1/notes.md" || f.SizeBytes != 42 {
		t.Fatalf("unexpected row: %+v", f)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+files`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+files\b.*ON\s+CONFLICT\s*\(id\)\s*DO\s+UPDATE\s+SET\b`

	mock.ExpectExec(q).
		WithArgs("f1", "sp1", "notes.md", "markdown", "tenants/t1/sp1/f1/notes.md", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &models.StoredFile{
		ID:           "f1",
		SubProjectID: "sp1",
		Name:         "notes.md",
		FileType:     "markdown",
		StoragePath:  "tenants/t1/sp1/f1/notes.md",
		SizeBytes:    42,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsert_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+files`).
		WillReturnError(errors.New("db down"))

	err := repo.Upsert(context.Background(), &models.StoredFile{ID: "f1"})
	if err == nil {
		t.Fatalf("expected wrapped db error")
	}
}

func TestDelete_ReportsExistence(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE\s+FROM\s+files\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^DELETE\s+FROM\s+files\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.Delete(context.Background(), "f1")
	if err != nil || !deleted {
		t.Fatalf("first delete: deleted=%v err=%v", deleted, err)
	}

	// second delete of the same id is a clean no-op
	deleted, err = repo.Delete(context.Background(), "f1")
	if err != nil || deleted {
		t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
	}
}
