package projects

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/cloudpad/tenantvault/internal/common"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestGetSubProject_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "project_id", "name"}).
		AddRow("sp1", "p1", "Research")

	mock.ExpectQuery(`^SELECT\s+id,\s*project_id,\s*name\s+FROM\s+sub_projects\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("sp1").
		WillReturnRows(rows)

	sp, err := repo.GetSubProject(context.Background(), "sp1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sp.ProjectID != "p1" || sp.Name != "Research" {
		t.Fatalf("unexpected row: %+v", sp)
	}
}

func TestGetProject_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+projects`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetProject(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
