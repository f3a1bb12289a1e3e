package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
	"github.com/threatdocs/threatdocs-backend/pkg/database"
	"github.com/threatdocs/threatdocs-backend/pkg/errors"
	"github.com/threatdocs/threatdocs-backend/pkg/logger"
	"github.com/threatdocs/threatdocs-backend/pkg/testutil"
)

func testVersionRepo(t *testing.T) (*VersionRepository, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { _ = mockDB.Close() })
	log := logger.New("test", "development")
	return NewVersionRepository(database.NewFromSqlx(mockDB.DB, log)), mockDB
}

func TestCreateVersionDemotesPredecessorWithoutDeactivating(t *testing.T) {
	repo, mockDB := testVersionRepo(t)

	current := testutil.NewTemplateFixture("Security Exception Request")
	current.Fields = []domain.Field{testutil.NewFieldFixture("ThreatLevel", `Threat Level:\s*(\w+)`)}

	mockDB.Mock.ExpectBegin()
	// The predecessor loses only the current flag; it stays active so
	// the new identity can reuse the name under the partial unique index
	mockDB.Mock.ExpectExec(`UPDATE templates SET is_current = FALSE WHERE id = \$1 AND is_current`).
		WithArgs(current.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.Mock.ExpectExec(`INSERT INTO templates`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.Mock.ExpectExec(`INSERT INTO template_fields`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.Mock.ExpectExec(`UPDATE template_versions SET is_current = FALSE WHERE lineage_id = \$1 AND is_current`).
		WithArgs(current.LineageID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.Mock.ExpectExec(`INSERT INTO template_versions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.Mock.ExpectExec(`INSERT INTO template_change_records`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.Mock.ExpectCommit()

	next, err := repo.CreateVersion(context.Background(), current, "2.0", "admin")
	require.NoError(t, err)

	assert.NotEqual(t, current.ID, next.ID)
	assert.Equal(t, current.LineageID, next.LineageID)
	assert.Equal(t, "2.0", next.Version)
	assert.True(t, next.IsActive)
	assert.Zero(t, next.UsageStats.TotalUses)
	mockDB.ExpectationsWereMet(t)
}

func TestCreateVersionFailsWhenSourceNotCurrent(t *testing.T) {
	repo, mockDB := testVersionRepo(t)

	current := testutil.NewTemplateFixture("Security Exception Request")
	current.Fields = []domain.Field{testutil.NewFieldFixture("ThreatLevel", `Threat Level:\s*(\w+)`)}

	mockDB.Mock.ExpectBegin()
	mockDB.Mock.ExpectExec(`UPDATE templates SET is_current = FALSE WHERE id = \$1 AND is_current`).
		WithArgs(current.ID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.Mock.ExpectRollback()

	_, err := repo.CreateVersion(context.Background(), current, "2.0", "admin")
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 404, appErr.StatusCode)
	mockDB.ExpectationsWereMet(t)
}

func TestGetVersionByLabelReturnsNilOnMiss(t *testing.T) {
	repo, mockDB := testVersionRepo(t)

	mockDB.Mock.ExpectQuery(`FROM template_versions WHERE lineage_id = \$1 AND version_label = \$2`).
		WithArgs("lineage-1", "9.9").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "template_id", "lineage_id", "version_label", "snapshot", "is_current", "created_by", "created_at",
		}))

	got, err := repo.GetVersionByLabel(context.Background(), "lineage-1", "9.9")
	require.NoError(t, err)
	assert.Nil(t, got)
	mockDB.ExpectationsWereMet(t)
}
