package repository

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
	"github.com/threatdocs/threatdocs-backend/pkg/database"
	"github.com/threatdocs/threatdocs-backend/pkg/errors"
	"github.com/threatdocs/threatdocs-backend/pkg/logger"
	"github.com/threatdocs/threatdocs-backend/pkg/testutil"
)

var templateRowColumns = []string{
	"id", "name", "description", "version", "category", "is_active", "is_current",
	"confidence_threshold", "auto_apply", "allow_partial_matches", "priority",
	"tags", "supported_formats", "matching_criteria", "ocr_settings", "validation_policy",
	"total_uses", "successful_uses", "failed_uses", "avg_extraction_time_ms", "last_used_at",
	"lineage_id", "created_by", "created_at", "last_modified_by", "last_modified_at",
}

var fieldRowColumns = []string{
	"id", "template_id", "name", "display_name", "field_type", "method",
	"required", "processing_order", "definition",
}

var zoneRowColumns = []string{
	"id", "template_id", "field_name", "x", "y", "width", "height", "page_number",
	"coordinate_system", "zone_type", "priority", "is_active",
	"position_tolerance", "size_tolerance", "display",
}

func testRepo(t *testing.T) (*TemplateRepository, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { _ = mockDB.Close() })
	log := logger.New("test", "development")
	return NewTemplateRepository(database.NewFromSqlx(mockDB.DB, log)), mockDB
}

func templateRowValues(id, name string) []driver.Value {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	return []driver.Value{
		id, name, "desc", "1.0", "security-review", true, true,
		0.5, false, false, 0,
		"{}", "{pdf,txt}", []byte(`{}`), []byte(`{}`), []byte(`{}`),
		int64(3), int64(2), int64(1), 150.0, nil,
		id, "tester", now, "tester", now,
	}
}

func TestGetByIDReturnsNilOnMiss(t *testing.T) {
	repo, mockDB := testRepo(t)

	mockDB.Mock.ExpectQuery(`FROM templates WHERE id = \$1 AND is_active`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(templateRowColumns))

	got, err := repo.GetByID(context.Background(), "missing", false)
	require.NoError(t, err)
	assert.Nil(t, got)
	mockDB.ExpectationsWereMet(t)
}

func TestGetByIDHydratesFieldsAndZones(t *testing.T) {
	repo, mockDB := testRepo(t)

	rows := sqlmock.NewRows(templateRowColumns).
		AddRow(templateRowValues("tmpl-1", "Security Exception Request")...)
	mockDB.Mock.ExpectQuery(`FROM templates WHERE id = \$1 AND is_active`).
		WithArgs("tmpl-1").
		WillReturnRows(rows)

	fieldRows := sqlmock.NewRows(fieldRowColumns).
		AddRow("f-1", "tmpl-1", "ThreatLevel", "Threat Level", "risk_level", "plain_text", true, 1,
			[]byte(`{"patterns":["Threat Level:\\s*(\\w+)"]}`))
	mockDB.Mock.ExpectQuery(`FROM template_fields WHERE template_id = \$1`).
		WithArgs("tmpl-1").
		WillReturnRows(fieldRows)

	zoneRows := sqlmock.NewRows(zoneRowColumns).
		AddRow("z-1", "tmpl-1", "ThreatLevel", 10.0, 20.0, 100.0, 30.0, 1,
			"pixel", "text", 0, true, 0.0, 0.0, []byte(`{}`))
	mockDB.Mock.ExpectQuery(`FROM template_zones WHERE template_id = \$1`).
		WithArgs("tmpl-1").
		WillReturnRows(zoneRows)

	got, err := repo.GetByID(context.Background(), "tmpl-1", false)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "Security Exception Request", got.Name)
	assert.Equal(t, int64(3), got.UsageStats.TotalUses)
	require.Len(t, got.Fields, 1)
	assert.Equal(t, domain.FieldTypeRiskLevel, got.Fields[0].Type)
	assert.Equal(t, []string{`Threat Level:\s*(\w+)`}, got.Fields[0].Patterns)
	require.Len(t, got.Fields[0].Zones, 1)
	assert.Equal(t, domain.CoordsPixel, got.Fields[0].Zones[0].CoordinateSystem)
	mockDB.ExpectationsWereMet(t)
}

func TestGetByNameMatchesCurrentIdentityOnly(t *testing.T) {
	repo, mockDB := testRepo(t)

	// Superseded versions of a lineage stay active but non-current;
	// name lookups must see only the current identity
	mockDB.Mock.ExpectQuery(`FROM templates WHERE lower\(name\) = lower\(\$1\) AND is_active AND is_current`).
		WithArgs("Security Exception Request").
		WillReturnRows(sqlmock.NewRows(templateRowColumns))

	got, err := repo.GetByName(context.Background(), "Security Exception Request")
	require.NoError(t, err)
	assert.Nil(t, got)
	mockDB.ExpectationsWereMet(t)
}

func TestSoftDeleteMissingTemplate(t *testing.T) {
	repo, mockDB := testRepo(t)

	mockDB.Mock.ExpectBegin()
	mockDB.Mock.ExpectExec(`UPDATE templates SET is_active = FALSE`).
		WithArgs("missing", "admin").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.Mock.ExpectRollback()

	err := repo.SoftDelete(context.Background(), "missing", "admin")
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 404, appErr.StatusCode)
	mockDB.ExpectationsWereMet(t)
}

func TestRecordUsageAppliesAtomicUpdate(t *testing.T) {
	repo, mockDB := testRepo(t)

	mockDB.Mock.ExpectBegin()
	mockDB.Mock.ExpectExec(`UPDATE templates SET`).
		WithArgs("tmpl-1", 120.0, 1, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.Mock.ExpectExec(`INSERT INTO template_usage_history`).
		WithArgs(testutil.AnyUUID{}, "tmpl-1", true, 120.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.Mock.ExpectCommit()

	err := repo.RecordUsage(context.Background(), "tmpl-1", true, 120*time.Millisecond)
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestSearchBuildsDynamicFilter(t *testing.T) {
	repo, mockDB := testRepo(t)

	rows := sqlmock.NewRows(templateRowColumns).
		AddRow(templateRowValues("tmpl-1", "Security Exception Request")...)
	mockDB.Mock.ExpectQuery(`FROM templates WHERE 1=1 AND is_active AND is_current AND \(name ILIKE \$1 OR description ILIKE \$1\) AND category = \$2 .+ LIMIT \$3`).
		WithArgs("%exception%", "security-review", 10).
		WillReturnRows(rows)

	mockDB.Mock.ExpectQuery(`FROM template_fields`).
		WillReturnRows(sqlmock.NewRows(fieldRowColumns))
	mockDB.Mock.ExpectQuery(`FROM template_zones`).
		WillReturnRows(sqlmock.NewRows(zoneRowColumns))

	got, err := repo.Search(context.Background(), SearchCriteria{
		Query:    "exception",
		Category: "security-review",
		Limit:    10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	mockDB.ExpectationsWereMet(t)
}
