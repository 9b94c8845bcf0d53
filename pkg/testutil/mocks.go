package testutil

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

// MockDB bundles a sqlx handle with its sqlmock controller
type MockDB struct {
	DB   *sqlx.DB
	Mock sqlmock.Sqlmock
}

// NewMockDB creates a sqlmock-backed sqlx database for repository tests
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	sqlxDB := sqlx.NewDb(db, "postgres")

	t.Cleanup(func() {
		_ = sqlxDB.Close()
	})

	return &MockDB{DB: sqlxDB, Mock: mock}
}

// ExpectQuery registers an expectation for a query, escaping regex metacharacters
func (m *MockDB) ExpectQuery(query string) *sqlmock.ExpectedQuery {
	return m.Mock.ExpectQuery(regexp.QuoteMeta(query))
}

// ExpectExec registers an expectation for an exec, escaping regex metacharacters
func (m *MockDB) ExpectExec(query string) *sqlmock.ExpectedExec {
	return m.Mock.ExpectExec(regexp.QuoteMeta(query))
}

// AssertExpectations fails the test if any expectation was not met
func (m *MockDB) AssertExpectations(t *testing.T) {
	t.Helper()
	if err := m.Mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

// Rows is a convenience alias for building mock result rows
func Rows(columns ...string) *sqlmock.Rows {
	return sqlmock.NewRows(columns)
}
