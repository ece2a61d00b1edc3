package warehouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/dsload/internal/dataset"
)

func newMockLoader(t *testing.T, driver string) (*Loader, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewLoader(db, driver, 5*time.Second, nil), mock
}

func sampleDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(
		dataset.Column{Name: "a", Type: dataset.Int64, Values: []any{int64(1), int64(2)}},
		dataset.Column{Name: "c", Type: dataset.Float64, Values: []any{1.5, float64(0)}},
		dataset.Column{Name: "note", Type: dataset.String, Values: []any{"x", nil}},
	)
	require.NoError(t, err)
	return ds
}

func TestEnsureTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		driver string
		schema string
		want   string
	}{
		{
			name:   "postgres",
			driver: DriverPostgres,
			schema: "analytics",
			want:   `CREATE TABLE IF NOT EXISTS "analytics"."orders" ("a" VARCHAR, "weird ""col" VARCHAR)`,
		},
		{
			name:   "postgres_without_schema",
			driver: DriverPostgres,
			want:   `CREATE TABLE IF NOT EXISTS "orders" ("a" VARCHAR, "weird ""col" VARCHAR)`,
		},
		{
			name:   "mysql",
			driver: DriverMySQL,
			schema: "analytics",
			want:   "CREATE TABLE IF NOT EXISTS `analytics`.`orders` (`a` TEXT, `weird \"col` TEXT)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, mock := newMockLoader(t, tt.driver)
			mock.ExpectExec(tt.want).WillReturnResult(sqlmock.NewResult(0, 0))

			err := l.EnsureTable(context.Background(), tt.schema, "orders", []string{"a", `weird "col`})
			require.NoError(t, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEnsureTableErrors(t *testing.T) {
	t.Parallel()

	l, mock := newMockLoader(t, DriverPostgres)
	assert.Error(t, l.EnsureTable(context.Background(), "s", "", []string{"a"}))
	assert.Error(t, l.EnsureTable(context.Background(), "s", "t", nil))

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "s"."t" ("a" VARCHAR)`).WillReturnError(fmt.Errorf("permission denied"))
	err := l.EnsureTable(context.Background(), "s", "t", []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warehouse error during create table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		driver string
		insert string
	}{
		{
			name:   "postgres",
			driver: DriverPostgres,
			insert: `INSERT INTO "analytics"."orders" ("a", "c", "note") VALUES ($1, $2, $3)`,
		},
		{
			name:   "mysql",
			driver: DriverMySQL,
			insert: "INSERT INTO `analytics`.`orders` (`a`, `c`, `note`) VALUES (?, ?, ?)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, mock := newMockLoader(t, tt.driver)

			mock.ExpectBegin()
			prep := mock.ExpectPrepare(tt.insert)
			prep.ExpectExec().WithArgs("1", "1.5", "x").WillReturnResult(sqlmock.NewResult(0, 1))
			prep.ExpectExec().WithArgs("2", "0", nil).WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()

			n, err := l.Append(context.Background(), sampleDataset(t), "analytics", "orders")
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAppendTimeoutAppliesPerStatement(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	l := NewLoader(db, DriverPostgres, 80*time.Millisecond, nil)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO "analytics"."orders" ("a", "c", "note") VALUES ($1, $2, $3)`)
	prep.ExpectExec().WithArgs("1", "1.5", "x").WillDelayFor(50 * time.Millisecond).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("2", "0", nil).WillDelayFor(50 * time.Millisecond).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	start := time.Now()
	n, err := l.Append(context.Background(), sampleDataset(t), "analytics", "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Greater(t, time.Since(start), 80*time.Millisecond)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendRowTimeout(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	l := NewLoader(db, DriverPostgres, 20*time.Millisecond, nil)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO "analytics"."orders" ("a", "c", "note") VALUES ($1, $2, $3)`)
	prep.ExpectExec().WithArgs("1", "1.5", "x").WillDelayFor(time.Second).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err = l.Append(context.Background(), sampleDataset(t), "analytics", "orders")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert row 1")
}

func TestAppendFailures(t *testing.T) {
	t.Parallel()

	insert := `INSERT INTO "s"."t" ("a", "c", "note") VALUES ($1, $2, $3)`

	tests := []struct {
		name          string
		setupMock     func(mock sqlmock.Sqlmock)
		errorContains string
	}{
		{
			name: "begin_failure",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(fmt.Errorf("connection lost"))
			},
			errorContains: "during begin",
		},
		{
			name: "prepare_failure",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectPrepare(insert).WillReturnError(fmt.Errorf("relation does not exist"))
				mock.ExpectRollback()
			},
			errorContains: "during prepare insert",
		},
		{
			name: "insert_failure_rolls_back",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				prep := mock.ExpectPrepare(insert)
				prep.ExpectExec().WithArgs("1", "1.5", "x").WillReturnResult(sqlmock.NewResult(0, 1))
				prep.ExpectExec().WithArgs("2", "0", nil).WillReturnError(fmt.Errorf("value too long"))
				mock.ExpectRollback()
			},
			errorContains: "during insert row 2",
		},
		{
			name: "commit_failure",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				prep := mock.ExpectPrepare(insert)
				prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
				prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit().WillReturnError(fmt.Errorf("serialization failure"))
			},
			errorContains: "during commit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, mock := newMockLoader(t, DriverPostgres)
			tt.setupMock(mock)

			n, err := l.Append(context.Background(), sampleDataset(t), "s", "t")
			require.Error(t, err)
			assert.Zero(t, n)
			assert.Contains(t, err.Error(), tt.errorContains)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAppendEmptyDataset(t *testing.T) {
	t.Parallel()

	l, mock := newMockLoader(t, DriverPostgres)
	n, err := l.Append(context.Background(), &dataset.Dataset{}, "s", "t")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRoleStatement(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `SET ROLE "LOADER"`, dialects[DriverPostgres].setRole("LOADER"))
	assert.Equal(t, `SET ROLE 'it''s'`, dialects[DriverMySQL].setRole("it's"))
}
