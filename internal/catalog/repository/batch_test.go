package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartpharmacy/smartpos-backend/internal/catalog/repository"
	"github.com/smartpharmacy/smartpos-backend/pkg/database"
	"github.com/smartpharmacy/smartpos-backend/pkg/errors"
	"github.com/smartpharmacy/smartpos-backend/pkg/testutil"
)

var batchColumns = []string{
	"id", "medicine_id", "batch_code", "quantity", "mfg_date", "exp_date",
	"created_at", "updated_at",
}

func newBatchRepo(t *testing.T) (*repository.BatchRepository, *testutil.MockDB) {
	mock := testutil.NewMockDB(t)
	repo := repository.NewBatchRepository(&database.DB{DB: mock.DB})
	return repo, mock
}

func TestBatchRepository_Create(t *testing.T) {
	repo, mock := newBatchRepo(t)

	now := time.Now()
	mock.ExpectQuery("INSERT INTO batches").
		WillReturnRows(testutil.Rows("created_at", "updated_at").AddRow(now, now))

	batch := &repository.StockBatch{MedicineID: "m1", Quantity: 50}
	require.NoError(t, repo.Create(context.Background(), batch))
	assert.NotEmpty(t, batch.ID)
}

func TestBatchRepository_CreateRaisingStock(t *testing.T) {
	repo, mock := newBatchRepo(t)

	now := time.Now()
	mock.Mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO batches").
		WillReturnRows(testutil.Rows("created_at", "updated_at").AddRow(now, now))
	mock.ExpectQuery("UPDATE medicines SET stock = stock + $2").
		WithArgs("m1", 5).
		WillReturnRows(testutil.Rows("stock").AddRow(15))
	mock.Mock.ExpectCommit()

	batch := &repository.StockBatch{MedicineID: "m1", Quantity: 5}
	newStock, err := repo.CreateRaisingStock(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, 15, newStock)
	assert.NotEmpty(t, batch.ID)
	mock.AssertExpectations(t)
}

func TestBatchRepository_CreateRaisingStock_MedicineGone(t *testing.T) {
	repo, mock := newBatchRepo(t)

	now := time.Now()
	mock.Mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO batches").
		WillReturnRows(testutil.Rows("created_at", "updated_at").AddRow(now, now))
	mock.ExpectQuery("UPDATE medicines SET stock = stock + $2").
		WillReturnRows(testutil.Rows("stock"))
	mock.Mock.ExpectRollback()

	_, err := repo.CreateRaisingStock(context.Background(), &repository.StockBatch{MedicineID: "missing", Quantity: 5})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestBatchRepository_ListByMedicine(t *testing.T) {
	repo, mock := newBatchRepo(t)

	now := time.Now()
	early := now.AddDate(0, 1, 0)
	late := now.AddDate(0, 6, 0)
	mock.ExpectQuery("ORDER BY exp_date ASC NULLS LAST, id").
		WithArgs("m1").
		WillReturnRows(testutil.Rows(batchColumns...).
			AddRow("b1", "m1", nil, 3, nil, early, now, now).
			AddRow("b2", "m1", nil, 5, nil, late, now, now).
			AddRow("b3", "m1", nil, 2, nil, nil, now, now))

	batches, err := repo.ListByMedicine(context.Background(), "m1")
	require.NoError(t, err)

	require.Len(t, batches, 3)
	assert.Equal(t, "b1", batches[0].ID)
	assert.Equal(t, "b2", batches[1].ID)
	assert.Nil(t, batches[2].ExpDate)

	mock.AssertExpectations(t)
}

func TestBatchRepository_TotalStock(t *testing.T) {
	repo, mock := newBatchRepo(t)

	mock.ExpectQuery("SELECT SUM(quantity) FROM batches").
		WithArgs("m1").
		WillReturnRows(testutil.Rows("sum").AddRow(42))

	total, err := repo.TotalStock(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 42, total)
}

func TestBatchRepository_TotalStockNoBatches(t *testing.T) {
	repo, mock := newBatchRepo(t)

	mock.ExpectQuery("SELECT SUM(quantity) FROM batches").
		WithArgs("m1").
		WillReturnRows(testutil.Rows("sum").AddRow(nil))

	total, err := repo.TotalStock(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestBatchRepository_Update_NotFound(t *testing.T) {
	repo, mock := newBatchRepo(t)

	mock.ExpectExec("UPDATE batches SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &repository.StockBatch{ID: "missing"})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestBatchRepository_Report(t *testing.T) {
	repo, mock := newBatchRepo(t)

	exp := time.Now().AddDate(1, 0, 0)
	mock.ExpectQuery("JOIN medicines m ON m.id = b.medicine_id").
		WillReturnRows(testutil.Rows("medicine_name", "quantity", "mfg_date", "exp_date", "discount", "batch_id").
			AddRow("Dolo 650", 50, nil, exp, 5.0, "b1"))

	rows, err := repo.Report(context.Background())
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.Equal(t, "Dolo 650", rows[0].MedicineName)
	assert.Equal(t, 50, rows[0].Quantity)
	assert.Equal(t, "b1", rows[0].BatchID)
}
