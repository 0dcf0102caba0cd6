package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/castmaster/castmaster-backend/pkg/config"
	"github.com/castmaster/castmaster-backend/pkg/db/dbtest"
	"github.com/castmaster/castmaster-backend/pkg/db/models"
	"github.com/castmaster/castmaster-backend/pkg/logger"
)

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	conn := dbtest.Open(t)
	client := Wrap(conn)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&models.EmailLog{Recipient: "a@b.co", Subject: "s", Type: "mastering_complete", Status: "sent"}).Error
	}))

	var count int64
	require.NoError(t, conn.Model(&models.EmailLog{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&models.EmailLog{Recipient: "c@d.co", Subject: "s", Type: "mastering_complete", Status: "sent"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	require.NoError(t, conn.Model(&models.EmailLog{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestPing(t *testing.T) {
	client := Wrap(dbtest.Open(t))
	assert.NoError(t, client.Ping(context.Background()))
}

func TestIsUniqueViolationOnSQLite(t *testing.T) {
	conn := dbtest.Open(t)
	first := models.JobNotification{JobID: "job-1", Kind: "mastering", Email: "a@b.co", Status: "pending"}
	require.NoError(t, conn.Create(&first).Error)

	dup := models.JobNotification{JobID: "job-1", Kind: "mastering", Email: "c@d.co", Status: "pending"}
	err := conn.Create(&dup).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err, ""))
	assert.False(t, IsUniqueViolation(nil, ""))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	conn := dbtest.Open(t)
	client := Wrap(conn)

	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&models.EmailLog{Recipient: "p@q.co", Subject: "s", Type: "completion", Status: "sent"}).Error)
			panic("handler bug")
		})
	})

	var count int64
	require.NoError(t, conn.Model(&models.EmailLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestIsNotFound(t *testing.T) {
	conn := dbtest.Open(t)
	var row models.JobNotification
	err := conn.Where("job_id = ?", "missing").First(&row).Error
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(errors.New("other")))
}

func TestQueryLoggerReportsSlowAndFailedStatements(t *testing.T) {
	buf := &bytes.Buffer{}
	q := queryLogger{logg: logger.New(logger.Options{ServiceName: "test", Output: buf, Format: logger.FormatJSON})}
	stmt := func() (string, int64) { return "SELECT 1", 1 }

	q.Trace(context.Background(), time.Now(), stmt, nil)
	assert.Empty(t, buf.String())

	q.Trace(context.Background(), time.Now().Add(-time.Second), stmt, nil)
	assert.Contains(t, buf.String(), "db.slow_query")

	buf.Reset()
	q.Trace(context.Background(), time.Now(), stmt, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	q.Trace(context.Background(), time.Now(), stmt, errors.New("relation does not exist"))
	assert.Contains(t, buf.String(), "db.query_failed")
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{DSN: "x", Driver: "mysql"}, nil)
	require.Error(t, err)
}
