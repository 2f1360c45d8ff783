package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic should propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&testModel{Name: "doomed"}).Error; err != nil {
				return err
			}
			panic("mid-transaction")
		})
	}()

	var count int64
	if err := db.Model(&testModel{}).Where("name = ?", "doomed").Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback after panic, found %d rows", count)
	}
}

func TestGormLoggerReportsOnlySlowAndFailed(t *testing.T) {
	var out bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Format: logger.FormatJSON, Output: &out})
	gl := newGormLogger(logg, 100*time.Millisecond)
	ctx := context.Background()
	stmt := func() (string, int64) { return "SELECT 1", 1 }

	gl.Trace(ctx, time.Now(), stmt, nil)
	gl.Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
	if out.Len() != 0 {
		t.Fatalf("fast and not-found statements should be quiet, got %s", out.String())
	}

	gl.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	if !strings.Contains(out.String(), "slow query") {
		t.Fatalf("expected slow query line, got %s", out.String())
	}
	out.Reset()

	gl.Trace(ctx, time.Now(), stmt, errors.New("relation does not exist"))
	if !strings.Contains(out.String(), "relation does not exist") {
		t.Fatalf("expected failure line, got %s", out.String())
	}

	if newGormLogger(nil, time.Second) != gormlogger.Discard {
		t.Fatal("nil logger should discard")
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error is not a violation")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: handoffs.conversation_id, handoffs.reason_code"), "") {
		t.Fatal("expected sqlite unique failure to match")
	}
	if !IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "ux_assignments_current"`), "ux_assignments_current") {
		t.Fatal("expected constraint name to match")
	}
	if IsUniqueViolation(errors.New("connection refused"), "") {
		t.Fatal("unexpected match")
	}
}

func TestIsLockContention(t *testing.T) {
	if !IsLockContention(errors.New("database is locked")) {
		t.Fatal("expected sqlite busy error to match")
	}
	if IsLockContention(errors.New("record not found")) {
		t.Fatal("unexpected match")
	}
}
