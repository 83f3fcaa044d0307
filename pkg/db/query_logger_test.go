package db

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

func openLogged(t *testing.T, threshold time.Duration) (*gorm.DB, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "db-test", Output: buf})
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:                 NewQueryLogger(logg, threshold),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	buf.Reset()
	return conn, buf
}

func TestQueryLoggerSkipsFastAndNotFound(t *testing.T) {
	conn, buf := openLogged(t, time.Hour)

	var m testModel
	if err := conn.First(&m, "name = ?", "missing").Error; err == nil {
		t.Fatalf("expected record not found")
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no log output, got %s", buf.String())
	}
}

func TestQueryLoggerReportsFailuresWithoutBindValues(t *testing.T) {
	conn, buf := openLogged(t, time.Hour)

	err := conn.Exec("INSERT INTO no_such_table (name) VALUES (?)", "hunter2").Error
	if err == nil {
		t.Fatalf("expected insert to fail")
	}
	out := buf.String()
	if !strings.Contains(out, "db.query_failed") {
		t.Fatalf("expected failure entry, got %s", out)
	}
	if strings.Contains(out, "hunter2") {
		t.Fatalf("bind value leaked: %s", out)
	}
}

func TestQueryLoggerWarnsOnSlowQueries(t *testing.T) {
	conn, buf := openLogged(t, time.Nanosecond)

	if err := conn.WithContext(context.Background()).Create(&testModel{Name: "slow"}).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !strings.Contains(buf.String(), "db.slow_query") {
		t.Fatalf("expected slow query warning, got %s", buf.String())
	}
}

func TestQueryLoggerSilentWithoutLogger(t *testing.T) {
	q := NewQueryLogger(nil, time.Nanosecond)
	q.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) {
		t.Fatalf("sql should not be rendered when silent")
		return "", 0
	}, nil)
}
