//go:build integration

package db

import (
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/concierge/internal/config"
	"github.com/zulandar/concierge/internal/models"
	"gorm.io/gorm"
)

// testDoltServer manages a Dolt SQL server lifecycle for integration tests.
type testDoltServer struct {
	Port int
	Dir  string
	cmd  *exec.Cmd
}

// startDoltServer initializes a Dolt repo in a temp directory and starts
// dolt sql-server on a free port. The server is automatically stopped
// when the test completes.
func startDoltServer(t *testing.T) *testDoltServer {
	t.Helper()
	if _, err := exec.LookPath("dolt"); err != nil {
		t.Skip("dolt not on PATH")
	}

	dir := t.TempDir()

	// Configure dolt identity for the temp repo
	for _, kv := range [][2]string{
		{"user.name", "Test Runner"},
		{"user.email", "test@concierge.dev"},
	} {
		cfg := exec.Command("dolt", "config", "--global", "--add", kv[0], kv[1])
		cfg.Dir = dir
		cfg.CombinedOutput() // ignore errors if already set
	}

	// Initialize dolt repo
	init := exec.Command("dolt", "init")
	init.Dir = dir
	if out, err := init.CombinedOutput(); err != nil {
		t.Fatalf("dolt init: %s\n%s", err, out)
	}

	port := freePort(t)

	cmd := exec.Command("dolt", "sql-server",
		"--port", fmt.Sprintf("%d", port),
		"--host", "127.0.0.1",
	)
	cmd.Dir = dir

	if err := cmd.Start(); err != nil {
		t.Fatalf("dolt sql-server start: %v", err)
	}

	srv := &testDoltServer{Port: port, Dir: dir, cmd: cmd}

	t.Cleanup(func() {
		srv.cmd.Process.Kill()
		srv.cmd.Wait()
	})

	waitForServer(t, port)
	return srv
}

// dbConfig points the MySQL driver at the test server.
func (s *testDoltServer) dbConfig(name string) config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver: config.DriverMySQL,
		Host:   "127.0.0.1",
		Port:   s.Port,
		User:   "root",
		Name:   name,
	}
}

// migratedDB creates, connects to and migrates a fresh database.
func migratedDB(t *testing.T, srv *testDoltServer, name string) *gorm.DB {
	t.Helper()
	cfg := srv.dbConfig(name)
	adminDB, err := ConnectAdmin(cfg)
	if err != nil {
		t.Fatalf("ConnectAdmin: %v", err)
	}
	if err := CreateDatabase(adminDB, name); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	db, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

// freePort finds an available TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

// waitForServer polls until the Dolt server accepts TCP connections.
func waitForServer(t *testing.T, port int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("dolt sql-server not ready on port %d after 10s", port)
}

func TestIntegration_ConnectAdmin(t *testing.T) {
	srv := startDoltServer(t)
	db, err := ConnectAdmin(srv.dbConfig(""))
	if err != nil {
		t.Fatalf("ConnectAdmin: %v", err)
	}
	if err := Ping(db); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestIntegration_CreateDatabase(t *testing.T) {
	srv := startDoltServer(t)
	adminDB, err := ConnectAdmin(srv.dbConfig(""))
	if err != nil {
		t.Fatalf("ConnectAdmin: %v", err)
	}
	if err := CreateDatabase(adminDB, "concierge_test"); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}

	// Verify database exists by connecting to it
	db, err := Connect(srv.dbConfig("concierge_test"))
	if err != nil {
		t.Fatalf("Connect to new database: %v", err)
	}
	if err := Ping(db); err != nil {
		t.Fatalf("ping new database: %v", err)
	}
}

func TestIntegration_AutoMigrate(t *testing.T) {
	srv := startDoltServer(t)
	db := migratedDB(t, srv, "concierge_migrate")

	var tables []string
	if err := db.Raw("SHOW TABLES").Scan(&tables).Error; err != nil {
		t.Fatalf("SHOW TABLES: %v", err)
	}
	tableSet := make(map[string]bool)
	for _, tbl := range tables {
		tableSet[tbl] = true
	}
	for _, expected := range []string{"conversations", "conversation_messages"} {
		if !tableSet[expected] {
			t.Errorf("expected table %q not found; got tables: %v", expected, tables)
		}
	}
}

func TestIntegration_AutoMigrate_TableColumns(t *testing.T) {
	srv := startDoltServer(t)
	db := migratedDB(t, srv, "concierge_cols")

	type columnInfo struct {
		Field string `gorm:"column:Field"`
	}
	checks := map[string][]string{
		"conversations":         {"id", "customer_id", "customer_name", "customer_phone", "messages", "last_message", "last_message_time", "unread_count", "version"},
		"conversation_messages": {"id", "conversation_id", "body", "sender", "direction", "status", "created_at"},
	}
	for table, want := range checks {
		var cols []columnInfo
		if err := db.Raw("DESCRIBE " + table).Scan(&cols).Error; err != nil {
			t.Fatalf("DESCRIBE %s: %v", table, err)
		}
		colSet := make(map[string]bool)
		for _, c := range cols {
			colSet[c.Field] = true
		}
		for _, col := range want {
			if !colSet[col] {
				t.Errorf("%s: expected column %q not found", table, col)
			}
		}
	}
}

func TestIntegration_UniquePhone(t *testing.T) {
	srv := startDoltServer(t)
	db := migratedDB(t, srv, "concierge_unique")

	first := models.Conversation{CustomerName: "Ayse", CustomerPhone: "+905551234567"}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("create first: %v", err)
	}
	dup := models.Conversation{CustomerName: "Ayse Y.", CustomerPhone: "+905551234567"}
	if err := db.Create(&dup).Error; err == nil {
		t.Fatal("expected unique violation on customer_phone")
	}
}

func TestIntegration_Idempotent(t *testing.T) {
	srv := startDoltServer(t)
	adminDB, err := ConnectAdmin(srv.dbConfig(""))
	if err != nil {
		t.Fatalf("ConnectAdmin: %v", err)
	}

	// CreateDatabase twice
	if err := CreateDatabase(adminDB, "concierge_idem"); err != nil {
		t.Fatalf("CreateDatabase (1st): %v", err)
	}
	if err := CreateDatabase(adminDB, "concierge_idem"); err != nil {
		t.Fatalf("CreateDatabase (2nd): %v", err)
	}

	db, err := Connect(srv.dbConfig("concierge_idem"))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate (1st): %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate (2nd): %v", err)
	}

	if err := DropDatabase(adminDB, "concierge_idem"); err != nil {
		t.Fatalf("DropDatabase (1st): %v", err)
	}
	if err := DropDatabase(adminDB, "concierge_idem"); err != nil {
		t.Fatalf("DropDatabase (2nd): %v", err)
	}
}

// --- Error path tests using a closed connection ---

// closedGormDB starts a Dolt server, opens a connection, then closes the
// underlying sql.DB so all subsequent GORM operations fail.
func closedGormDB(t *testing.T) *gorm.DB {
	t.Helper()
	srv := startDoltServer(t)
	db := migratedDB(t, srv, "concierge_closed")
	sqlDB, _ := db.DB()
	sqlDB.Close()
	return db
}

func TestIntegration_AutoMigrate_Error(t *testing.T) {
	db := closedGormDB(t)
	err := AutoMigrate(db)
	if err == nil {
		t.Fatal("expected error from AutoMigrate with closed DB")
	}
	if !strings.Contains(err.Error(), "db: auto-migrate") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: auto-migrate")
	}
}

func TestIntegration_CreateDatabase_Error(t *testing.T) {
	db := closedGormDB(t)
	err := CreateDatabase(db, "should_fail")
	if err == nil {
		t.Fatal("expected error from CreateDatabase with closed DB")
	}
	if !strings.Contains(err.Error(), "db: create database") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: create database")
	}
}

func TestIntegration_Ping_Error(t *testing.T) {
	db := closedGormDB(t)
	if err := Ping(db); err == nil {
		t.Fatal("expected error from Ping with closed DB")
	}
}
