package db

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zulandar/concierge/internal/config"
	"github.com/zulandar/concierge/internal/models"
)

func TestDSN_MySQL(t *testing.T) {
	dsn, err := DSN(config.DatabaseConfig{
		Driver:   config.DriverMySQL,
		Host:     "10.0.0.5",
		Port:     3307,
		User:     "crm",
		Password: "s3cret",
		Name:     "concierge_bosphorus",
	})
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	for _, want := range []string{"crm:s3cret@tcp(10.0.0.5:3307)/concierge_bosphorus?", "parseTime=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN = %q, want to contain %q", dsn, want)
		}
	}
}

func TestDSN_Postgres(t *testing.T) {
	dsn, err := DSN(config.DatabaseConfig{
		Driver:  config.DriverPostgres,
		Host:    "db.internal",
		Port:    5432,
		User:    "postgres",
		Name:    "hotel",
		SSLMode: "require",
	})
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	for _, want := range []string{"host='db.internal'", "port=5432", "user='postgres'", "dbname='hotel'", "sslmode='require'"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN = %q, want to contain %q", dsn, want)
		}
	}
	if strings.Contains(dsn, "password=") {
		t.Errorf("DSN should omit empty password: %q", dsn)
	}
}

func TestDSN_PostgresQuotesValues(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:   config.DriverPostgres,
		Host:     "db.internal",
		Port:     5433,
		User:     "night auditor",
		Password: `it's a \ secret`,
		Name:     "hotel crm",
		SSLMode:  "disable",
	}
	dsn, err := DSN(cfg)
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	if !strings.Contains(dsn, `password='it\'s a \\ secret'`) {
		t.Errorf("DSN = %q, want escaped password", dsn)
	}

	parsed, err := pgconn.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("ParseConfig(%q): %v", dsn, err)
	}
	if parsed.Host != cfg.Host || parsed.Port != 5433 || parsed.User != cfg.User ||
		parsed.Password != cfg.Password || parsed.Database != cfg.Name {
		t.Errorf("parsed = host %q port %d user %q password %q db %q",
			parsed.Host, parsed.Port, parsed.User, parsed.Password, parsed.Database)
	}
}

func TestDSN_SQLite(t *testing.T) {
	dsn, err := DSN(config.DatabaseConfig{Driver: config.DriverSQLite, Path: "/var/lib/concierge.db"})
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	if dsn != "/var/lib/concierge.db" {
		t.Errorf("DSN = %q", dsn)
	}
}

func TestDSN_UnknownDriver(t *testing.T) {
	_, err := DSN(config.DatabaseConfig{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if !strings.Contains(err.Error(), `unsupported driver "oracle"`) {
		t.Errorf("error = %q", err.Error())
	}
}

func TestConnect_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concierge.db")
	gormDB, err := Connect(config.DatabaseConfig{Driver: config.DriverSQLite, Path: path})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gormDB); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	if err := Ping(gormDB); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	for _, m := range AllModels() {
		if !gormDB.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}
}

func TestConnect_Error(t *testing.T) {
	// Port 1 is unlikely to have a MySQL server; expect connection error.
	_, err := Connect(config.DatabaseConfig{Driver: config.DriverMySQL, Host: "127.0.0.1", Port: 1, User: "root", Name: "nonexistent"})
	if err == nil {
		t.Fatal("expected error connecting to invalid port")
	}
	if !strings.Contains(err.Error(), "db: connect to") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: connect to")
	}
}

func TestConnectAdmin_SQLite(t *testing.T) {
	_, err := ConnectAdmin(config.DatabaseConfig{Driver: config.DriverSQLite, Path: "x.db"})
	if err == nil {
		t.Fatal("expected error for sqlite admin connection")
	}
	if !strings.Contains(err.Error(), "has no server") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 2 {
		t.Errorf("AllModels() returned %d models, want 2", got)
	}
}

func TestOpenMemory_UniquePhone(t *testing.T) {
	gormDB, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}

	first := models.Conversation{CustomerName: "Ayşe", CustomerPhone: "+905551234567"}
	if err := gormDB.Create(&first).Error; err != nil {
		t.Fatalf("create first: %v", err)
	}
	dup := models.Conversation{CustomerName: "Ayşe Y.", CustomerPhone: "+905551234567"}
	if err := gormDB.Create(&dup).Error; err == nil {
		t.Fatal("expected unique constraint violation on customer_phone")
	}
}

func TestOpenMemory_Indexes(t *testing.T) {
	gormDB, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	if !gormDB.Migrator().HasIndex(&models.ConversationMessage{}, "idx_conversation_created") {
		t.Error("missing idx_conversation_created")
	}
	if !gormDB.Migrator().HasColumn(&models.Conversation{}, "messages") {
		t.Error("missing legacy messages column")
	}
}
