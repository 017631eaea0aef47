package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/concierge/internal/config"
	"github.com/zulandar/concierge/internal/db"
	"github.com/zulandar/concierge/internal/logger"
	"github.com/zulandar/concierge/internal/maintenance"
	"golang.org/x/term"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	cmd.AddCommand(newDBImportLegacyCmd())
	cmd.AddCommand(newDBPruneCmd())
	cmd.AddCommand(newDBSweepCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Concierge database",
		Long:  "Creates the conversation database if needed and migrates all tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Concierge config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config for hotel %q from %s\n", cfg.Hotel, configPath)

	if err := ensureDatabase(cmd, cfg.Database); err != nil {
		return err
	}
	if err := migrate(cmd, cfg.Database); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nConcierge database initialized successfully.")
	return nil
}

// ensureDatabase creates the database on server drivers. SQLite files are
// created on first connect.
func ensureDatabase(cmd *cobra.Command, cfg config.DatabaseConfig) error {
	if cfg.Driver == config.DriverSQLite {
		return nil
	}
	out := cmd.OutOrStdout()
	adminDB, err := db.ConnectAdmin(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s at %s:%d\n", cfg.Driver, cfg.Host, cfg.Port)

	if err := db.CreateDatabase(adminDB, cfg.Name); err != nil {
		return err
	}
	fmt.Fprintf(out, "Database %s ready\n", cfg.Name)
	return nil
}

func migrate(cmd *cobra.Command, cfg config.DatabaseConfig) error {
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables\n", len(db.AllModels()))
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-initialize the Concierge database",
		Long: `Drops the conversation database (or deletes the SQLite file) and
re-creates it with an empty schema. All conversations are lost.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Concierge config file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	target := cfg.Database.Name
	if cfg.Database.Driver == config.DriverSQLite {
		target = cfg.Database.Path
	}

	if !skipConfirm {
		if !canPrompt(cmd.InOrStdin()) {
			return fmt.Errorf("refusing to reset %s without a terminal; pass --yes", target)
		}
		if !confirmReset(cmd, target) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if cfg.Database.Driver == config.DriverSQLite {
		if err := os.Remove(cfg.Database.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", cfg.Database.Path, err)
		}
		fmt.Fprintf(out, "Removed %s\n", cfg.Database.Path)
	} else {
		adminDB, err := db.ConnectAdmin(cfg.Database)
		if err != nil {
			return err
		}
		if err := db.DropDatabase(adminDB, cfg.Database.Name); err != nil {
			return err
		}
		fmt.Fprintf(out, "Dropped database %s\n", cfg.Database.Name)
		if err := db.CreateDatabase(adminDB, cfg.Database.Name); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s re-created\n", cfg.Database.Name)
	}

	if err := migrate(cmd, cfg.Database); err != nil {
		return err
	}
	fmt.Fprintln(out, "\nConcierge database reset successfully.")
	return nil
}

// canPrompt reports whether in can answer a confirmation prompt. Piped or
// redirected stdin cannot; in-memory readers (tests) can.
func canPrompt(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return true
	}
	return term.IsTerminal(int(f.Fd()))
}

func confirmReset(cmd *cobra.Command, target string) bool {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "WARNING: This will permanently delete all conversations in %q.\n", target)
	fmt.Fprintln(out, "This action cannot be undone.")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}

func newDBImportLegacyCmd() *cobra.Command {
	var (
		configPath     string
		conversationID uint
	)

	cmd := &cobra.Command{
		Use:   "import-legacy",
		Short: "Move legacy JSON messages into the message table",
		Long: `Reads each conversation's legacy JSON messages column, stores every
readable entry as a message row and clears the column. Entries that cannot
be read are discarded and logged. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBImportLegacy(cmd, configPath, conversationID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Concierge config file")
	cmd.Flags().UintVar(&conversationID, "conversation", 0, "only import this conversation")
	return cmd
}

func runDBImportLegacy(cmd *cobra.Command, configPath string, conversationID uint) error {
	_, svc, err := serviceFromConfig(configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var n int
	if conversationID > 0 {
		n, err = svc.ImportLegacy(ctx, conversationID)
	} else {
		n, err = svc.ImportAllLegacy(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d legacy messages\n", n)
	return nil
}

func newDBPruneCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Trim every conversation to the retention cap",
		Long:  "Deletes the oldest messages of each conversation beyond messages.max_retained.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBPrune(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Concierge config file")
	return cmd
}

func runDBPrune(cmd *cobra.Command, configPath string) error {
	_, svc, err := serviceFromConfig(configPath)
	if err != nil {
		return err
	}
	n, err := svc.PruneAll(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d messages (cap %d per conversation)\n", n, svc.MaxRetained())
	return nil
}

func newDBSweepCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the maintenance sweep once",
		Long:  "Imports legacy messages, prunes to the retention cap and repairs conversation summaries.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBSweep(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Concierge config file")
	return cmd
}

func runDBSweep(cmd *cobra.Command, configPath string) error {
	cfg, svc, err := serviceFromConfig(configPath)
	if err != nil {
		return err
	}
	sweeper, err := maintenance.New(svc, cfg.Maintenance.Schedule, logger.Nop())
	if err != nil {
		return err
	}

	res := sweeper.RunOnce(context.Background())
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Imported: %d\n", res.Imported)
	fmt.Fprintf(out, "Pruned:   %d\n", res.Pruned)
	fmt.Fprintf(out, "Repaired: %d\n", res.Repaired)
	fmt.Fprintf(out, "Took:     %s\n", res.Duration.Round(time.Millisecond))
	return res.Err
}
