package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"infobot/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your InfoBot installation",
		Long: `Verifies that InfoBot's configuration, automation backend, journal
database, and AI endpoint are correctly set up. Reports pass/fail for
each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("InfoBot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'infobot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Contacts
			printPass("Contacts", fmt.Sprintf("%d teacher(s), %d student(s)", len(cfg.Teachers), len(cfg.Students)))
			passed++
			if len(cfg.Students) == 0 {
				printWarn("Contacts", "no students configured; teacher messages will not fan out")
				warned++
			}

			// 4. Automation backend
			switch cfg.General.Automator {
			case "osascript":
				if runtime.GOOS != "darwin" {
					printFail("Automator", fmt.Sprintf("osascript requires macOS (running on %s)", runtime.GOOS))
					failed++
				} else if _, err := exec.LookPath("osascript"); err != nil {
					printFail("Automator", "osascript binary not found")
					failed++
				} else {
					printPass("Automator", "osascript available")
					passed++
				}
			case "openwechat":
				printPass("Automator", "openwechat (login happens at run time)")
				passed++
			}

			// 5. Journal writable
			if err := checkDatabase(cfg.Journal.DBPath); err != nil {
				printFail("Journal", err.Error())
				failed++
			} else {
				printPass("Journal", cfg.Journal.DBPath)
				passed++
			}

			// 6. AI endpoint
			if cfg.SiliconFlow.Enabled {
				checkCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				defer cancel()
				if err := newEnricher(cfg).Healthy(checkCtx); err != nil {
					printWarn("AI endpoint", err.Error())
					warned++
				} else {
					printPass("AI endpoint", cfg.SiliconFlow.APIBase)
					passed++
				}
			} else {
				printWarn("AI endpoint", "enrichment disabled; raw text will be forwarded")
				warned++
			}

			// 7. Metrics port
			if cfg.Metrics.Enabled {
				if err := checkListen(cfg.Metrics.Listen); err != nil {
					printWarn("Metrics", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Listen, err))
					warned++
				} else {
					printPass("Metrics", cfg.Metrics.Listen+" available")
					passed++
				}
			}

			fmt.Printf("\n%d passed, %d failed, %d warning(s)\n", passed, failed, warned)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nInfoBot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! InfoBot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkListen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
