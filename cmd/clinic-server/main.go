package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/domain/medicine"
	"github.com/clinic/clinic/internal/domain/staff"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/seed"
	"github.com/clinic/clinic/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clinic-server",
		Short:         "Clinic queue, treatment and reporting API server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(medicinesCmd())
	root.AddCommand(usersCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := newMigrator(cmd, pool, cfg.MigrationsDir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := newMigrator(cmd, pool, cfg.MigrationsDir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				switch {
				case s.Modified:
					status = "modified"
				case s.Applied:
					status = "applied"
				}
				if s.AppliedAt != nil {
					appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

// migrationSource picks --dir, then MIGRATIONS_DIR if it exists, and
// otherwise the files embedded in the binary (dir == "").
func migrationSource(cmd *cobra.Command, fallback string) string {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return dir
	}
	if fi, err := os.Stat(fallback); err == nil && fi.IsDir() {
		return fallback
	}
	return ""
}

func newMigrator(cmd *cobra.Command, pool *pgxpool.Pool, fallback string) *db.Migrator {
	if dir := migrationSource(cmd, fallback); dir != "" {
		return db.NewMigrator(pool, dir)
	}
	return db.NewMigratorFS(pool, migrations.FS)
}

func seedCmd() *cobra.Command {
	var (
		file string
		opts = seed.DefaultOptions()
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a seed file and optionally generate synthetic patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" && opts.Patients == 0 {
				return fmt.Errorf("nothing to do: pass --file and/or --patients")
			}
			var sf *seed.SeedFile
			if file != "" {
				var err error
				if sf, err = seed.LoadFile(file); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := newLogger(cfg)
			svc, err := newServices(cfg, pool, nil, nil, logger)
			if err != nil {
				return err
			}
			seeder := seed.NewSeeder(svc.staff, svc.medRepo, seed.NewPGStore(pool), logger)
			res, err := seeder.Apply(ctx, sf, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"users: %d created, %d skipped\nschedules: %d\nmedicines: %d created, %d updated\npatients: %d (%d visits, %d treatments)\n",
				res.Users, res.UsersSkipped, res.Schedules, res.MedicinesCreated, res.MedicinesUpdated,
				res.Patients, res.Visits, res.Treatments)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML seed file with users and medicines")
	cmd.Flags().IntVar(&opts.Patients, "patients", 0, "Number of synthetic patients to generate")
	cmd.Flags().IntVar(&opts.Months, "months", opts.Months, "Months of visit history to generate")
	cmd.Flags().IntVar(&opts.MaxVisits, "max-visits", opts.MaxVisits, "Maximum visits per generated patient")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "Random seed for reproducible data (0 picks one)")
	return cmd
}

func medicinesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "medicines",
		Short: "Manage the medicine catalogue",
	}

	var file string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import a medicine catalogue from CSV or XLSX",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := medicine.FormatFromFilename(file)
			if err != nil {
				return err
			}
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			ctx := cmd.Context()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc, err := newServices(cfg, pool, nil, nil, newLogger(cfg))
			if err != nil {
				return err
			}
			res, err := svc.medicines.Import(ctx, f, format)
			if err != nil {
				return err
			}
			printImport(cmd.OutOrStdout(), filepath.Base(file), res)
			return nil
		},
	}
	importCmd.Flags().StringVar(&file, "file", "", "Catalogue file (.csv or .xlsx)")
	_ = importCmd.MarkFlagRequired("file")
	cmd.AddCommand(importCmd)
	return cmd
}

func printImport(w io.Writer, name string, res *medicine.ImportResult) {
	fmt.Fprintf(w, "%s: %d created, %d updated, %d skipped\n", name, res.Created, res.Updated, res.Skipped)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage staff accounts",
	}

	var in staff.RegisterInput
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staff account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !auth.IsValidRole(in.Role) {
				return fmt.Errorf("invalid role %q", in.Role)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc, err := newServices(cfg, pool, nil, nil, newLogger(cfg))
			if err != nil {
				return err
			}
			u, err := svc.staff.Register(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s) id=%s\n", u.Role, u.Email, u.Code, u.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&in.Email, "email", "", "Login email")
	createCmd.Flags().StringVar(&in.Password, "password", "", "Initial password")
	createCmd.Flags().StringVar(&in.Role, "role", auth.RoleAdmin, "admin, doctor, on-call-doctor or secretary")
	createCmd.Flags().StringVar(&in.FirstName, "first-name", "Clinic", "First name")
	createCmd.Flags().StringVar(&in.LastName, "last-name", "Admin", "Last name")
	createCmd.Flags().StringVar(&in.Specialization, "specialization", "", "Doctor specialization")
	_ = createCmd.MarkFlagRequired("email")
	_ = createCmd.MarkFlagRequired("password")
	cmd.AddCommand(createCmd)
	return cmd
}
