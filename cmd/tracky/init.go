package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/tracky/internal/config"
	"github.com/erazemk/tracky/internal/db"
	"github.com/erazemk/tracky/internal/model"
	"github.com/erazemk/tracky/internal/store"
)

func newInitCmd(a *app) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database schema and the first supervisor account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := initDatabase(cmd.Context(), a.cfg, username)
			if err != nil {
				return err
			}
			printInitResult(cmd.OutOrStdout(), a.cfg, username, password)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "supervisor", "supervisor username")
	return cmd
}

func newUserCmd(a *app) *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	var role, password string
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user; prints a generated password unless --password is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDatabase(a.cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			generated := password == ""
			if generated {
				if password, err = generatePassword(16); err != nil {
					return fmt.Errorf("generating password: %w", err)
				}
			}
			if _, err := addUser(cmd.Context(), database, args[0], password, model.Role(role)); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "User %s created with role %s.\n", args[0], role)
			if generated {
				fmt.Fprintf(cmd.OutOrStdout(), "  Password: %s\n", password)
			}
			return nil
		},
	}
	add.Flags().StringVarP(&role, "role", "r", string(model.RoleViewer), "viewer, operator or supervisor")
	add.Flags().StringVarP(&password, "password", "p", "", "password (generated when empty)")

	user.AddCommand(add)
	return user
}

func openDatabase(cfg *config.Config) (*db.DB, error) {
	database, err := db.Open(cfg.Storage.Driver, cfg.Storage.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// addUser validates, hashes and stores a new account.
func addUser(ctx context.Context, database *db.DB, username, password string, role model.Role) (*model.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username required")
	}
	if err := model.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	u, err := store.CreateUser(ctx, database, username, string(hash), role)
	if err != nil {
		return nil, fmt.Errorf("creating user %s: %w", username, err)
	}
	return u, nil
}

// initDatabase ensures the schema and creates the first supervisor. It refuses
// to run against a database that already has users.
func initDatabase(ctx context.Context, cfg *config.Config, username string) (string, error) {
	database, err := openDatabase(cfg)
	if err != nil {
		return "", err
	}
	defer database.Close()

	n, err := store.CountUsers(ctx, database)
	if err != nil {
		return "", err
	}
	if n > 0 {
		return "", fmt.Errorf("database already initialized (%d users)", n)
	}

	password, err := generatePassword(16)
	if err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}
	if _, err := addUser(ctx, database, username, password, model.RoleSupervisor); err != nil {
		return "", err
	}
	return password, nil
}

// printInitResult prints the database initialization result.
func printInitResult(w io.Writer, cfg *config.Config, username, password string) {
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, "Database ready: %s (%s)\n", cfg.Storage.Driver, cfg.Storage.DSN())
	fmt.Fprintln(w, "Schema initialized.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Supervisor account created:")
	fmt.Fprintf(w, "  Username: %s\n", username)
	fmt.Fprintf(w, "  Password: %s\n", password)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Save this password, it cannot be recovered.")
}
