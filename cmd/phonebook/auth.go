package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/foxzi/phonebook/internal/client"
	"github.com/foxzi/phonebook/internal/models"
	"github.com/foxzi/phonebook/internal/session"
)

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in as an admin user for subsequent CLI commands",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the current CLI user",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current CLI user",
	RunE:  runWhoami,
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Generate a bcrypt hash for auth.password_hash",
	RunE:  runHashPassword,
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Admin user email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Shared password (will prompt if not provided)")
	loginCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, hashPasswordCmd)
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	pwBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pwBytes), nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	password := loginPassword
	if password == "" {
		var err error
		if password, err = readPassword("Password: "); err != nil {
			return err
		}
	}

	ctx := context.Background()
	if c := remote(); c != nil {
		return remoteLogin(ctx, c, password)
	}

	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()

	user, err := ws.sessions.Login(ctx, loginEmail, password)
	if errors.Is(err, session.ErrInvalidCredentials) {
		return fmt.Errorf("invalid email or password")
	}
	if err != nil {
		return err
	}

	fmt.Printf("Logged in as %s (%s)\n", user.Email, user.Role)
	return nil
}

// remoteLogin obtains a bearer token from the server. The token is kept
// for the rest of this process and printed for PHONEBOOK_TOKEN.
func remoteLogin(ctx context.Context, c *client.Client, password string) error {
	resp, err := c.Login(ctx, loginEmail, password)
	var apiErr *client.Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return fmt.Errorf("invalid email or password")
	}
	if err != nil {
		return err
	}
	serverToken = resp.Token

	fmt.Printf("Logged in to %s as %s (%s), token expires %s\n",
		serverURL, resp.User.Email, resp.User.Role, resp.ExpiresAt.Format("2006-01-02 15:04"))
	fmt.Printf("export PHONEBOOK_TOKEN=%s\n", resp.Token)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if serverURL != "" {
		serverToken = ""
		fmt.Println("Server tokens expire on their own; unset PHONEBOOK_TOKEN to stop using it")
		return nil
	}

	ws, err := openWorkspace(context.Background())
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := ws.sessions.Logout(); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	fmt.Println("Logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	var u *models.AdminUser
	if c := remote(); c != nil {
		if serverToken == "" {
			fmt.Println("Not logged in")
			return nil
		}
		var err error
		if u, err = c.Me(context.Background()); err != nil {
			return fmt.Errorf("failed to fetch current user: %w", err)
		}
	} else {
		ws, err := openWorkspace(context.Background())
		if err != nil {
			return err
		}
		defer ws.Close()
		u = ws.sessions.CurrentUser()
	}
	if u == nil {
		fmt.Println("Not logged in")
		return nil
	}

	fmt.Printf("Email:      %s\n", u.Email)
	fmt.Printf("Name:       %s\n", u.FullName)
	fmt.Printf("Role:       %s\n", u.Role)
	if u.LastLogin != nil {
		fmt.Printf("Last login: %s\n", u.LastLogin.Format("2006-01-02 15:04"))
	}
	return nil
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	password, err := readPassword("Enter password: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	fmt.Println(string(hash))
	return nil
}
