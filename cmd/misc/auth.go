package misc

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"tunnel-panel/cmd/root"
	"tunnel-panel/controllers"
	"tunnel-panel/internal/auth"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword reads from the terminal without echo, or one line from a pipe
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(data), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Print a bcrypt hash for auth.password_hash",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}
		if password == "" {
			return fmt.Errorf("empty password")
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

var loginUser string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain an API token, export it as TPANEL_TOKEN",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}
		client := root.NewClient()
		defer client.Close()

		resp, err := client.Post("/api/auth/login", controllers.LoginRequest{Username: loginUser, Password: password})
		if err != nil {
			return fmt.Errorf("failed to call panel API: %w", err)
		}
		var login controllers.LoginResponse
		if err := resp.Decode(&login); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Token expires at %s\n", login.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Println(login.Token)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "admin", "User name")
	root.RootCmd.AddCommand(hashPasswordCmd, loginCmd)
}
