package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrEthical07/goBlog/auth"
	"github.com/MrEthical07/goBlog/backend"
	"github.com/spf13/cobra"
)

// NewSignUpCmd creates the signup subcommand.
func NewSignUpCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "signup <email>",
		Short: "Create an account and sign in",
		Long:  "Create an account. The password is read from the first line of stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			app, _, err := openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			if err := requireClient(app); err != nil {
				return err
			}

			session, err := app.Client().SignUp(cmd.Context(), args[0], password, name)
			if err != nil {
				return err
			}
			printUser(cmd.OutOrStdout(), "signed up as", session.UserOrNil())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

// NewSignInCmd creates the signin subcommand.
func NewSignInCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signin <email>",
		Short: "Sign in with email and password",
		Long:  "Sign in. The password is read from the first line of stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			app, _, err := openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			if err := requireClient(app); err != nil {
				return err
			}

			session, err := app.Client().SignInWithPassword(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			printUser(cmd.OutOrStdout(), "signed in as", session.UserOrNil())
			return nil
		},
	}
}

// NewSignOutCmd creates the signout subcommand.
func NewSignOutCmd() *cobra.Command {
	var everywhere bool
	cmd := &cobra.Command{
		Use:   "signout",
		Short: "End the local session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, err := openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			if err := requireClient(app); err != nil {
				return err
			}

			client := app.Client()
			if everywhere {
				err := client.SignOutEverywhere(cmd.Context())
				if err != nil && !errors.Is(err, backend.ErrNoSession) {
					return err
				}
			}
			if err := client.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
	cmd.Flags().BoolVar(&everywhere, "everywhere", false, "revoke every session of the user")
	return cmd
}

// NewWhoAmICmd creates the whoami subcommand.
func NewWhoAmICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in user as the session store sees it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, err := startApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			user := app.Store().Current()
			if user == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "not signed in")
				return nil
			}
			printUser(cmd.OutOrStdout(), "signed in as", user)
			return nil
		},
	}
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("password required on stdin")
	}
	return line, nil
}

func printUser(w io.Writer, prefix string, user *auth.User) {
	if user == nil {
		fmt.Fprintln(w, "not signed in")
		return
	}
	if user.DisplayName != "" {
		fmt.Fprintf(w, "%s %s (%s) id=%s\n", prefix, user.Email, user.DisplayName, user.ID)
		return
	}
	fmt.Fprintf(w, "%s %s id=%s\n", prefix, user.Email, user.ID)
}
