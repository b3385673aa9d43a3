// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tomtom215/rdiffgate/internal/catalogue"
	"github.com/tomtom215/rdiffgate/internal/logging"
	"github.com/tomtom215/rdiffgate/internal/validation"
)

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage catalogue users",
	}
	cmd.AddCommand(
		newUserAddCmd(opts),
		newUserListCmd(opts),
		newUserSetEmailCmd(opts),
		newUserSetPasswordCmd(opts),
		newUserDeleteCmd(opts),
	)
	return cmd
}

// withApp opens the shared components for the duration of fn.
func withApp(opts *rootOptions, fn func(a *app) error) error {
	a, err := newApp(opts.cfg)
	if err != nil {
		return err
	}
	err = fn(a)
	return errors.Join(err, a.Close())
}

func newUserAddCmd(opts *rootOptions) *cobra.Command {
	var (
		u             catalogue.User
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Create a user whose repositories live under --home",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u.Username = args[0]
			if verr := validation.ValidateStruct(&u); verr != nil {
				return verr
			}
			var password string
			if passwordStdin {
				pw, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
				if err := opts.cfg.Password.Policy(u.Admin).ValidateWithError(pw, u.Username); err != nil {
					return err
				}
				password = pw
			}

			return withApp(opts, func(a *app) error {
				if err := a.store.AddUser(cmd.Context(), &u); err != nil {
					return err
				}
				if password != "" {
					if err := a.store.SetPassword(cmd.Context(), u.Username, password); err != nil {
						return err
					}
				}
				logging.Info().Str("user", u.Username).Str("home", u.Home).Msg("User created")

				res, err := a.facade.Discover(cmd.Context(), u.Username)
				if err != nil {
					logging.Warn().Err(err).Str("user", u.Username).Msg("Initial discovery failed")
					return nil
				}
				printDiscovery(opts, res.Username, res.Added, res.Removed, res.Repos)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&u.Home, "home", "", "directory searched for the user's repositories")
	cmd.Flags().StringVar(&u.Email, "email", "", "address for notifications")
	cmd.Flags().BoolVar(&u.Admin, "admin", false, "grant administrator rights")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from the first line of stdin")
	_ = cmd.MarkFlagRequired("home")
	return cmd
}

func newUserListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users and their repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				users, err := a.store.Users(cmd.Context())
				if err != nil {
					return err
				}
				table := tablewriter.NewWriter(opts.stdout)
				table.SetHeader([]string{"User", "Email", "Home", "Admin", "Repositories"})
				for _, u := range users {
					names := make([]string, len(u.Repos))
					for i, r := range u.Repos {
						names[i] = r.Name
					}
					table.Append([]string{
						u.Username,
						u.Email,
						u.Home,
						strconv.FormatBool(u.Admin),
						strings.Join(names, ", "),
					})
				}
				table.Render()
				return nil
			})
		},
	}
}

func newUserSetEmailCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-email USERNAME EMAIL",
		Short: "Change a user's notification address; an empty EMAIL clears it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := strings.TrimSpace(args[1])
			if email != "" {
				if err := validation.GetValidator().Var(email, "email"); err != nil {
					return fmt.Errorf("invalid email address %q", email)
				}
			}
			return withApp(opts, func(a *app) error {
				return a.store.SetEmail(cmd.Context(), args[0], email)
			})
		},
	}
}

func newUserSetPasswordCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-password USERNAME",
		Short: "Set a user's password from the first line of stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app) error {
				u, err := a.store.User(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := opts.cfg.Password.Policy(u.Admin).ValidateWithError(pw, u.Username); err != nil {
					return err
				}
				return a.store.SetPassword(cmd.Context(), u.Username, pw)
			})
		},
	}
}

func newUserDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete USERNAME",
		Short: "Remove a user from the catalogue; repositories are left on disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				if _, err := a.store.User(cmd.Context(), args[0]); err != nil {
					return err
				}
				return a.store.DeleteUser(cmd.Context(), args[0])
			})
		},
	}
}

func readPassword(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", errors.New("no password on stdin")
	}
	pw := strings.TrimRight(sc.Text(), "\r")
	if pw == "" {
		return "", errors.New("password must not be empty")
	}
	return pw, nil
}
