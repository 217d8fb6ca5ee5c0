// Command portalctl is the command-line front end of the recruiting portal.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iliyamo/recruiting-portal/internal/client"
	"github.com/iliyamo/recruiting-portal/internal/logger"
)

type app struct {
	cfgPath string
	baseURL string
	cfg     cliConfig
}

func main() {
	a := &app{}
	if err := a.root().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) root() *cobra.Command {
	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Manage coffee chats and interview scorecards",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(a.cfgPath)
			if err != nil {
				return err
			}
			if a.baseURL != "" {
				cfg.BaseURL = a.baseURL
			}
			a.cfg = cfg
			return logger.InitWriter(cmd.ErrOrStderr(), cfg.LogLevel, "text")
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (default $PORTALCTL_CONFIG or ~/.config/portalctl.yaml)")
	root.PersistentFlags().StringVar(&a.baseURL, "base-url", "", "API base URL")

	root.AddCommand(a.loginCmd(), a.whoamiCmd(), a.slotsCmd(), a.evalsCmd())
	return root
}

func (a *app) client() *client.Client {
	return client.New(a.cfg.BaseURL, client.WithToken(a.cfg.Token), client.WithHTTPClient(a.cfg.httpClient()))
}

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session in the config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("PORTALCTL_PASSWORD")
			}
			s, err := a.client().Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("%s", client.UserMessage(err, "failed to log in"))
			}
			path, err := saveSession(a.cfgPath, s.Access.Token, s.Refresh.Token)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s), session saved to %s\n", s.User.Email, s.User.Role, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account e-mail")
	cmd.Flags().StringVar(&password, "password", "", "password (default $PORTALCTL_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.client().Me(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s", client.UserMessage(err, "failed to load account"))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s %s\n", id.UserID, id.Email, id.Role)
			return nil
		},
	}
}
