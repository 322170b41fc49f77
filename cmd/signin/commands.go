package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/signin/internal/signin/app"
	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/internal/signin/identity"
	"github.com/aussiebroadwan/signin/internal/signin/store/drivers/sqlite"
	"github.com/aussiebroadwan/signin/pkg/cryptox"
)

// NewRootCmd builds the signin command tree. Every command reads the same
// configuration: defaults, then --config, then the environment.
func NewRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "signin",
		Short:        "Sign-in pages of an OpenID Connect identity provider",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a configuration file")

	load := func(cmd *cobra.Command) (app.Config, error) {
		v, err := app.NewViper(configFile)
		if err != nil {
			return app.Config{}, err
		}
		if f := cmd.Flags().Lookup("port"); f != nil {
			if err := v.BindPFlag(app.KeyPort, f); err != nil {
				return app.Config{}, err
			}
		}
		return app.LoadConfig(v)
	}

	root.AddCommand(newServeCmd(load))
	root.AddCommand(newClientsCmd(load))
	root.AddCommand(newUsersCmd(load))
	root.AddCommand(newVersionCmd())
	return root
}

type configLoader func(cmd *cobra.Command) (app.Config, error)

func newServeCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sign-in server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			application, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return application.Run()
		},
	}
	cmd.Flags().Int("port", 8080, "HTTP server port")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), app.BuildVersion)
		},
	}
}

// withStore opens the configured database for an admin command.
func withStore(cmd *cobra.Command, load configLoader, fn func(cfg app.Config, db *sqlite.Store) error) error {
	cfg, err := load(cmd)
	if err != nil {
		return err
	}
	db, err := app.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(cfg, db)
}

func newClientsCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Manage relying parties",
	}

	var (
		c                   domain.Client
		disableLocalLogin   bool
		disableRememberMe   bool
		requireSignOutCheck bool
	)
	add := &cobra.Command{
		Use:   "add <client-id>",
		Short: "Register a relying party",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, load, func(_ app.Config, db *sqlite.Store) error {
				client := c
				client.ID = args[0]
				client.EnableLocalLogin = !disableLocalLogin
				client.AllowRememberMe = !disableRememberMe
				client.RequireSignOutPrompt = requireSignOutCheck
				if len(client.RedirectURIs) == 0 {
					return fmt.Errorf("at least one --redirect-uri is required")
				}
				if err := db.Clients().CreateClient(cmd.Context(), client); err != nil {
					return fmt.Errorf("create client %s: %w", client.ID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "client %s registered\n", client.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&c.Name, "name", "", "Display name shown on the login page")
	add.Flags().StringVar(&c.URI, "uri", "", "Home page of the client")
	add.Flags().StringVar(&c.LogoURI, "logo-uri", "", "Logo shown on the login page")
	add.Flags().StringSliceVar(&c.RedirectURIs, "redirect-uri", nil, "Allowed return URL (repeatable)")
	add.Flags().StringSliceVar(&c.PostLogoutRedirectURIs, "post-logout-redirect-uri", nil, "Allowed post logout URL (repeatable)")
	add.Flags().StringSliceVar(&c.IdentityProviderRestrictions, "idp", nil, "Allowed external provider (repeatable, default all)")
	add.Flags().BoolVar(&disableLocalLogin, "disable-local-login", false, "Only allow external providers")
	add.Flags().BoolVar(&disableRememberMe, "disable-remember-me", false, "Hide the remember me checkbox")
	add.Flags().BoolVar(&requireSignOutCheck, "require-signout-prompt", false, "Always ask before signing out")

	list := &cobra.Command{
		Use:   "list",
		Short: "List relying parties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, load, func(_ app.Config, db *sqlite.Store) error {
				clients, err := db.Clients().ListClients(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tREDIRECT URIS")
				for _, cl := range clients {
					fmt.Fprintf(w, "%s\t%s\t%v\n", cl.ID, cl.Name, cl.RedirectURIs)
				}
				return w.Flush()
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <client-id>",
		Short: "Delete a relying party",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, load, func(_ app.Config, db *sqlite.Store) error {
				if err := db.Clients().DeleteClient(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("delete client %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "client %s removed\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}

func newUsersCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage local accounts",
	}

	identityService := func(cfg app.Config, db *sqlite.Store) *identity.Service {
		cryptox.SetPepperPath(cfg.PepperFile)
		return &identity.Service{Store: db, TOTPIssuer: cfg.TOTPIssuer}
	}

	var in identity.NewUser
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a local account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, load, func(cfg app.Config, db *sqlite.Store) error {
				user := in
				user.Username = args[0]
				created, generated, err := identityService(cfg, db).CreateUser(cmd.Context(), user)
				if err != nil {
					return fmt.Errorf("create user %s: %w", args[0], err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "user %s created with id %s\n", created.Username, created.ID)
				if generated != "" {
					fmt.Fprintf(out, "generated password: %s\n", generated)
				}
				return nil
			})
		},
	}
	add.Flags().StringVar(&in.DisplayName, "display-name", "", "Name shown after sign-in")
	add.Flags().StringVar(&in.Email, "email", "", "Email address")
	add.Flags().StringVar(&in.Password, "password", "", "Initial password (generated when empty)")
	add.Flags().BoolVar(&in.ForcePasswordChange, "force-password-change", false, "Require a new password at first sign-in")

	var disable bool
	totpCmd := &cobra.Command{
		Use:   "totp <username>",
		Short: "Enrol or remove a TOTP second factor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, load, func(cfg app.Config, db *sqlite.Store) error {
				svc := identityService(cfg, db)
				out := cmd.OutOrStdout()
				if disable {
					if err := svc.DisableTOTP(cmd.Context(), args[0]); err != nil {
						return err
					}
					fmt.Fprintf(out, "second factor of %s removed\n", args[0])
					return nil
				}

				key, err := svc.EnrollTOTP(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "secret: %s\n", key.Secret())
				fmt.Fprintf(out, "url: %s\n", key.URL())
				return nil
			})
		},
	}
	totpCmd.Flags().BoolVar(&disable, "disable", false, "Remove the second factor instead")

	cmd.AddCommand(add, totpCmd)
	return cmd
}
