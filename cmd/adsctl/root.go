package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adsconnect/adsconnect/internal/oauth"
	"github.com/adsconnect/adsconnect/internal/syncer"
	"github.com/spf13/cobra"
)

// App is everything the commands need from the backend.
type App interface {
	Migrate(ctx context.Context, dir string) error
	EnsureValidToken(ctx context.Context, userID string) (*oauth.ValidToken, error)
	SyncProfiles(ctx context.Context, userID string) (*syncer.ProfileSyncResult, error)
	SyncCampaigns(ctx context.Context, userID, profileID string) (*syncer.CampaignSyncResult, error)
	Close()
}

// Opener builds the App once a command has parsed its flags.
type Opener func(ctx context.Context) (App, error)

func newRootCommand(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "adsctl",
		Short:         "adsctl manages AdsConnect from the command line",
		Long:          `adsctl applies database migrations and runs token and sync operations for a single user.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newMigrateCommand(open))
	root.AddCommand(newTokenCommand(open))
	root.AddCommand(newSyncCommand(open))
	return root
}

func newMigrateCommand(open Opener) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "applies pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(app App) error {
				if err := app.Migrate(cmd.Context(), dir); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory holding the migration files")
	return cmd
}

func newTokenCommand(open Opener) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "inspects Amazon tokens",
	}

	var userID string
	var show bool
	ensure := &cobra.Command{
		Use:   "ensure",
		Short: "refreshes the user's access token if it has expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(app App) error {
				tok, err := app.EnsureValidToken(cmd.Context(), userID)
				if err != nil {
					return fmt.Errorf("unable to ensure token: %w", err)
				}
				if show {
					fmt.Fprintln(cmd.OutOrStdout(), tok.AccessToken)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Access token for %s is valid\n", userID)
				return nil
			})
		},
	}
	ensure.Flags().StringVar(&userID, "user", "", "user id")
	ensure.Flags().BoolVar(&show, "show", false, "print the access token")
	_ = ensure.MarkFlagRequired("user")

	tokenCmd.AddCommand(ensure)
	return tokenCmd
}

func newSyncCommand(open Opener) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "pulls advertiser data from Amazon",
	}

	var profilesUser string
	profiles := &cobra.Command{
		Use:   "profiles",
		Short: "syncs the user's advertiser profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(app App) error {
				res, err := app.SyncProfiles(cmd.Context(), profilesUser)
				if err != nil {
					return fmt.Errorf("unable to sync profiles: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Synced %d advertiser profiles\n", res.Count)
				return nil
			})
		},
	}
	profiles.Flags().StringVar(&profilesUser, "user", "", "user id")
	_ = profiles.MarkFlagRequired("user")

	var campaignsUser, profileID string
	campaigns := &cobra.Command{
		Use:   "campaigns",
		Short: "syncs campaigns for one profile or every active profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(app App) error {
				res, err := app.SyncCampaigns(cmd.Context(), campaignsUser, profileID)
				if err != nil {
					return fmt.Errorf("unable to sync campaigns: %w", err)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			})
		},
	}
	campaigns.Flags().StringVar(&campaignsUser, "user", "", "user id")
	campaigns.Flags().StringVar(&profileID, "profile", "", "profile id (default: all active profiles)")
	_ = campaigns.MarkFlagRequired("user")

	syncCmd.AddCommand(profiles)
	syncCmd.AddCommand(campaigns)
	return syncCmd
}

func withApp(cmd *cobra.Command, open Opener, fn func(App) error) error {
	if open == nil {
		return errors.New("no backend configured")
	}
	app, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}
