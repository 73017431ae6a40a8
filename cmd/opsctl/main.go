// Command opsctl bootstraps workspaces and connected accounts and issues operator API tokens.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/config"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/crypto"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/middleware"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/repository"
)

var (
	cfgPath string
	cfg     *config.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "opsctl",
	Short:         "Operator tooling for the Instagram automation service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
		cfg, err = config.LoadConfig(cfgPath)
		return err
	},
}

// workspaceCmd creates a workspace and prints its id
var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Create a workspace",
	RunE:  runWorkspace,
}

// connectCmd stores a connected Instagram account with its access token sealed
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect an Instagram account to a workspace",
	Long: `Create a social account row and store its access token sealed with the
workspace key. The account is active immediately.`,
	RunE: runConnect,
}

// tokenCmd issues an operator API token
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an operator API token for a workspace",
	RunE:  runToken,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "configs/config.yml", "path to the YAML configuration file")

	workspaceCmd.Flags().Int64("owner", 0, "owner user id")
	workspaceCmd.Flags().String("name", "", "workspace name")
	workspaceCmd.Flags().Bool("default", false, "mark as the owner's default workspace")
	_ = workspaceCmd.MarkFlagRequired("owner")

	connectCmd.Flags().Int64("workspace", 0, "workspace id")
	connectCmd.Flags().String("account", "", "Instagram professional account id")
	connectCmd.Flags().String("page", "", "linked Facebook page id")
	connectCmd.Flags().String("username", "", "account username")
	connectCmd.Flags().String("token", "", "long-lived access token")
	_ = connectCmd.MarkFlagRequired("workspace")
	_ = connectCmd.MarkFlagRequired("account")
	_ = connectCmd.MarkFlagRequired("token")

	tokenCmd.Flags().Int64("workspace", 0, "workspace id")
	tokenCmd.Flags().String("role", "operator", "role claim")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("workspace")

	rootCmd.AddCommand(workspaceCmd, connectCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

func openDB() (*sqlx.DB, error) {
	db, err := repository.NewDB(cfg.Database.Type, cfg.Database.URL, logger)
	if err != nil {
		return nil, err
	}
	if err := repository.MigrateDB(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func runWorkspace(cmd *cobra.Command, args []string) error {
	owner, _ := cmd.Flags().GetInt64("owner")
	name, _ := cmd.Flags().GetString("name")
	isDefault, _ := cmd.Flags().GetBool("default")

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ws := &models.Workspace{OwnerID: owner, Name: name, IsDefault: isDefault}
	if err := repository.NewWorkspaceRepository(db, logger).CreateWorkspace(context.Background(), ws); err != nil {
		return err
	}
	fmt.Println(ws.ID)
	return nil
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	workspaceID, _ := cmd.Flags().GetInt64("workspace")
	externalAccountID, _ := cmd.Flags().GetString("account")
	externalPageID, _ := cmd.Flags().GetString("page")
	username, _ := cmd.Flags().GetString("username")
	token, _ := cmd.Flags().GetString("token")

	cipher, err := crypto.NewTokenCipher(cfg.Crypto.MasterKey)
	if err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	workspace, err := repository.NewWorkspaceRepository(db, logger).GetWorkspaceByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if workspace == nil {
		return fmt.Errorf("workspace %d not found", workspaceID)
	}

	accounts := repository.NewAccountRepository(db, logger)
	acc := &models.SocialAccount{
		WorkspaceID:       workspace.ID,
		ExternalAccountID: externalAccountID,
		ExternalPageID:    externalPageID,
		Username:          username,
	}
	// the sealed token is bound to the account id, so the row has to exist first
	if err := accounts.CreateAccount(ctx, acc); err != nil {
		return err
	}
	sealed, err := cipher.SealToken(acc.WorkspaceID, acc.ID, token)
	if err != nil {
		return err
	}
	if err := accounts.SetAccessToken(ctx, acc.ID, sealed); err != nil {
		return err
	}

	logger.Info("Account connected", zap.Int64("account_id", acc.ID), zap.Int64("workspace_id", acc.WorkspaceID))
	fmt.Println(acc.ID)
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	workspaceID, _ := cmd.Flags().GetInt64("workspace")
	role, _ := cmd.Flags().GetString("role")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	token, expires, err := middleware.IssueToken([]byte(cfg.Auth.JWTSecret), workspaceID, role, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
	fmt.Println(token)
	return nil
}
