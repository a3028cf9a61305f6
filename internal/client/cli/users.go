package cli

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/api/authv1"
	"github.com/spf13/cobra"
)

// usersCmd groups the account management commands. They act with the stored
// session; most need an admin account.
func (a *App) usersCmd(loadConfig func() error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadConfig()
		},
	}
	cmd.AddCommand(
		a.usersListCmd(), a.usersGetCmd(), a.usersDeleteCmd(),
		a.usersActiveCmd("activate", "Re-enable an account", true),
		a.usersActiveCmd("deactivate", "Disable an account and revoke its sessions", false),
		a.usersRoleCmd(),
	)
	return cmd
}

func (a *App) usersListCmd() *cobra.Command {
	var (
		status        string
		offset, limit int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc authService) error {
				page, err := svc.ListUsers(ctx, status, offset, limit)
				if err != nil {
					return err
				}
				for _, u := range page.Users {
					a.printf("%s\t%s\t%s\t%s\tactive=%t\n", u.UserID, u.Identity, u.Role, u.Status, u.Active)
				}
				a.printf("total: %d\n", page.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only accounts in this status (unverified, verified)")
	cmd.Flags().IntVar(&offset, "offset", 0, "accounts to skip")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (server default when 0)")
	return cmd
}

func (a *App) usersGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <user-id>",
		Short: "Show one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc authService) error {
				u, err := svc.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				a.printUser(u)
				return nil
			})
		},
	}
}

func (a *App) usersDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete an account with its codes and sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc authService) error {
				if err := svc.DeleteUser(ctx, args[0]); err != nil {
					return err
				}
				a.printf("user %s deleted\n", args[0])
				return nil
			})
		},
	}
}

func (a *App) usersActiveCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc authService) error {
				u, err := svc.SetUserActive(ctx, args[0], active)
				if err != nil {
					return err
				}
				a.printUser(u)
				return nil
			})
		},
	}
}

func (a *App) usersRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role <user-id> <user|admin>",
		Short: "Change an account's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc authService) error {
				u, err := svc.SetUserRole(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				a.printUser(u)
				return nil
			})
		},
	}
}

func (a *App) printUser(u *authv1.User) {
	a.printf("user_id: %s\nidentity: %s\nrole: %s\nstatus: %s\nactive: %t\ncreated: %s\n",
		u.UserID, u.Identity, u.Role, u.Status, u.Active, u.CreatedAt.Format(time.RFC3339))
}
