package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

func (a *App) signupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signup <identity>",
		Short: "Create an account; a verification code is sent to the identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := GetNewPassword(a.reader, a.out)
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc authService) error {
				resp, err := svc.Signup(ctx, args[0], pw)
				if err != nil {
					return err
				}
				a.printf("user_id: %s\nstatus: %s\n", resp.UserID, resp.Status)
				return nil
			})
		},
	}
}

func (a *App) verifyCmd() *cobra.Command {
	var userID, identity string
	cmd := &cobra.Command{
		Use:   "verify <code>",
		Short: "Confirm an account with the code it received",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" && identity == "" {
				return errVerifyTarget
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc authService) error {
				resp, err := svc.Verify(ctx, userID, identity, args[0])
				if err != nil {
					return err
				}
				a.printf("user_id: %s\nstatus: %s\n", resp.UserID, resp.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "account ID returned by signup")
	cmd.Flags().StringVar(&identity, "identity", "", "email or phone used at signup")
	return cmd
}

func (a *App) resendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resend <user-id>",
		Short: "Send a fresh verification code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc authService) error {
				if err := svc.ResendCode(ctx, args[0]); err != nil {
					return err
				}
				a.printf("code sent\n")
				return nil
			})
		},
	}
}

func (a *App) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <identity>",
		Short: "Log in and store the session locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := GetPassword(a.reader, "Password", a.out)
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc authService) error {
				sess, err := svc.Login(ctx, args[0], pw)
				if err != nil {
					return err
				}
				a.printf("logged in as %s\naccess token expires: %s\n", sess.Identity, sess.AccessExpiresAt.Format(time.RFC3339))
				return nil
			})
		},
	}
}

func (a *App) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rotate the stored refresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc authService) error {
				pair, err := svc.Refresh(ctx)
				if err != nil {
					return err
				}
				a.printf("tokens refreshed\naccess token expires: %s\n", pair.AccessExpiresAt.Format(time.RFC3339))
				return nil
			})
		},
	}
}

func (a *App) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc authService) error {
				if err := svc.Logout(ctx); err != nil {
					return err
				}
				a.printf("logged out\n")
				return nil
			})
		},
	}
}

func (a *App) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account behind the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc authService) error {
				me, err := svc.WhoAmI(ctx)
				if err != nil {
					return err
				}
				a.printf("user_id: %s\nidentity: %s\nrole: %s\nstatus: %s\n", me.UserID, me.Identity, me.Role, me.Status)
				return nil
			})
		},
	}
}

func (a *App) resetRequestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-request <identity>",
		Short: "Ask for a password reset code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc authService) error {
				if err := svc.RequestPasswordReset(ctx, args[0]); err != nil {
					return err
				}
				a.printf("if the account exists, a reset code has been sent\n")
				return nil
			})
		},
	}
}

func (a *App) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <identity> <code>",
		Short: "Set a new password with a reset code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := GetNewPassword(a.reader, a.out)
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc authService) error {
				if err := svc.ResetPassword(ctx, args[0], args[1], pw); err != nil {
					return err
				}
				a.printf("password changed, all sessions revoked\n")
				return nil
			})
		},
	}
}

func (a *App) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc authService) error {
				if err := svc.Ping(ctx); err != nil {
					return err
				}
				a.printf("OK\n")
				return nil
			})
		},
	}
}
