package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"qbeAdmin/internal/models"
	"qbeAdmin/internal/store"
	"qbeAdmin/internal/utils"
)

type userOptions struct {
	email     string
	name      string
	staff     bool
	superuser bool
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage admin users",
	}
	cmd.AddCommand(newUserCreateCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var opts userOptions

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user, or update the roles of an existing one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()
			return runUserCreate(cmd.Context(), db, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "Email address the user signs in with")
	cmd.Flags().StringVar(&opts.name, "name", "", "Display name")
	cmd.Flags().BoolVar(&opts.staff, "staff", false, "Allow the user into the admin")
	cmd.Flags().BoolVar(&opts.superuser, "superuser", false, "Grant every permission")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runUserCreate(ctx context.Context, db *sql.DB, out io.Writer, opts userOptions) error {
	v := utils.NewValidator()
	v.ValidateRequired(opts.email, "email").ValidateEmail(opts.email, "email")
	if v.HasErrors() {
		return errors.New(v.ErrorString())
	}

	users := store.NewUserRepo(db)
	user := &models.User{Email: opts.email, Name: opts.name, IsStaff: opts.staff, IsSuperuser: opts.superuser}

	err := users.Create(ctx, user)
	if store.IsConstraint(err) {
		existing, getErr := users.GetByEmail(ctx, opts.email)
		if getErr != nil {
			return getErr
		}
		if err := users.SetRoles(ctx, existing.ID, opts.staff, opts.superuser); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "updated user %d (%s) staff=%t superuser=%t\n", existing.ID, existing.Email, opts.staff, opts.superuser)
		return nil
	}
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "created user %d (%s) staff=%t superuser=%t\n", user.ID, user.Email, user.IsStaff, user.IsSuperuser)
	return nil
}

func newGroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage groups",
	}
	cmd.AddCommand(newGroupCreateCmd())
	cmd.AddCommand(newGroupAddMemberCmd())
	return cmd
}

func newGroupCreateCmd() *cobra.Command {
	var name, description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()
			return runGroupCreate(cmd.Context(), db, cmd.OutOrStdout(), name, description)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Group name")
	cmd.Flags().StringVar(&description, "description", "", "What the group is for")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runGroupCreate(ctx context.Context, db *sql.DB, out io.Writer, name, description string) error {
	v := utils.NewValidator()
	v.ValidateRequired(name, "name").ValidateLength(name, "name", 1, 150)
	if v.HasErrors() {
		return errors.New(v.ErrorString())
	}

	group := &models.Group{Name: name, Description: description}
	if err := store.NewGroupRepo(db).Create(ctx, group); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "created group %d (%s)\n", group.ID, group.Name)
	return nil
}

func newGroupAddMemberCmd() *cobra.Command {
	var group, email string

	cmd := &cobra.Command{
		Use:   "add-member",
		Short: "Add a user to a group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()
			return runGroupAddMember(cmd.Context(), db, cmd.OutOrStdout(), group, email)
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "Group name")
	cmd.Flags().StringVar(&email, "email", "", "Email of the user to add")
	_ = cmd.MarkFlagRequired("group")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runGroupAddMember(ctx context.Context, db *sql.DB, out io.Writer, group, email string) error {
	if err := store.NewGroupRepo(db).AddMember(ctx, group, email); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "added %s to %s\n", email, group)
	return nil
}

type grantOptions struct {
	queryID int64
	email   string
	group   string
	canRun  bool
}

func newGrantCmd() *cobra.Command {
	var opts grantOptions

	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant a user or group access to a saved query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()
			return runGrant(cmd.Context(), db, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().Int64Var(&opts.queryID, "query-id", 0, "Saved query id")
	cmd.Flags().StringVar(&opts.email, "email", "", "Grant to this user")
	cmd.Flags().StringVar(&opts.group, "group", "", "Grant to this group")
	cmd.Flags().BoolVar(&opts.canRun, "can-run", true, "Whether the grant allows running the query")
	_ = cmd.MarkFlagRequired("query-id")
	cmd.MarkFlagsOneRequired("email", "group")

	return cmd
}

func runGrant(ctx context.Context, db *sql.DB, out io.Writer, opts grantOptions) error {
	perm := &models.SavedQueryPermission{QueryID: opts.queryID, CanRun: opts.canRun}

	if opts.email != "" {
		user, err := store.NewUserRepo(db).GetByEmail(ctx, opts.email)
		if err != nil {
			return fmt.Errorf("user %s: %w", opts.email, err)
		}
		perm.UserID = &user.ID
	}
	if opts.group != "" {
		group, err := store.NewGroupRepo(db).GetByName(ctx, opts.group)
		if err != nil {
			return fmt.Errorf("group %s: %w", opts.group, err)
		}
		perm.GroupID = &group.ID
	}
	if !perm.HasSubject() {
		return errors.New("a grant needs --email or --group")
	}

	if _, err := store.NewSavedQueryRepo(db).Get(ctx, opts.queryID); err != nil {
		return fmt.Errorf("saved query %d: %w", opts.queryID, err)
	}

	if err := store.NewPermissionRepo(db).Create(ctx, perm); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "created permission %d on query %d can_run=%t\n", perm.ID, perm.QueryID, perm.CanRun)
	return nil
}
