package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hatlonely/orm/models"
	"github.com/hatlonely/orm/rdb"
	"github.com/hatlonely/orm/rdb/aggregation"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create users, blogs and comments tables",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			for _, s := range a.store.Schemas() {
				if _, err := a.exec.Write(ctx, s.CreateTableSQL(), nil); err != nil {
					return errors.WithMessagef(err, "create table %s failed", s.Table())
				}
				fmt.Printf("Table ready: %s\n", s.Table())
			}
			return nil
		}),
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(userAddCmd(), userListCmd())
	return cmd
}

func userAddCmd() *cobra.Command {
	var (
		name     string
		email    string
		password string
		admin    bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a user",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			name = strings.TrimSpace(name)
			if name == "" {
				return errors.New("name is required")
			}

			existing, err := a.store.Users.FindAll(ctx, rdb.Where("email=?", email), rdb.LimitCount(1))
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return errors.Errorf("email already registered: %s", email)
			}

			u := &models.User{
				ID:    a.ids.Generate(),
				Name:  name,
				Email: email,
				Admin: admin,
				Image: models.GravatarURL(email),
			}
			u.Password = models.HashPassword(u.ID, password)
			if err := a.store.Users.Save(ctx, u); err != nil {
				return err
			}

			a.logger.InfoContext(ctx, "user created", "id", u.ID)
			fmt.Printf("User created: %s\n", u.ID)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "User name")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant admin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	var page, size int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			total, err := a.store.Users.Count(ctx, "count(id)")
			if err != nil {
				return err
			}
			p := rdb.NewPage(total, page, size)
			users, err := a.store.Users.FindAll(ctx, rdb.OrderBy("created_at desc"), p.Option())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL\tADMIN\tCREATED")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", u.ID, u.Name, u.Email, u.Admin, formatTime(u.CreatedAt))
			}
			_ = w.Flush()
			printPage(p)
			return nil
		}),
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page index")
	cmd.Flags().IntVar(&size, "size", 10, "Page size")
	return cmd
}

func blogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blog",
		Short: "Manage blogs",
	}
	cmd.AddCommand(blogAddCmd(), blogListCmd(), blogRmCmd())
	return cmd
}

func blogAddCmd() *cobra.Command {
	var (
		userID  string
		name    string
		summary string
		content string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a blog",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			if strings.TrimSpace(name) == "" || strings.TrimSpace(content) == "" {
				return errors.New("name and content are required")
			}
			user, err := a.store.Users.FindByKey(ctx, userID)
			if errors.Is(err, rdb.ErrRecordNotFound) {
				return errors.Errorf("user not found: %s", userID)
			}
			if err != nil {
				return err
			}

			b := &models.Blog{
				UserID:    user.ID,
				UserName:  user.Name,
				UserImage: user.Image,
				Name:      strings.TrimSpace(name),
				Summary:   strings.TrimSpace(summary),
				Content:   strings.TrimSpace(content),
			}
			if err := a.store.Blogs.Save(ctx, b); err != nil {
				return err
			}
			fmt.Printf("Blog created: %s\n", b.ID)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&userID, "user-id", "u", "", "Author user id")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Title")
	cmd.Flags().StringVarP(&summary, "summary", "s", "", "Summary")
	cmd.Flags().StringVar(&content, "content", "", "Content")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func blogListCmd() *cobra.Command {
	var (
		page   int
		size   int
		userID string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List blogs",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			var filter []rdb.FindOption
			if userID != "" {
				filter = append(filter, rdb.Where("user_id=?", userID))
			}
			total, err := a.store.Blogs.Count(ctx, "count(id)", filter...)
			if err != nil {
				return err
			}
			p := rdb.NewPage(total, page, size)
			blogs, err := a.store.Blogs.FindAll(ctx, append(filter, rdb.OrderBy("created_at desc"), p.Option())...)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tAUTHOR\tCREATED")
			for _, b := range blogs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.ID, b.Name, b.UserName, formatTime(b.CreatedAt))
			}
			_ = w.Flush()
			printPage(p)
			return nil
		}),
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page index")
	cmd.Flags().IntVar(&size, "size", 10, "Page size")
	cmd.Flags().StringVarP(&userID, "user-id", "u", "", "Only blogs of this user")
	return cmd
}

func blogRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a blog and its comments",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			b, err := a.store.Blogs.FindByKey(ctx, args[0])
			if errors.Is(err, rdb.ErrRecordNotFound) {
				return errors.Errorf("blog not found: %s", args[0])
			}
			if err != nil {
				return err
			}

			comments, err := a.store.Comments.FindAll(ctx, rdb.Select("id"), rdb.Where("blog_id=?", b.ID))
			if err != nil {
				return err
			}
			for _, c := range comments {
				if err := a.store.Comments.Delete(ctx, c); err != nil {
					return err
				}
			}
			if err := a.store.Blogs.Delete(ctx, b); err != nil {
				return err
			}
			fmt.Printf("Blog removed: %s (%d comments)\n", b.ID, len(comments))
			return nil
		}),
	}
}

func commentCmd() *cobra.Command {
	var (
		blogID  string
		userID  string
		content string
	)

	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Comment on a blog",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			if strings.TrimSpace(content) == "" {
				return errors.New("content is required")
			}
			if _, err := a.store.Blogs.FindByKey(ctx, blogID); err != nil {
				return errors.WithMessagef(err, "blog %s", blogID)
			}
			user, err := a.store.Users.FindByKey(ctx, userID)
			if err != nil {
				return errors.WithMessagef(err, "user %s", userID)
			}

			c := &models.Comment{
				BlogID:    blogID,
				UserID:    user.ID,
				UserName:  user.Name,
				UserImage: user.Image,
				Content:   strings.TrimSpace(content),
			}
			if err := a.store.Comments.Save(ctx, c); err != nil {
				return err
			}
			fmt.Printf("Comment created: %s\n", c.ID)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&blogID, "blog-id", "b", "", "Blog id")
	cmd.Flags().StringVarP(&userID, "user-id", "u", "", "Author user id")
	cmd.Flags().StringVar(&content, "content", "", "Content")
	_ = cmd.MarkFlagRequired("blog-id")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show row counts and pool status",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			users, err := a.store.Users.Count(ctx, "count(id)")
			if err != nil {
				return err
			}
			blogs, err := a.store.Blogs.Count(ctx, "count(id)")
			if err != nil {
				return err
			}
			comments, err := a.store.Comments.Count(ctx, "count(id)")
			if err != nil {
				return err
			}
			authors, err := a.store.Blogs.Aggregate(ctx, aggregation.CountDistinct("user_id"))
			if err != nil {
				return err
			}
			latest, err := a.store.Blogs.Aggregate(ctx, aggregation.Max("created_at"))
			if err != nil {
				return err
			}

			stats := a.pool.Stats()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "users\t%d\n", users)
			fmt.Fprintf(w, "blogs\t%d\n", blogs)
			fmt.Fprintf(w, "comments\t%d\n", comments)
			fmt.Fprintf(w, "authors\t%d\n", int64(authors))
			if latest > 0 {
				fmt.Fprintf(w, "latest blog\t%s\n", formatTime(latest))
			}
			fmt.Fprintf(w, "pool\t%s open=%d idle=%d max=%d\n", a.pool.Driver(), stats.Open, stats.Idle, stats.MaxOpen)
			return w.Flush()
		}),
	}
}

func formatTime(ts float64) string {
	sec := int64(ts)
	return time.Unix(sec, int64((ts-float64(sec))*1e9)).Format("2006-01-02 15:04:05")
}

func printPage(p *rdb.Page) {
	fmt.Printf("page %d/%d, total %d\n", p.Index, p.PageCount, p.Total)
}
