package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"librarydesk/pkg/borrowstate"
	"librarydesk/pkg/domain"
	"librarydesk/pkg/libraryclient"
	"librarydesk/pkg/session"
	"librarydesk/pkg/stats"
)

func (c *cli) loginCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := c.readPassword("Password: ")
			if err != nil {
				return err
			}
			client, err := c.client()
			if err != nil {
				return err
			}
			sess, err := client.Login(cmd.Context(), libraryclient.Credentials{Email: strings.ToLower(strings.TrimSpace(email)), Password: password})
			if err != nil {
				return fmt.Errorf("login failed: %s", libraryclient.MessageOf(err, "Login failed"))
			}
			return c.remember(cmd, sess)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) registerCmd() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a member account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := c.readPassword("Password: ")
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("password is required")
			}
			client, err := c.client()
			if err != nil {
				return err
			}
			sess, err := client.Register(cmd.Context(), libraryclient.Registration{
				Name:     strings.TrimSpace(name),
				Email:    strings.ToLower(strings.TrimSpace(email)),
				Password: password,
			})
			if err != nil {
				return fmt.Errorf("registration failed: %s", libraryclient.MessageOf(err, "Registration failed"))
			}
			return c.remember(cmd, sess)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) remember(cmd *cobra.Command, sess session.Session) error {
	store, err := c.store()
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Put(cmd.Context(), sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Fprintf(c.out, "Signed in as %s (%s)\n", sess.User.Name, sess.User.Role.Label())
	return nil
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.store()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clear session: %w", err)
			}
			fmt.Fprintln(c.out, "Signed out")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.store()
			if err != nil {
				return err
			}
			defer store.Close()
			sess, err := c.current(cmd, store)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Name:  %s\nEmail: %s\nRole:  %s\n", sess.User.Name, sess.User.Email, sess.User.Role.Label())
			if exp := sess.ExpiresAt(); !exp.IsZero() {
				fmt.Fprintf(c.out, "Token expires %s\n", exp.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

func (c *cli) reportCmd() *cobra.Command {
	var start, end string
	var asCSV bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print borrowed and returned counts per day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rng := stats.Range{Start: start, End: end}
			if err := rng.Validate(); err != nil {
				return err
			}
			store, err := c.store()
			if err != nil {
				return err
			}
			defer store.Close()
			sess, err := c.current(cmd, store)
			if err != nil {
				return err
			}
			if !sess.User.Role.Staff() {
				return errors.New("reports are for library staff only")
			}
			client, err := c.client()
			if err != nil {
				return err
			}
			records, err := client.ListBorrows(cmd.Context(), sess)
			if err != nil {
				return fmt.Errorf("load borrows: %s", libraryclient.MessageOf(err, "request failed"))
			}
			report, err := stats.BuildReport(records, rng, time.Local)
			if err != nil {
				return err
			}
			if asCSV {
				return report.WriteCSV(c.out)
			}
			return printReport(c, report)
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last day, YYYY-MM-DD")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "write CSV instead of a table")
	return cmd
}

func printReport(c *cli, report stats.Report) error {
	fmt.Fprintf(c.out, "Borrow report %s to %s (%s)\n", report.Start, report.End, report.Location)
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tBORROWED\tRETURNED")
	for _, d := range report.Days {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", d.Date, d.Borrowed, d.Returned)
	}
	fmt.Fprintf(tw, "TOTAL\t%d\t%d\n", report.Totals.Borrowed, report.Totals.Returned)
	return tw.Flush()
}

func (c *cli) borrowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "borrows",
		Short: "List your borrows and what you can do next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.store()
			if err != nil {
				return err
			}
			defer store.Close()
			sess, err := c.current(cmd, store)
			if err != nil {
				return err
			}
			client, err := c.client()
			if err != nil {
				return err
			}
			records, err := client.ListSelfBorrows(cmd.Context(), sess)
			if err != nil {
				return fmt.Errorf("load borrows: %s", libraryclient.MessageOf(err, "request failed"))
			}
			if len(records) == 0 {
				fmt.Fprintln(c.out, "No borrows yet")
				return nil
			}
			titles := map[int64]string{}
			if books, err := client.ListBooks(cmd.Context(), sess); err == nil {
				for _, b := range books {
					titles[b.ID] = b.Title
				}
			}
			return printBorrows(c, records, titles)
		},
	}
}

func printBorrows(c *cli, records []domain.BorrowRecord, titles map[int64]string) error {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBOOK\tSTATUS\tBORROWED\tDUE")
	for _, rec := range records {
		title, ok := titles[rec.BookID]
		if !ok {
			title = fmt.Sprintf("Book #%d", rec.BookID)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", rec.ID, title, strings.ToUpper(string(rec.Status)),
			rec.BorrowDate.Format(time.DateOnly, "-"), rec.DueDate.Format(time.DateOnly, "-"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	seen := map[int64]bool{}
	for _, rec := range records {
		if seen[rec.BookID] {
			continue
		}
		seen[rec.BookID] = true
		res := borrowstate.Reconcile(records, rec.BookID)
		if res.Active == nil {
			continue
		}
		title := titles[rec.BookID]
		if title == "" {
			title = fmt.Sprintf("Book #%d", rec.BookID)
		}
		switch res.Affordance {
		case borrowstate.PendingApproval:
			fmt.Fprintf(c.out, "%s: waiting for approval\n", title)
		case borrowstate.Return:
			fmt.Fprintf(c.out, "%s: on loan, return it at the desk or in the console\n", title)
		}
		if res.Ambiguous() {
			fmt.Fprintf(c.out, "%s: %d active borrows found, please contact the library staff\n", title, len(res.Duplicates)+1)
		}
	}
	return nil
}
