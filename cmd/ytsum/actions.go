package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/domain"
	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/summaryclient"
	"github.com/urfave/cli/v2"
)

func clientFrom(c *cli.Context) *summaryclient.Client {
	return summaryclient.NewClient(c.String("server"), c.String("token"))
}

func requireArg(c *cli.Context, name string) (string, error) {
	arg := strings.TrimSpace(c.Args().First())
	if arg == "" {
		return "", fmt.Errorf("missing %s argument", name)
	}
	return arg, nil
}

func submitAction(c *cli.Context) error {
	ref, err := requireArg(c, "youtube-url")
	if err != nil {
		return err
	}
	client := clientFrom(c)
	res, err := client.Submit(c.Context, summaryclient.SubmitRequest{
		SourceReference: ref,
		Format:          c.String("format"),
		Language:        c.String("language"),
	})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "job %s %s\n", res.JobID, res.Status)
	if c.Bool("no-wait") || res.Status.Terminal() {
		return nil
	}

	last := res.Status
	view, err := client.Poll(c.Context, res.JobID, summaryclient.PollOptions{
		Interval:    c.Duration("interval"),
		MaxAttempts: c.Int("max-attempts"),
		OnStatus: func(v domain.StatusView) {
			if v.Status != last {
				fmt.Fprintf(c.App.ErrWriter, "status: %s\n", v.Status)
				last = v.Status
			}
		},
	})
	if errors.Is(err, summaryclient.ErrPollTimeout) {
		return fmt.Errorf("job %s still %s, check later with: ytsum status %s", res.JobID, view.Status, res.JobID)
	}
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	if view.Status == domain.StatusFailed {
		return fmt.Errorf("summary failed: %s", view.Error)
	}
	job, err := client.Get(c.Context, res.JobID)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	fmt.Fprintln(c.App.Writer, job.Text)
	return nil
}

func statusAction(c *cli.Context) error {
	id, err := requireArg(c, "job-id")
	if err != nil {
		return err
	}
	view, err := clientFrom(c).Status(c.Context, id)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "%s %s\n", view.SummaryID, view.Status)
	if view.Error != "" {
		fmt.Fprintf(c.App.Writer, "error: %s\n", view.Error)
	}
	return nil
}

func getAction(c *cli.Context) error {
	id, err := requireArg(c, "job-id")
	if err != nil {
		return err
	}
	job, err := clientFrom(c).Get(c.Context, id)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	fmt.Fprintln(c.App.Writer, job.Content())
	return nil
}

func listAction(c *cli.Context) error {
	items, err := clientFrom(c).List(c.Context, c.Bool("recent"))
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	if len(items) == 0 {
		fmt.Fprintln(c.App.Writer, "No summaries found")
		return nil
	}
	fmt.Fprintf(c.App.Writer, "%-36s %-10s %-20s %s\n", "ID", "Status", "Created", "Preview")
	fmt.Fprintln(c.App.Writer, strings.Repeat("-", 100))
	for _, item := range items {
		fmt.Fprintf(c.App.Writer, "%-36s %-10s %-20s %s\n",
			item.ID,
			item.Status,
			item.CreatedAt.Format("2006-01-02 15:04:05"),
			item.Preview,
		)
	}
	return nil
}

func deleteAction(c *cli.Context) error {
	id, err := requireArg(c, "job-id")
	if err != nil {
		return err
	}
	if err := clientFrom(c).Delete(c.Context, id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "deleted %s\n", id)
	return nil
}

func creditsAction(c *cli.Context) error {
	credits, err := clientFrom(c).Credits(c.Context)
	if err != nil {
		return fmt.Errorf("credits: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "plan: %s\nsummaries left: %d\nsubscription: %s\n", credits.Plan, credits.SummariesLeft, credits.SubscriptionStatus)
	return nil
}
