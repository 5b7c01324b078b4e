package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ytsum: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ytsum",
		Usage: "submit YouTube videos for summarization and follow the jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "summary service base URL",
				Value:   "http://localhost:8080",
				EnvVars: []string{"YTSUM_SERVER"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "bearer token for the summary service",
				EnvVars: []string{"YTSUM_TOKEN"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "submit",
				Usage:     "submit a video and wait for the summary",
				ArgsUsage: "<youtube-url>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Usage: "paragraph, bullets or timestamped"},
					&cli.StringFlag{Name: "language", Usage: "en, es or fr"},
					&cli.BoolFlag{Name: "no-wait", Usage: "print the job id and return"},
					&cli.DurationFlag{Name: "interval", Value: 2 * time.Second, Usage: "status poll interval"},
					&cli.IntFlag{Name: "max-attempts", Value: 150, Usage: "status polls before giving up"},
				},
				Action: submitAction,
			},
			{
				Name:      "status",
				Usage:     "show the status of a job",
				ArgsUsage: "<job-id>",
				Action:    statusAction,
			},
			{
				Name:      "get",
				Usage:     "print the summary of a completed job",
				ArgsUsage: "<job-id>",
				Action:    getAction,
			},
			{
				Name:  "list",
				Usage: "list your summaries, newest first",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "recent", Usage: "only the last five"},
				},
				Action: listAction,
			},
			{
				Name:      "delete",
				Usage:     "delete a summary",
				ArgsUsage: "<job-id>",
				Action:    deleteAction,
			},
			{
				Name:   "credits",
				Usage:  "show your plan and remaining summaries",
				Action: creditsAction,
			},
		},
	}
}
