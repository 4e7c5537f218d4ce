package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/deskmove/internal/logging"
	"github.com/me/deskmove/pkg/model"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show queue counts, or control admission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get(cmd.Context(), "/api/v1/queue")
			if err != nil {
				return fmt.Errorf("get queue: %w", err)
			}
			return printStats(cmd.OutOrStdout(), resp)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Resume admission of queued jobs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := client.Post(cmd.Context(), "/api/v1/queue/start", nil)
				if err != nil {
					return fmt.Errorf("start queue: %w", err)
				}
				return printStats(cmd.OutOrStdout(), resp)
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Pause admission; in-flight jobs keep running",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := client.Post(cmd.Context(), "/api/v1/queue/stop", nil)
				if err != nil {
					return fmt.Errorf("stop queue: %w", err)
				}
				return printStats(cmd.OutOrStdout(), resp)
			},
		},
		&cobra.Command{
			Use:   "concurrency <n>",
			Short: "Set how many jobs may be Active at once",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("concurrency must be an integer: %q", args[0])
				}
				resp, err := client.Put(cmd.Context(), "/api/v1/queue/concurrency", map[string]int{"concurrency": n})
				if err != nil {
					return fmt.Errorf("set concurrency: %w", err)
				}
				return printStats(cmd.OutOrStdout(), resp)
			},
		},
	)
	return cmd
}

func printStats(out io.Writer, resp *apiResponse) error {
	if flagJSON {
		return printRaw(out, resp)
	}
	var s model.QueueStats
	if err := resp.decode(&s); err != nil {
		return err
	}
	state := "stopped"
	if s.Running {
		state = "running"
	}
	printf(out, "Queue:       %s\n", state)
	printf(out, "Concurrency: %d (max %d)\n", s.Concurrency, s.MaxConcurrency)
	printf(out, "Jobs:        %d total, %d queued, %d active, %d monitoring\n", s.Total, s.Queued, s.Active, s.Monitoring)
	printf(out, "Finished:    %d success, %d with warnings, %d warning, %d failed\n",
		s.Success, s.SuccessWithWarnings, s.Warning, s.Failed)
	return nil
}

func newHistoryCmd() *cobra.Command {
	var status, user string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List summaries of finished jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			if user != "" {
				q.Set("user", user)
			}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("offset", strconv.Itoa(offset))

			resp, err := client.Get(cmd.Context(), "/api/v1/history?"+q.Encode())
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}
			out := cmd.OutOrStdout()
			if flagJSON {
				return printRaw(out, resp)
			}

			var sums []model.JobSummary
			if err := resp.decode(&sums); err != nil {
				return err
			}
			if len(sums) == 0 {
				printf(out, "No finished jobs found.\n")
				return nil
			}
			printf(out, "%-20s  %-30s  %-20s  %-25s  %s\n", "ENDED", "USER", "STATUS", "NEW RESOURCE", "MESSAGE")
			for _, s := range sums {
				printf(out, "%-20s  %-30s  %-20s  %-25s  %s\n",
					s.EndTime.Format(time.DateTime), s.User, s.Status, orDash(s.NewResourceName), s.Message)
			}
			if resp.Pagination != nil && resp.Pagination.HasMore {
				printf(out, "\n(%d of %d shown)\n", len(sums), resp.Pagination.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only summaries with this status")
	cmd.Flags().StringVar(&user, "user", "", "Only summaries of this user")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum summaries to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Summaries to skip")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow job events as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/sse/jobs"
			if jobID != "" {
				path += "?job=" + url.QueryEscape(jobID)
			}
			out := cmd.OutOrStdout()
			return client.Stream(cmd.Context(), path, func(event string, data []byte) error {
				if flagJSON {
					printf(out, "%s\n", data)
					return nil
				}
				return printEvent(out, event, data)
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "Only events of this job")
	return cmd
}

// streamEvent mirrors the server's event payload.
type streamEvent struct {
	Type    string            `json:"type"`
	Time    string            `json:"time"`
	JobID   string            `json:"job_id"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Job     *model.Job        `json:"job"`
	Summary *model.JobSummary `json:"summary"`
}

func printEvent(out io.Writer, event string, data []byte) error {
	if event == "snapshot" {
		var jobs []model.Job
		if err := json.Unmarshal(data, &jobs); err != nil {
			return fmt.Errorf("parse snapshot: %w", err)
		}
		printf(out, "%s  watching %d job(s)\n", logging.Timestamp(time.Now()), len(jobs))
		return nil
	}

	var e streamEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("parse %s event: %w", event, err)
	}
	switch e.Type {
	case "log":
		printf(out, "%s  %-5s  %s  %s\n", e.Time, e.Level, orDash(e.JobID), e.Message)
	case "job":
		if e.Job != nil {
			printf(out, "%s  job    %s  %s %s\n", e.Time, e.JobID, e.Job.Status, e.Job.Stage)
		}
	case "completed":
		if e.Summary != nil {
			printf(out, "%s  done   %s  %s: %s\n", e.Time, e.JobID, e.Summary.Status, e.Summary.Message)
		}
	case "removed":
		printf(out, "%s  gone   %s\n", e.Time, e.JobID)
	}
	return nil
}
