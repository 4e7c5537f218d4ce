package cli

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/me/deskmove/pkg/model"
)

func newEnqueueCmd() *cobra.Command {
	var req model.JobRequest
	var file string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a migration job, or a batch from a YAML file",
		Example: "  deskmove enqueue --user alice@example.com --source <group-id> --target <group-id>\n" +
			"  deskmove enqueue -f batch.yaml",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if file != "" {
				reqs, err := readBatch(file)
				if err != nil {
					return err
				}
				resp, err := client.Post(cmd.Context(), "/api/v1/jobs", reqs)
				if err != nil {
					return fmt.Errorf("enqueue batch: %w", err)
				}
				if flagJSON {
					return printRaw(out, resp)
				}
				var jobs []model.Job
				if err := resp.decode(&jobs); err != nil {
					return err
				}
				printf(out, "Queued %d job(s):\n", len(jobs))
				for _, j := range jobs {
					printf(out, "  %s  %s\n", j.ID, j.UserLabel())
				}
				return nil
			}

			resp, err := client.Post(cmd.Context(), "/api/v1/jobs", req)
			if err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
			if flagJSON {
				return printRaw(out, resp)
			}
			var job model.Job
			if err := resp.decode(&job); err != nil {
				return err
			}
			printf(out, "Job queued: %s (position %d)\n", job.ID, job.QueueOrder)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.UserPrincipalName, "user", "", "User principal name")
	f.StringVar(&req.UserID, "user-id", "", "Directory object id of the user")
	f.StringVar(&req.SourceGroupID, "source", "", "Source group id")
	f.StringVar(&req.SourceGroupName, "source-name", "", "Source group display name")
	f.StringVar(&req.TargetGroupID, "target", "", "Target group id")
	f.StringVar(&req.TargetGroupName, "target-name", "", "Target group display name")
	f.StringVarP(&file, "file", "f", "", "YAML batch file (a list of jobs, or a mapping with a jobs key)")
	cmd.MarkFlagsMutuallyExclusive("file", "user")
	cmd.MarkFlagsMutuallyExclusive("file", "user-id")
	return cmd
}

// readBatch loads job requests from a YAML file that holds either a list or
// a mapping with a "jobs" list. Mapping-level source/target values fill in
// jobs that leave them out.
func readBatch(path string) ([]model.JobRequest, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return parseBatch(r)
}

func parseBatch(r io.Reader) ([]model.JobRequest, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("batch file is empty")
		}
		return nil, fmt.Errorf("parse batch: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("batch file is empty")
	}

	var reqs []model.JobRequest
	switch top := doc.Content[0]; top.Kind {
	case yaml.SequenceNode:
		if err := top.Decode(&reqs); err != nil {
			return nil, fmt.Errorf("parse batch: %w", err)
		}
	case yaml.MappingNode:
		var batch struct {
			model.JobRequest `yaml:",inline"`
			Jobs             []model.JobRequest `yaml:"jobs"`
		}
		if err := top.Decode(&batch); err != nil {
			return nil, fmt.Errorf("parse batch: %w", err)
		}
		for _, j := range batch.Jobs {
			if j.SourceGroupID == "" {
				j.SourceGroupID, j.SourceGroupName = batch.SourceGroupID, batch.SourceGroupName
			}
			if j.TargetGroupID == "" {
				j.TargetGroupID, j.TargetGroupName = batch.TargetGroupID, batch.TargetGroupName
			}
			reqs = append(reqs, j)
		}
	default:
		return nil, fmt.Errorf("parse batch: line %d: expected a list or a mapping", top.Line)
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("batch file has no jobs")
	}
	return reqs, nil
}

func newListCmd() *cobra.Command {
	var status, user string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in queue order",
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

			resp, err := client.Get(cmd.Context(), "/api/v1/jobs?"+q.Encode())
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}
			out := cmd.OutOrStdout()
			if flagJSON {
				return printRaw(out, resp)
			}

			var jobs []model.Job
			if err := resp.decode(&jobs); err != nil {
				return err
			}
			if len(jobs) == 0 {
				printf(out, "No jobs found.\n")
				return nil
			}

			printf(out, "%-4s  %-40s  %-30s  %-20s  %s\n", "POS", "ID", "USER", "STATUS", "STAGE")
			for _, j := range jobs {
				printf(out, "%-4d  %-40s  %-30s  %-20s  %s\n", j.QueueOrder, j.ID, j.UserLabel(), j.Status, j.Stage)
			}
			if resp.Pagination != nil && resp.Pagination.HasMore {
				printf(out, "\n(%d of %d shown)\n", len(jobs), resp.Pagination.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only jobs with this status (Queued, Active, Monitoring, Failed, ...)")
	cmd.Flags().StringVar(&user, "user", "", "Only jobs of this user")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum jobs to show")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job_id>",
		Short: "Show the detail of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get(cmd.Context(), "/api/v1/jobs/"+url.PathEscape(args[0]))
			if err != nil {
				return fmt.Errorf("get job: %w", err)
			}
			out := cmd.OutOrStdout()
			if flagJSON {
				return printRaw(out, resp)
			}
			var j model.Job
			if err := resp.decode(&j); err != nil {
				return err
			}

			printf(out, "Job: %s\n", j.ID)
			printf(out, "  User:      %s\n", j.UserLabel())
			printf(out, "  Source:    %s\n", j.SourceLabel())
			printf(out, "  Target:    %s\n", j.TargetLabel())
			printf(out, "  Status:    %s\n", j.Status)
			printf(out, "  Stage:     %s\n", j.Stage)
			printf(out, "  Position:  %d\n", j.QueueOrder)
			for _, r := range j.OldResources {
				printf(out, "  Old:       %s (%s)\n", r.Name, orDash(r.ServicePlan))
			}
			for _, r := range j.NewResources {
				printf(out, "  New:       %s (%s)\n", r.Name, orDash(r.ServicePlan))
			}
			if j.AnomalyCount > 0 {
				printf(out, "  Anomalies: %d\n", j.AnomalyCount)
			}
			if !j.StartTime.IsZero() {
				printf(out, "  Started:   %s\n", j.StartTime.Format(time.RFC3339))
			}
			if !j.StageStartTime.IsZero() && !j.Status.IsTerminal() {
				printf(out, "  In stage:  %s\n", time.Since(j.StageStartTime).Round(time.Second))
			}
			if !j.EndTime.IsZero() {
				printf(out, "  Ended:     %s\n", j.EndTime.Format(time.RFC3339))
			}
			if msg := j.Message(); msg != "" {
				printf(out, "  Message:   %s\n", msg)
			}
			return nil
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <job_id>",
		Aliases: []string{"rm"},
		Short:   "Remove a queued or finished job",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.Delete(cmd.Context(), "/api/v1/jobs/"+url.PathEscape(args[0])); err != nil {
				return fmt.Errorf("remove job: %w", err)
			}
			printf(cmd.OutOrStdout(), "Job removed: %s\n", args[0])
			return nil
		},
	}
}

func newReorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "reorder <job_id> <up|down|top|bottom>",
		Short:     "Move a queued job within the queue",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"up", "down", "top", "bottom"},
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post(cmd.Context(), "/api/v1/jobs/"+url.PathEscape(args[0])+"/reorder",
				map[string]string{"direction": args[1]})
			if err != nil {
				return fmt.Errorf("reorder job: %w", err)
			}
			var j model.Job
			if err := resp.decode(&j); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Job %s is now at position %d\n", j.ID, j.QueueOrder)
			return nil
		},
	}
}
