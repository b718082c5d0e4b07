package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"verdandi/internal/coordination"
	"verdandi/internal/logging"
	"verdandi/internal/stage"
	"verdandi/internal/store"
	"verdandi/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var stopAfter string
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "run <experiment-id>",
		Short: "Advance an experiment through the pipeline",
		Long: "Run an experiment from its resume point in the foreground. Stages that " +
			"already succeeded are skipped. With --enqueue the run is queued for a worker instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseExperimentID(args[0])
			if err != nil {
				return err
			}
			return ctx.withServices(func(svc workflow.Services) error {
				stop, err := resolveStage(svc.Registry, stopAfter)
				if err != nil {
					return err
				}
				pool, err := workflow.NewPool(svc)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()

				if enqueue {
					if _, err := svc.Store.GetExperiment(cmd.Context(), id); err != nil {
						return err
					}
					job, created, err := pool.EnqueueRun(cmd.Context(), id, workflow.RunParams{StopAfter: stop})
					if err != nil {
						return err
					}
					if created {
						fmt.Fprintf(out, "Queued run job %d for experiment %d\n", job.ID, id)
					} else {
						fmt.Fprintf(out, "Experiment %d already has %s job %d\n", id, job.Status, job.ID)
					}
					return nil
				}

				outcome, runErr := pool.Orchestrator().Run(cmd.Context(), id, workflow.RunOptions{StopAfter: stop})
				printOutcome(cmd, outcome)
				var stageErr *workflow.StageError
				if errors.As(runErr, &stageErr) {
					return fmt.Errorf("stage %s failed after %d attempt(s): %w", stageErr.Stage, stageErr.Attempts, stageErr.Err)
				}
				return runErr
			})
		},
	}

	cmd.Flags().StringVar(&stopAfter, "stop-after", "", "Stop after this stage (name or number)")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "Queue the run for a worker instead of running it here")
	return cmd
}

// resolveStage accepts a stage name or its zero-based number.
func resolveStage(reg *stage.Registry, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	if n, err := strconv.Atoi(value); err == nil {
		desc, ok := reg.At(n)
		if !ok {
			return "", fmt.Errorf("no stage number %d (pipeline has %d stages)", n, reg.Len())
		}
		return desc.Name, nil
	}
	desc, err := reg.Lookup(value)
	if err != nil {
		return "", err
	}
	return desc.Name, nil
}

func printOutcome(cmd *cobra.Command, outcome workflow.Outcome) {
	out := cmd.OutOrStdout()
	if outcome.ExperimentID == 0 {
		return
	}
	fmt.Fprintf(out, "Experiment %d: %s\n", outcome.ExperimentID, outcome.Status)
	if len(outcome.Executed) > 0 {
		fmt.Fprintf(out, "  Ran:      %s\n", strings.Join(outcome.Executed, ", "))
	}
	if outcome.Decision != stage.DecisionNone {
		fmt.Fprintf(out, "  Decision: %s (%s)\n", outcome.Decision, outcome.LastStage)
	}
	switch {
	case outcome.Paused:
		fmt.Fprintf(out, "  Waiting for review: verdandi review %d --approve|--reject\n", outcome.ExperimentID)
	case outcome.Stopped:
		fmt.Fprintf(out, "  Stopped after %s; run again to continue\n", outcome.LastStage)
	}
}

func newDiscoverCommand(ctx *commandContext) *cobra.Command {
	var count int
	var enqueueRuns bool
	var background bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Create new experiments from fresh ideas",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}
			return ctx.withServices(func(svc workflow.Services) error {
				pool, err := workflow.NewPool(svc)
				if err != nil {
					return err
				}
				params := workflow.DiscoverParams{Count: count, Enqueue: enqueueRuns}
				out := cmd.OutOrStdout()

				if background {
					job, _, err := pool.EnqueueDiscover(cmd.Context(), params)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Queued discovery job %d (%d idea(s))\n", job.ID, count)
					return nil
				}

				result, err := pool.Discoverer().DiscoverBatch(cmd.Context(), params)
				if len(result.Created) > 0 {
					rows := make([][]string, 0, len(result.Created))
					for _, exp := range result.Created {
						rows = append(rows, []string{strconv.FormatInt(exp.ID, 10), exp.Title, exp.TopicKey})
					}
					fmt.Fprint(out, renderTable(out, []string{"ID", "Title", "Topic"}, rows,
						[]columnAlignment{alignRight, alignLeft, alignLeft}))
				}
				fmt.Fprintf(out, "Created %d, duplicates %d, conflicts %d, unkeyed %d, exhausted %d\n",
					len(result.Created), result.Duplicates, result.Conflicts, result.Unkeyed, result.Exhausted)
				return err
			})
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of experiments to create")
	cmd.Flags().BoolVar(&enqueueRuns, "enqueue-runs", false, "Queue a pipeline run for every created experiment")
	cmd.Flags().BoolVar(&background, "background", false, "Queue the discovery batch for a worker")
	return cmd
}

func newReviewCommand(ctx *commandContext) *cobra.Command {
	var approve, reject, resume bool
	var reviewer, notes string

	cmd := &cobra.Command{
		Use:   "review <experiment-id>",
		Short: "Record a human review decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if approve == reject {
				return errors.New("specify exactly one of --approve or --reject")
			}
			id, err := parseExperimentID(args[0])
			if err != nil {
				return err
			}
			who := strings.TrimSpace(reviewer)
			if who == "" {
				who = os.Getenv("USER")
			}
			return ctx.withServices(func(svc workflow.Services) error {
				exp, err := svc.Store.RecordReview(cmd.Context(), id, store.Review{
					Approved: approve,
					Reviewer: who,
					Notes:    strings.TrimSpace(notes),
				})
				if errors.Is(err, store.ErrStatusConflict) {
					return fmt.Errorf("experiment %d is not awaiting review", id)
				}
				if err != nil {
					return err
				}
				recordOperatorEvent(cmd, svc, id, workflow.EventReviewRecorded, stage.NameHumanReview,
					fmt.Sprintf("%s by %s", exp.ReviewDecision, who))

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Experiment %d %s\n", id, exp.Status)
				if !approve || !resume {
					return nil
				}
				pool, err := workflow.NewPool(svc)
				if err != nil {
					return err
				}
				job, _, err := pool.EnqueueRun(cmd.Context(), id, workflow.RunParams{})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Queued run job %d to resume the pipeline\n", job.ID)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&approve, "approve", false, "Approve the experiment")
	cmd.Flags().BoolVar(&reject, "reject", false, "Reject the experiment")
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "Reviewer name (defaults to $USER)")
	cmd.Flags().StringVar(&notes, "notes", "", "Review notes")
	cmd.Flags().BoolVar(&resume, "resume", false, "Queue a run after approval")
	return cmd
}

func newArchiveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <experiment-id>",
		Short: "Archive an experiment and release its topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseExperimentID(args[0])
			if err != nil {
				return err
			}
			return ctx.withServices(func(svc workflow.Services) error {
				c := cmd.Context()
				prior, err := svc.Store.ArchiveExperiment(c, id)
				if errors.Is(err, store.ErrInvalidTransition) {
					return fmt.Errorf("experiment %d is already archived", id)
				}
				if err != nil {
					return err
				}
				recordOperatorEvent(cmd, svc, id, workflow.EventArchived, "", "archived from "+string(prior))

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Experiment %d archived (was %s)\n", id, prior)

				mgr := coordination.NewManager(svc.Config, svc.Store, nil, svc.Logger)
				res, err := mgr.ReservationFor(c, id)
				if err != nil {
					return err
				}
				if res != nil {
					if err := mgr.Release(c, res.ID, false); err != nil {
						return fmt.Errorf("release reservation: %w", err)
					}
					fmt.Fprintf(out, "Released topic %s\n", res.TopicKey)
				}

				if svc.Archiver != nil {
					key, err := svc.Archiver.Archive(c, id)
					if err != nil {
						return fmt.Errorf("write snapshot: %w", err)
					}
					fmt.Fprintf(out, "Snapshot written to %s (%s)\n", key, svc.Archiver.Sink().Describe())
				}
				return nil
			})
		},
	}
}

func recordOperatorEvent(cmd *cobra.Command, svc workflow.Services, id int64, eventType, stageName, message string) {
	err := svc.Store.AppendEvent(cmd.Context(), store.Event{
		ExperimentID: id,
		Type:         eventType,
		StageName:    stageName,
		Message:      message,
		WorkerID:     svc.Config.Worker.ID,
	})
	if err != nil {
		logging.WarnWithContext(svc.Logger, "append operator event failed", "event_log_failed",
			logging.Int64(logging.FieldExperimentID, id),
			logging.Error(err),
		)
	}
}
