package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"verdandi/internal/api"
	"verdandi/internal/config"
	"verdandi/internal/store"
	"verdandi/internal/workflow"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List experiments",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withServices(func(svc workflow.Services) error {
				items, err := api.NewExperimentService(svc.Store, svc.Registry).List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.ExperimentListResponse{Experiments: items})
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No experiments")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, exp := range items {
					rows = append(rows, []string{
						strconv.FormatInt(exp.ID, 10),
						truncate(exp.Title, 40),
						exp.Status,
						stageTitle(exp.StageName),
						shortTime(exp.UpdatedAt),
					})
				}
				fmt.Fprint(out, renderTable(out,
					[]string{"ID", "Title", "Status", "Stage", "Updated"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable or comma separated)")
	jsonFlag(cmd, &asJSON)
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var withEvents bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <experiment-id>",
		Short: "Show an experiment with its stage history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseExperimentID(args[0])
			if err != nil {
				return err
			}
			return ctx.withServices(func(svc workflow.Services) error {
				exp, err := api.NewExperimentService(svc.Store, svc.Registry).Describe(cmd.Context(), id, withEvents)
				if err != nil {
					return err
				}
				if exp == nil {
					return fmt.Errorf("experiment %d not found", id)
				}
				if asJSON {
					return writeJSON(cmd, api.ExperimentResponse{Experiment: *exp})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderExperiment(cmd, *exp))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&withEvents, "events", "e", false, "Include the event log")
	jsonFlag(cmd, &asJSON)
	return cmd
}

func renderExperiment(cmd *cobra.Command, exp api.Experiment) string {
	out := cmd.OutOrStdout()
	var b strings.Builder
	fmt.Fprintf(&b, "Experiment %d: %s\n", exp.ID, exp.Title)
	fmt.Fprintf(&b, "  Status:      %s\n", exp.Status)
	fmt.Fprintf(&b, "  Stage:       %s\n", stageTitle(exp.StageName))
	fmt.Fprintf(&b, "  Topic:       %s\n", exp.TopicKey)
	if exp.ReservationKey != "" {
		fmt.Fprintf(&b, "  Reserved:    yes\n")
	}
	fmt.Fprintf(&b, "  Worker:      %s\n", orDash(exp.WorkerID))
	fmt.Fprintf(&b, "  Created:     %s\n", shortTime(exp.CreatedAt))
	fmt.Fprintf(&b, "  Updated:     %s\n", shortTime(exp.UpdatedAt))
	if exp.ErrorMessage != "" {
		fmt.Fprintf(&b, "  Error:       %s\n", exp.ErrorMessage)
	}
	if exp.Review != nil {
		fmt.Fprintf(&b, "  Review:      %s by %s at %s\n", exp.Review.Decision, orDash(exp.Review.Reviewer), shortTime(exp.Review.ReviewedAt))
		if exp.Review.Notes != "" {
			fmt.Fprintf(&b, "  Notes:       %s\n", exp.Review.Notes)
		}
	}
	if exp.Summary != "" {
		fmt.Fprintf(&b, "\n%s\n", exp.Summary)
	}

	if len(exp.Stages) > 0 {
		rows := make([][]string, 0, len(exp.Stages))
		for _, res := range exp.Stages {
			rows = append(rows, []string{
				strconv.Itoa(res.Order),
				stageTitle(res.Stage),
				res.Status,
				strconv.Itoa(res.Attempts),
				truncate(orDash(res.ErrorMessage), 60),
			})
		}
		b.WriteString("\n")
		b.WriteString(renderTable(out,
			[]string{"#", "Stage", "Result", "Attempts", "Error"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
		))
	}

	if len(exp.Events) > 0 {
		rows := make([][]string, 0, len(exp.Events))
		for _, ev := range exp.Events {
			rows = append(rows, []string{shortTime(ev.CreatedAt), ev.Type, orDash(ev.Stage), ev.Message})
		}
		b.WriteString("\n")
		b.WriteString(renderTable(out,
			[]string{"Time", "Event", "Stage", "Message"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
		))
	}
	return b.String()
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List backlog jobs shared by all workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []store.JobStatus
			for _, value := range statusFlags {
				for part := range strings.SplitSeq(value, ",") {
					if part = strings.TrimSpace(part); part != "" {
						statuses = append(statuses, store.JobStatus(part))
					}
				}
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				jobs, err := st.ListJobs(cmd.Context(), limit, statuses...)
				if err != nil {
					return err
				}
				items := make([]api.Job, 0, len(jobs))
				for _, job := range jobs {
					items = append(items, api.FromJob(job))
				}
				if asJSON {
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, job := range items {
					experiment := "-"
					if job.ExperimentID > 0 {
						experiment = strconv.FormatInt(job.ExperimentID, 10)
					}
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						job.Kind,
						experiment,
						job.Status,
						orDash(job.ClaimedBy),
						strconv.Itoa(job.Attempts),
						truncate(orDash(job.LastError), 50),
					})
				}
				fmt.Fprint(out, renderTable(out,
					[]string{"ID", "Kind", "Experiment", "Status", "Worker", "Attempts", "Last Error"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by job status (queued, running, done, failed)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of jobs to list")
	jsonFlag(cmd, &asJSON)
	return cmd
}

func newReservationsCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "reservations",
		Short: "List topic reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				list, err := st.ListReservations(cmd.Context(), !all)
				if err != nil {
					return err
				}
				items := make([]api.Reservation, 0, len(list))
				for _, res := range list {
					items = append(items, api.FromReservation(res))
				}
				if asJSON {
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No reservations")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, res := range items {
					experiment := "-"
					if res.ExperimentID > 0 {
						experiment = strconv.FormatInt(res.ExperimentID, 10)
					}
					rows = append(rows, []string{res.TopicKey, res.Holder, res.Status, experiment, shortTime(res.ExpiresAt)})
				}
				fmt.Fprint(out, renderTable(out,
					[]string{"Topic", "Holder", "Status", "Experiment", "Expires"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include released and expired reservations")
	jsonFlag(cmd, &asJSON)
	return cmd
}

func newBreakersCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "breakers",
		Short: "Show persisted circuit breaker state per dependency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				states, err := st.ListCircuitStates(cmd.Context())
				if err != nil {
					return err
				}
				items := make([]api.Breaker, 0, len(states))
				for _, state := range states {
					items = append(items, api.FromCircuitState(state))
				}
				if asJSON {
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No breaker state recorded")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, b := range items {
					rows = append(rows, []string{b.Dependency, b.State, strconv.Itoa(b.Failures), orDash(shortTime(b.OpenedAt))})
				}
				fmt.Fprint(out, renderTable(out,
					[]string{"Dependency", "State", "Failures", "Opened"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	jsonFlag(cmd, &asJSON)
	return cmd
}
