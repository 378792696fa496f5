package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vibeboard/internal/db"
	"vibeboard/internal/scheduler"
	"vibeboard/internal/ui"
)

func init() {
	var projectFlag string

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the execution plan for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := uuid.Parse(projectFlag)
			if err != nil {
				return fmt.Errorf("invalid project id %q: %w", projectFlag, err)
			}

			store, err := db.NewStore(viper.GetString("db.dsn"))
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer store.Close()

			ctx := cmd.Context()
			tasks, err := store.FindTasksByProject(ctx, projectID)
			if err != nil {
				return err
			}
			deps, err := store.FindDependenciesByProject(ctx, projectID)
			if err != nil {
				return err
			}
			graph, err := scheduler.NewTaskGraph(tasks, deps)
			if err != nil {
				return err
			}
			plan, err := scheduler.BuildExecutionPlan(graph)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), ui.RenderPlan(projectID, plan, tasks))
			return nil
		},
	}
	statusCmd.Flags().StringVar(&projectFlag, "project", "", "Project ID (required)")
	statusCmd.MarkFlagRequired("project")

	rootCmd.AddCommand(statusCmd)
}
