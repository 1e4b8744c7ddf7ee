package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/harrison/foreman/internal/taskqueue"
	"github.com/spf13/cobra"
)

// NewQueueCommand exposes the task queue (C4) for operational inspection:
// per-specialty depth, a task's current status, and its recorded result
// once terminal.
func NewQueueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the task queue",
	}
	cmd.AddCommand(newQueueDepthCommand())
	cmd.AddCommand(newQueueStatusCommand())
	cmd.AddCommand(newQueueResultCommand())
	return cmd
}

func openTaskQueue(cmd *cobra.Command) (*taskqueue.Queue, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return taskqueue.New(queueDBPath(cfg))
}

func newQueueDepthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "depth <specialty>",
		Short: "Print how many ready tasks are waiting in a specialty queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openTaskQueue(cmd)
			if err != nil {
				return err
			}
			defer q.Close()

			depth, err := q.QueueDepth(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", args[0], depth)
			return nil
		},
	}
	configFlag(cmd)
	return cmd
}

func newQueueStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Print a task's current lifecycle status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openTaskQueue(cmd)
			if err != nil {
				return err
			}
			defer q.Close()

			status, err := q.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], status)
			return nil
		},
	}
	configFlag(cmd)
	return cmd
}

func newQueueResultCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "result <task-id>",
		Short: "Print a terminal task's recorded result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openTaskQueue(cmd)
			if err != nil {
				return err
			}
			defer q.Close()

			result, err := q.Result(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	configFlag(cmd)
	return cmd
}
