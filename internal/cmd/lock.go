package cmd

import (
	"fmt"
	"time"

	"github.com/harrison/foreman/internal/lockservice"
	"github.com/spf13/cobra"
)

// NewLockCommand exposes the lock service (C2) directly for operational
// use: inspecting or manually clearing a stuck resource lock without
// going through a worker.
func NewLockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect and manage resource locks",
	}
	cmd.AddCommand(newLockStatusCommand())
	cmd.AddCommand(newLockAcquireCommand())
	return cmd
}

func openLockService(cmd *cobra.Command) (*lockservice.Service, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return lockservice.New(lockDBPath(cfg))
}

func newLockStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <resource>",
		Short: "Report whether a resource is currently locked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openLockService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			locked, err := svc.IsLocked(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: locked=%t\n", args[0], locked)
			return nil
		},
	}
	configFlag(cmd)
	return cmd
}

func newLockAcquireCommand() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "acquire <resource>",
		Short: "Acquire a resource lock and print its owner token",
		Long: `Acquires the named resource with the given TTL and prints the owner
token. The lock is left held -- this is an operational escape hatch for
manually reserving a resource outside a worker's own executeTask scope, not
something normal runs use.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openLockService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			lock, err := svc.Acquire(cmd.Context(), args[0], ttl, 100*time.Millisecond, 5*time.Second)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "acquired %s owner=%s ttl=%s\n", lock.Resource, lock.OwnerToken, ttl)
			return nil
		},
	}
	configFlag(cmd)
	cmd.Flags().DurationVar(&ttl, "ttl", time.Minute, "lock TTL")
	return cmd
}
