package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/danbooru-harvester/pkg/logging"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the checkpoint and start the next harvest from scratch",
	Long: `Delete the persisted checkpoint. The harvester itself never deletes
a checkpoint; starting over is always this explicit action. The output
file is left untouched.`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "actually delete the checkpoint")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	logger, _, err := logging.Setup(loggingConfig())
	if err != nil {
		return err
	}

	if !resetForce {
		fmt.Println(color.YellowString("Refusing to delete the checkpoint without --force"))
		return fmt.Errorf("pass --force to confirm")
	}

	store, closeStore, err := newCheckpointStore(logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Reset(cmd.Context()); err != nil {
		return err
	}

	fmt.Println(color.GreenString("Checkpoint deleted, next run starts fresh"))
	return nil
}
