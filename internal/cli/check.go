package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/danbooru-harvester/pkg/client"
	"github.com/Sternrassler/danbooru-harvester/pkg/logging"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify API connectivity before harvesting",
	Long: `Run preflight checks against the configured Danbooru instance:
reachability, the id-range query the harvest depends on, and the
configured credentials (when set).`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	if _, _, err := logging.Setup(loggingConfig()); err != nil {
		return err
	}

	c, err := client.New(clientConfig())
	if err != nil {
		return fmt.Errorf("client configuration: %w", err)
	}

	results := c.CheckConnection(cmd.Context())

	failed := 0
	for _, r := range results {
		if r.OK {
			fmt.Printf("%s %s: %s\n", color.GreenString("✓"), r.Name, r.Detail)
		} else {
			fmt.Printf("%s %s: %s\n", color.RedString("✗"), r.Name, r.Detail)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(results))
	}

	fmt.Println(color.GreenString("All checks passed"))
	return nil
}
