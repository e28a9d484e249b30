package cli

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/danbooru-harvester/pkg/stats"
)

var statsTopN int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize a harvested output file",
	Long: `Read the harvested JSONL output and report record count, output
size, rating distribution, and the most frequent tags. The file is
streamed line by line, so arbitrarily large outputs are fine.`,
	Example: `  harvester stats
  harvester stats --output corpus.jsonl --top 25`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().String("output", "posts.jsonl", "output JSONL file to analyze")
	statsCmd.Flags().IntVar(&statsTopN, "top", 10, "number of top tags to report")

	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	viper.BindPFlag("output", cmd.Flags().Lookup("output"))

	report, err := stats.Analyze(viper.GetString("output"), statsTopN)
	if err != nil {
		return err
	}

	title := color.New(color.FgCyan, color.Bold)
	label := color.New(color.FgGreen)

	title.Printf("Harvest report: %s\n\n", report.Path)

	label.Print("Posts:       ")
	fmt.Println(report.TotalPosts)
	label.Print("Output size: ")
	fmt.Printf("%.2f MB\n", float64(report.OutputSizeBytes)/(1024*1024))
	label.Print("Highest id:  ")
	fmt.Println(report.HighestID)

	if len(report.RatingCounts) > 0 {
		fmt.Println()
		title.Println("Ratings")
		ratings := make([]string, 0, len(report.RatingCounts))
		for rating := range report.RatingCounts {
			ratings = append(ratings, rating)
		}
		sort.Strings(ratings)
		for _, rating := range ratings {
			fmt.Printf("  %-8s %d\n", rating, report.RatingCounts[rating])
		}
	}

	if len(report.TopTags) > 0 {
		fmt.Println()
		title.Printf("Top %d tags\n", len(report.TopTags))
		for _, tc := range report.TopTags {
			fmt.Printf("  %-30s %d\n", tc.Tag, tc.Count)
		}
	}

	return nil
}
