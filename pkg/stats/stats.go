// Package stats analyzes a harvested JSONL output file and summarizes
// what it holds: record count, rating distribution, most frequent tags,
// and the highest post id seen. The analysis streams the file line by
// line; memory stays bounded by the tag vocabulary, not the file size.
package stats

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// maxLineBytes bounds a single JSONL line during scanning. Posts with
// very long tag lists stay well under this.
const maxLineBytes = 4 << 20

// TagCount is one entry of the tag frequency table.
type TagCount struct {
	Tag   string
	Count int64
}

// Report summarizes one harvested output file.
type Report struct {
	Path            string
	TotalPosts      int64
	OutputSizeBytes int64
	HighestID       int64
	RatingCounts    map[string]int64
	TopTags         []TagCount
}

// Analyze reads the JSONL file at path and builds a report with the
// topN most frequent tags. Lines that are not valid post records are
// counted as posts only if they carry an id field; anything else is
// skipped.
func Analyze(path string, topN int) (*Report, error) {
	if topN < 1 {
		topN = 10
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat output %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	defer f.Close()

	report := &Report{
		Path:            path,
		OutputSizeBytes: info.Size(),
		RatingCounts:    make(map[string]int64),
	}
	tagCounts := make(map[string]int64)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		id := gjson.GetBytes(line, "id")
		if !id.Exists() {
			continue
		}

		report.TotalPosts++
		if id.Int() > report.HighestID {
			report.HighestID = id.Int()
		}

		if rating := gjson.GetBytes(line, "rating"); rating.Exists() {
			report.RatingCounts[rating.String()]++
		}

		for _, tag := range strings.Fields(gjson.GetBytes(line, "tag_string").String()) {
			tagCounts[tag]++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan output %s: %w", path, err)
	}

	report.TopTags = topTags(tagCounts, topN)
	return report, nil
}

// topTags returns the n most frequent tags, ties broken alphabetically
// so reports are deterministic.
func topTags(counts map[string]int64, n int) []TagCount {
	tags := make([]TagCount, 0, len(counts))
	for tag, count := range counts {
		tags = append(tags, TagCount{Tag: tag, Count: count})
	}

	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Tag < tags[j].Tag
	})

	if len(tags) > n {
		tags = tags[:n]
	}
	return tags
}
