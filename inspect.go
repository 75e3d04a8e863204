package main

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forestmonster/rsmf-browser/rsmf"
	"github.com/forestmonster/rsmf-browser/stats"
	"github.com/forestmonster/rsmf-browser/walker"
)

func newInspectCmd() *cobra.Command {
	var (
		reportDir string
		topN      int
	)

	cmd := &cobra.Command{
		Use:   "inspect [archive file]",
		Short: "Analyse an archive and show per-channel and per-custodian statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archivePath := args[0]

			fmt.Println("Analyzing archive:", archivePath)

			reader, err := zip.OpenReader(archivePath)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer reader.Close()

			names := make([]string, 0, len(reader.File))
			for _, f := range reader.File {
				names = append(names, f.Name)
			}
			channels, periods := walker.DiscoverChannels(names)

			counter := map[string]map[string]int{
				"channel":   {},
				"custodian": {},
				"generator": {},
			}
			categories := []string{"channel", "custodian", "generator"}

			unitCount := 0
			orphanCount := 0
			for _, f := range reader.File {
				if !strings.HasSuffix(f.Name, ".rsmf") {
					continue
				}

				channel := walker.OwnerOf(f.Name, periods)
				if channel == "" {
					orphanCount++
					continue
				}
				unitCount++
				counter["channel"][channel]++

				rc, err := f.Open()
				if err != nil {
					continue
				}
				raw, err := io.ReadAll(rc)
				rc.Close()
				if err != nil {
					continue
				}

				msg := rsmf.Decode(raw, nil)
				counter["custodian"][msg.User]++
				if msg.Metadata.Generator != "" {
					counter["generator"][msg.Metadata.Generator]++
				}
			}

			fmt.Printf("Channels: %d\n", len(channels))
			fmt.Printf("Units: %d (orphaned %d)\n\n", unitCount, orphanCount)

			for _, category := range categories {
				fmt.Printf("Top %d by %s:\n", topN, category)
				stats.PrettyPrintTop(counter[category], topN)
				fmt.Println()
			}

			if err := saveCSVReports(counter, categories, reportDir, 1000); err != nil {
				return fmt.Errorf("error saving CSV reports: %w", err)
			}
			fmt.Printf("Reports saved to directory: %s\n", reportDir)

			return nil
		},
	}

	cmd.Flags().StringVarP(&reportDir, "output", "o", ".", "Output directory for CSV reports")
	cmd.Flags().IntVarP(&topN, "top", "t", 10, "Number of top items to display in statistics")
	return cmd
}

func saveCSVReports(counter map[string]map[string]int, categories []string, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, category := range categories {
		counts := counter[category]

		filename := fmt.Sprintf("report_%s.csv", category)
		filePath := filepath.Join(dir, filename)

		file, err := os.Create(filePath)
		if err != nil {
			return err
		}

		writer := csv.NewWriter(file)

		if err := writer.Write([]string{"Value", "Count"}); err != nil {
			file.Close()
			return err
		}

		type pair struct {
			Key   string
			Value int
		}
		var pairs []pair
		for k, v := range counts {
			pairs = append(pairs, pair{k, v})
		}
		sort.Slice(pairs, func(i, j int) bool {
			return pairs[i].Value > pairs[j].Value
		})

		for i := 0; i < limit && i < len(pairs); i++ {
			record := []string{
				pairs[i].Key,
				strconv.Itoa(pairs[i].Value),
			}
			if err := writer.Write(record); err != nil {
				file.Close()
				return err
			}
		}

		writer.Flush()
		file.Close()

		if err := writer.Error(); err != nil {
			return err
		}
	}

	return nil
}
