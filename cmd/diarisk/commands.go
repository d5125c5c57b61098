package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/diarisk/diarisk/internal/assessment"
	"github.com/diarisk/diarisk/internal/config"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze <lab-report>",
	Short: "Run a full risk analysis",
	Long: `Run a full risk analysis on a lab report (PDF, image or text).

Examples:
  diarisk analyze labs.pdf
  diarisk analyze labs.pdf --retinal fundus.jpg --notes "Recalled 2 of 3 words, clock normal"
  diarisk analyze scan.png --notes-file minicog.txt --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		retinalPath, _ := cmd.Flags().GetString("retinal")
		notes, _ := cmd.Flags().GetString("notes")
		notesFile, _ := cmd.Flags().GetString("notes-file")
		asJSON, _ := cmd.Flags().GetBool("json")

		if notes != "" && notesFile != "" {
			return fmt.Errorf("use only one of --notes or --notes-file")
		}
		if notesFile != "" {
			data, err := os.ReadFile(notesFile)
			if err != nil {
				return fmt.Errorf("reading notes file: %w", err)
			}
			notes = string(data)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runAnalyze(cmd.Context(), client, cmd.OutOrStdout(), args[0], retinalPath, notes, asJSON)
	},
}

func runAnalyze(ctx context.Context, client *apiClient, w io.Writer, labPath, retinalPath, notes string, asJSON bool) error {
	files := []uploadFile{{field: "lab_report", path: labPath}}
	if retinalPath != "" {
		files = append(files, uploadFile{field: "retinal_image", path: retinalPath})
	}
	var fields map[string]string
	if notes != "" {
		fields = map[string]string{"cognitive_notes": notes}
	}

	resp, err := client.postFiles(ctx, "/api/analyze", files, fields)
	if err != nil {
		return err
	}

	var analysis assessment.Analysis
	if err := decodeJSON(resp, &analysis); err != nil {
		return err
	}

	if asJSON {
		return printJSON(w, analysis)
	}
	writeAnalysis(w, analysis)
	return nil
}

func init() {
	analyzeCmd.Flags().String("retinal", "", "retinal fundus image")
	analyzeCmd.Flags().String("notes", "", "cognitive screening notes")
	analyzeCmd.Flags().String("notes-file", "", "file containing cognitive screening notes")
	analyzeCmd.Flags().Bool("json", false, "print the raw JSON result")
}

// --- labs ---

var labsCmd = &cobra.Command{
	Use:   "labs",
	Short: "Work with lab reports",
}

var labsParseCmd = &cobra.Command{
	Use:   "parse <lab-report>",
	Short: "Extract lab values without running an analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runLabsParse(cmd.Context(), client, cmd.OutOrStdout(), args[0], asJSON)
	},
}

func runLabsParse(ctx context.Context, client *apiClient, w io.Writer, path string, asJSON bool) error {
	resp, err := client.postFiles(ctx, "/api/labs/parse", []uploadFile{{field: "lab_report", path: path}}, nil)
	if err != nil {
		return err
	}

	var result assessment.LabParseResult
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}

	if asJSON {
		return printJSON(w, result)
	}
	writeLabValues(w, result)
	return nil
}

func init() {
	labsParseCmd.Flags().Bool("json", false, "print the raw JSON result")
	labsCmd.AddCommand(labsParseCmd)
}

// --- history ---

type historyEntry struct {
	ID          int64     `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	LabFilename string    `json:"lab_filename"`
	assessment.Analysis
}

type historyPage struct {
	Items []historyEntry `json:"items"`
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent analyses",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runHistoryList(cmd.Context(), client, cmd.OutOrStdout(), limit)
	},
}

func runHistoryList(ctx context.Context, client *apiClient, w io.Writer, limit int) error {
	path := "/api/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	resp, err := client.get(ctx, path)
	if err != nil {
		return err
	}

	var page historyPage
	if err := decodeJSON(resp, &page); err != nil {
		return err
	}

	if len(page.Items) == 0 {
		fmt.Fprintln(w, "No analyses yet.")
		return nil
	}

	for _, e := range page.Items {
		rs := e.RiskScores
		fmt.Fprintf(w, "%5d  %s  %-24s dementia=%s cardio=%s retino=%s nephro=%s neuro=%s\n",
			e.ID,
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
			truncate(e.LabFilename, 24),
			rs.Dementia.Level, rs.Cardiovascular.Level, rs.Retinopathy.Level,
			rs.Nephropathy.Level, rs.Neuropathy.Level,
		)
	}
	return nil
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one stored analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid analysis id %q", args[0])
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runHistoryShow(cmd.Context(), client, cmd.OutOrStdout(), id, asJSON)
	},
}

func runHistoryShow(ctx context.Context, client *apiClient, w io.Writer, id int64, asJSON bool) error {
	resp, err := client.get(ctx, fmt.Sprintf("/api/history/%d", id))
	if err != nil {
		return err
	}

	var e historyEntry
	if err := decodeJSON(resp, &e); err != nil {
		return err
	}

	if asJSON {
		return printJSON(w, e)
	}
	fmt.Fprintf(w, "#%d  %s  %s\n", e.ID, e.CreatedAt.Local().Format(time.RFC1123), e.LabFilename)
	writeAnalysis(w, e.Analysis)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	historyCmd.Flags().Int("limit", 0, "maximum number of analyses (default: server's history.default_limit)")
	historyShowCmd.Flags().Bool("json", false, "print the raw JSON result")
	historyCmd.AddCommand(historyShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(w, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
