package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/garitadev/garita/internal/config"
)

// --- submissions ---

var submissionsCmd = &cobra.Command{
	Use:   "submissions",
	Short: "List and inspect intake submissions",
}

var submissionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		questionnaire, _ := cmd.Flags().GetString("questionnaire")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/submissions?limit=%d", limit)
		if questionnaire != "" {
			path += "&questionnaire=" + url.QueryEscape(questionnaire)
		}
		resp, err := client.get(path)
		if err != nil {
			return err
		}

		var submissions []struct {
			ID              string
			QuestionnaireID string
			Phase           string
			Plate           string
			Finalized       bool
			CreatedAt       time.Time
		}
		if err := decodeJSON(resp, &submissions); err != nil {
			return err
		}

		if len(submissions) == 0 {
			fmt.Println("No submissions found.")
			return nil
		}

		for _, s := range submissions {
			state := colorize(colorYellow, "open")
			if s.Finalized {
				state = colorize(colorGreen, "finalized")
			}
			plate := s.Plate
			if plate == "" {
				plate = "-"
			}
			fmt.Printf("%s  %s  %-12s %-8s %-10s %s\n",
				colorize(colorCyan, shortID(s.ID)),
				s.CreatedAt.Local().Format("2006-01-02 15:04"),
				s.QuestionnaireID,
				s.Phase,
				plate,
				state,
			)
		}
		return nil
	},
}

var submissionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single submission with its answers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/submissions/" + url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var detail any
		if err := decodeJSON(resp, &detail); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	},
}

func init() {
	submissionsListCmd.Flags().Int("limit", 20, "maximum number of submissions to list")
	submissionsListCmd.Flags().String("questionnaire", "", "filter by questionnaire ID")
	submissionsCmd.AddCommand(submissionsListCmd)
	submissionsCmd.AddCommand(submissionsShowCmd)
}

// --- actors ---

var actorsCmd = &cobra.Command{
	Use:   "actors",
	Short: "Search and manage the partner catalog",
}

var actorsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the partner catalog by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/actors?q=" + url.QueryEscape(args[0])
		if kind != "" {
			path += "&kind=" + url.QueryEscape(kind)
		}
		resp, err := client.get(path)
		if err != nil {
			return err
		}

		var actors []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Kind string `json:"kind"`
		}
		if err := decodeJSON(resp, &actors); err != nil {
			return err
		}

		if len(actors) == 0 {
			fmt.Println("No matching partners found.")
			return nil
		}

		for _, a := range actors {
			fmt.Printf("%s  %-14s %s\n", colorize(colorCyan, a.ID), a.Kind, a.Name)
		}
		return nil
	},
}

var actorsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import partner catalog entries from a JSON file",
	Long: `Import partner catalog entries from a JSON file.

The file holds the server's import payload:
  {"actors": [{"id": "A-1", "name": "Frigorifico Sur", "kind": "PROVEEDOR"}]}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/actors/import", payload)
		if err != nil {
			return err
		}

		var result struct {
			Count int `json:"count"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Imported %d partners", result.Count)
		return nil
	},
}

func init() {
	actorsSearchCmd.Flags().String("kind", "", "filter by catalog kind (e.g. PROVEEDOR)")
	actorsImportCmd.Flags().String("file", "", "JSON file with the catalog payload")
	actorsCmd.AddCommand(actorsSearchCmd)
	actorsCmd.AddCommand(actorsImportCmd)
}

// --- questionnaires ---

var questionnairesCmd = &cobra.Command{
	Use:   "questionnaires",
	Short: "Manage questionnaire definitions",
}

var questionnairesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a questionnaire definition from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		var def map[string]any
		if err := json.Unmarshal(data, &def); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/questionnaires/import", def)
		if err != nil {
			return err
		}

		var result struct {
			Questions int `json:"questions"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Imported questionnaire with %d questions", result.Questions)
		return nil
	},
}

func init() {
	questionnairesImportCmd.Flags().String("file", "", "JSON file with the questionnaire definition")
	questionnairesCmd.AddCommand(questionnairesImportCmd)
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

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
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
