package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/Lumos-Labs-HQ/flashgate/internal/gateway"
	"github.com/Lumos-Labs-HQ/flashgate/internal/schema"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	rawPayloadFile string
	rawJSON        bool
)

var rawCmd = &cobra.Command{
	Use:   "raw <action> [payload-json]",
	Short: "Dispatch one action against the database without starting the server",
	Long: `
Run a single gateway action locally using the configured database. The payload
is the same JSON object a client would send in the envelope's "payload" field.

Examples:
  flashgate raw list_tables
  flashgate raw create_table '{"table_name":"notes","c1_unique":true}'
  flashgate raw get '{"table_name":"notes","order":"desc","limit":10}'
  flashgate raw batch_post --file records.json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRaw,
}

func init() {
	rawCmd.Flags().StringVarP(&rawPayloadFile, "file", "f", "", "Read the payload from a JSON file ('-' for stdin)")
	rawCmd.Flags().BoolVar(&rawJSON, "json", false, "Print the result as JSON instead of a table")
	rootCmd.AddCommand(rawCmd)
}

func runRaw(cmd *cobra.Command, args []string) error {
	payload, err := readRawPayload(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	svc, err := newServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	action := args[0]
	fmt.Fprintf(cmd.ErrOrStderr(), "⚡ %s on %s\n", action, cfg.Database.Provider)

	res, err := svc.gateway.Dispatch(ctx, gateway.Request{ID: "cli", Action: action, Payload: payload})
	if err != nil {
		gerr := gateway.AsError(err)
		color.Red("❌ %s: %s", gerr.Code, gerr.Message)
		return fmt.Errorf("action %s failed", action)
	}

	out := cmd.OutOrStdout()
	if rows, ok := res["rows"].([]map[string]any); ok && !rawJSON {
		if len(rows) == 0 {
			color.Green("✅ No rows returned")
			return nil
		}
		color.Green("✅ %d row(s) returned\n", len(rows))
		displayResultsTable(out, resultColumns(rows), rows)
		return nil
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func readRawPayload(cmd *cobra.Command, args []string) (map[string]any, error) {
	var data []byte
	switch {
	case rawPayloadFile == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		data = b
	case rawPayloadFile != "":
		b, err := os.ReadFile(rawPayloadFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		data = b
	case len(args) > 1:
		data = []byte(args[1])
	default:
		return map[string]any{}, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

// resultColumns orders the table layout first and any other column after it.
func resultColumns(rows []map[string]any) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for key := range row {
			seen[key] = true
		}
	}

	var columns []string
	for _, col := range schema.Columns() {
		if seen[col.Name] {
			columns = append(columns, col.Name)
			delete(seen, col.Name)
		}
	}
	var extra []string
	for key := range seen {
		extra = append(extra, key)
	}
	sort.Strings(extra)
	return append(columns, extra...)
}

func displayResultsTable(w io.Writer, columns []string, rows []map[string]any) {
	if len(rows) == 0 {
		return
	}

	colWidths := make(map[string]int)
	for _, col := range columns {
		colWidths[col] = len(col)
	}
	for _, row := range rows {
		for _, col := range columns {
			if val := formatCell(row[col]); len(val) > colWidths[col] {
				colWidths[col] = len(val)
			}
		}
	}

	border := func(left, mid, right string) {
		fmt.Fprint(w, left)
		for i, col := range columns {
			fmt.Fprint(w, strings.Repeat("─", colWidths[col]+2))
			if i < len(columns)-1 {
				fmt.Fprint(w, mid)
			}
		}
		fmt.Fprintln(w, right)
	}

	border("┌", "┬", "┐")
	fmt.Fprint(w, "│")
	for _, col := range columns {
		fmt.Fprintf(w, " %-*s │", colWidths[col], col)
	}
	fmt.Fprintln(w)
	border("├", "┼", "┤")

	for _, row := range rows {
		fmt.Fprint(w, "│")
		for _, col := range columns {
			fmt.Fprintf(w, " %-*s │", colWidths[col], formatCell(row[col]))
		}
		fmt.Fprintln(w)
	}
	border("└", "┴", "┘")
}

func formatCell(val any) string {
	if val == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", val)
}
