package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pageza/nutriado/backend/internal/render"
)

func newRootCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Render an upstream response as chat HTML",
		Long:  "render reads an n8n or LLM response body from a file (or stdin when the file is omitted or \"-\") and prints the HTML the chat widget would show.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			msg := render.NormalizeBody(body)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetEscapeHTML(false)
				enc.SetIndent("", "  ")
				return enc.Encode(msg)
			}
			_, err = fmt.Fprintln(out, msg.HTML)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the message and its tier as JSON")
	return cmd
}

func readInput(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return data, nil
}
