package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/covid-rag/reinfection-advisor/internal/domain"
)

func newExplainCmd() *cobra.Command {
	var (
		file     string
		question string
	)

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Explain one patient's reinfection risk and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			patient, err := readPatient(file, question)
			if err != nil {
				return err
			}

			app, cleanup, err := bootstrap(cmd.Context(), os.Stderr)
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Fprintln(cmd.OutOrStdout(), app.Orchestrator.Explain(cmd.Context(), patient))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "patient record as a JSON object")
	cmd.Flags().StringVarP(&question, "question", "q", "", "free-text question")
	cmd.MarkFlagsMutuallyExclusive("file", "question")
	return cmd
}

// readPatient loads the record from path, or wraps question in a record.
func readPatient(path, question string) (domain.PatientContext, error) {
	if strings.TrimSpace(question) != "" {
		return domain.PatientContext{"question": question}, nil
	}
	if path == "" {
		return nil, errors.New("one of --file or --question is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patient file: %w", err)
	}
	var patient domain.PatientContext
	if err := json.Unmarshal(data, &patient); err != nil {
		return nil, fmt.Errorf("parse patient file %s: %w", path, err)
	}
	return patient, nil
}
