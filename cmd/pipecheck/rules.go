package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/pipecheck/internal/validate"
)

type rulesView struct {
	SupportedVersion  string   `json:"supported_version"`
	SequenceNodeType  string   `json:"sequence_node_type"`
	TerminalProcessor string   `json:"terminal_processor"`
	Processors        []string `json:"processors"`
	RequiredNodeTypes []string `json:"required_node_types"`
}

func newRulesView(r validate.Rules) rulesView {
	return rulesView{
		SupportedVersion:  r.SupportedVersion,
		SequenceNodeType:  r.SequenceNodeType,
		TerminalProcessor: r.TerminalProcessor,
		Processors:        r.Processors(),
		RequiredNodeTypes: append([]string{}, r.RequiredNodeTypes...),
	}
}

func newRulesCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Show the rule set in effect",
		Long: `Show the rule set in effect: the built-in v3 rules extended by the
rules section of the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view := newRulesView(a.newValidator().Rules())
			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			return writeRules(a, view)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the rules as JSON")
	return cmd
}

func writeRules(a *app, view rulesView) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Supported version:  %s\n", view.SupportedVersion)
	fmt.Fprintf(&b, "Sequence node type: %s\n", view.SequenceNodeType)
	fmt.Fprintf(&b, "Terminal processor: %s\n", view.TerminalProcessor)
	b.WriteString("\nRequired node types:\n")
	for _, t := range view.RequiredNodeTypes {
		fmt.Fprintf(&b, "  - %s\n", t)
	}
	fmt.Fprintf(&b, "\nAllowed sequence processors (%d):\n", len(view.Processors))
	for _, t := range view.Processors {
		fmt.Fprintf(&b, "  - %s\n", t)
	}
	_, err := fmt.Fprint(a.stdout, b.String())
	return err
}
