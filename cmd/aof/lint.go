package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/aof/pkg/config"
)

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Validate task records and the org chart",
	Long: `Scan every task record for schema violations and run the org-chart
lint rules (circular reportsTo chains, dangling routing targets, inverted
context budgets). Exits 1 when any error-severity finding exists.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}

		findings, err := eng.store.Lint()
		if err != nil {
			return err
		}
		for _, f := range findings {
			fmt.Printf("error  task %s: %s\n", f.Task, f.Issue)
		}

		issues := config.LintOrgChart(eng.project.Org)
		errorsFound := len(findings)
		for _, issue := range issues {
			fmt.Printf("%-6s %s: %s (%s)\n", issue.Severity, issue.Rule, issue.Message, issue.Path)
			if issue.Severity == config.SeverityError {
				errorsFound++
			}
		}

		if errorsFound > 0 {
			return fmt.Errorf("lint found %d error(s)", errorsFound)
		}
		fmt.Println("Lint clean")
		return nil
	},
}
