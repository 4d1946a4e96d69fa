package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/aof/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the org chart",
}

var configGetCmd = &cobra.Command{
	Use:   "get [agent|team] [ID]",
	Short: "Print the org chart, or one agent or team",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		org := eng.project.Org

		var value any
		switch {
		case len(args) == 0:
			value = org
		case len(args) == 2 && args[0] == "agent":
			a := org.AgentByID(args[1])
			if a == nil {
				return fmt.Errorf("agent %q not found", args[1])
			}
			value = a
		case len(args) == 2 && args[0] == "team":
			tm := org.TeamByID(args[1])
			if tm == nil {
				return fmt.Errorf("team %q not found", args[1])
			}
			value = tm
		default:
			return fmt.Errorf("usage: config get [agent|team ID]")
		}

		data, err := yaml.Marshal(value)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set agent ID",
	Short: "Create or update an agent in the org chart",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] != "agent" {
			return fmt.Errorf("only 'config set agent ID' is supported")
		}
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		org := eng.project.Org

		agent := org.AgentByID(args[1])
		if agent == nil {
			org.Agents = append(org.Agents, config.Agent{ID: args[1]})
			agent = &org.Agents[len(org.Agents)-1]
		}
		if name, _ := cmd.Flags().GetString("name"); name != "" {
			agent.Name = name
		}
		if role, _ := cmd.Flags().GetString("role"); role != "" {
			agent.Role = role
		}
		if reportsTo, _ := cmd.Flags().GetString("reports-to"); reportsTo != "" {
			agent.ReportsTo = reportsTo
		}
		if cmd.Flags().Changed("inactive") {
			inactive, _ := cmd.Flags().GetBool("inactive")
			agent.Inactive = inactive
		}

		if err := config.SaveOrgChart(eng.root, org); err != nil {
			return err
		}
		fmt.Printf("Saved agent %s\n", args[1])
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the project manifest and org chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		root := dataRoot(cmd)

		// LoadProject runs full validation on both files.
		project, err := config.LoadProject(root)
		if err != nil {
			return err
		}

		warnings := 0
		for _, issue := range config.LintOrgChart(project.Org) {
			fmt.Printf("%-6s %s: %s (%s)\n", issue.Severity, issue.Rule, issue.Message, issue.Path)
			if issue.Severity == config.SeverityWarning {
				warnings++
			}
		}
		if warnings > 0 {
			fmt.Printf("Valid with %d warning(s)\n", warnings)
		} else {
			fmt.Println("Valid")
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configValidateCmd)

	configSetCmd.Flags().String("name", "", "Display name")
	configSetCmd.Flags().String("role", "", "Role (developer, reviewer, orchestrator, ...)")
	configSetCmd.Flags().String("reports-to", "", "Manager agent id")
	configSetCmd.Flags().Bool("inactive", false, "Mark the agent inactive")
}
