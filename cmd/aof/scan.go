package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/aof/pkg/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List tasks grouped by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		projectID, _ := cmd.Flags().GetString("project")
		if err := eng.checkProject(projectID); err != nil {
			return err
		}

		tasks, err := eng.store.List()
		if err != nil {
			return err
		}

		byStatus := make(map[types.Status][]*types.Task)
		for _, t := range tasks {
			byStatus[t.Status] = append(byStatus[t.Status], t)
		}

		for _, status := range types.AllStatuses() {
			bucket := byStatus[status]
			if len(bucket) == 0 {
				continue
			}
			fmt.Printf("%s (%d)\n", status, len(bucket))
			for _, t := range bucket {
				line := fmt.Sprintf("  %-24s %-8s %s", t.ID, t.Priority, t.Title)
				if t.Lease != nil {
					line += "  @" + t.Lease.Agent
				} else if agent := t.AgentHint(); agent != "" {
					line += "  @" + agent
				}
				if t.InWorkflow() {
					line += "  [" + t.Gate.Current + "]"
				}
				fmt.Println(line)
			}
		}
		fmt.Printf("%d task(s) total\n", len(tasks))
		return nil
	},
}

func init() {
	scanCmd.Flags().String("project", "", "Project id to scan")
}
