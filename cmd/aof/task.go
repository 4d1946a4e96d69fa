package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/aof/pkg/store"
	"github.com/cuemby/aof/pkg/types"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create TITLE",
	Short: "Create a new task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}

		body, _ := cmd.Flags().GetString("body")
		priority, _ := cmd.Flags().GetString("priority")
		agent, _ := cmd.Flags().GetString("agent")
		role, _ := cmd.Flags().GetString("role")
		team, _ := cmd.Flags().GetString("team")
		workflow, _ := cmd.Flags().GetString("workflow")
		dependsOn, _ := cmd.Flags().GetStringSlice("depends-on")
		ready, _ := cmd.Flags().GetBool("ready")
		metaPairs, _ := cmd.Flags().GetStringSlice("meta")

		metadata, err := parseMetaPairs(metaPairs)
		if err != nil {
			return err
		}

		in := store.CreateInput{
			Title:     args[0],
			Body:      body,
			Priority:  types.Priority(priority),
			DependsOn: dependsOn,
			Metadata:  metadata,
			CreatedBy: "cli",
			Ready:     ready,
		}
		if agent != "" || role != "" || team != "" || workflow != "" {
			in.Routing = &types.Routing{Agent: agent, Role: role, Team: team, Workflow: workflow}
		}

		t, err := eng.store.Create(in)
		if err != nil {
			return err
		}
		fmt.Printf("Created %s (%s)\n", t.ID, t.Status)
		return nil
	},
}

var taskGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show a task record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			t, err := eng.store.Get(args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(t, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		raw, err := eng.store.RecordBytes(args[0])
		if err != nil {
			return err
		}
		fmt.Print(string(raw))
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}

		statusFlag, _ := cmd.Flags().GetString("status")
		var tasks []*types.Task
		if statusFlag != "" {
			status := types.Status(statusFlag)
			if !status.Valid() {
				return fmt.Errorf("unknown status %q", statusFlag)
			}
			tasks, err = eng.store.ListByStatus(status)
		} else {
			tasks, err = eng.store.List()
		}
		if err != nil {
			return err
		}

		for _, t := range tasks {
			line := fmt.Sprintf("%-24s %-12s %-8s %s", t.ID, t.Status, t.Priority, t.Title)
			if agent := t.AgentHint(); agent != "" {
				line += "  @" + agent
			}
			fmt.Println(line)
		}
		fmt.Printf("%d task(s)\n", len(tasks))
		return nil
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Update a task's routing, priority, or title",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}

		t, err := eng.store.Update(args[0], func(u *types.Task) error {
			if title, _ := cmd.Flags().GetString("title"); title != "" {
				u.Title = title
			}
			if priority, _ := cmd.Flags().GetString("priority"); priority != "" {
				u.Priority = types.Priority(priority)
			}
			agent, _ := cmd.Flags().GetString("agent")
			role, _ := cmd.Flags().GetString("role")
			team, _ := cmd.Flags().GetString("team")
			if agent != "" || role != "" || team != "" {
				if u.Routing == nil {
					u.Routing = &types.Routing{}
				}
				if agent != "" {
					u.Routing.Agent = agent
				}
				if role != "" {
					u.Routing.Role = role
				}
				if team != "" {
					u.Routing.Team = team
				}
			}
			metaPairs, _ := cmd.Flags().GetStringSlice("meta")
			metadata, err := parseMetaPairs(metaPairs)
			if err != nil {
				return err
			}
			for k, v := range metadata {
				u.SetMeta(k, v)
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Printf("Updated %s\n", t.ID)
		return nil
	},
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel ID",
	Short: "Cancel a task",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionRunE(types.StatusCancelled, "cancelled via cli"),
}

var taskBlockCmd = &cobra.Command{
	Use:   "block ID",
	Short: "Block a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		if reason == "" {
			reason = "blocked via cli"
		}
		t, err := eng.store.Transition(args[0], types.StatusBlocked, &store.TransitionOpts{
			Reason: reason,
			Actor:  "cli",
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s -> %s\n", t.ID, t.Status)
		return nil
	},
}

var taskUnblockCmd = &cobra.Command{
	Use:   "unblock ID",
	Short: "Return a blocked task to ready",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionRunE(types.StatusReady, "unblocked via cli"),
}

var taskDepAddCmd = &cobra.Command{
	Use:   "dep-add ID DEPENDS_ON",
	Short: "Add a dependency",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		if _, err := eng.store.AddDependency(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("%s now depends on %s\n", args[0], args[1])
		return nil
	},
}

var taskDepRemoveCmd = &cobra.Command{
	Use:   "dep-remove ID DEPENDS_ON",
	Short: "Remove a dependency",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		if _, err := eng.store.RemoveDependency(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("%s no longer depends on %s\n", args[0], args[1])
		return nil
	},
}

// transitionRunE builds a RunE for the single-edge commands.
func transitionRunE(target types.Status, reason string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		t, err := eng.store.Transition(args[0], target, &store.TransitionOpts{
			Reason: reason,
			Actor:  "cli",
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s -> %s\n", t.ID, t.Status)
		return nil
	}
}

// parseMetaPairs turns repeated key=value flags into a metadata bag.
func parseMetaPairs(pairs []string) (types.Metadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(types.Metadata, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --meta %q (want key=value)", p)
		}
		meta[key] = value
	}
	return meta, nil
}

func init() {
	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskGetCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskUpdateCmd)
	taskCmd.AddCommand(taskCancelCmd)
	taskCmd.AddCommand(taskBlockCmd)
	taskCmd.AddCommand(taskUnblockCmd)
	taskCmd.AddCommand(taskDepAddCmd)
	taskCmd.AddCommand(taskDepRemoveCmd)

	taskCreateCmd.Flags().String("body", "", "Task brief")
	taskCreateCmd.Flags().String("priority", "", "Priority (critical|high|normal|low)")
	taskCreateCmd.Flags().String("agent", "", "Route to a specific agent")
	taskCreateCmd.Flags().String("role", "", "Route to the first active agent with this role")
	taskCreateCmd.Flags().String("team", "", "Route to a team")
	taskCreateCmd.Flags().String("workflow", "", "Gated workflow to enter on dispatch")
	taskCreateCmd.Flags().StringSlice("depends-on", nil, "Task ids this task depends on")
	taskCreateCmd.Flags().Bool("ready", false, "Create in ready instead of backlog")
	taskCreateCmd.Flags().StringSlice("meta", nil, "Metadata key=value (repeatable)")

	taskGetCmd.Flags().Bool("json", false, "Print the task as JSON")

	taskListCmd.Flags().String("status", "", "Filter by status bucket")

	taskUpdateCmd.Flags().String("title", "", "New title")
	taskUpdateCmd.Flags().String("priority", "", "New priority")
	taskUpdateCmd.Flags().String("agent", "", "New routed agent")
	taskUpdateCmd.Flags().String("role", "", "New routed role")
	taskUpdateCmd.Flags().String("team", "", "New routed team")
	taskUpdateCmd.Flags().StringSlice("meta", nil, "Metadata key=value (repeatable)")

	taskBlockCmd.Flags().String("reason", "", "Why the task is blocked")
}
