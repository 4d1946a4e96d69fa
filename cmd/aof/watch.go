package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/aof/pkg/views"
)

var watchCmd = &cobra.Command{
	Use:   "watch <kanban|mailbox> [path]",
	Short: "Stream live view updates",
	Long: `Watch the task store and keep a projection current. With a path
argument the rendered view is written to views/<path> after every change;
without one each update is printed to stdout. Runs until interrupted.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}

		formatFlag, _ := cmd.Flags().GetString("format")
		format, err := views.ParseFormat(formatFlag)
		if err != nil {
			return err
		}
		agent, _ := cmd.Flags().GetString("agent")

		var outName string
		if len(args) == 2 {
			outName = args[1]
		}

		emit := func(v views.View) error {
			if outName != "" {
				_, err := views.WriteFile(eng.root, outName, v, format)
				return err
			}
			data, err := views.Render(v, format)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		}

		var rebuild func() error
		switch args[0] {
		case "kanban":
			rebuild = func() error {
				board, err := views.BuildKanban(eng.store)
				if err != nil {
					return err
				}
				return emit(board)
			}
		case "mailbox":
			if agent == "" {
				return fmt.Errorf("--agent is required for the mailbox view")
			}
			rebuild = func() error {
				mb, err := views.BuildMailbox(eng.store, agent)
				if err != nil {
					return err
				}
				return emit(mb)
			}
		default:
			return fmt.Errorf("unknown view %q (want kanban or mailbox)", args[0])
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := views.NewWatcher(eng.store).Run(ctx, rebuild); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().String("format", "cli", "Output format (cli|json|jsonl)")
	watchCmd.Flags().String("agent", "", "Agent id for the mailbox view")
}
