package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/ghostrec/internal/control"
)

var sendCmd = &cobra.Command{
	Use:       "send <start|pause|resume|stop|exit>",
	Short:     "Send a command to the running agent",
	Long:      `Write a control command to the agent's pipe. The agent applies it on its next poll.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"start", "pause", "resume", "stop", "exit"},
	RunE: func(cmd *cobra.Command, args []string) error {
		sig, err := control.ParseSignal(args[0])
		if err != nil {
			return err
		}
		if err := control.Send(cmd.Context(), cfg.Control.Endpoint, sig); err != nil {
			return err
		}
		fmt.Printf("Sent %s to %s\n", sig, cfg.Control.Endpoint)
		return nil
	},
}
