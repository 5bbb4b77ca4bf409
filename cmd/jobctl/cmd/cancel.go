package cmd

import (
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [job_id]",
	Short: "Request cancellation of a job",
	Long: `Request cooperative cancellation of a job.

A queued job is cancelled immediately. A job that is already on a worker moves
to 'cancelling' until the worker observes the request and confirms; use
'jobctl status' or 'jobctl watch' to see the final state.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]

		client := NewJobClient()
		state, err := client.CancelJob(jobID)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Cancel failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Cancel failed: %v\n", err)
			}
			return
		}

		switch state.Status {
		case "cancelled":
			cmd.Printf("✓ Job %s cancelled\n", state.ID)
		default:
			cmd.Printf("Cancellation requested for job %s (status: %s)\n", state.ID, state.Status)
		}
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
