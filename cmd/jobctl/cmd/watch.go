package cmd

import (
	"bufio"
	"encoding/json"
	"strings"

	"longjob/pkg/api"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [job_id]",
	Short: "Follow live progress of a job",
	Long: `Subscribe to the job's server-sent event stream and print status changes
and produced units as they happen. The command exits when the job reaches a
terminal state and the server closes the stream.

Example:
  jobctl watch 3f2c9a1e-8a4b-4a1d-9c2f-1b5e6d7a8f90`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]

		client := NewJobClient()
		stream, err := client.StreamEvents(jobID)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Watch failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Watch failed: %v\n", err)
			}
			return
		}
		defer stream.Close()

		scanner := bufio.NewScanner(stream)
		for scanner.Scan() {
			line := scanner.Text()
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				// Blank separators and keep-alive comments.
				continue
			}

			var event api.JobEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				cmd.Printf("Skipping malformed frame: %v\n", err)
				continue
			}
			printEvent(cmd, event)
		}
		if err := scanner.Err(); err != nil {
			cmd.Printf("Stream closed with error: %v\n", err)
		}
	},
}

func printEvent(cmd *cobra.Command, event api.JobEvent) {
	ts := event.Timestamp.Format("15:04:05")
	switch event.Event {
	case api.EventConnected:
		cmd.Printf("%s[%s]%s connected to job %s\n", colorDim, ts, colorReset, event.JobID)
	case api.EventStatus:
		cmd.Printf("%s[%s]%s status: %s", colorDim, ts, colorReset, colorizeStatus(event.Status))
		if event.RetryCount > 0 {
			cmd.Printf(" %s(retry %d)%s", colorYellow, event.RetryCount, colorReset)
		}
		cmd.Println()
	case api.EventProgress:
		cmd.Printf("%s[%s]%s produced %q %s(cursor %d)%s\n",
			colorDim, ts, colorReset, event.Unit, colorCyan, event.Cursor, colorReset)
	default:
		cmd.Printf("%s[%s]%s %s\n", colorDim, ts, colorReset, event.Event)
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
