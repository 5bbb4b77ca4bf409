package cmd

import (
	"encoding/json"

	"longjob/pkg/api"

	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new job",
	Long: `Submit a new job for background processing and print its id.

The job is queued immediately; use 'jobctl watch' to follow its progress or
'jobctl status' to poll its state.

Example:
  jobctl submit --input "some text to encode"
  jobctl submit --type encode --input "banana"`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		jobType, _ := flags.GetString("type")
		input, _ := flags.GetString("input")

		if input == "" {
			cmd.Println("Error: --input is required")
			return
		}

		payload, err := json.Marshal(map[string]string{"input": input})
		if err != nil {
			cmd.Printf("Failed to build payload: %v\n", err)
			return
		}

		client := NewJobClient()
		result, err := client.SubmitJob(api.CreateJobRequest{
			JobType: jobType,
			Payload: payload,
		})
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Submit failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Submit failed: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Job submitted!\nJob ID: %s\n", result.JobID)
	},
}

func init() {
	flags := submitCmd.Flags()
	flags.StringP("type", "t", "encode", "Job type")
	flags.StringP("input", "i", "", "Input text for the job (required)")

	rootCmd.AddCommand(submitCmd)
}
