package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// newHealthCmd creates the `fightbot health` command. Used by Docker
// HEALTHCHECK and monitoring: it probes the local keepalive server.
func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the health of a running bot",
		Long:  `Probes the keepalive HTTP server of a running FightBot instance.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, _ := cmd.Flags().GetString("url")

			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(url)
			if err != nil {
				fmt.Println(`{"status":"down"}`)
				return err
			}
			defer resp.Body.Close()

			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				fmt.Println(`{"status":"down"}`)
				return err
			}

			out, _ := json.Marshal(body)
			fmt.Println(string(out))
			if body["status"] != "ok" {
				return fmt.Errorf("unhealthy: %s", body["status"])
			}
			return nil
		},
	}

	cmd.Flags().String("url", "http://127.0.0.1:10000/health", "health endpoint URL")
	return cmd
}
