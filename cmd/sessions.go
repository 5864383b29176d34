package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Control attendance sessions on a running server",
}

var sessionsStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a session in a context",
	RunE:  runSessionsStart,
}

var sessionsStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the active session in a context",
	RunE:  runSessionsStop,
}

var sessionsCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show active sessions",
	RunE:  runSessionsCurrent,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsStartCmd)
	sessionsCmd.AddCommand(sessionsStopCmd)
	sessionsCmd.AddCommand(sessionsCurrentCmd)

	sessionsCmd.PersistentFlags().String("api", "", "Server URL (defaults to PRESENCE_API_URL or http://localhost:8080)")

	sessionsStartCmd.Flags().String("context", "", "Room or camera feed (required)")
	sessionsStartCmd.Flags().String("subject", "", "Subject being taught (required)")
	sessionsStartCmd.Flags().Int("minutes", 45, "Session window length in minutes")
	for _, name := range []string{"context", "subject"} {
		if err := sessionsStartCmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}

	sessionsStopCmd.Flags().String("context", "", "Room or camera feed (required)")
	if err := sessionsStopCmd.MarkFlagRequired("context"); err != nil {
		panic(err)
	}
}

// apiURL resolves the server address from the flag or environment.
func apiURL(cmd *cobra.Command) string {
	if url := mustGetString(cmd, "api"); url != "" {
		return url
	}
	if url := os.Getenv("PRESENCE_API_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

// callAPI posts JSON (or gets, when body is nil) and prints the response.
func callAPI(cmd *cobra.Command, method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, apiURL(cmd)+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, respBody, "", "  "); err != nil {
		fmt.Println(string(respBody))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

func runSessionsStart(cmd *cobra.Command, args []string) error {
	start := time.Now()
	return callAPI(cmd, http.MethodPost, "/api/v1/sessions/start", map[string]any{
		"context":      mustGetString(cmd, "context"),
		"subject":      mustGetString(cmd, "subject"),
		"window_start": start,
		"window_end":   start.Add(time.Duration(mustGetInt(cmd, "minutes")) * time.Minute),
	})
}

func runSessionsStop(cmd *cobra.Command, args []string) error {
	return callAPI(cmd, http.MethodPost, "/api/v1/sessions/stop", map[string]any{
		"context": mustGetString(cmd, "context"),
	})
}

func runSessionsCurrent(cmd *cobra.Command, args []string) error {
	return callAPI(cmd, http.MethodGet, "/api/v1/sessions/current", nil)
}
