package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	caddycmd "github.com/caddyserver/caddy/v2/cmd"
	_ "github.com/caddyserver/caddy/v2/modules/standard"

	// registers the gojinn HTTP handler module via its init()
	_ "github.com/gojinn-io/gateway"

	"github.com/spf13/cobra"
)

func main() {
	// Caddy owns run/start/stop/--config; the cobra commands below are
	// registered into caddycmd as extra subcommands, not run through
	// rootCmd.Execute() directly.
	caddycmd.Main()
}

func init() {
	caddycmd.RegisterCommand(caddycmd.Command{
		Name:  "snapshot",
		Usage: "[--address <gateway>]",
		Short: "Trigger a cache snapshot on a running gateway",
		Func:  wrapCobra(snapshotCmd),
	})
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "POST a snapshot cache-admin request to a running gojinn gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := cmd.Flags().GetString("address")
		if err != nil {
			return err
		}
		return requestCacheAdmin(address, cacheAdminBody{Operation: "snapshot"})
	},
}

func init() {
	snapshotCmd.Flags().String("address", "http://localhost:8080", "gateway base URL")
}

// wrapCobra adapts a cobra.Command into a caddycmd.CommandFunc, the way the
// teacher's cmd/gojinn/main.go bridges its own operator subcommands into
// caddy's command registry.
func wrapCobra(cmd *cobra.Command) caddycmd.CommandFunc {
	return func(flags caddycmd.Flags) (int, error) {
		cmd.SetArgs(flags.Args())
		if err := cmd.Execute(); err != nil {
			return 1, err
		}
		return 0, nil
	}
}

type cacheAdminBody struct {
	Operation string   `json:"operation"`
	Keys      []string `json:"keys,omitempty"`
}

func requestCacheAdmin(address string, body cacheAdminBody) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode cache-admin request: %w", err)
	}

	resp, err := http.Post(address+"/cache", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to reach gateway at %s: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned status %d for %s cache-admin request", resp.StatusCode, body.Operation)
	}

	fmt.Printf("%s requested (status %d)\n", body.Operation, resp.StatusCode)
	return nil
}
