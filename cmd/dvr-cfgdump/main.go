// Command dvr-cfgdump connects to a device, walks the full configuration
// registry with GetCfg, and prints each {name, icon, description, data}
// record as JSON to stdout. It is the Go-native equivalent of the original
// DVRConfigClient.get_all_configs() convenience script: the distilled spec
// names the GetCfg operation but not a runnable entry point for it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/alxayo/go-dvr/internal/dvr/config"
)

type outputRecord struct {
	MainCmd     int    `json:"main_cmd"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Version     string `json:"version,omitempty"`
	CmdReply    string `json:"cmd_reply,omitempty"`
	Data        any    `json:"data,omitempty"`
	Error       string `json:"error,omitempty"`
}

func main() {
	host := flag.String("host", os.Getenv("DVR_HOST"), "DVR host (required; env DVR_HOST)")
	cmdPort := flag.Int("cmd-port", 5050, "command channel TCP port")
	username := flag.String("username", envOr("DVR_USERNAME", "admin"), "device username")
	password := flag.String("password", envOr("DVR_PASSWORD", "123456"), "device password")
	timeout := flag.Duration("timeout", 15*time.Second, "overall dial+login timeout")
	flag.Parse()

	if *host == "" {
		fmt.Fprintln(os.Stderr, "--host (or DVR_HOST) is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	reader, err := config.Dial(ctx, *host, *cmdPort, *username, *password, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial/login failed: %v\n", err)
		os.Exit(1)
	}
	defer reader.Close()

	records := reader.GetAllConfigs()
	out := make([]outputRecord, 0, len(records))
	for _, rec := range records {
		info, _ := config.Lookup(rec.MainCmd)
		out = append(out, outputRecord{
			MainCmd:     rec.MainCmd,
			Name:        info.Name,
			Icon:        info.Icon,
			Description: info.Description,
			Version:     rec.Version,
			CmdReply:    rec.CmdReply,
			Data:        rec.Data,
			Error:       rec.Error,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode failed: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
