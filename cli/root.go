// Package cli implements the cortex commands.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/cortex/config"
	"github.com/becomeliminal/cortex/core"
)

var (
	configPath string
	ownerFlag  string
	topicFlag  string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "cortex",
	Short: "Conversational memory with retrieval-augmented answers",
	Long: "cortex answers questions from a per-owner, per-topic memory of past conversations " +
		"and ingested files and repositories. Run `cortex serve` for the HTTP API.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: $CORTEX_CONFIG)")
	RootCmd.PersistentFlags().StringVarP(&ownerFlag, "owner", "o", "", "Owner id (default: configured default owner)")
	RootCmd.PersistentFlags().StringVarP(&topicFlag, "topic", "t", "", "Topic id")
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// scope resolves the --owner and --topic flags.
func scope(cfg *config.Config) core.Scope {
	in := core.ScopeInput{OwnerID: ownerFlag, TopicID: topicFlag}
	return in.Scope(cfg.DefaultOwner)
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
