package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/cortex/core"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Chat with the memory of an owner and topic",
		Long: "Answers a single prompt when one is given, otherwise starts an interactive " +
			"session that ends on exit, quit or end of input.",
		RunE: runChat,
	}
	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	// Summaries are stored before each answer returns so a short-lived
	// process never drops them.
	opts := runtimeOptions{generate: true, syncPersistence: true}
	return withRuntime(ctx, opts, func(rt *runtime) error {
		sc := scope(rt.cfg)
		if len(args) > 0 {
			answer, err := rt.manager.ProcessTurn(ctx, sc, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			fmt.Println(answer)
			return nil
		}

		if err := sc.Validate(); err != nil {
			return fmt.Errorf("chat: %w", err)
		}
		fmt.Printf("Chatting as %s about %s. Type exit or quit to leave.\n", sc.Owner, sc.Topic)

		in := bufio.NewScanner(os.Stdin)
		in.Buffer(make([]byte, 64*1024), 1<<20)
		for {
			fmt.Print("> ")
			if !in.Scan() {
				fmt.Println()
				return in.Err()
			}
			prompt := strings.TrimSpace(in.Text())
			switch strings.ToLower(prompt) {
			case "":
				continue
			case "exit", "quit":
				return nil
			}

			answer, err := rt.manager.ProcessTurn(ctx, sc, prompt)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %s\n", core.PublicMessage(err))
				continue
			}
			fmt.Printf("\n%s\n\n", answer)
		}
	})
}
