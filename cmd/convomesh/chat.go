package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/convomesh/convomesh"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long:  `Runs a terminal read-eval loop against the configured routes and model. Each line is one user turn; type /quit to exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		sessionID, _ := cmd.Flags().GetString("session")
		stream, _ := cmd.Flags().GetBool("stream")
		return runChat(cmd, configPath, sessionID, stream)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("session", "s", "", "Session id to resume (default: a fresh id)")
	chatCmd.Flags().Bool("stream", true, "Stream reply text as it is generated")
}

func runChat(cmd *cobra.Command, configPath, sessionID string, stream bool) error {
	ctx := cmd.Context()

	mesh, _, err := buildMesh(ctx, configPath)
	if err != nil {
		return err
	}
	if err := mesh.ValidateTools(); err != nil {
		return err
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	fmt.Printf("session %s (type /quit to exit)\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		if stream {
			if err := chatTurnStream(cmd, mesh, sessionID, line); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
			continue
		}
		result, err := mesh.Respond(ctx, sessionID, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(result.Message)
	}
}

func chatTurnStream(cmd *cobra.Command, mesh *convomesh.Mesh, sessionID, line string) error {
	for chunk := range mesh.RespondStream(cmd.Context(), sessionID, line) {
		if chunk.Err != nil {
			fmt.Println()
			return chunk.Err
		}
		if chunk.Done {
			fmt.Println()
			return nil
		}
		fmt.Print(chunk.Delta)
	}
	return nil
}
