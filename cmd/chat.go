package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sheetwise/sheetwise/internal/config"
	"github.com/sheetwise/sheetwise/internal/orchestrator"
	"github.com/sheetwise/sheetwise/internal/transcript"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant in the current workspace",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

var (
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	toolStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	sessionStyle = lipgloss.NewStyle().Faint(true)
)

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctrl, err := orchestrator.New(cfg, workspaceFlag, store, nil, newLogger())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	state := ctrl.Snapshot()
	fmt.Println(sessionStyle.Render(fmt.Sprintf("session: %s (%d earlier turns)", state.Current.Name, len(state.Turns))))
	fmt.Println(sessionStyle.Render("commands: /new /sessions /switch <id> /delete /quit"))

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print(userStyle.Render("> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := runChatCommand(ctrl, line); quit {
				return nil
			}
			continue
		}

		if err := ctrl.SendMessage(ctx, line); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			continue
		}
		ctrl.Wait()
		printLatest(ctrl.Snapshot())
	}
	return scanner.Err()
}

// runChatCommand handles slash commands. Returns true to exit the loop.
func runChatCommand(ctrl *orchestrator.Controller, line string) bool {
	fields := strings.Fields(line)
	ctx := rootCmd.Context()
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/new":
		if err := ctrl.NewSession(ctx); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
		}
	case "/sessions":
		for _, sess := range ctrl.Snapshot().Sessions {
			fmt.Printf("%s  %s  (%s)\n", sess.ID, sess.Name, sess.UpdatedAt.Format("2006-01-02 15:04"))
		}
	case "/switch":
		if len(fields) < 2 {
			fmt.Println(errorStyle.Render("usage: /switch <id>"))
			return false
		}
		if err := ctrl.SwitchSession(ctx, fields[1]); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
		}
	case "/delete":
		if err := ctrl.DeleteCurrentSession(ctx); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
		}
	default:
		fmt.Println(errorStyle.Render("unknown command: " + fields[0]))
	}
	return false
}

// printLatest renders the newest assistant turn and any stream error.
func printLatest(state orchestrator.UIState) {
	if state.Error != "" {
		fmt.Println(errorStyle.Render("error: " + state.Error))
		return
	}
	if len(state.Turns) == 0 {
		return
	}
	turn := state.Turns[len(state.Turns)-1]
	if turn.Role != transcript.RoleAssistant {
		return
	}
	for _, part := range turn.Parts {
		switch part.Type {
		case transcript.PartText:
			fmt.Println(part.Text)
		case transcript.PartThinking:
			// Not rendered.
		case transcript.PartToolCall:
			call := part.ToolCall
			if call == nil {
				continue
			}
			line := fmt.Sprintf("[%s %s]", call.Name, call.Status)
			if len(call.DirtyRanges) > 0 {
				var refs []string
				for _, d := range call.DirtyRanges {
					refs = append(refs, d.Ref)
				}
				line += " changed " + strings.Join(refs, ", ")
			}
			fmt.Println(toolStyle.Render(line))
		}
	}
}
