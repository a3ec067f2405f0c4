package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/piholeup/piholeup/internal/app"
)

// stdinPrompter answers the orchestrator's decision points from the
// terminal.
type stdinPrompter struct {
	reader *bufio.Reader
}

func newStdinPrompter() *stdinPrompter {
	return &stdinPrompter{reader: bufio.NewReader(os.Stdin)}
}

func (p *stdinPrompter) Confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	line, err := p.reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// runMenu loops the interactive numbered menu until the user exits. The
// menu is glue around the same operations the subcommands expose.
func runMenu(ctx context.Context, application *app.App) error {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Println()
		fmt.Println("piholeup")
		fmt.Println("  1) Install / Start")
		fmt.Println("  2) Stop")
		fmt.Println("  3) Uninstall")
		fmt.Println("  4) Verify")
		fmt.Println("  5) Status")
		fmt.Println("  6) Exit")
		fmt.Print("> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}

		var opErr error
		switch strings.TrimSpace(line) {
		case "1":
			opErr = runInstall(ctx, application)
		case "2":
			opErr = runStop(ctx, application)
		case "3":
			opErr = runUninstall(ctx, application)
		case "4":
			opErr = runVerify(ctx, application)
		case "5":
			opErr = runStatus(ctx, application)
		case "6", "q", "exit":
			return nil
		default:
			fmt.Println("Please pick a number between 1 and 6.")
			continue
		}
		if opErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", opErr)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
