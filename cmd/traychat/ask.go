package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/traychat/internal/middleware"
	"github.com/capitalize-ai/traychat/internal/service"
)

const clearCommand = "/clear"

func newAskCmd(opts *rootOptions) *cobra.Command {
	var (
		modelName    string
		clearHistory bool
	)

	cmd := &cobra.Command{
		Use:   "ask [text]",
		Short: "Send a message and print the reply",
		Long: `Sends text to the completion endpoint using the saved model and prints the reply.
With no arguments, reads one message per line from stdin and keeps the
conversation going until EOF. A line of "/clear" starts a new conversation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.connectMirror(ctx); err != nil {
				a.log.Warn("transcript mirror unavailable", zap.Error(err))
			}
			if err := a.buildBroker(); err != nil {
				return err
			}

			if modelName == "" {
				saved, err := a.store.Load(a.cfg.DefaultModel, a.cfg.DefaultPreventExit)
				if err != nil {
					return err
				}
				modelName = saved.Model
			}

			out := cmd.OutOrStdout()
			if len(args) > 0 {
				return askOnce(ctx, a.broker, out, modelName, strings.Join(args, " "), clearHistory)
			}
			return askLoop(ctx, a.broker, cmd.InOrStdin(), out, modelName, clearHistory)
		},
	}

	cmd.Flags().StringVarP(&modelName, "model", "m", "", "Model to use (default: saved setting)")
	cmd.Flags().BoolVar(&clearHistory, "clear", false, "Clear the conversation before sending")

	return cmd
}

func askOnce(ctx context.Context, broker *service.Broker, out io.Writer, modelName, text string, clearHistory bool) error {
	reply, err := ask(ctx, broker, modelName, text, clearHistory)
	if err != nil {
		fmt.Fprintf(out, "%s %s\n", color.RedString("✗"), err)
		return err
	}
	fmt.Fprintln(out, reply)
	return nil
}

// ask applies the same input checks as the bridge before handing off to the broker.
func ask(ctx context.Context, broker *service.Broker, modelName, text string, clearHistory bool) (string, error) {
	if err := middleware.ValidateModel(modelName); err != nil {
		return "", err
	}
	if err := middleware.ValidateMessageContent(text); err != nil {
		return "", err
	}
	return broker.Handle(ctx, modelName, text, clearHistory)
}

func askLoop(ctx context.Context, broker *service.Broker, in io.Reader, out io.Writer, modelName string, clearHistory bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, color.CyanString("> "))
		if !scanner.Scan() {
			break
		}

		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case clearCommand:
			clearHistory = true
			fmt.Fprintln(out, color.YellowString("conversation will be cleared"))
			continue
		}

		// Errors are shown and the session continues.
		_ = askOnce(ctx, broker, out, modelName, text, clearHistory)
		clearHistory = false
	}
	fmt.Fprintln(out)
	return scanner.Err()
}
