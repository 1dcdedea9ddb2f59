package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/capitalize-ai/traychat/internal/model"
)

func newTranscriptCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "transcript <session-id>",
		Short: "Replay the mirrored turns of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.cfg.NATSEnabled() {
				return fmt.Errorf("transcript mirror is disabled: set NATS_URL or nats_url")
			}
			if err := a.connectMirror(ctx); err != nil {
				return err
			}

			records, err := a.streams.Transcript(ctx, args[0], limit)
			if err != nil {
				return err
			}
			printTranscript(cmd.OutOrStdout(), records)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of turns to replay")
	return cmd
}

func printTranscript(out io.Writer, records []model.TurnRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "no turns recorded")
		return
	}
	for _, rec := range records {
		stamp := rec.Turn.CreatedAt.Format("15:04:05")
		fmt.Fprintf(out, "%s %s %s\n", color.HiBlackString(stamp), roleLabel(rec.Turn.Role), rec.Turn.Content)
	}
}

func roleLabel(role model.Role) string {
	switch role {
	case model.RoleUser:
		return color.CyanString("[user]")
	case model.RoleAssistant:
		return color.GreenString("[assistant]")
	default:
		return color.YellowString("[%s]", role)
	}
}
