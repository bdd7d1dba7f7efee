package main

import (
	"encoding/json"
	"strings"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/qa"
	"github.com/spf13/cobra"
)

func newAskCmd(a *app) *cobra.Command {
	var q domain.Question
	var lang string
	var topK int
	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Answer one question from the graph and print the JSON response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reg, err := a.schema()
			if err != nil {
				return err
			}
			gs, err := a.graph(ctx)
			if err != nil {
				return err
			}
			svc, _, err := a.qaService(gs, reg)
			if err != nil {
				return err
			}
			q.Text = strings.Join(args, " ")
			if lang == "" {
				lang = a.cfg.Lang
			}
			resp, err := svc.Ask(ctx, qa.Request{Question: q, Lang: lang, TopK: topK})
			if err != nil {
				a.log.Error("ask failed", "err", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().StringVar(&q.Model, "model", "", "model name, e.g. WM3501H")
	cmd.Flags().StringVar(&q.Product, "product", "", "product type, e.g. washer")
	cmd.Flags().StringVar(&q.SubProduct, "sub-product", "", "sub product type")
	cmd.Flags().StringVar(&q.Section, "section", "troubleshooting", "manual section: troubleshooting, operation or specification")
	cmd.Flags().StringVar(&lang, "lang", "", "message language (en or ko)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of candidate keys")
	return cmd
}
