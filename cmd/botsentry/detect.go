package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/triage-ai/botsentry/internal/engine"
	"github.com/triage-ai/botsentry/internal/ipverify"
)

var (
	detectIP       string
	detectNoRecord bool
)

var detectCmd = &cobra.Command{
	Use:   "detect <user-agent>",
	Short: "Classify a single user agent against the live catalog",
	Example: `  botsentry detect "Mozilla/5.0 (compatible; GPTBot/1.0; +https://openai.com/gptbot)"
  botsentry detect --ip 20.171.206.1 "GPTBot/1.0"`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().StringVar(&detectIP, "ip", "", "Client IP to verify against the bot's published ranges")
	detectCmd.Flags().BoolVar(&detectNoRecord, "no-record", false, "Do not queue uncertain agents for learning")
}

type detectOutput struct {
	Result         engine.DetectionResult `json:"result"`
	Verdict        string                 `json:"verdict"`
	CacheTTLSec    int64                  `json:"cache_ttl_sec"`
	Reason         string                 `json:"reason,omitempty"`
	IPVerification *ipverify.Verification `json:"ip_verification,omitempty"`
}

func runDetect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if detectNoRecord {
		cfg.Detection.RecordUnknown = false
	}
	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	result := a.pipeline.Detect(ctx, args[0])
	decision := engine.Decide(result, cfg.Policy.ServePolicy())

	out := detectOutput{
		Result:      result,
		Verdict:     decision.Verdict.String(),
		CacheTTLSec: int64(decision.CacheTTL / time.Second),
		Reason:      decision.Reason,
	}
	if detectIP != "" && result.IsBot && result.BotName != "" {
		v := a.verifier.Verify(result.BotName, detectIP)
		out.IPVerification = &v
	}
	return printJSON(cmd, out)
}

