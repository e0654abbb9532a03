package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/theirongolddev/paychat/internal/chat"
	"github.com/theirongolddev/paychat/internal/cli"
	"github.com/theirongolddev/paychat/internal/config"
	"github.com/theirongolddev/paychat/internal/estimate"
	"github.com/theirongolddev/paychat/internal/store"
	"github.com/theirongolddev/paychat/internal/wallet"
	"github.com/theirongolddev/paychat/internal/x402"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var (
	flagChatYes    bool
	flagChatFormat string
	flagChatTokens int
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt...]",
	Short: "Send one paid prompt and print the answer",
	Args:  cobra.ArbitraryArgs,
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().BoolVarP(&flagChatYes, "yes", "y", false, "Skip the cost confirmation")
	chatCmd.Flags().IntVar(&flagChatTokens, "max-output-tokens", 0, "Output token cap for this request")
	addFormatFlag(chatCmd, &flagChatFormat)
	rootCmd.AddCommand(chatCmd)
}

type chatOutput struct {
	Model    string                `json:"model" yaml:"model"`
	Prompt   string                `json:"prompt" yaml:"prompt"`
	Content  string                `json:"content" yaml:"content"`
	Estimate estimate.CostEstimate `json:"estimate" yaml:"estimate"`
	Usage    *x402.Usage           `json:"usage,omitempty" yaml:"usage,omitempty"`
	Receipt  *x402.Receipt         `json:"receipt,omitempty" yaml:"receipt,omitempty"`
	TxURL    string                `json:"tx_url,omitempty" yaml:"tx_url,omitempty"`
}

func runChat(_ *cobra.Command, args []string) error {
	if err := checkFormat(flagChatFormat); err != nil {
		return err
	}
	_, s, err := loadSettings(os.Stderr)
	if err != nil {
		return err
	}
	if flagChatTokens > 0 {
		s.MaxOutputTokens = flagChatTokens
	}

	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		err := huh.NewText().
			Title("Prompt").
			Value(&prompt).
			Run()
		if err != nil {
			return err
		}
		prompt = strings.TrimSpace(prompt)
	}
	if prompt == "" {
		return errors.New("empty prompt")
	}

	interactive := flagChatFormat == formatTable
	var mgr wallet.Manager
	if _, err := connectWallet(&mgr, interactive); err != nil {
		return err
	}
	defer mgr.Disconnect()

	ledger, err := store.Open()
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	client := x402.NewClient(s)
	orch := chat.NewFromSettings(client, chat.FromManager(&mgr), s, chat.WithLedger(ledger))

	preview := orch.Preview(prompt)
	if !flagChatYes && interactive {
		ok, err := confirmSend(preview, s.Network)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("  Cancelled.")
			return nil
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !flagQuiet && interactive {
		fmt.Fprintf(os.Stderr, "  Sending to %s...\n", preview.Model.DisplayName)
	}
	if err := orch.Submit(ctx, prompt); err != nil {
		if msg := orch.State().LastError; msg != "" {
			return errors.New(msg)
		}
		return err
	}

	st := orch.State()
	answer := st.Transcript[len(st.Transcript)-1]
	out := chatOutput{
		Model:    st.Model,
		Prompt:   prompt,
		Content:  answer.Content,
		Estimate: preview.CostEstimate,
		Usage:    answer.Usage,
		Receipt:  answer.Receipt,
	}
	if answer.Receipt != nil {
		out.TxURL = s.Network.TxURL(answer.Receipt.TransactionHash)
	}

	if done, err := writeStructured(flagChatFormat, out); done {
		return err
	}
	printAnswer(out)
	return nil
}

func confirmSend(p chat.Preview, n config.Network) (bool, error) {
	desc := fmt.Sprintf("Estimated %s (%d in + %d out tokens) on %s. Cap %s per request.",
		cli.FormatCost(p.TotalCost), p.InputTokens, p.OutputTokens, n.DisplayName, cli.FormatUSDC(p.SpendCap))
	if p.ExceedsCap {
		desc += "\nThe estimate exceeds the cap; the gateway's quote will be rejected if it does too."
	}

	ok := true
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Send to %s?", p.Model.DisplayName)).
		Description(desc).
		Affirmative("Send").
		Negative("Cancel").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func printAnswer(out chatOutput) {
	fmt.Println()
	fmt.Println(out.Content)
	fmt.Println()

	var items []cli.KV
	if u := out.Usage; u != nil {
		items = append(items, cli.KV{
			Key:   "Tokens",
			Value: fmt.Sprintf("%s (%d prompt + %d completion)", cli.FormatNumber(int64(u.TotalTokens)), u.PromptTokens, u.CompletionTokens),
		})
	}
	items = append(items, cli.KV{Key: "Estimate", Value: cli.FormatCost(out.Estimate.TotalCost)})
	if r := out.Receipt; r != nil {
		items = append(items, cli.KV{Key: "Charged", Value: cli.FormatUSDC(r.AmountCharged)})
		if r.RefundAmount > 0 {
			items = append(items, cli.KV{Key: "Refund", Value: cli.FormatUSDC(r.RefundAmount)})
		}
		if r.TransactionHash != "" {
			items = append(items, cli.KV{Key: "Tx", Value: cli.ShortHash(r.TransactionHash)})
			items = append(items, cli.KV{Key: "Explorer", Value: out.TxURL})
		}
		if !r.Settled {
			items = append(items, cli.KV{Key: "Settlement", Value: "not confirmed", Warn: true})
		}
	}
	fmt.Print(cli.RenderKV("Payment", items))
	fmt.Println()
}
