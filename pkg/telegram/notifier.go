package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Moonlightintherain/q/pkg/logger"
	"github.com/Moonlightintherain/q/pkg/ton"
)

// Notifier delivers user-facing messages over the Telegram Bot API. Delivery
// failures are logged and swallowed: a notification must never block or roll
// back the financial operation that triggered it.
type Notifier struct {
	botToken string
	http     *http.Client
}

func NewNotifier() *Notifier {
	token, ok := os.LookupEnv("BOT_TOKEN")
	if !ok {
		logger.Fatal("unable to get telegram bot token from environment")
	}
	return &Notifier{
		botToken: token,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (n *Notifier) sendMessage(userID int64, text string) {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)

	payload := map[string]interface{}{
		"chat_id":                  userID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal telegram message: %v", err)
		return
	}

	resp, err := n.http.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		logger.Error("Failed to send telegram message to %d: %v", userID, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Error("Telegram API returned status %d for user %d", resp.StatusCode, userID)
	}
}

func (n *Notifier) DepositReceived(userID int64, amount float64, hash string) {
	n.sendMessage(userID, fmt.Sprintf(
		"💰 <b>Deposit received</b>\n\n💎 Amount: %g TON\n🔗 <a href=\"%s\">View transaction</a>",
		amount, ton.ViewerLink(hash)))
}

func (n *Notifier) WithdrawalStarted(userID int64, amount float64, wallet string) {
	n.sendMessage(userID, fmt.Sprintf(
		"⏳ <b>Withdrawal started</b>\n\n💰 Amount: %g TON\n📍 Wallet: <code>%s</code>",
		amount, wallet))
}

func (n *Notifier) WithdrawalSent(userID int64, amount float64, hash, wallet string) {
	n.sendMessage(userID, fmt.Sprintf(
		"🎉 <b>Withdrawal complete</b>\n\n💰 Amount: %g TON\n📍 Wallet: <code>%s</code>\n🔗 <a href=\"%s\">View transaction</a>",
		amount, wallet, ton.ViewerLink(hash)))
}

// OperationFailed carries enough context for support to reconcile a failed
// withdrawal by hand: the balance is deliberately not refunded.
func (n *Notifier) OperationFailed(userID int64, operation, errText string, txID int64, amount, fee float64, wallet string) {
	n.sendMessage(userID, fmt.Sprintf(
		"❌ <b>Operation failed</b>\n\n🔄 Operation: %s\n⚠️ Error: %s\n\nOperation ID: <code>%d</code>\nAmount: %g TON\nFee: %g TON\nWallet: <code>%s</code>\n\n📞 Contact support with this operation ID.",
		operation, errText, txID, amount, fee, wallet))
}
