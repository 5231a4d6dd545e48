package reporter

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/0x0BSoD/dailyDigest/internal/model"
)

// Reporter sends short operational messages about batch runs to a Telegram
// admin chat. It is nil-safe: if adminID is 0 or the receiver is nil, every
// method is a no-op, so deployments without a bot token lose nothing.
type Reporter struct {
	bot     *tgbotapi.BotAPI
	adminID int64
}

func New(bot *tgbotapi.BotAPI, adminID int64) *Reporter {
	return &Reporter{bot: bot, adminID: adminID}
}

func (r *Reporter) Notify(msg string) {
	if r == nil || r.adminID == 0 {
		return
	}
	if _, err := r.bot.Send(tgbotapi.NewMessage(r.adminID, msg)); err != nil {
		slog.Error("failed to send operator notification", "err", err)
	}
}

// RunReport notifies the operator about a finished batch. Clean runs with
// zero failures stay quiet.
func (r *Reporter) RunReport(summary model.RunSummary) {
	if summary.Failed == 0 {
		return
	}
	r.Notify(fmt.Sprintf(
		"daily digest run at %s: %d sent, %d failed, %d articles (fallback=%t)",
		summary.StartedAt.Format("2006-01-02 15:04"),
		summary.Succeeded,
		summary.Failed,
		summary.ArticleCount,
		summary.Fallback,
	))
}
