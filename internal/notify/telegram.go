// Package notify отправляет пользователям уведомления в Telegram.
//
// Все отправки выполняются по принципу fire-and-forget: ошибка доставки
// логируется и не влияет на результат операции, породившей уведомление.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Notifier отправляет личные сообщения пользователям через Telegram-бота.
// Нулевой токен даёт неактивный Notifier, все методы которого — no-op.
type Notifier struct {
	bot    *bot.Bot
	logger *zap.Logger
}

// New создаёт Notifier. При пустом токене возвращается неактивный экземпляр.
func New(token string, logger *zap.Logger) (*Notifier, error) {
	if token == "" {
		return &Notifier{logger: logger}, nil
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil

	b, err := bot.New(token,
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(time.Minute, rc.StandardClient()),
	)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Notifier{bot: b, logger: logger}, nil
}

func (n *Notifier) send(ctx context.Context, userID, text string) {
	if n == nil || n.bot == nil {
		return
	}

	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		// Идентификаторы не из Telegram уведомить некуда.
		return
	}

	_, err = n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdown,
	})
	if err != nil && n.logger != nil {
		n.logger.Warn("notification send failed", zap.String("userID", userID), zap.Error(err))
	}
}

// TaskApproved уведомляет пользователя об одобрении заявки на задание.
func (n *Notifier) TaskApproved(ctx context.Context, userID, taskType, title string, points int64) {
	n.send(ctx, userID, fmt.Sprintf(
		"✅ Your %s task \"%s\" has been approved! You earned %d points.",
		taskType, title, points,
	))
}

// ReferralBonus уведомляет пригласившего о начислении бонуса.
func (n *Notifier) ReferralBonus(ctx context.Context, referrerID string, bonus int64) {
	n.send(ctx, referrerID, fmt.Sprintf(
		"🎉 *Referral Bonus!*\n\n👤 Your friend joined using your referral link!\n💰 *Bonus Earned:* %d points\n\nKeep inviting to earn more! 🚀",
		bonus,
	))
}

// WithdrawalRequested подтверждает пользователю приём заявки на вывод.
func (n *Notifier) WithdrawalRequested(ctx context.Context, userID string, amount int64, wkcAmount decimal.Decimal) {
	n.send(ctx, userID, fmt.Sprintf(
		"📤 *Withdrawal Request Received*\n\n💰 Points: %d\n🪙 Amount: %s WKC\n\nYour request is pending review.",
		amount, wkcAmount.String(),
	))
}

// WithdrawalApproved сообщает пользователю об успешной выплате.
func (n *Notifier) WithdrawalApproved(ctx context.Context, userID string, wkcAmount decimal.Decimal, txHash string) {
	n.send(ctx, userID, fmt.Sprintf(
		"✅ *Withdrawal Approved!*\n\n🪙 Amount: %s WKC\n🔗 Transaction: `%s`",
		wkcAmount.String(), txHash,
	))
}

// WithdrawalDelayed сообщает пользователю о задержке обработки выплаты.
func (n *Notifier) WithdrawalDelayed(ctx context.Context, userID string) {
	n.send(ctx, userID, "⏳ Payment processing delayed. Admin will retry shortly.")
}

// WithdrawalRejected сообщает пользователю об отклонении заявки и возврате баллов.
func (n *Notifier) WithdrawalRejected(ctx context.Context, userID string, refunded int64) {
	n.send(ctx, userID, fmt.Sprintf(
		"❌ *Withdrawal Rejected*\n\n💰 %d points have been refunded to your balance.",
		refunded,
	))
}
