// Package model содержит доменные сущности сервиса вознаграждений.
package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// User представляет участника программы вознаграждений.
// Баланс изменяется только вместе с записью в журнал транзакций.
type User struct {
	ID                string
	Balance           int64
	ReferredBy        *string
	ReferralProcessed bool
	ReferralCount     int
	CreatedAt         time.Time
	LastActivity      time.Time
}

// Transaction описывает одну запись журнала начислений и списаний.
// Журнал append-only: записи никогда не изменяются и не удаляются.
type Transaction struct {
	ID            int64
	UserID        string
	Amount        int64
	Type          string
	Description   string
	BalanceBefore int64
	BalanceAfter  int64
	CreatedAt     time.Time
}

// Типы записей журнала.
const (
	TxTypeAdReward         = "ad_reward"
	TxTypeTaskReward       = "task_reward"
	TxTypeReferralBonus    = "referral_bonus"
	TxTypeWithdrawal       = "withdrawal"
	TxTypeWithdrawalRefund = "withdrawal_refund"
)

// TaskStatus описывает статус задания.
type TaskStatus string

const (
	TaskStatusActive    TaskStatus = "active"
	TaskStatusCompleted TaskStatus = "completed"
)

// Task описывает задание, за выполнение которого начисляются баллы.
// TaskLimit == 0 означает отсутствие лимита выполнений.
type Task struct {
	ID          string
	Title       string
	Type        string
	Amount      int64
	TaskLimit   int
	Link        string
	Status      TaskStatus
	Completions int
	CreatedAt   time.Time
}

// Submission описывает заявку пользователя на ручную проверку задания.
type Submission struct {
	ID          string
	TaskID      string
	UserID      string
	Evidence    json.RawMessage
	SubmittedAt time.Time
}

// WithdrawalStatus описывает статус заявки на вывод средств.
type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "pending"
	WithdrawalStatusApproved WithdrawalStatus = "approved"
	WithdrawalStatusRejected WithdrawalStatus = "rejected"
)

// Withdrawal описывает заявку на вывод средств. Баллы списываются
// в момент создания заявки; approved и rejected — терминальные статусы.
type Withdrawal struct {
	ID              string
	UserID          string
	Amount          int64
	WkcAmount       decimal.Decimal
	Wallet          string
	Status          WithdrawalStatus
	TransactionHash *string
	CreatedAt       time.Time
	ApprovedAt      *time.Time
	RejectedAt      *time.Time
}

// Referral описывает факт приглашения одного пользователя другим.
// Пара (ReferrerID, ReferredID) встречается в системе не более одного раза.
type Referral struct {
	ReferrerID  string
	ReferredID  string
	BonusAmount int64
	CreatedAt   time.Time
}

// LeaderboardEntry содержит позицию пользователя в таблице лидеров.
type LeaderboardEntry struct {
	UserID  string `json:"userId"`
	Balance int64  `json:"balance"`
}
