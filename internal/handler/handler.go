// Package handler содержит HTTP-обработчики API сервиса вознаграждений.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vmelnikov/rewardhub-system/internal/model"
	"github.com/vmelnikov/rewardhub-system/internal/payment"
	"github.com/vmelnikov/rewardhub-system/internal/repository"
	"github.com/vmelnikov/rewardhub-system/internal/service"
	"github.com/vmelnikov/rewardhub-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CompleteTask(ctx context.Context, userID, taskID string) (int64, error)
	SubmitSocialTask(ctx context.Context, taskID, userID string, evidence json.RawMessage) (string, error)
	ApproveSubmission(ctx context.Context, taskID string, index int) (*service.ApprovalResult, error)
	RejectSubmission(ctx context.Context, taskID string, index int) error
	ProcessAdEvent(ctx context.Context, userID, eventID, eventType, rewardEventType, source string) (bool, int64, error)
	ProcessReferral(ctx context.Context, referrerID, referredID string) (int64, error)
	ProcessStartParam(ctx context.Context, userID, startParam string) (int64, bool, error)
	CreateWithdrawal(ctx context.Context, userID string, amount int64, wkcAmount decimal.Decimal, wallet string) (*model.Withdrawal, error)
	ApproveWithdrawal(ctx context.Context, requestID string) (*model.Withdrawal, error)
	RejectWithdrawal(ctx context.Context, requestID string) (*model.Withdrawal, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	GetTransactions(ctx context.Context, userID string) ([]model.Transaction, error)
	GetWithdrawalsByUser(ctx context.Context, userID string) ([]model.Withdrawal, error)
	GetPendingWithdrawals(ctx context.Context) ([]model.Withdrawal, error)
	GetReferralStats(ctx context.Context, userID string) (*service.ReferralStats, error)
	GetLeaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
	SaveTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, taskID string) (*model.Task, error)
	GetTasks(ctx context.Context) ([]model.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	IsTaskCompleted(ctx context.Context, taskID, userID string) (bool, error)
	HasPendingSubmission(ctx context.Context, taskID, userID string) (bool, error)
	GetPendingApprovals(ctx context.Context) ([]service.TaskApprovals, error)
	SetConfigValue(ctx context.Context, key, value string) error
	GetAllConfig(ctx context.Context) (map[string]string, error)
}

// Handler реализует HTTP-обработчики API сервиса вознаграждений.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	h.logger.Error(op, append(fields, zap.Error(err))...)
	h.writeError(w, http.StatusInternalServerError, "Internal server error")
}

type completeTaskRequest struct {
	TaskID   string `json:"taskId"`
	UserID   string `json:"userId"`
	Amount   int64  `json:"amount"`
	TaskType string `json:"taskType"`
}

// CompleteTask зачитывает выполнение задания пользователю и начисляет баллы.
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	var req completeTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !validation.IsValidID(req.TaskID) || !validation.IsValidID(req.UserID) {
		h.writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	points, err := h.service.CompleteTask(r.Context(), req.UserID, req.TaskID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrLockBusy):
			h.writeError(w, http.StatusTooManyRequests, "Request already being processed")
		case errors.Is(err, repository.ErrTaskNotFound):
			h.writeError(w, http.StatusNotFound, "Task not found")
		case errors.Is(err, repository.ErrAlreadyCompleted):
			h.writeError(w, http.StatusBadRequest, "You have already completed this task")
		case errors.Is(err, repository.ErrTaskLimitReached):
			h.writeError(w, http.StatusBadRequest, "This task has reached its completion limit")
		default:
			h.internalError(w, "complete task error", err, zap.String("taskID", req.TaskID), zap.String("userID", req.UserID))
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       "Task completed successfully",
		"pointsAwarded": points,
	})
}

type submitSocialRequest struct {
	TaskID   string          `json:"taskId"`
	UserID   string          `json:"userId"`
	UserData json.RawMessage `json:"userData"`
}

// SubmitSocial принимает заявку на ручную проверку задания.
func (h *Handler) SubmitSocial(w http.ResponseWriter, r *http.Request) {
	var req submitSocialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !validation.IsValidID(req.TaskID) || !validation.IsValidID(req.UserID) {
		h.writeError(w, http.StatusBadRequest, "Missing required fields: taskId and userId are required")
		return
	}

	submissionID, err := h.service.SubmitSocialTask(r.Context(), req.TaskID, req.UserID, req.UserData)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTaskNotFound):
			h.writeError(w, http.StatusNotFound, "Task not found")
		case errors.Is(err, repository.ErrDuplicateSubmission):
			h.writeError(w, http.StatusBadRequest, "You already have a pending submission for this task")
		case errors.Is(err, repository.ErrAlreadyCompleted):
			h.writeError(w, http.StatusBadRequest, "You have already completed this task")
		case errors.Is(err, repository.ErrTaskLimitReached):
			h.writeError(w, http.StatusBadRequest, "This task has reached its completion limit")
		default:
			h.internalError(w, "submit social error", err, zap.String("taskID", req.TaskID))
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      "Submission received and pending approval",
		"submissionId": submissionID,
	})
}

type approvalRequest struct {
	TaskID        string `json:"taskId"`
	ApprovalIndex int    `json:"approvalIndex"`
}

// ApproveSubmission одобряет заявку по позиции в очереди и начисляет баллы.
func (h *Handler) ApproveSubmission(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !validation.IsValidID(req.TaskID) {
		h.writeError(w, http.StatusBadRequest, "Missing taskId")
		return
	}

	res, err := h.service.ApproveSubmission(r.Context(), req.TaskID, req.ApprovalIndex)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTaskNotFound):
			h.writeError(w, http.StatusNotFound, "Task not found")
		case errors.Is(err, repository.ErrSubmissionNotFound):
			h.writeError(w, http.StatusBadRequest, "Approval not found")
		case errors.Is(err, repository.ErrAlreadyCompleted):
			h.writeError(w, http.StatusBadRequest, "User has already completed this task")
		case errors.Is(err, repository.ErrTaskLimitReached):
			h.writeError(w, http.StatusBadRequest, "This task has reached its completion limit")
		default:
			h.internalError(w, "approve submission error", err, zap.String("taskID", req.TaskID))
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       "Task approved successfully",
		"pointsAwarded": res.PointsAwarded,
	})
}

// RejectSubmission отклоняет заявку по позиции без изменения баланса.
func (h *Handler) RejectSubmission(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !validation.IsValidID(req.TaskID) {
		h.writeError(w, http.StatusBadRequest, "Missing taskId")
		return
	}

	if err := h.service.RejectSubmission(r.Context(), req.TaskID, req.ApprovalIndex); err != nil {
		switch {
		case errors.Is(err, repository.ErrSubmissionNotFound):
			h.writeError(w, http.StatusBadRequest, "Approval not found")
		default:
			h.internalError(w, "reject submission error", err, zap.String("taskID", req.TaskID))
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Task rejected successfully",
	})
}

// AdPostback обрабатывает postback рекламной сети. Ответ 200 подтверждает
// приём события и тогда, когда начисления не было: повтор и неоплачиваемые
// события не должны ретраиться сетью.
func (h *Handler) AdPostback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	userID := q.Get("telegram_id")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "Missing telegram_id parameter")
		return
	}

	eventID := q.Get("ymid")
	if eventID == "" {
		h.writeError(w, http.StatusBadRequest, "Missing ymid parameter")
		return
	}

	credited, points, err := h.service.ProcessAdEvent(r.Context(),
		userID, eventID, q.Get("event_type"), q.Get("reward_event_type"), q.Get("request_var"))
	if err != nil {
		h.internalError(w, "ad postback error", err, zap.String("userID", userID), zap.String("eventID", eventID))
		return
	}

	if !credited {
		h.writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Event acknowledged without reward",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "Reward processed successfully",
		"pointsAdded": points,
	})
}

type processReferralRequest struct {
	ReferrerID     string `json:"referrerId"`
	ReferredUserID string `json:"referredUserId"`
}

// ProcessReferral начисляет бонус пригласившему за нового пользователя.
func (h *Handler) ProcessReferral(w http.ResponseWriter, r *http.Request) {
	var req processReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !validation.IsValidID(req.ReferrerID) || !validation.IsValidID(req.ReferredUserID) {
		h.writeError(w, http.StatusBadRequest, "Missing referrerId or referredUserId")
		return
	}

	bonus, err := h.service.ProcessReferral(r.Context(), req.ReferrerID, req.ReferredUserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSelfReferral):
			h.writeError(w, http.StatusBadRequest, "Self-referral not allowed")
		case errors.Is(err, repository.ErrAlreadyReferred):
			h.writeError(w, http.StatusBadRequest, "Referral already processed")
		case errors.Is(err, repository.ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "Referrer not found")
		default:
			h.internalError(w, "process referral error", err, zap.String("referrerID", req.ReferrerID))
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "Referral processed successfully",
		"bonusAmount": bonus,
	})
}

type telegramStartRequest struct {
	UserID     string `json:"userId"`
	StartParam string `json:"startParam"`
}

// TelegramStart обрабатывает стартовый параметр бота с реферальным кодом.
func (h *Handler) TelegramStart(w http.ResponseWriter, r *http.Request) {
	var req telegramStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !validation.IsValidID(req.UserID) || req.StartParam == "" {
		h.writeError(w, http.StatusBadRequest, "Missing userId or startParam")
		return
	}

	bonus, credited, err := h.service.ProcessStartParam(r.Context(), req.UserID, req.StartParam)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "Referrer not found")
			return
		}
		h.internalError(w, "telegram start error", err, zap.String("userID", req.UserID))
		return
	}

	if !credited {
		h.writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Referral not applicable",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "Referral processed successfully",
		"bonusAmount": bonus,
	})
}

type createWithdrawalRequest struct {
	UserID    string          `json:"userId"`
	Amount    int64           `json:"amount"`
	WkcAmount decimal.Decimal `json:"wkcAmount"`
	Wallet    string          `json:"wallet"`
}

// CreateWithdrawal списывает баллы и создаёт заявку на вывод.
func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req createWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !validation.IsValidID(req.UserID) || req.Amount <= 0 {
		h.writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if !validation.IsValidWallet(req.Wallet) {
		h.writeError(w, http.StatusBadRequest, "Invalid wallet address")
		return
	}

	wd, err := h.service.CreateWithdrawal(r.Context(), req.UserID, req.Amount, req.WkcAmount, req.Wallet)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInsufficientBalance):
			h.writeError(w, http.StatusBadRequest, "Insufficient balance")
		default:
			h.internalError(w, "create withdrawal error", err, zap.String("userID", req.UserID))
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Withdrawal request created successfully",
		"requestId": wd.ID,
	})
}

type withdrawalActionRequest struct {
	RequestID string `json:"requestId"`
}

// ApproveWithdrawal выполняет выплату через шлюз и закрывает заявку.
// Неподтверждённая выплата оставляет заявку в pending без возврата баллов.
func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.RequestID == "" {
		h.writeError(w, http.StatusBadRequest, "Missing requestId")
		return
	}

	wd, err := h.service.ApproveWithdrawal(r.Context(), req.RequestID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrLockBusy):
			h.writeError(w, http.StatusTooManyRequests, "Request already being processed")
		case errors.Is(err, repository.ErrWithdrawalNotFound):
			h.writeError(w, http.StatusNotFound, "Withdrawal request not found")
		case errors.Is(err, repository.ErrWithdrawalNotPending):
			h.writeError(w, http.StatusBadRequest, "Withdrawal is not pending")
		case errors.Is(err, payment.ErrDeclined):
			h.writeError(w, http.StatusBadRequest, "Payment failed. Withdrawal remains pending for retry.")
		case errors.Is(err, payment.ErrUnknown):
			h.writeError(w, http.StatusBadGateway, "Payment outcome unknown. Withdrawal remains pending for retry.")
		default:
			h.internalError(w, "approve withdrawal error", err, zap.String("requestID", req.RequestID))
		}
		return
	}

	resp := map[string]any{
		"success": true,
		"amount":  wd.WkcAmount,
		"wallet":  wd.Wallet,
	}
	if wd.TransactionHash != nil {
		resp["txHash"] = *wd.TransactionHash
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// RejectWithdrawal отклоняет заявку решением оператора и возвращает баллы.
func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.RequestID == "" {
		h.writeError(w, http.StatusBadRequest, "Missing requestId")
		return
	}

	wd, err := h.service.RejectWithdrawal(r.Context(), req.RequestID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrLockBusy):
			h.writeError(w, http.StatusTooManyRequests, "Request already being processed")
		case errors.Is(err, repository.ErrWithdrawalNotFound):
			h.writeError(w, http.StatusNotFound, "Withdrawal request not found")
		case errors.Is(err, repository.ErrWithdrawalNotPending):
			h.writeError(w, http.StatusBadRequest, "Withdrawal is not pending")
		default:
			h.internalError(w, "reject withdrawal error", err, zap.String("requestID", req.RequestID))
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"message":        "Withdrawal rejected and points refunded",
		"refundedAmount": wd.Amount,
	})
}

type withdrawalResponse struct {
	ID              string  `json:"id"`
	UserID          string  `json:"userId"`
	Amount          int64   `json:"amount"`
	WkcAmount       string  `json:"wkcAmount"`
	Wallet          string  `json:"wallet"`
	Status          string  `json:"status"`
	TransactionHash *string `json:"transactionHash,omitempty"`
	CreatedAt       string  `json:"createdAt"`
}

func toWithdrawalResponses(ws []model.Withdrawal) []withdrawalResponse {
	res := make([]withdrawalResponse, 0, len(ws))
	for _, wd := range ws {
		res = append(res, withdrawalResponse{
			ID:              wd.ID,
			UserID:          wd.UserID,
			Amount:          wd.Amount,
			WkcAmount:       wd.WkcAmount.String(),
			Wallet:          wd.Wallet,
			Status:          string(wd.Status),
			TransactionHash: wd.TransactionHash,
			CreatedAt:       wd.CreatedAt.Format(time.RFC3339),
		})
	}
	return res
}

// PendingWithdrawals возвращает очередь заявок на вывод для оператора.
func (h *Handler) PendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	ws, err := h.service.GetPendingWithdrawals(r.Context())
	if err != nil {
		h.internalError(w, "pending withdrawals error", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"withdrawals": toWithdrawalResponses(ws),
	})
}

// WithdrawalHistory возвращает историю заявок пользователя.
func (h *Handler) WithdrawalHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if !validation.IsValidID(userID) {
		h.writeError(w, http.StatusBadRequest, "Missing userId parameter")
		return
	}

	ws, err := h.service.GetWithdrawalsByUser(r.Context(), userID)
	if err != nil {
		h.internalError(w, "withdrawal history error", err, zap.String("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"withdrawalHistory": toWithdrawalResponses(ws),
	})
}

// Balance возвращает баланс пользователя, создавая запись при первом обращении.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if !validation.IsValidID(userID) {
		h.writeError(w, http.StatusBadRequest, "Missing userId parameter")
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.internalError(w, "balance error", err, zap.String("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"balance": balance,
	})
}

type transactionResponse struct {
	Amount        int64  `json:"amount"`
	Type          string `json:"type"`
	Description   string `json:"description"`
	BalanceBefore int64  `json:"balanceBefore"`
	BalanceAfter  int64  `json:"balanceAfter"`
	Timestamp     string `json:"timestamp"`
}

// Transactions возвращает журнал начислений и списаний пользователя.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if !validation.IsValidID(userID) {
		h.writeError(w, http.StatusBadRequest, "Missing userId parameter")
		return
	}

	txs, err := h.service.GetTransactions(r.Context(), userID)
	if err != nil {
		h.internalError(w, "transactions error", err, zap.String("userID", userID))
		return
	}

	resp := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		resp = append(resp, transactionResponse{
			Amount:        t.Amount,
			Type:          t.Type,
			Description:   t.Description,
			BalanceBefore: t.BalanceBefore,
			BalanceAfter:  t.BalanceAfter,
			Timestamp:     t.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"transactions": resp,
	})
}

// ReferralStats возвращает сводку по приглашениям пользователя.
func (h *Handler) ReferralStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if !validation.IsValidID(userID) {
		h.writeError(w, http.StatusBadRequest, "Missing userId parameter")
		return
	}

	stats, err := h.service.GetReferralStats(r.Context(), userID)
	if err != nil {
		h.internalError(w, "referral stats error", err, zap.String("userID", userID))
		return
	}

	type referralEntry struct {
		ReferredUserID string `json:"referredUserId"`
		BonusAmount    int64  `json:"bonusAmount"`
		Timestamp      string `json:"timestamp"`
	}

	history := make([]referralEntry, 0, len(stats.History))
	for _, ref := range stats.History {
		history = append(history, referralEntry{
			ReferredUserID: ref.ReferredID,
			BonusAmount:    ref.BonusAmount,
			Timestamp:      ref.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"referralCount":   stats.ReferralCount,
		"referredBy":      stats.ReferredBy,
		"referralHistory": history,
	})
}

// Leaderboard возвращает таблицу лидеров по балансу.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = v
	}

	entries, err := h.service.GetLeaderboard(r.Context(), limit)
	if err != nil {
		h.internalError(w, "leaderboard error", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"leaderboard": entries,
	})
}

type saveTaskRequest struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	Amount    int64  `json:"amount"`
	TaskLimit int    `json:"taskLimit"`
	Link      string `json:"link"`
}

// SaveTask создаёт или обновляет задание.
func (h *Handler) SaveTask(w http.ResponseWriter, r *http.Request) {
	var req saveTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Amount <= 0 || req.TaskLimit < 0 {
		h.writeError(w, http.StatusBadRequest, "Invalid task parameters")
		return
	}

	t := &model.Task{
		ID:        req.ID,
		Title:     req.Title,
		Type:      req.Type,
		Amount:    req.Amount,
		TaskLimit: req.TaskLimit,
		Link:      req.Link,
	}

	if err := h.service.SaveTask(r.Context(), t); err != nil {
		h.internalError(w, "save task error", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"taskId":  t.ID,
	})
}

type taskResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	Amount      int64  `json:"amount"`
	TaskLimit   int    `json:"taskLimit"`
	Link        string `json:"link,omitempty"`
	Status      string `json:"status"`
	Completions int    `json:"completions"`
}

func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Type:        t.Type,
		Amount:      t.Amount,
		TaskLimit:   t.TaskLimit,
		Link:        t.Link,
		Status:      string(t.Status),
		Completions: t.Completions,
	}
}

// GetTasks возвращает одно задание по id или все задания.
func (h *Handler) GetTasks(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		t, err := h.service.GetTask(r.Context(), id)
		if err != nil {
			if errors.Is(err, repository.ErrTaskNotFound) {
				h.writeError(w, http.StatusNotFound, "Task not found")
				return
			}
			h.internalError(w, "get task error", err, zap.String("taskID", id))
			return
		}

		h.writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"task":    toTaskResponse(t),
		})
		return
	}

	tasks, err := h.service.GetTasks(r.Context())
	if err != nil {
		h.internalError(w, "get tasks error", err)
		return
	}

	resp := make([]taskResponse, 0, len(tasks))
	for i := range tasks {
		resp = append(resp, toTaskResponse(&tasks[i]))
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"tasks":   resp,
	})
}

type deleteTaskRequest struct {
	TaskID string `json:"taskId"`
}

// DeleteTask удаляет задание.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	var req deleteTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.DeleteTask(r.Context(), req.TaskID); err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			h.writeError(w, http.StatusNotFound, "Task not found")
			return
		}
		h.internalError(w, "delete task error", err, zap.String("taskID", req.TaskID))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// IsCompleted сообщает, зачтено ли задание пользователю.
func (h *Handler) IsCompleted(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("taskId")
	userID := r.URL.Query().Get("userId")
	if !validation.IsValidID(taskID) || !validation.IsValidID(userID) {
		h.writeError(w, http.StatusBadRequest, "Missing taskId or userId parameters")
		return
	}

	completed, err := h.service.IsTaskCompleted(r.Context(), taskID, userID)
	if err != nil {
		h.internalError(w, "is completed error", err, zap.String("taskID", taskID))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"completed": completed,
	})
}

// IsPending сообщает, ожидает ли заявка пользователя проверки.
func (h *Handler) IsPending(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("taskId")
	userID := r.URL.Query().Get("userId")
	if !validation.IsValidID(taskID) || !validation.IsValidID(userID) {
		h.writeError(w, http.StatusBadRequest, "Missing taskId or userId parameters")
		return
	}

	pending, err := h.service.HasPendingSubmission(r.Context(), taskID, userID)
	if err != nil {
		h.internalError(w, "is pending error", err, zap.String("taskID", taskID))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"pending": pending,
	})
}

// PendingApprovals возвращает задания с непустыми очередями заявок.
func (h *Handler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.GetPendingApprovals(r.Context())
	if err != nil {
		h.internalError(w, "pending approvals error", err)
		return
	}

	type submissionEntry struct {
		UserID      string          `json:"userId"`
		UserData    json.RawMessage `json:"userData"`
		SubmittedAt string          `json:"submittedAt"`
	}
	type taskApprovals struct {
		Task        taskResponse      `json:"task"`
		Submissions []submissionEntry `json:"pendingApprovals"`
	}

	resp := make([]taskApprovals, 0, len(items))
	for _, item := range items {
		subs := make([]submissionEntry, 0, len(item.Submissions))
		for _, s := range item.Submissions {
			subs = append(subs, submissionEntry{
				UserID:      s.UserID,
				UserData:    s.Evidence,
				SubmittedAt: s.SubmittedAt.Format(time.RFC3339),
			})
		}
		resp = append(resp, taskApprovals{
			Task:        toTaskResponse(&item.Task),
			Submissions: subs,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"tasks":   resp,
	})
}

type configSaveRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ConfigSave сохраняет ключ конфигурации.
func (h *Handler) ConfigSave(w http.ResponseWriter, r *http.Request) {
	var req configSaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Key == "" {
		h.writeError(w, http.StatusBadRequest, "Missing key")
		return
	}

	if err := h.service.SetConfigValue(r.Context(), req.Key, req.Value); err != nil {
		h.internalError(w, "config save error", err, zap.String("key", req.Key))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ConfigGetAll возвращает все ключи конфигурации.
func (h *Handler) ConfigGetAll(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.GetAllConfig(r.Context())
	if err != nil {
		h.internalError(w, "config get error", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"config":  cfg,
	})
}
