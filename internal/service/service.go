// Package service реализует бизнес-логику сервиса вознаграждений.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vmelnikov/rewardhub-system/internal/lock"
	"github.com/vmelnikov/rewardhub-system/internal/model"
	"github.com/vmelnikov/rewardhub-system/internal/payment"
	"github.com/vmelnikov/rewardhub-system/internal/repository"
)

// ErrLockBusy возвращается, когда такой же запрос уже обрабатывается.
var (
	ErrLockBusy = errors.New("request already being processed")
	// ErrSelfReferral возвращается при попытке пригласить самого себя.
	ErrSelfReferral = errors.New("self-referral not allowed")
	// ErrGatewayNotConfigured возвращается, если адрес шлюза выплат не задан.
	ErrGatewayNotConfigured = errors.New("payment gateway not configured")
)

// Ключи конфигурации в хранилище и значения по умолчанию.
const (
	configKeyAdReward      = "ad_reward_points"
	configKeyReferralBonus = "referral_bonus_points"

	defaultAdRewardPoints = 30
	defaultReferralBonus  = 20
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	EnsureUser(ctx context.Context, userID string) (*model.User, error)
	Credit(ctx context.Context, userID string, amount int64, txType, description string) (int64, error)
	GetTransactions(ctx context.Context, userID string) ([]model.Transaction, error)
	SaveTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, taskID string) (*model.Task, error)
	GetTasks(ctx context.Context) ([]model.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	CompleteTask(ctx context.Context, taskID, userID string) (int64, string, error)
	IsTaskCompleted(ctx context.Context, taskID, userID string) (bool, error)
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	GetSubmissions(ctx context.Context, taskID string) ([]model.Submission, error)
	HasPendingSubmission(ctx context.Context, taskID, userID string) (bool, error)
	TakeSubmission(ctx context.Context, taskID string, index int) (*model.Submission, error)
	ApproveSubmission(ctx context.Context, taskID string, index int) (*model.Submission, int64, string, error)
	GetTasksWithSubmissions(ctx context.Context) ([]model.Task, error)
	MarkEventProcessed(ctx context.Context, userID, eventID string) (bool, error)
	CreateReferral(ctx context.Context, referrerID, referredID string, bonus int64) error
	GetReferralsByReferrer(ctx context.Context, referrerID string) ([]model.Referral, error)
	CreateWithdrawal(ctx context.Context, w *model.Withdrawal) error
	GetWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error)
	ApproveWithdrawal(ctx context.Context, id, txHash string) error
	RejectWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error)
	GetPendingWithdrawals(ctx context.Context) ([]model.Withdrawal, error)
	GetWithdrawalsByUser(ctx context.Context, userID string) ([]model.Withdrawal, error)
	GetConfigValue(ctx context.Context, key string) (string, error)
	SetConfigValue(ctx context.Context, key, value string) error
	GetAllConfig(ctx context.Context) (map[string]string, error)
	GetLeaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}

// Gateway описывает контракт шлюза выплат.
type Gateway interface {
	Pay(ctx context.Context, wallet string, amount decimal.Decimal) (*payment.Result, error)
}

// Notifier описывает контракт отправки уведомлений пользователям.
type Notifier interface {
	TaskApproved(ctx context.Context, userID, taskType, title string, points int64)
	ReferralBonus(ctx context.Context, referrerID string, bonus int64)
	WithdrawalRequested(ctx context.Context, userID string, amount int64, wkcAmount decimal.Decimal)
	WithdrawalApproved(ctx context.Context, userID string, wkcAmount decimal.Decimal, txHash string)
	WithdrawalDelayed(ctx context.Context, userID string)
	WithdrawalRejected(ctx context.Context, userID string, refunded int64)
}

// Service содержит бизнес-логику сервиса вознаграждений.
type Service struct {
	repo     Repository
	locks    *lock.Manager
	gateway  Gateway
	notifier Notifier
	logger   *zap.Logger
}

// NewService создаёт новый сервис с указанным репозиторием, шлюзом выплат и нотификатором.
func NewService(repo Repository, gateway Gateway, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		locks:    lock.NewManager(),
		gateway:  gateway,
		notifier: notifier,
		logger:   logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Service) configInt(ctx context.Context, key string, def int64) int64 {
	raw, err := s.repo.GetConfigValue(ctx, key)
	if err != nil || raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// CompleteTask выполняет прямое зачтение задания пользователю. Проверка
// «ещё не выполнял» и лимита идёт в транзакции хранилища; локальная
// блокировка по паре (пользователь, задание) отсекает дубли до неё.
// Начисление баллов происходит после фиксации выполнения: выполнение без
// начисления — допустимое расхождение для сверки, начисление без
// выполнения невозможно.
func (s *Service) CompleteTask(ctx context.Context, userID, taskID string) (int64, error) {
	key := userID + "_" + taskID
	if !s.locks.TryAcquire(key) {
		return 0, ErrLockBusy
	}
	defer s.locks.Release(key)

	if _, err := s.repo.EnsureUser(ctx, userID); err != nil {
		return 0, err
	}

	amount, title, err := s.repo.CompleteTask(ctx, taskID, userID)
	if err != nil {
		return 0, err
	}

	if _, err := s.repo.Credit(ctx, userID, amount, model.TxTypeTaskReward, "Task reward: "+title); err != nil {
		// Выполнение уже зафиксировано; расхождение оставляем на ручную сверку.
		s.logger.Error("task completion recorded but credit failed",
			zap.String("userID", userID), zap.String("taskID", taskID), zap.Error(err))
	}

	return amount, nil
}

// SubmitSocialTask принимает заявку на ручную проверку задания. Баллы на
// этом шаге не начисляются.
func (s *Service) SubmitSocialTask(ctx context.Context, taskID, userID string, evidence json.RawMessage) (string, error) {
	if _, err := s.repo.EnsureUser(ctx, userID); err != nil {
		return "", err
	}

	sub := &model.Submission{
		ID:       uuid.NewString(),
		TaskID:   taskID,
		UserID:   userID,
		Evidence: evidence,
	}

	if err := s.repo.CreateSubmission(ctx, sub); err != nil {
		return "", err
	}

	return sub.ID, nil
}

// ApprovalResult описывает итог одобрения заявки.
type ApprovalResult struct {
	UserID        string
	PointsAwarded int64
}

// ApproveSubmission изымает заявку по позиции, зачитывает выполнение,
// начисляет баллы и уведомляет пользователя. Изъятие заявки и зачтение
// идут одной транзакцией хранилища: если проверки выполнения не проходят,
// заявка остаётся в очереди.
func (s *Service) ApproveSubmission(ctx context.Context, taskID string, index int) (*ApprovalResult, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	sub, amount, title, err := s.repo.ApproveSubmission(ctx, taskID, index)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.Credit(ctx, sub.UserID, amount, model.TxTypeTaskReward, "Task reward: "+title); err != nil {
		s.logger.Error("approval recorded but credit failed",
			zap.String("userID", sub.UserID), zap.String("taskID", taskID), zap.Error(err))
	}

	s.notifier.TaskApproved(ctx, sub.UserID, task.Type, title, amount)

	return &ApprovalResult{UserID: sub.UserID, PointsAwarded: amount}, nil
}

// RejectSubmission изымает заявку по позиции без изменения баланса.
func (s *Service) RejectSubmission(ctx context.Context, taskID string, index int) error {
	_, err := s.repo.TakeSubmission(ctx, taskID, index)
	return err
}

// ProcessAdEvent обрабатывает postback рекламной сети. Событие засчитывается
// только один раз: идентификатор регистрируется до начисления, чтобы повтор
// того же события не прошёл фильтр.
func (s *Service) ProcessAdEvent(ctx context.Context, userID, eventID, eventType, rewardEventType, source string) (bool, int64, error) {
	if eventType != "click" || rewardEventType != "valued" {
		return false, 0, nil
	}

	if _, err := s.repo.EnsureUser(ctx, userID); err != nil {
		return false, 0, err
	}

	first, err := s.repo.MarkEventProcessed(ctx, userID, eventID)
	if err != nil {
		return false, 0, err
	}
	if !first {
		return false, 0, nil
	}

	points := s.configInt(ctx, configKeyAdReward, defaultAdRewardPoints)

	if source == "" {
		source = "unknown_location"
	}

	if _, err := s.repo.Credit(ctx, userID, points, model.TxTypeAdReward, "Ad reward from "+source); err != nil {
		s.logger.Error("ad event marked but credit failed",
			zap.String("userID", userID), zap.String("eventID", eventID), zap.Error(err))
		return false, 0, err
	}

	return true, points, nil
}

// ProcessReferral начисляет бонус пригласившему за нового пользователя.
// Самоприглашение, повторное приглашение и повтор пары отклоняются.
func (s *Service) ProcessReferral(ctx context.Context, referrerID, referredID string) (int64, error) {
	if referrerID == referredID {
		return 0, ErrSelfReferral
	}

	bonus := s.configInt(ctx, configKeyReferralBonus, defaultReferralBonus)

	if err := s.repo.CreateReferral(ctx, referrerID, referredID, bonus); err != nil {
		return 0, err
	}

	s.notifier.ReferralBonus(ctx, referrerID, bonus)

	return bonus, nil
}

// ProcessStartParam обрабатывает стартовый параметр бота вида "ref<id>" или
// "<id>". Некорректный формат, самоприглашение и уже обработанное приглашение
// не считаются ошибками: событие подтверждается без начисления.
func (s *Service) ProcessStartParam(ctx context.Context, userID, startParam string) (int64, bool, error) {
	var referrerID string

	switch {
	case strings.HasPrefix(startParam, "ref"):
		referrerID = strings.TrimPrefix(startParam, "ref")
	case isDigits(startParam):
		referrerID = startParam
	default:
		return 0, false, nil
	}

	if referrerID == "" {
		return 0, false, nil
	}

	bonus, err := s.ProcessReferral(ctx, referrerID, userID)
	if err != nil {
		if errors.Is(err, ErrSelfReferral) || errors.Is(err, repository.ErrAlreadyReferred) {
			return 0, false, nil
		}
		return 0, false, err
	}

	return bonus, true, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CreateWithdrawal списывает баллы и создаёт заявку на вывод. Списание и
// создание заявки — одна транзакция: при недостаточном балансе заявка не
// создаётся.
func (s *Service) CreateWithdrawal(ctx context.Context, userID string, amount int64, wkcAmount decimal.Decimal, wallet string) (*model.Withdrawal, error) {
	if amount <= 0 {
		return nil, errors.New("withdrawal amount must be positive")
	}
	if wkcAmount.IsNegative() || wkcAmount.IsZero() {
		return nil, errors.New("wkc amount must be positive")
	}

	if _, err := s.repo.EnsureUser(ctx, userID); err != nil {
		return nil, err
	}

	w := &model.Withdrawal{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		WkcAmount: wkcAmount,
		Wallet:    wallet,
		Status:    model.WithdrawalStatusPending,
	}

	if err := s.repo.CreateWithdrawal(ctx, w); err != nil {
		return nil, err
	}

	s.notifier.WithdrawalRequested(ctx, userID, amount, wkcAmount)

	return w, nil
}

// ApproveWithdrawal вызывает шлюз выплат и при подтверждённом успехе
// переводит заявку в approved. Любой другой исход — явный отказ, сетевая
// ошибка, таймаут — оставляет заявку в pending без возврата баллов:
// выплата могла пройти на стороне шлюза, разбор оставляется оператору.
// Операции над одной заявкой сериализуются блокировкой по её идентификатору:
// вызов шлюза не идемпотентен, и два параллельных одобрения одной заявки
// обошли бы статусную проверку, выплатив дважды.
func (s *Service) ApproveWithdrawal(ctx context.Context, requestID string) (*model.Withdrawal, error) {
	if !s.locks.TryAcquire(requestID) {
		return nil, ErrLockBusy
	}
	defer s.locks.Release(requestID)

	w, err := s.repo.GetWithdrawal(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if w.Status != model.WithdrawalStatusPending {
		return nil, repository.ErrWithdrawalNotPending
	}

	if s.gateway == nil {
		return nil, ErrGatewayNotConfigured
	}

	res, err := s.gateway.Pay(ctx, w.Wallet, w.WkcAmount)
	if err != nil {
		s.logger.Warn("payment failed, withdrawal kept pending",
			zap.String("requestID", requestID), zap.Error(err))
		s.notifier.WithdrawalDelayed(ctx, w.UserID)
		return nil, err
	}

	if err := s.repo.ApproveWithdrawal(ctx, requestID, res.TxHash); err != nil {
		// Выплата прошла, но статус не записан: заявка осталась pending,
		// оператор увидит её повторно. Фиксируем для сверки.
		s.logger.Error("payment succeeded but status update failed",
			zap.String("requestID", requestID), zap.String("txHash", res.TxHash), zap.Error(err))
		return nil, err
	}

	s.notifier.WithdrawalApproved(ctx, w.UserID, w.WkcAmount, res.TxHash)

	w.Status = model.WithdrawalStatusApproved
	w.TransactionHash = &res.TxHash
	return w, nil
}

// RejectWithdrawal отклоняет заявку решением оператора и возвращает баллы.
// Допустим только из статуса pending; блокировка по идентификатору заявки
// закрывает гонку с параллельным одобрением.
func (s *Service) RejectWithdrawal(ctx context.Context, requestID string) (*model.Withdrawal, error) {
	if !s.locks.TryAcquire(requestID) {
		return nil, ErrLockBusy
	}
	defer s.locks.Release(requestID)

	w, err := s.repo.RejectWithdrawal(ctx, requestID)
	if err != nil {
		return nil, err
	}

	s.notifier.WithdrawalRejected(ctx, w.UserID, w.Amount)

	return w, nil
}

// GetBalance возвращает баланс пользователя, создавая запись при первом обращении.
func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	u, err := s.repo.EnsureUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.Balance, nil
}

// GetTransactions возвращает журнал пользователя.
func (s *Service) GetTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	return s.repo.GetTransactions(ctx, userID)
}

// GetWithdrawalsByUser возвращает историю заявок пользователя на вывод.
func (s *Service) GetWithdrawalsByUser(ctx context.Context, userID string) ([]model.Withdrawal, error) {
	return s.repo.GetWithdrawalsByUser(ctx, userID)
}

// GetPendingWithdrawals возвращает очередь заявок на вывод.
func (s *Service) GetPendingWithdrawals(ctx context.Context) ([]model.Withdrawal, error) {
	return s.repo.GetPendingWithdrawals(ctx)
}

// ReferralStats содержит сводку по приглашениям пользователя.
type ReferralStats struct {
	ReferralCount int
	ReferredBy    *string
	History       []model.Referral
}

// GetReferralStats возвращает сводку по приглашениям пользователя.
func (s *Service) GetReferralStats(ctx context.Context, userID string) (*ReferralStats, error) {
	u, err := s.repo.EnsureUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.GetReferralsByReferrer(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &ReferralStats{
		ReferralCount: u.ReferralCount,
		ReferredBy:    u.ReferredBy,
		History:       history,
	}, nil
}

// GetLeaderboard возвращает таблицу лидеров по балансу.
func (s *Service) GetLeaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.GetLeaderboard(ctx, limit)
}

// SaveTask создаёт или обновляет задание.
func (s *Service) SaveTask(ctx context.Context, t *model.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Amount <= 0 {
		return fmt.Errorf("task amount must be positive")
	}
	return s.repo.SaveTask(ctx, t)
}

// GetTask возвращает задание по идентификатору.
func (s *Service) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	return s.repo.GetTask(ctx, taskID)
}

// GetTasks возвращает все задания.
func (s *Service) GetTasks(ctx context.Context) ([]model.Task, error) {
	return s.repo.GetTasks(ctx)
}

// DeleteTask удаляет задание.
func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	return s.repo.DeleteTask(ctx, taskID)
}

// IsTaskCompleted сообщает, зачтено ли задание пользователю.
func (s *Service) IsTaskCompleted(ctx context.Context, taskID, userID string) (bool, error) {
	return s.repo.IsTaskCompleted(ctx, taskID, userID)
}

// HasPendingSubmission сообщает, ожидает ли заявка пользователя проверки.
func (s *Service) HasPendingSubmission(ctx context.Context, taskID, userID string) (bool, error) {
	return s.repo.HasPendingSubmission(ctx, taskID, userID)
}

// TaskApprovals объединяет задание и его очередь заявок.
type TaskApprovals struct {
	Task        model.Task
	Submissions []model.Submission
}

// GetPendingApprovals возвращает задания с непустыми очередями заявок.
func (s *Service) GetPendingApprovals(ctx context.Context) ([]TaskApprovals, error) {
	tasks, err := s.repo.GetTasksWithSubmissions(ctx)
	if err != nil {
		return nil, err
	}

	res := make([]TaskApprovals, 0, len(tasks))
	for _, t := range tasks {
		subs, err := s.repo.GetSubmissions(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		res = append(res, TaskApprovals{Task: t, Submissions: subs})
	}

	return res, nil
}

// SetConfigValue сохраняет ключ конфигурации.
func (s *Service) SetConfigValue(ctx context.Context, key, value string) error {
	return s.repo.SetConfigValue(ctx, key, value)
}

// GetAllConfig возвращает все ключи конфигурации.
func (s *Service) GetAllConfig(ctx context.Context) (map[string]string, error) {
	return s.repo.GetAllConfig(ctx)
}
