package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vmelnikov/rewardhub-system/internal/model"
	"github.com/vmelnikov/rewardhub-system/internal/payment"
	"github.com/vmelnikov/rewardhub-system/internal/repository"
)

type creditCall struct {
	userID string
	amount int64
	txType string
}

type stubRepo struct {
	user      *model.User
	ensureErr error

	completeAmount int64
	completeTitle  string
	completeErr    error
	completeCalls  int

	creditErr   error
	creditCalls []creditCall

	markFirst bool
	markErr   error
	markCalls int

	createReferralErr   error
	createReferralCalls int

	task    *model.Task
	taskErr error

	submission    *model.Submission
	submissionErr error
	takeCalls     int
	approveSubErr error

	withdrawal    *model.Withdrawal
	withdrawalErr error

	approveCalls  int
	approveErr    error
	rejectResult  *model.Withdrawal
	rejectErr     error
	configValues  map[string]string
	leaderLimit   int
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) EnsureUser(ctx context.Context, userID string) (*model.User, error) {
	if s.ensureErr != nil {
		return nil, s.ensureErr
	}
	if s.user != nil {
		return s.user, nil
	}
	return &model.User{ID: userID}, nil
}

func (s *stubRepo) Credit(ctx context.Context, userID string, amount int64, txType, description string) (int64, error) {
	if s.creditErr != nil {
		return 0, s.creditErr
	}
	s.creditCalls = append(s.creditCalls, creditCall{userID: userID, amount: amount, txType: txType})
	return amount, nil
}

func (s *stubRepo) GetTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	return nil, nil
}

func (s *stubRepo) SaveTask(ctx context.Context, t *model.Task) error { return nil }

func (s *stubRepo) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	return s.task, s.taskErr
}

func (s *stubRepo) GetTasks(ctx context.Context) ([]model.Task, error) { return nil, nil }

func (s *stubRepo) DeleteTask(ctx context.Context, taskID string) error { return nil }

func (s *stubRepo) CompleteTask(ctx context.Context, taskID, userID string) (int64, string, error) {
	s.completeCalls++
	if s.completeErr != nil {
		return 0, "", s.completeErr
	}
	return s.completeAmount, s.completeTitle, nil
}

func (s *stubRepo) IsTaskCompleted(ctx context.Context, taskID, userID string) (bool, error) {
	return false, nil
}

func (s *stubRepo) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	return s.submissionErr
}

func (s *stubRepo) GetSubmissions(ctx context.Context, taskID string) ([]model.Submission, error) {
	return nil, nil
}

func (s *stubRepo) HasPendingSubmission(ctx context.Context, taskID, userID string) (bool, error) {
	return false, nil
}

func (s *stubRepo) TakeSubmission(ctx context.Context, taskID string, index int) (*model.Submission, error) {
	s.takeCalls++
	return s.submission, s.submissionErr
}

func (s *stubRepo) ApproveSubmission(ctx context.Context, taskID string, index int) (*model.Submission, int64, string, error) {
	if s.approveSubErr != nil {
		return nil, 0, "", s.approveSubErr
	}
	return s.submission, s.completeAmount, s.completeTitle, nil
}

func (s *stubRepo) GetTasksWithSubmissions(ctx context.Context) ([]model.Task, error) {
	return nil, nil
}

func (s *stubRepo) MarkEventProcessed(ctx context.Context, userID, eventID string) (bool, error) {
	s.markCalls++
	return s.markFirst, s.markErr
}

func (s *stubRepo) CreateReferral(ctx context.Context, referrerID, referredID string, bonus int64) error {
	s.createReferralCalls++
	return s.createReferralErr
}

func (s *stubRepo) GetReferralsByReferrer(ctx context.Context, referrerID string) ([]model.Referral, error) {
	return nil, nil
}

func (s *stubRepo) CreateWithdrawal(ctx context.Context, w *model.Withdrawal) error {
	return s.withdrawalErr
}

func (s *stubRepo) GetWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error) {
	if s.withdrawal == nil {
		return nil, repository.ErrWithdrawalNotFound
	}
	return s.withdrawal, nil
}

func (s *stubRepo) ApproveWithdrawal(ctx context.Context, id, txHash string) error {
	s.approveCalls++
	return s.approveErr
}

func (s *stubRepo) RejectWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error) {
	return s.rejectResult, s.rejectErr
}

func (s *stubRepo) GetPendingWithdrawals(ctx context.Context) ([]model.Withdrawal, error) {
	return nil, nil
}

func (s *stubRepo) GetWithdrawalsByUser(ctx context.Context, userID string) ([]model.Withdrawal, error) {
	return nil, nil
}

func (s *stubRepo) GetConfigValue(ctx context.Context, key string) (string, error) {
	return s.configValues[key], nil
}

func (s *stubRepo) SetConfigValue(ctx context.Context, key, value string) error { return nil }

func (s *stubRepo) GetAllConfig(ctx context.Context) (map[string]string, error) {
	return s.configValues, nil
}

func (s *stubRepo) GetLeaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	s.leaderLimit = limit
	return nil, nil
}

type stubGateway struct {
	result *payment.Result
	err    error
	calls  int
}

func (g *stubGateway) Pay(ctx context.Context, wallet string, amount decimal.Decimal) (*payment.Result, error) {
	g.calls++
	return g.result, g.err
}

type stubNotifier struct {
	approved  int
	referral  int
	requested int
	paid      int
	delayed   int
	rejected  int
}

func (n *stubNotifier) TaskApproved(ctx context.Context, userID, taskType, title string, points int64) {
	n.approved++
}

func (n *stubNotifier) ReferralBonus(ctx context.Context, referrerID string, bonus int64) {
	n.referral++
}

func (n *stubNotifier) WithdrawalRequested(ctx context.Context, userID string, amount int64, wkcAmount decimal.Decimal) {
	n.requested++
}

func (n *stubNotifier) WithdrawalApproved(ctx context.Context, userID string, wkcAmount decimal.Decimal, txHash string) {
	n.paid++
}

func (n *stubNotifier) WithdrawalDelayed(ctx context.Context, userID string) {
	n.delayed++
}

func (n *stubNotifier) WithdrawalRejected(ctx context.Context, userID string, refunded int64) {
	n.rejected++
}

func newTestService(repo *stubRepo, gw Gateway) (*Service, *stubNotifier) {
	n := &stubNotifier{}
	return NewService(repo, gw, n, nil), n
}

func TestCompleteTask(t *testing.T) {
	repo := &stubRepo{completeAmount: 50, completeTitle: "Join channel"}
	svc, _ := newTestService(repo, nil)

	points, err := svc.CompleteTask(context.Background(), "100", "task1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if points != 50 {
		t.Fatalf("points: got %d want 50", points)
	}
	if len(repo.creditCalls) != 1 {
		t.Fatalf("credit calls: got %d want 1", len(repo.creditCalls))
	}
	if c := repo.creditCalls[0]; c.userID != "100" || c.amount != 50 || c.txType != model.TxTypeTaskReward {
		t.Fatalf("unexpected credit call: %+v", c)
	}
}

func TestCompleteTaskLockBusy(t *testing.T) {
	repo := &stubRepo{completeAmount: 10}
	svc, _ := newTestService(repo, nil)

	if !svc.locks.TryAcquire("100_task1") {
		t.Fatalf("failed to pre-acquire lock")
	}
	defer svc.locks.Release("100_task1")

	_, err := svc.CompleteTask(context.Background(), "100", "task1")
	if !errors.Is(err, ErrLockBusy) {
		t.Fatalf("expected ErrLockBusy, got %v", err)
	}
	if repo.completeCalls != 0 {
		t.Fatalf("storage must not be touched while lock is held")
	}
}

func TestCompleteTaskAlreadyCompleted(t *testing.T) {
	repo := &stubRepo{completeErr: repository.ErrAlreadyCompleted}
	svc, _ := newTestService(repo, nil)

	_, err := svc.CompleteTask(context.Background(), "100", "task1")
	if !errors.Is(err, repository.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if len(repo.creditCalls) != 0 {
		t.Fatalf("no credit expected on rejected completion")
	}
}

func TestCompleteTaskCreditFailureTolerated(t *testing.T) {
	repo := &stubRepo{completeAmount: 25, creditErr: errors.New("db down")}
	svc, _ := newTestService(repo, nil)

	points, err := svc.CompleteTask(context.Background(), "100", "task1")
	if err != nil {
		t.Fatalf("completion must succeed even if credit fails, got %v", err)
	}
	if points != 25 {
		t.Fatalf("points: got %d want 25", points)
	}
}

func TestApproveSubmission(t *testing.T) {
	repo := &stubRepo{
		task:           &model.Task{ID: "task1", Type: "telegram", Title: "Join"},
		submission:     &model.Submission{ID: "s1", TaskID: "task1", UserID: "200", Evidence: json.RawMessage(`{}`)},
		completeAmount: 40,
		completeTitle:  "Join",
	}
	svc, notifier := newTestService(repo, nil)

	res, err := svc.ApproveSubmission(context.Background(), "task1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UserID != "200" || res.PointsAwarded != 40 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if notifier.approved != 1 {
		t.Fatalf("expected approval notification")
	}
}

func TestApproveSubmissionIneligibleKeepsQueue(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
	}{
		{"limit reached", repository.ErrTaskLimitReached},
		{"already completed", repository.ErrAlreadyCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{
				task:          &model.Task{ID: "task1", Type: "telegram", Title: "Join"},
				approveSubErr: tt.storeErr,
			}
			svc, notifier := newTestService(repo, nil)

			_, err := svc.ApproveSubmission(context.Background(), "task1", 0)
			if !errors.Is(err, tt.storeErr) {
				t.Fatalf("expected %v, got %v", tt.storeErr, err)
			}
			if repo.takeCalls != 0 {
				t.Fatalf("submission must not be taken separately from the completion checks")
			}
			if len(repo.creditCalls) != 0 {
				t.Fatalf("no credit expected for rejected approval")
			}
			if notifier.approved != 0 {
				t.Fatalf("no notification expected for rejected approval")
			}
		})
	}
}

func TestProcessAdEventIgnoresNonClick(t *testing.T) {
	repo := &stubRepo{markFirst: true}
	svc, _ := newTestService(repo, nil)

	tests := []struct {
		name            string
		eventType       string
		rewardEventType string
	}{
		{"impression event", "impression", "valued"},
		{"not valued", "click", "not_valued"},
		{"empty types", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			credited, points, err := svc.ProcessAdEvent(context.Background(), "100", "ev1", tt.eventType, tt.rewardEventType, "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if credited || points != 0 {
				t.Fatalf("event must be ignored, got credited=%v points=%d", credited, points)
			}
		})
	}

	if repo.markCalls != 0 {
		t.Fatalf("ignored events must not be registered")
	}
}

func TestProcessAdEventDuplicate(t *testing.T) {
	repo := &stubRepo{markFirst: false}
	svc, _ := newTestService(repo, nil)

	credited, points, err := svc.ProcessAdEvent(context.Background(), "100", "ev1", "click", "valued", "tg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if credited || points != 0 {
		t.Fatalf("duplicate must not be credited")
	}
	if len(repo.creditCalls) != 0 {
		t.Fatalf("no credit expected for duplicate event")
	}
}

func TestProcessAdEventCredits(t *testing.T) {
	repo := &stubRepo{markFirst: true}
	svc, _ := newTestService(repo, nil)

	credited, points, err := svc.ProcessAdEvent(context.Background(), "100", "ev1", "click", "valued", "tg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !credited || points != defaultAdRewardPoints {
		t.Fatalf("got credited=%v points=%d, want default reward", credited, points)
	}
}

func TestProcessAdEventConfiguredReward(t *testing.T) {
	repo := &stubRepo{
		markFirst:    true,
		configValues: map[string]string{configKeyAdReward: "45"},
	}
	svc, _ := newTestService(repo, nil)

	_, points, err := svc.ProcessAdEvent(context.Background(), "100", "ev1", "click", "valued", "tg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if points != 45 {
		t.Fatalf("points: got %d want 45", points)
	}
}

func TestProcessReferralSelf(t *testing.T) {
	repo := &stubRepo{}
	svc, notifier := newTestService(repo, nil)

	_, err := svc.ProcessReferral(context.Background(), "100", "100")
	if !errors.Is(err, ErrSelfReferral) {
		t.Fatalf("expected ErrSelfReferral, got %v", err)
	}
	if repo.createReferralCalls != 0 || notifier.referral != 0 {
		t.Fatalf("self-referral must not reach storage")
	}
}

func TestProcessReferralAlreadyReferred(t *testing.T) {
	repo := &stubRepo{createReferralErr: repository.ErrAlreadyReferred}
	svc, notifier := newTestService(repo, nil)

	_, err := svc.ProcessReferral(context.Background(), "100", "200")
	if !errors.Is(err, repository.ErrAlreadyReferred) {
		t.Fatalf("expected ErrAlreadyReferred, got %v", err)
	}
	if notifier.referral != 0 {
		t.Fatalf("no notification expected on duplicate referral")
	}
}

func TestProcessReferral(t *testing.T) {
	repo := &stubRepo{}
	svc, notifier := newTestService(repo, nil)

	bonus, err := svc.ProcessReferral(context.Background(), "100", "200")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bonus != defaultReferralBonus {
		t.Fatalf("bonus: got %d want %d", bonus, defaultReferralBonus)
	}
	if notifier.referral != 1 {
		t.Fatalf("expected referral notification")
	}
}

func TestProcessStartParam(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		startParam string
		credited   bool
	}{
		{"ref prefix", "200", "ref100", true},
		{"bare digits", "200", "100", true},
		{"self referral", "100", "ref100", false},
		{"garbage", "200", "promo", false},
		{"empty referrer", "200", "ref", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{}
			svc, _ := newTestService(repo, nil)

			bonus, credited, err := svc.ProcessStartParam(context.Background(), tt.userID, tt.startParam)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if credited != tt.credited {
				t.Fatalf("credited: got %v want %v", credited, tt.credited)
			}
			if credited && bonus != defaultReferralBonus {
				t.Fatalf("bonus: got %d want %d", bonus, defaultReferralBonus)
			}
		})
	}
}

func TestCreateWithdrawalValidation(t *testing.T) {
	repo := &stubRepo{}
	svc, _ := newTestService(repo, nil)

	if _, err := svc.CreateWithdrawal(context.Background(), "100", 0, decimal.NewFromInt(1), "0x0000000000000000000000000000000000000001"); err == nil {
		t.Fatalf("expected error for zero amount")
	}
	if _, err := svc.CreateWithdrawal(context.Background(), "100", 100, decimal.Zero, "0x0000000000000000000000000000000000000001"); err == nil {
		t.Fatalf("expected error for zero wkc amount")
	}
}

func TestCreateWithdrawal(t *testing.T) {
	repo := &stubRepo{}
	svc, notifier := newTestService(repo, nil)

	w, err := svc.CreateWithdrawal(context.Background(), "100", 500, decimal.NewFromFloat(2.5), "0x0000000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.ID == "" || w.Status != model.WithdrawalStatusPending {
		t.Fatalf("unexpected withdrawal: %+v", w)
	}
	if notifier.requested != 1 {
		t.Fatalf("expected request notification")
	}
}

func TestApproveWithdrawalNotPending(t *testing.T) {
	repo := &stubRepo{
		withdrawal: &model.Withdrawal{ID: "w1", Status: model.WithdrawalStatusApproved},
	}
	svc, _ := newTestService(repo, &stubGateway{})

	_, err := svc.ApproveWithdrawal(context.Background(), "w1")
	if !errors.Is(err, repository.ErrWithdrawalNotPending) {
		t.Fatalf("expected ErrWithdrawalNotPending, got %v", err)
	}
}

func TestApproveWithdrawalPaymentFailureKeepsPending(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"declined", payment.ErrDeclined},
		{"unknown outcome", payment.ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{
				withdrawal: &model.Withdrawal{ID: "w1", UserID: "100", Status: model.WithdrawalStatusPending},
			}
			gw := &stubGateway{err: tt.err}
			svc, notifier := newTestService(repo, gw)

			_, err := svc.ApproveWithdrawal(context.Background(), "w1")
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			if repo.approveCalls != 0 {
				t.Fatalf("status must stay pending on payment failure")
			}
			if len(repo.creditCalls) != 0 {
				t.Fatalf("no refund expected on payment failure")
			}
			if notifier.delayed != 1 {
				t.Fatalf("expected delay notification")
			}
		})
	}
}

func TestApproveWithdrawal(t *testing.T) {
	repo := &stubRepo{
		withdrawal: &model.Withdrawal{
			ID:        "w1",
			UserID:    "100",
			Amount:    500,
			WkcAmount: decimal.NewFromFloat(2.5),
			Status:    model.WithdrawalStatusPending,
		},
	}
	gw := &stubGateway{result: &payment.Result{TxHash: "0xabc"}}
	svc, notifier := newTestService(repo, gw)

	w, err := svc.ApproveWithdrawal(context.Background(), "w1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Status != model.WithdrawalStatusApproved {
		t.Fatalf("status: got %s want approved", w.Status)
	}
	if w.TransactionHash == nil || *w.TransactionHash != "0xabc" {
		t.Fatalf("transaction hash not recorded")
	}
	if repo.approveCalls != 1 || gw.calls != 1 {
		t.Fatalf("expected one payment and one status update")
	}
	if notifier.paid != 1 {
		t.Fatalf("expected approval notification")
	}
}

type blockingGateway struct {
	entered chan struct{}
	release chan struct{}
	calls   int
}

func (g *blockingGateway) Pay(ctx context.Context, wallet string, amount decimal.Decimal) (*payment.Result, error) {
	g.calls++
	g.entered <- struct{}{}
	<-g.release
	return &payment.Result{TxHash: "0xabc"}, nil
}

func TestApproveWithdrawalConcurrentSinglePayment(t *testing.T) {
	repo := &stubRepo{
		withdrawal: &model.Withdrawal{
			ID:        "w1",
			UserID:    "100",
			WkcAmount: decimal.NewFromFloat(2.5),
			Status:    model.WithdrawalStatusPending,
		},
	}
	gw := &blockingGateway{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	svc, _ := newTestService(repo, gw)

	done := make(chan error, 1)
	go func() {
		_, err := svc.ApproveWithdrawal(context.Background(), "w1")
		done <- err
	}()

	<-gw.entered

	// Повторное одобрение той же заявки, пока первая выплата в полёте.
	_, err := svc.ApproveWithdrawal(context.Background(), "w1")
	if !errors.Is(err, ErrLockBusy) {
		t.Fatalf("expected ErrLockBusy, got %v", err)
	}

	close(gw.release)
	if err := <-done; err != nil {
		t.Fatalf("first approval failed: %v", err)
	}

	if gw.calls != 1 {
		t.Fatalf("payments: got %d want 1", gw.calls)
	}
	if repo.approveCalls != 1 {
		t.Fatalf("status updates: got %d want 1", repo.approveCalls)
	}
}

func TestRejectWithdrawalLockBusy(t *testing.T) {
	repo := &stubRepo{
		rejectResult: &model.Withdrawal{ID: "w1", UserID: "100", Amount: 500, Status: model.WithdrawalStatusRejected},
	}
	svc, _ := newTestService(repo, nil)

	if !svc.locks.TryAcquire("w1") {
		t.Fatalf("failed to pre-acquire lock")
	}
	defer svc.locks.Release("w1")

	_, err := svc.RejectWithdrawal(context.Background(), "w1")
	if !errors.Is(err, ErrLockBusy) {
		t.Fatalf("expected ErrLockBusy, got %v", err)
	}
}

func TestApproveWithdrawalNoGateway(t *testing.T) {
	repo := &stubRepo{
		withdrawal: &model.Withdrawal{ID: "w1", Status: model.WithdrawalStatusPending},
	}
	svc, _ := newTestService(repo, nil)

	_, err := svc.ApproveWithdrawal(context.Background(), "w1")
	if !errors.Is(err, ErrGatewayNotConfigured) {
		t.Fatalf("expected ErrGatewayNotConfigured, got %v", err)
	}
}

func TestRejectWithdrawal(t *testing.T) {
	repo := &stubRepo{
		rejectResult: &model.Withdrawal{ID: "w1", UserID: "100", Amount: 500, Status: model.WithdrawalStatusRejected},
	}
	svc, notifier := newTestService(repo, nil)

	w, err := svc.RejectWithdrawal(context.Background(), "w1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Amount != 500 {
		t.Fatalf("refunded amount: got %d want 500", w.Amount)
	}
	if notifier.rejected != 1 {
		t.Fatalf("expected rejection notification")
	}
}

func TestRejectWithdrawalNotPending(t *testing.T) {
	repo := &stubRepo{rejectErr: repository.ErrWithdrawalNotPending}
	svc, notifier := newTestService(repo, nil)

	_, err := svc.RejectWithdrawal(context.Background(), "w1")
	if !errors.Is(err, repository.ErrWithdrawalNotPending) {
		t.Fatalf("expected ErrWithdrawalNotPending, got %v", err)
	}
	if notifier.rejected != 0 {
		t.Fatalf("no notification expected on failed rejection")
	}
}

func TestGetLeaderboardLimitClamped(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero", 0, 50},
		{"negative", -5, 50},
		{"too large", 500, 50},
		{"in range", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{}
			svc, _ := newTestService(repo, nil)

			if _, err := svc.GetLeaderboard(context.Background(), tt.limit); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if repo.leaderLimit != tt.want {
				t.Fatalf("limit: got %d want %d", repo.leaderLimit, tt.want)
			}
		})
	}
}

func TestSaveTaskValidation(t *testing.T) {
	repo := &stubRepo{}
	svc, _ := newTestService(repo, nil)

	if err := svc.SaveTask(context.Background(), &model.Task{Title: "t", Amount: 0}); err == nil {
		t.Fatalf("expected error for non-positive amount")
	}

	task := &model.Task{Title: "t", Amount: 10}
	if err := svc.SaveTask(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.ID == "" {
		t.Fatalf("expected generated task id")
	}
}
