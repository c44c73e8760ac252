package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	custommiddleware "github.com/vmelnikov/rewardhub-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса вознаграждений.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api", h.AdPostback)

	r.Route("/api/tasks", func(r chi.Router) {
		r.Post("/complete", h.CompleteTask)
		r.Post("/submit-social", h.SubmitSocial)
		r.Post("/approve", h.ApproveSubmission)
		r.Post("/reject", h.RejectSubmission)
		r.Post("/save", h.SaveTask)
		r.Post("/delete", h.DeleteTask)
		r.Get("/get", h.GetTasks)
		r.Get("/is-completed", h.IsCompleted)
		r.Get("/is-pending", h.IsPending)
		r.Get("/pending-approvals", h.PendingApprovals)
	})

	r.Route("/api/withdrawals", func(r chi.Router) {
		r.Post("/create", h.CreateWithdrawal)
		r.Post("/approve", h.ApproveWithdrawal)
		r.Post("/reject", h.RejectWithdrawal)
		r.Get("/pending", h.PendingWithdrawals)
	})

	r.Route("/api/user", func(r chi.Router) {
		r.Get("/balance", h.Balance)
		r.Get("/transactions", h.Transactions)
		r.Get("/withdrawal-history", h.WithdrawalHistory)
		r.Get("/referral-stats", h.ReferralStats)
		r.Post("/referral", h.ProcessReferral)
	})

	r.Post("/api/telegram/start", h.TelegramStart)
	r.Get("/api/leaderboard", h.Leaderboard)

	r.Route("/api/config", func(r chi.Router) {
		r.Post("/save", h.ConfigSave)
		r.Get("/get-all", h.ConfigGetAll)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
