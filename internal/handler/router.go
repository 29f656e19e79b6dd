package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/association-finance/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/loans", func(r chi.Router) {
			r.Post("/", h.CreateLoan)
			r.Get("/", h.SearchLoans)
			r.Get("/active", h.ListActiveLoans)
			r.Get("/overdue", h.ListOverdueLoans)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetLoan)
				r.Put("/", h.UpdateLoan)
				r.Delete("/", h.DeleteLoan)
				r.Get("/due", h.GetAmountDue)
				r.Post("/repay", h.RepayLoan)
				r.Get("/repayments", h.ListRepayments)
				r.Post("/deposit/refund", h.RefundDeposit)
			})
		})

		r.Route("/members/{id}", func(r chi.Router) {
			r.Get("/loans", h.ListMemberLoans)
			r.Get("/eligibility", h.GetEligibility)
			r.Get("/max-loan-amount", h.GetMaxLoanAmount)
			r.Get("/remaining", h.GetRemaining)
			r.Get("/standing", h.GetStanding)
			r.Get("/contributions", h.ListMemberContributions)
			r.Get("/penalties", h.ListMemberPenalties)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Post("/", h.CreateGroup)
			r.Get("/", h.ListGroups)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetGroup)
				r.Put("/", h.UpdateGroup)
				r.Delete("/", h.DeleteGroup)
				r.Post("/members", h.AddGroupMember)
				r.Get("/members", h.ListGroupMembers)
				r.Delete("/members/{memberID}", h.RemoveGroupMember)
				r.Post("/rounds", h.CreateRound)
				r.Get("/rounds", h.ListRounds)
			})
		})

		r.Route("/rounds/{id}", func(r chi.Router) {
			r.Get("/", h.GetRound)
			r.Put("/", h.UpdateRound)
			r.Delete("/", h.DeleteRound)
			r.Post("/contributions", h.MakeContribution)
			r.Get("/contributions", h.ListRoundContributions)
			r.Post("/penalties", h.ApplyPenalty)
			r.Get("/penalties", h.ListRoundPenalties)
		})

		r.Route("/contributions/{id}", func(r chi.Router) {
			r.Get("/", h.GetContribution)
			r.Put("/", h.UpdateContribution)
			r.Delete("/", h.DeleteContribution)
		})

		r.Route("/penalties/{id}", func(r chi.Router) {
			r.Get("/", h.GetPenalty)
			r.Delete("/", h.DeletePenalty)
			r.Post("/pay", h.PayPenalty)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
