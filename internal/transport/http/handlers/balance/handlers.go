package balancehandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"hrcore/internal/domain/directory"
	"hrcore/internal/domain/ledger"
	"hrcore/internal/domain/notifications"
	"hrcore/internal/transport/http/api"
	"hrcore/internal/transport/http/middleware"
	"hrcore/internal/transport/http/shared"
)

type Handler struct {
	Engine    *ledger.Engine
	Directory *directory.Store
	Notify    *notifications.Service
}

func NewHandler(engine *ledger.Engine, dir *directory.Store, notify *notifications.Service) *Handler {
	return &Handler{Engine: engine, Directory: dir, Notify: notify}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/leave-balance", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/me", h.handleMyBalance)
		r.With(middleware.RequireAdmin).Get("/employees/{employeeID}", h.handleEmployeeBalance)
		r.With(middleware.RequireAdmin).Post("/employees/{employeeID}/adjust", h.handleAdjust)
		r.With(middleware.RequireAdmin).Get("/employees/{employeeID}/statement.pdf", h.handleStatementPDF)
	})
}

func (h *Handler) handleMyBalance(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	emp, err := h.Directory.EmployeeByUserID(r.Context(), user.UserID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			api.Fail(w, http.StatusNotFound, "not_found", "no employee record for user", middleware.GetRequestID(r.Context()))
			return
		}
		api.Fail(w, http.StatusInternalServerError, "balance_failed", "failed to load balance", middleware.GetRequestID(r.Context()))
		return
	}
	h.writeBalance(w, r, emp.ID)
}

func (h *Handler) handleEmployeeBalance(w http.ResponseWriter, r *http.Request) {
	h.writeBalance(w, r, chi.URLParam(r, "employeeID"))
}

func (h *Handler) writeBalance(w http.ResponseWriter, r *http.Request, employeeID string) {
	view, err := h.Engine.AvailableCoins(r.Context(), employeeID, time.Now())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "balance_failed", "failed to load balance", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, view, middleware.GetRequestID(r.Context()))
}

type adjustRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Comment string          `json:"comment"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")

	var payload adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	if payload.Amount.IsZero() {
		api.Fail(w, http.StatusBadRequest, "invalid_amount", "amount must be non-zero", middleware.GetRequestID(r.Context()))
		return
	}
	if strings.TrimSpace(payload.Comment) == "" {
		api.Fail(w, http.StatusBadRequest, "comment_required", "a comment explaining the adjustment is required", middleware.GetRequestID(r.Context()))
		return
	}

	available, err := h.Engine.Adjust(r.Context(), employeeID, payload.Amount, payload.Comment)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientBalance):
			api.Fail(w, http.StatusConflict, "insufficient_balance", "adjustment exceeds available balance", middleware.GetRequestID(r.Context()))
		case errors.Is(err, ledger.ErrInvalidAmount):
			api.Fail(w, http.StatusBadRequest, "invalid_amount", "invalid adjustment amount", middleware.GetRequestID(r.Context()))
		default:
			api.Fail(w, http.StatusInternalServerError, "adjust_failed", "failed to adjust balance", middleware.GetRequestID(r.Context()))
		}
		return
	}

	if emp, err := h.Directory.EmployeeByID(r.Context(), employeeID); err == nil && emp.UserID != "" {
		if err := h.Notify.Notify(r.Context(), emp.UserID, notifications.TypeBalanceAdjusted,
			"Leave balance adjusted",
			fmt.Sprintf("Your leave balance was adjusted by %s: %s", payload.Amount.StringFixed(2), payload.Comment)); err != nil {
			slog.Warn("balance adjust notification failed", "err", err)
		}
	}
	api.Success(w, map[string]any{"availableCoins": available}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleStatementPDF(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")

	emp, err := h.Directory.EmployeeByID(r.Context(), employeeID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			api.Fail(w, http.StatusNotFound, "not_found", "employee not found", middleware.GetRequestID(r.Context()))
			return
		}
		api.Fail(w, http.StatusInternalServerError, "statement_failed", "failed to load employee", middleware.GetRequestID(r.Context()))
		return
	}

	to := time.Now()
	from := to.AddDate(-1, 0, 0)
	if parsed, err := shared.ParseDate(r.URL.Query().Get("from")); err == nil && !parsed.IsZero() {
		from = parsed
	}
	if parsed, err := shared.ParseDate(r.URL.Query().Get("to")); err == nil && !parsed.IsZero() {
		to = parsed.AddDate(0, 0, 1)
	}

	txns, err := h.Engine.Statement(r.Context(), employeeID, from, to)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "statement_failed", "failed to load statement", middleware.GetRequestID(r.Context()))
		return
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Leave Balance Statement")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Employee: %s (%s)", emp.Name, emp.EmpCode))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Period: %s to %s", from.Format("2006-01-02"), to.Format("2006-01-02")))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(35, 8, "Date", "B", 0, "L", false, 0, "")
	pdf.CellFormat(30, 8, "Type", "B", 0, "L", false, 0, "")
	pdf.CellFormat(25, 8, "Amount", "B", 0, "R", false, 0, "")
	pdf.CellFormat(0, 8, "Comment", "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	for _, txn := range txns {
		pdf.CellFormat(35, 7, txn.OccurredAt.Format("2006-01-02"), "", 0, "L", false, 0, "")
		pdf.CellFormat(30, 7, txn.Type, "", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, txn.Amount.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.CellFormat(0, 7, txn.Comment, "", 1, "L", false, 0, "")
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=leave-statement-%s.pdf", emp.EmpCode))
	if err := pdf.Output(w); err != nil {
		slog.Warn("statement pdf write failed", "err", err)
	}
}
