package leaveshandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"hrcore/internal/domain/directory"
	"hrcore/internal/domain/leave"
	"hrcore/internal/domain/ledger"
	"hrcore/internal/transport/http/api"
	"hrcore/internal/transport/http/middleware"
	"hrcore/internal/transport/http/shared"
)

type Handler struct {
	Service   *leave.Service
	Directory *directory.Store
}

func NewHandler(service *leave.Service, dir *directory.Store) *Handler {
	return &Handler{Service: service, Directory: dir}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/leave-types", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.handleListTypes)
		r.With(middleware.RequireAdmin).Post("/", h.handleCreateType)
		r.With(middleware.RequireAdmin).Patch("/{typeID}", h.handleUpdateType)
	})

	r.Route("/leaves", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{requestID}", h.handleGet)
		r.Post("/{requestID}/decision", h.handleDecision)
		r.Post("/{requestID}/cancel", h.handleCancel)
		r.With(middleware.RequireAdmin).Post("/{requestID}/admin-approve", h.handleAdminApprove)
		r.With(middleware.RequireAdmin).Post("/{requestID}/deny", h.handleDeny)
	})
}

func (h *Handler) handleListTypes(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	includeInactive := user.IsAdmin() && r.URL.Query().Get("includeInactive") == "true"
	types, err := h.Service.ListTypes(r.Context(), includeInactive)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "leave_types_failed", "failed to list leave types", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, types, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateType(w http.ResponseWriter, r *http.Request) {
	var payload leave.LeaveType
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	v.Required("code", payload.Code, "code is required")
	v.Required("name", payload.Name, "name is required")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	if err := h.Service.CreateType(r.Context(), &payload); err != nil {
		api.Fail(w, http.StatusInternalServerError, "leave_type_create_failed", "failed to create leave type", middleware.GetRequestID(r.Context()))
		return
	}
	api.Created(w, payload, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateType(w http.ResponseWriter, r *http.Request) {
	var payload leave.LeaveType
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	payload.ID = chi.URLParam(r, "typeID")

	if err := h.Service.UpdateType(r.Context(), &payload); err != nil {
		if errors.Is(err, leave.ErrTypeNotFound) {
			api.Fail(w, http.StatusNotFound, "not_found", "leave type not found", middleware.GetRequestID(r.Context()))
			return
		}
		api.Fail(w, http.StatusInternalServerError, "leave_type_update_failed", "failed to update leave type", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, payload, middleware.GetRequestID(r.Context()))
}

type createLeaveRequest struct {
	LeaveTypeID   string `json:"leaveTypeId"`
	LeaveTypeCode string `json:"leaveTypeCode"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
	DurationType  string `json:"durationType"`
	Reason        string `json:"reason"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())

	emp, err := h.Directory.EmployeeByUserID(r.Context(), user.UserID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			api.Fail(w, http.StatusForbidden, "no_employee_record", "no employee record for user", middleware.GetRequestID(r.Context()))
			return
		}
		api.Fail(w, http.StatusInternalServerError, "leave_create_failed", "failed to create leave request", middleware.GetRequestID(r.Context()))
		return
	}

	var payload createLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	if payload.DurationType == "" {
		payload.DurationType = leave.DurationFullDay
	}

	v := shared.NewValidator()
	start, _ := v.Date("startDate", payload.StartDate)
	end, _ := v.Date("endDate", payload.EndDate)
	v.DateOrder("startDate", start, "endDate", end)
	v.Enum("durationType", payload.DurationType,
		[]string{leave.DurationFullDay, leave.DurationFirstHalf, leave.DurationSecondHalf},
		"must be full_day, first_half or second_half")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	req, err := h.Service.CreateRequest(r.Context(), leave.CreateRequestInput{
		EmployeeID:    emp.ID,
		LeaveTypeID:   strings.TrimSpace(payload.LeaveTypeID),
		LeaveTypeCode: strings.TrimSpace(payload.LeaveTypeCode),
		StartDate:     start,
		EndDate:       end,
		DurationType:  payload.DurationType,
		Reason:        payload.Reason,
	})
	if err != nil {
		writeLeaveError(w, r, err, "leave_create_failed", "failed to create leave request")
		return
	}
	api.Created(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	page := shared.ParsePagination(r, 20, 100)
	status := strings.TrimSpace(r.URL.Query().Get("status"))

	requests, total, err := h.Service.List(r.Context(), user, status, page.Limit, page.Offset)
	if err != nil {
		writeLeaveError(w, r, err, "leaves_failed", "failed to list leave requests")
		return
	}
	api.Success(w, map[string]any{"items": requests, "total": total}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := chi.URLParam(r, "requestID")

	req, steps, err := h.Service.Get(r.Context(), requestID, user)
	if err != nil {
		writeLeaveError(w, r, err, "leave_failed", "failed to load leave request")
		return
	}
	api.Success(w, map[string]any{"request": req, "approvals": steps}, middleware.GetRequestID(r.Context()))
}

type decisionRequest struct {
	Action   string `json:"action"`
	Comments string `json:"comments"`
}

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := chi.URLParam(r, "requestID")

	var payload decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	action := strings.ToLower(strings.TrimSpace(payload.Action))
	if action != "approve" && action != "deny" {
		api.Fail(w, http.StatusBadRequest, "invalid_action", "action must be approve or deny", middleware.GetRequestID(r.Context()))
		return
	}

	req, err := h.Service.ApproveLevel(r.Context(), requestID, user.UserID, action == "approve", payload.Comments)
	if err != nil {
		writeLeaveError(w, r, err, "decision_failed", "failed to record decision")
		return
	}
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) handleAdminApprove(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := chi.URLParam(r, "requestID")

	var payload notesRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
			return
		}
	}

	req, err := h.Service.AdminApprove(r.Context(), requestID, user.UserID, payload.Notes)
	if err != nil {
		writeLeaveError(w, r, err, "admin_approve_failed", "failed to approve leave request")
		return
	}
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDeny(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := chi.URLParam(r, "requestID")

	var payload notesRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
			return
		}
	}

	req, err := h.Service.Deny(r.Context(), requestID, user.UserID, payload.Notes)
	if err != nil {
		writeLeaveError(w, r, err, "deny_failed", "failed to deny leave request")
		return
	}
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := chi.URLParam(r, "requestID")

	req, err := h.Service.Cancel(r.Context(), requestID, user.UserID)
	if err != nil {
		writeLeaveError(w, r, err, "cancel_failed", "failed to cancel leave request")
		return
	}
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

func writeLeaveError(w http.ResponseWriter, r *http.Request, err error, fallbackCode, fallbackMessage string) {
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, leave.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "leave request not found", requestID)
	case errors.Is(err, leave.ErrTypeNotFound):
		api.Fail(w, http.StatusNotFound, "type_not_found", "leave type not found", requestID)
	case errors.Is(err, leave.ErrNotApprover):
		api.Fail(w, http.StatusForbidden, "not_approver", "no pending approval for this user", requestID)
	case errors.Is(err, leave.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed to access this leave request", requestID)
	case errors.Is(err, leave.ErrNotEligible):
		api.Fail(w, http.StatusForbidden, "not_eligible", "employee is not leave-eligible", requestID)
	case errors.Is(err, leave.ErrInvalidState):
		api.Fail(w, http.StatusConflict, "invalid_state", "leave request is not in a state that allows this action", requestID)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		api.Fail(w, http.StatusConflict, "insufficient_balance", "insufficient coin balance to approve this request", requestID)
	case errors.Is(err, leave.ErrInvalidDateRange):
		api.Fail(w, http.StatusBadRequest, "invalid_date_range", "end date must not be before start date", requestID)
	case errors.Is(err, leave.ErrHalfDayNotAllowed):
		api.Fail(w, http.StatusBadRequest, "half_day_not_allowed", "this leave type does not allow half days", requestID)
	case errors.Is(err, leave.ErrNoticeTooShort):
		api.Fail(w, http.StatusBadRequest, "notice_too_short", "request does not meet the minimum notice period", requestID)
	case errors.Is(err, leave.ErrTooManyDays):
		api.Fail(w, http.StatusBadRequest, "too_many_days", "request exceeds the maximum days per request", requestID)
	default:
		api.Fail(w, http.StatusInternalServerError, fallbackCode, fallbackMessage, requestID)
	}
}
