package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"expensetracker/internal/aggregate"
	"expensetracker/internal/core"
	"expensetracker/internal/log"
	"expensetracker/internal/receipts"
	"expensetracker/internal/services"
	"expensetracker/internal/storage"
)

type listResponse struct {
	Date        string             `json:"date"`
	Group       string             `json:"group"`
	Sort        string             `json:"sort"`
	Version     uint64             `json:"version"`
	TotalCount  int                `json:"total_count"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Groups      []aggregate.Bucket `json:"groups"`
}

type todayTotalResponse struct {
	Date    string          `json:"date"`
	Total   decimal.Decimal `json:"total"`
	Version uint64          `json:"version"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	p := NewRequestBodyParser(r)
	defer p.Cleanup()
	if err := p.Parse(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorResponse(http.StatusRequestEntityTooLarge, "request body too large").Write(w)
			return
		}
		s.logger.WarnContext(ctx, "Parse request body error", log.FieldError, err, log.FieldPath, r.URL.Path)
		BadRequestError("invalid request body").Write(w)
		return
	}

	form, err := p.ExpenseForm()
	if err != nil {
		var fields []string
		var ve *core.ValidationError
		if errors.As(core.Validate(form).Err(), &ve) {
			fields = ve.Fields
		}
		ValidationErrorResponse(append(fields, "category")).Write(w)
		return
	}

	var receipt *services.Receipt
	file, name, ok, err := p.File("receipt")
	if err != nil {
		BadRequestError("invalid receipt upload").Write(w)
		return
	}
	if ok {
		defer file.Close()
		receipt = &services.Receipt{Reader: file, Name: name}
	}

	res, err := s.service.Create(ctx, form, receipt)
	if err != nil {
		var ve *core.ValidationError
		switch {
		case errors.As(err, &ve):
			ValidationErrorResponse(ve.Fields).Write(w)
		case errors.Is(err, receipts.ErrReceipt):
			InternalServerError("failed to store receipt").Write(w)
		default:
			InternalServerError("failed to record expense").Write(w)
		}
		return
	}

	s.expensesCreated.Add(1)
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/expenses/"+strconv.FormatInt(res.Expense.ID, 10)).
		JSON(res).
		Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		BadRequestError("invalid expense id").Write(w)
		return
	}
	e, err := s.ledger.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		ErrorResponse(http.StatusNotFound, "expense not found").Write(w)
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Get expense failed", log.FieldExpenseID, id, log.FieldError, err)
		InternalServerError("failed to read expense").Write(w)
		return
	}
	NewResponse().JSON(e).Write(w)
}

// handleListExpenses serves one day's expenses grouped and sorted.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	params, err := ParseListParams(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	snap, err := s.ledger.Query(r.Context(), core.DayRange(params.Date))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "List expenses failed",
			log.FieldOperation, log.OpList, log.FieldError, err)
		InternalServerError("failed to list expenses").Write(w)
		return
	}

	view := aggregate.ComputeList(snap.Expenses, params.GroupBy, params.SortBy)
	NewResponse().JSON(listResponse{
		Date:        params.Date.Format(DateLayout),
		Group:       params.GroupBy.String(),
		Sort:        params.SortBy.String(),
		Version:     snap.Version,
		TotalCount:  view.TotalCount,
		TotalAmount: view.TotalAmount,
		Groups:      view.Buckets(),
	}).Write(w)
}

func (s *Server) handleTodayTotal(w http.ResponseWriter, r *http.Request) {
	day := core.DayRange(s.now())
	snap, err := s.ledger.Sum(r.Context(), day)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Today total failed", log.FieldError, err)
		InternalServerError("failed to compute total").Write(w)
		return
	}
	total := decimal.Zero
	if snap.Total != nil {
		total = *snap.Total
	}
	NewResponse().JSON(todayTotalResponse{
		Date:    day.Start.Format(DateLayout),
		Total:   total,
		Version: snap.Version,
	}).Write(w)
}
