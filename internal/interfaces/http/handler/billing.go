package handler

import (
	"context"
	"net/http"
	"time"

	appbilling "github.com/erp/backoffice/internal/application/billing"
	"github.com/erp/backoffice/internal/domain/billing"
	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/erp/backoffice/internal/infrastructure/logger"
	"github.com/erp/backoffice/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingService is the application surface served by BillingHandler.
// *appbilling.SaleService implements it.
type BillingService interface {
	ConfirmSale(ctx context.Context, sale appbilling.SaleContext, method billing.PaymentMethod, details billing.MethodDetails) (*appbilling.SaleResult, error)
	ProcessRefund(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal, reason string) (*appbilling.RefundResult, error)
	RecordPayment(ctx context.Context, cmd appbilling.RecordPaymentCommand) (*appbilling.PaymentResult, error)
	SaveInvoice(ctx context.Context, data appbilling.InvoiceData) (*appbilling.SaveInvoiceResult, error)
	Resync(ctx context.Context, scope billing.Scope, orderNumber string) (*appbilling.PropagationResult, error)
	LedgerSummary(ctx context.Context, scope billing.Scope) (billing.LedgerSummary, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*billing.Payment, error)
	ListPayments(ctx context.Context, filter billing.PaymentFilter) (shared.Paginated[billing.Payment], error)
	GetInvoice(ctx context.Context, id uuid.UUID) (*billing.Invoice, error)
	FindInvoiceForOrder(ctx context.Context, orderID *uuid.UUID, orderNumber string) (*billing.Invoice, error)
}

var _ BillingService = (*appbilling.SaleService)(nil)

// BillingHandler handles payment, refund and invoice endpoints
type BillingHandler struct {
	BaseHandler
	service BillingService
}

// NewBillingHandler creates a new BillingHandler
func NewBillingHandler(service BillingService) *BillingHandler {
	return &BillingHandler{service: service}
}

// warnings flattens propagation warnings for the response envelope
func warnings(result *appbilling.PropagationResult) []string {
	if result == nil || len(result.Warnings) == 0 {
		return nil
	}
	out := make([]string, len(result.Warnings))
	for i, w := range result.Warnings {
		out[i] = w.String()
	}
	return out
}

// ConfirmSale godoc
// @ID           confirmSale
// @Summary      Confirm a sale
// @Description  Issues the invoice of a sale, records its payment unless the method is credit, and propagates statuses
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        request body dto.ConfirmSaleRequest true "Sale"
// @Success      201 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /billing/sales/confirm [post]
func (h *BillingHandler) ConfirmSale(c *gin.Context) {
	var req dto.ConfirmSaleRequest
	if !h.bindJSON(c, &req) {
		return
	}

	sale := appbilling.SaleContext{
		OrderID:        req.OrderID,
		OrderNumber:    req.OrderNumber,
		Client:         req.Client.ToDomain(),
		Items:          dto.LineItemsToDomain(req.Items),
		TaxRate:        req.TaxRate,
		DiscountAmount: req.DiscountAmount,
		InvoiceNumber:  req.InvoiceNumber,
		DueDate:        req.DueDate,
		Notes:          req.Notes,
	}
	if req.InvoiceDate != nil {
		sale.InvoiceDate = *req.InvoiceDate
	}

	ctx := logger.WithScope(c.Request.Context(), billing.NewScope(req.OrderID, nil).String())
	result, err := h.service.ConfirmSale(ctx, sale, billing.PaymentMethod(req.PaymentMethod), req.Details.ToDomain())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.WithWarnings(c, http.StatusCreated, result, warnings(result.Propagation))
}

// RecordPayment godoc
// @ID           recordPayment
// @Summary      Record a payment
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        request body dto.RecordPaymentRequest true "Payment"
// @Success      201 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Router       /billing/payments [post]
func (h *BillingHandler) RecordPayment(c *gin.Context) {
	var req dto.RecordPaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}

	cmd := appbilling.RecordPaymentCommand{
		OrderID:         req.OrderID,
		InvoiceID:       req.InvoiceID,
		ClientID:        req.ClientID,
		Amount:          req.Amount,
		Method:          billing.PaymentMethod(req.PaymentMethod),
		Details:         req.Details.ToDomain(),
		ReferenceNumber: req.ReferenceNumber,
		TransactionID:   req.TransactionID,
		Notes:           req.Notes,
	}
	if req.PaymentDate != nil {
		cmd.PaymentDate = *req.PaymentDate
	}

	ctx := logger.WithScope(c.Request.Context(), billing.NewScope(req.OrderID, req.InvoiceID).String())
	result, err := h.service.RecordPayment(ctx, cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.WithWarnings(c, http.StatusCreated, result, warnings(result.Propagation))
}

// RefundPayment godoc
// @ID           refundPayment
// @Summary      Refund a payment
// @Description  Refunds part or all of a completed payment. The refund may not exceed the scope's net paid.
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        id path string true "Payment ID" format(uuid)
// @Param        request body dto.RefundRequest true "Refund"
// @Success      201 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Failure      422 {object} dto.Response
// @Router       /billing/payments/{id}/refunds [post]
func (h *BillingHandler) RefundPayment(c *gin.Context) {
	paymentID, ok := h.pathID(c)
	if !ok {
		return
	}
	var req dto.RefundRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.service.ProcessRefund(c.Request.Context(), paymentID, req.Amount, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.WithWarnings(c, http.StatusCreated, result, warnings(result.Propagation))
}

// GetPayment godoc
// @ID           getPayment
// @Summary      Get a ledger entry
// @Tags         billing
// @Produce      json
// @Param        id path string true "Payment ID" format(uuid)
// @Success      200 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /billing/payments/{id} [get]
func (h *BillingHandler) GetPayment(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	payment, err := h.service.GetPayment(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payment)
}

// ListPayments godoc
// @ID           listPayments
// @Summary      List ledger entries
// @Tags         billing
// @Produce      json
// @Param        order_id   query string false "Order scope" format(uuid)
// @Param        invoice_id query string false "Invoice scope" format(uuid)
// @Param        status     query string false "Entry status" Enums(pending, completed, failed, refunded)
// @Param        page       query int    false "Page number" default(1)
// @Param        page_size  query int    false "Page size" default(20) maximum(100)
// @Success      200 {object} dto.Response
// @Router       /billing/payments [get]
func (h *BillingHandler) ListPayments(c *gin.Context) {
	req := dto.PaymentListRequest{ListRequest: dto.DefaultListRequest()}
	if !h.bindQuery(c, &req) {
		return
	}

	page, err := h.service.ListPayments(c.Request.Context(), req.ToFilter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// CreateInvoice godoc
// @ID           createInvoice
// @Summary      Create an invoice
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        request body dto.SaveInvoiceRequest true "Invoice"
// @Success      201 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Router       /billing/invoices [post]
func (h *BillingHandler) CreateInvoice(c *gin.Context) {
	h.saveInvoice(c, nil)
}

// UpdateInvoice godoc
// @ID           updateInvoice
// @Summary      Edit an invoice
// @Description  Recomposes totals from the lines and re-derives paid amount and status from the ledger
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body dto.SaveInvoiceRequest true "Invoice"
// @Success      200 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /billing/invoices/{id} [put]
func (h *BillingHandler) UpdateInvoice(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	h.saveInvoice(c, &id)
}

func (h *BillingHandler) saveInvoice(c *gin.Context, id *uuid.UUID) {
	var req dto.SaveInvoiceRequest
	if !h.bindJSON(c, &req) {
		return
	}

	data := appbilling.InvoiceData{
		ID:             id,
		InvoiceNumber:  req.InvoiceNumber,
		OrderID:        req.OrderID,
		OrderNumber:    req.OrderNumber,
		Client:         req.Client.ToDomain(),
		Items:          dto.LineItemsToDomain(req.Items),
		TaxRate:        req.TaxRate,
		DiscountAmount: req.DiscountAmount,
		PaymentMethod:  billing.PaymentMethod(req.PaymentMethod),
		Settlement:     req.Settlement.ToDomain(),
		DueDate:        req.DueDate,
		Notes:          req.Notes,
	}
	if req.InvoiceDate != nil {
		data.InvoiceDate = *req.InvoiceDate
	} else if id == nil {
		data.InvoiceDate = time.Now()
	}

	result, err := h.service.SaveInvoice(c.Request.Context(), data)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	h.WithWarnings(c, status, result, warnings(result.Propagation))
}

// GetInvoice godoc
// @ID           getInvoice
// @Summary      Get an invoice
// @Tags         billing
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /billing/invoices/{id} [get]
func (h *BillingHandler) GetInvoice(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	invoice, err := h.service.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// FindOrderInvoice godoc
// @ID           findOrderInvoice
// @Summary      Find the invoice of an order
// @Description  Looks the invoice up by order id, then by order number
// @Tags         billing
// @Produce      json
// @Param        order_id     query string false "Order ID" format(uuid)
// @Param        order_number query string false "Order number"
// @Success      200 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /billing/invoices [get]
func (h *BillingHandler) FindOrderInvoice(c *gin.Context) {
	var q dto.ScopeQuery
	if !h.bindQuery(c, &q) {
		return
	}
	scope := q.Scope()
	if scope.OrderID == nil && q.OrderNumber == "" {
		h.BadRequest(c, "order_id or order_number is required")
		return
	}

	invoice, err := h.service.FindInvoiceForOrder(c.Request.Context(), scope.OrderID, q.OrderNumber)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// LedgerSummary godoc
// @ID           ledgerSummary
// @Summary      Reconcile a scope
// @Description  Returns total paid, total refunded and net paid for an order or invoice
// @Tags         billing
// @Produce      json
// @Param        order_id   query string false "Order ID" format(uuid)
// @Param        invoice_id query string false "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Router       /billing/ledger/summary [get]
func (h *BillingHandler) LedgerSummary(c *gin.Context) {
	var q dto.ScopeQuery
	if !h.bindQuery(c, &q) {
		return
	}

	summary, err := h.service.LedgerSummary(c.Request.Context(), q.Scope())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// Resync godoc
// @ID           resyncBilling
// @Summary      Re-run propagation
// @Description  Re-derives invoice and order statuses from the ledger for a scope
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        request body dto.ResyncRequest true "Scope"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Router       /billing/resync [post]
func (h *BillingHandler) Resync(c *gin.Context) {
	var req dto.ResyncRequest
	if !h.bindJSON(c, &req) {
		return
	}

	scope := billing.NewScope(req.OrderID, req.InvoiceID)
	ctx := logger.WithScope(c.Request.Context(), scope.String())
	result, err := h.service.Resync(ctx, scope, req.OrderNumber)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.WithWarnings(c, http.StatusOK, result, warnings(result))
}

// RegisterRoutes mounts the billing endpoints under rg
func (h *BillingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/billing")
	g.POST("/sales/confirm", h.ConfirmSale)

	g.GET("/payments", h.ListPayments)
	g.POST("/payments", h.RecordPayment)
	g.GET("/payments/:id", h.GetPayment)
	g.POST("/payments/:id/refunds", h.RefundPayment)

	g.GET("/invoices", h.FindOrderInvoice)
	g.POST("/invoices", h.CreateInvoice)
	g.GET("/invoices/:id", h.GetInvoice)
	g.PUT("/invoices/:id", h.UpdateInvoice)

	g.GET("/ledger/summary", h.LedgerSummary)
	g.POST("/resync", h.Resync)
}
