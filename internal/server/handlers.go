package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/freightaudit/internal/ingest"
	"github.com/ppiankov/freightaudit/internal/pipeline"
	"github.com/ppiankov/freightaudit/internal/reconcile"
	"github.com/ppiankov/freightaudit/internal/store"
)

// Upload field names of POST /api/audits
const (
	FieldShipments = "shipments"
	FieldContracts = "contracts"
	FieldInvoices  = "invoices"
)

// ErrorDetail points at one invalid request field
type ErrorDetail struct {
	Field string `json:"field"`
	Info  string `json:"info"`
}

type listQuery struct {
	Limit int `form:"limit" binding:"omitempty,gte=1,lte=500"`
}

// RunSummary is one entry of GET /api/audits
type RunSummary struct {
	RunID               string    `json:"run_id"`
	Source              string    `json:"source"`
	GeneratedAt         time.Time `json:"generated_at"`
	Rows                int       `json:"rows"`
	FlaggedShipments    int       `json:"flagged_shipments"`
	EstimatedLeakageUSD float64   `json:"estimated_revenue_leakage_usd"`
	TotalInvoices       int       `json:"total_invoices"`
	TotalRecoverableUSD float64   `json:"total_recoverable_usd"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) createAudit(c *gin.Context) {
	if s.cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
	}
	if err := c.Request.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}

	form := c.Request.MultipartForm
	shipments := formFile(form, FieldShipments)
	contracts := formFile(form, FieldContracts)
	invoices := formFile(form, FieldInvoices)

	if shipments == nil && (contracts == nil || invoices == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "upload shipments, or contracts with invoices"})
		return
	}

	streams := pipeline.Streams{}
	var opened []io.Closer
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()

	open := func(fh *multipart.FileHeader) (io.Reader, bool) {
		if fh == nil {
			return nil, true
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read " + fh.Filename})
			return nil, false
		}
		opened = append(opened, f)
		return f, true
	}

	var ok bool
	if streams.Shipments, ok = open(shipments); !ok {
		return
	}
	if streams.Contracts, ok = open(contracts); !ok {
		return
	}
	if streams.Invoices, ok = open(invoices); !ok {
		return
	}
	if shipments != nil {
		streams.Source = shipments.Filename
	} else {
		streams.Source = invoices.Filename
	}
	if contracts != nil {
		streams.ContractsName = contracts.Filename
	}

	in, err := s.pipeline.Decode(streams)
	if err != nil {
		var schemaErr *ingest.SchemaError
		var parseErr *ingest.ParseError
		if errors.As(err, &schemaErr) || errors.As(err, &parseErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := s.pipeline.Run(c.Request.Context(), in)
	if errors.Is(err, reconcile.ErrNoContracts) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invoices need a non-empty contracts upload"})
		return
	}
	if err != nil {
		s.logger.Error("audit failed", zap.String("source", streams.Source), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, out)
}

func formFile(form *multipart.Form, field string) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	files := form.File[field]
	if len(files) == 0 {
		return nil
	}
	return files[0]
}

func (s *Server) getAudit(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no store configured"})
		return
	}

	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
		return
	}

	r, err := s.runs.GetRun(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, r)
}

// Finding is one flagged shipment of a stored run
type Finding struct {
	ShipmentID        string  `json:"shipment_id"`
	CustomerID        string  `json:"customer_id"`
	FlagReason        string  `json:"flag_reason"`
	UnderbilledAmount float64 `json:"underbilled_amount"`
	ExpectedTotal     float64 `json:"expected_total"`
	BilledTotal       float64 `json:"actual_billed_total"`
}

func (s *Server) listFindings(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no store configured"})
		return
	}

	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
		return
	}

	findings, err := s.runs.Findings(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]Finding, len(findings))
	for i, f := range findings {
		out[i] = Finding{
			ShipmentID:        f.ShipmentID,
			CustomerID:        f.CustomerID,
			FlagReason:        f.FlagReason,
			UnderbilledAmount: f.UnderbilledAmount,
			ExpectedTotal:     f.ExpectedTotal,
			BilledTotal:       f.BilledTotal,
		}
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "findings": out})
}

func (s *Server) listAudits(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no store configured"})
		return
	}

	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	runs, err := s.runs.ListRuns(c.Request.Context(), q.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]RunSummary, len(runs))
	for i, r := range runs {
		out[i] = RunSummary{
			RunID:               r.ID,
			Source:              r.Source,
			GeneratedAt:         r.GeneratedAt.UTC(),
			Rows:                r.Rows,
			FlaggedShipments:    r.FlaggedShipments,
			EstimatedLeakageUSD: r.EstimatedLeakageUSD,
			TotalInvoices:       r.TotalInvoices,
			TotalRecoverableUSD: r.TotalRecoverableUSD,
		}
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

// badRequest answers 400, listing field errors when validation failed
func badRequest(c *gin.Context, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	details := make([]ErrorDetail, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, ErrorDetail{Field: fe.Field(), Info: fieldMessage(fe)})
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": details})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gte":
		return fe.Field() + " must be at least " + fe.Param()
	case "lte":
		return fe.Field() + " must be at most " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
