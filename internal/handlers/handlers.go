// Package handlers is the thin gin edge: bind the request, call the service,
// map the error taxonomy onto HTTP statuses.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fundlens/internal/database"
	"fundlens/internal/dates"
	"fundlens/internal/models"
	"fundlens/internal/refdata"
	"fundlens/internal/sip"
	"fundlens/internal/valuation"
)

type Handler struct {
	repo    *database.Repo
	svc     *valuation.Service
	schemes *refdata.SchemeResolver
	symbols *refdata.Resolver
	clock   dates.Clock
	log     *logrus.Logger
}

func NewHandler(repo *database.Repo, svc *valuation.Service, schemes *refdata.SchemeResolver, symbols *refdata.Resolver, clock dates.Clock, log *logrus.Logger) *Handler {
	return &Handler{repo: repo, svc: svc, schemes: schemes, symbols: symbols, clock: clock, log: log}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/schemes/search", h.SearchSchemes)
	r.POST("/funds/:ownerId", h.CreateFund)
	r.GET("/funds/:ownerId", h.ListFunds)
	r.DELETE("/funds/:ownerId/:fundId", h.DeleteFund)
	r.GET("/valuation/:ownerId/:fundId", h.GetValuation)
	r.POST("/sip/:ownerId/:fundId/installment", h.ActionInstallment)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type HoldingRequest struct {
	ISIN   string  `json:"isin" binding:"required"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight" binding:"required"`
}

type StepUpRequest struct {
	Frequency  string  `json:"frequency" binding:"required"`
	Percent    float64 `json:"percent"`
	FlatAmount string  `json:"flat_amount"`
}

type SIPRequest struct {
	MonthlyAmount string         `json:"monthly_amount" binding:"required"`
	DayOfMonth    int            `json:"day_of_month" binding:"required"`
	StartDate     string         `json:"start_date" binding:"required"`
	StepUp        *StepUpRequest `json:"step_up"`
}

type CreateFundRequest struct {
	FundName       string           `json:"fund_name" binding:"required"`
	Nickname       string           `json:"nickname"`
	SchemeCode     string           `json:"scheme_code"`
	Kind           string           `json:"kind" binding:"required"`
	InvestedAmount string           `json:"invested_amount"`
	InvestedDate   string           `json:"invested_date"`
	SIP            *SIPRequest      `json:"sip"`
	Holdings       []HoldingRequest `json:"holdings" binding:"required"`
	ManualUnits    string           `json:"manual_units"`
	ManualInvested string           `json:"manual_invested"`
}

// CreateFund registers a record: resolves the scheme code from the fund name
// when absent, resolves each holding's ISIN to a tradable symbol (misses are
// tolerated, they just reduce quote coverage later), normalizes weights and
// materializes the initial SIP schedule.
func (h *Handler) CreateFund(c *gin.Context) {
	var req CreateFundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("invalid create body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	rec := &models.InvestmentRecord{
		OwnerID:    c.Param("ownerId"),
		FundName:   req.FundName,
		Nickname:   req.Nickname,
		SchemeCode: req.SchemeCode,
		Kind:       models.InvestmentKind(strings.ToUpper(req.Kind)),
	}

	if rec.SchemeCode == "" {
		code, err := h.schemes.ResolveSchemeCode(ctx, req.FundName)
		if err != nil {
			h.writeError(c, err)
			return
		}
		rec.SchemeCode = code
	}

	var err error
	if rec.InvestedAmount, err = parseDecimal(req.InvestedAmount); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invested_amount"})
		return
	}
	if rec.ManualUnits, err = parseDecimal(req.ManualUnits); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid manual_units"})
		return
	}
	if rec.ManualInvested, err = parseDecimal(req.ManualInvested); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid manual_invested"})
		return
	}
	if req.InvestedDate != "" {
		if rec.InvestedDate, err = dates.Parse(req.InvestedDate); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invested_date"})
			return
		}
	}

	for _, hr := range req.Holdings {
		weight, err := models.NewWeightFraction(hr.Weight)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid holding weight"})
			return
		}
		holding := models.Holding{ISIN: hr.ISIN, Name: hr.Name, Weight: weight}
		if sym, err := h.symbols.ResolveSymbol(ctx, hr.ISIN); err == nil {
			holding.Symbol = sym
		} else {
			h.log.Warnf("no symbol for ISIN %s: %v", hr.ISIN, err)
		}
		rec.Holdings = append(rec.Holdings, holding)
	}

	if req.SIP != nil {
		cfg := &models.SIPConfig{DayOfMonth: req.SIP.DayOfMonth}
		if cfg.MonthlyAmount, err = parseDecimal(req.SIP.MonthlyAmount); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid monthly_amount"})
			return
		}
		if cfg.StartDate, err = dates.Parse(req.SIP.StartDate); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date"})
			return
		}
		if su := req.SIP.StepUp; su != nil {
			rule := &models.StepUpRule{
				Frequency: models.StepUpFrequency(strings.ToUpper(su.Frequency)),
				Percent:   su.Percent,
			}
			if rule.FlatAmount, err = parseDecimal(su.FlatAmount); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid flat_amount"})
				return
			}
			cfg.StepUp = rule
		}
		rec.SIP = cfg
		today := dates.FromTime(h.clock.NowIST())
		rec.Installments = sip.GenerateSchedule(cfg.StartDate, cfg.DayOfMonth, cfg.MonthlyAmount, today)
	}

	id, err := h.repo.CreateRecord(ctx, rec)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"fund_id": id, "scheme_code": rec.SchemeCode})
}

func (h *Handler) ListFunds(c *gin.Context) {
	recs, err := h.repo.ListRecords(c.Request.Context(), c.Param("ownerId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"funds": recs})
}

func (h *Handler) DeleteFund(c *gin.Context) {
	if err := h.repo.DeleteRecord(c.Request.Context(), c.Param("fundId"), c.Param("ownerId")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// GetValuation runs the full pipeline. amount/date query parameters value a
// hypothetical lump-sum position without touching the stored record.
func (h *Handler) GetValuation(c *gin.Context) {
	var override valuation.Override
	if raw := c.Query("amount"); raw != "" {
		amt, err := decimal.NewFromString(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		override.Amount = &amt
	}
	if raw := c.Query("date"); raw != "" {
		d, err := dates.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
			return
		}
		override.Date = &d
	}

	res, err := h.svc.Valuate(c.Request.Context(), c.Param("fundId"), c.Param("ownerId"), override)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type InstallmentActionRequest struct {
	Date   string `json:"date" binding:"required"`
	Action string `json:"action" binding:"required"`
}

func (h *Handler) ActionInstallment(c *gin.Context) {
	var req InstallmentActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := dates.Parse(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
		return
	}
	action := models.InstallmentStatus(strings.ToUpper(req.Action))
	if action != models.StatusPaid && action != models.StatusSkipped {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be PAID or SKIPPED"})
		return
	}

	totals, err := h.svc.ActionInstallment(c.Request.Context(), c.Param("fundId"), c.Param("ownerId"), date, action)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

func (h *Handler) SearchSchemes(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	candidates, err := h.schemes.ResolveSchemeCandidates(c.Request.Context(), q)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

// writeError maps the shared error taxonomy onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var ambiguous *models.AmbiguousSchemeError
	switch {
	case errors.Is(err, models.ErrRecordNotFound), errors.Is(err, models.ErrInstallmentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &ambiguous):
		c.JSON(http.StatusConflict, gin.H{"error": ambiguous.Error(), "candidates": ambiguous.Candidates})
	case errors.Is(err, models.ErrInstallmentNotActionable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrSchemeCodeMissing):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNoNavData), errors.Is(err, models.ErrProviderUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.log.Errorf("request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
