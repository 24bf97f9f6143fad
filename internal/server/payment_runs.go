package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	dispatchdomain "github.com/smallbiznis/payrun/internal/dispatch/domain"
	paymentrundomain "github.com/smallbiznis/payrun/internal/paymentrun/domain"
)

type dispatchRequest struct {
	BankCode string `json:"bank_code"`
	DryRun   bool   `json:"dry_run"`
}

func (s *Server) GetPaymentRun(c *gin.Context) {
	companyID, err := pathID(c, "company_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	runID, err := pathID(c, "run_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	run, err := s.runRepo.FindRun(c.Request.Context(), s.db, companyID, runID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if run == nil {
		AbortWithError(c, paymentrundomain.ErrRunNotFound)
		return
	}

	lines, err := s.runRepo.FindLines(c.Request.Context(), s.db, run.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"run": run, "lines": lines}})
}

func (s *Server) DispatchPaymentRun(c *gin.Context) {
	companyID, err := pathID(c, "company_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	runID, err := pathID(c, "run_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	result, err := s.dispatchSvc.Dispatch(c.Request.Context(), dispatchdomain.DispatchRequest{
		CompanyID: companyID,
		RunID:     runID,
		BankCode:  strings.TrimSpace(req.BankCode),
		DryRun:    req.DryRun,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
