package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	joblogdomain "github.com/smallbiznis/payrun/internal/joblog/domain"
	"github.com/smallbiznis/payrun/pkg/db/pagination"
)

type fetchRequest struct {
	Max int `json:"max"`
}

func (s *Server) FetchAcknowledgments(c *gin.Context) {
	companyID, err := pathID(c, "company_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req fetchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, errInvalidRequest)
			return
		}
	}

	result, err := s.inboundSvc.Fetch(c.Request.Context(), companyID, c.Param("bank_code"), req.Max)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) Reconcile(c *gin.Context) {
	companyID, err := pathID(c, "company_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.reconcileSvc.Apply(c.Request.Context(), companyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListJobLogs(c *gin.Context) {
	companyID, err := pathID(c, "company_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query struct {
		pagination.Pagination
		BankCode  string `form:"bank_code"`
		Operation string `form:"operation"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	entries, pageInfo, err := s.jobLogSvc.List(c.Request.Context(), joblogdomain.ListRequest{
		CompanyID: companyID,
		BankCode:  strings.TrimSpace(query.BankCode),
		Operation: strings.TrimSpace(query.Operation),
		Limit:     query.PageSize,
		PageToken: query.PageToken,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries, "page_info": pageInfo})
}
