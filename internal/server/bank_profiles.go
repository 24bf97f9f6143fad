package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	bankprofiledomain "github.com/smallbiznis/payrun/internal/bankprofile/domain"
)

type upsertBankProfileRequest struct {
	ChannelKind string         `json:"channel_kind"`
	Config      map[string]any `json:"config"`
	Actor       string         `json:"actor"`
}

type setBankProfileStatusRequest struct {
	IsActive *bool  `json:"is_active"`
	Actor    string `json:"actor"`
}

func (s *Server) UpsertBankProfile(c *gin.Context) {
	companyID, err := pathID(c, "company_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req upsertBankProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	profile, err := s.profileSvc.Upsert(c.Request.Context(), bankprofiledomain.UpsertRequest{
		CompanyID:   companyID,
		BankCode:    c.Param("bank_code"),
		ChannelKind: bankprofiledomain.ChannelKind(strings.TrimSpace(req.ChannelKind)),
		Config:      req.Config,
		Actor:       strings.TrimSpace(req.Actor),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": profile})
}

func (s *Server) GetBankProfile(c *gin.Context) {
	companyID, err := pathID(c, "company_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	profile, err := s.profileSvc.Get(c.Request.Context(), companyID, c.Param("bank_code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": profile})
}

func (s *Server) ListBankProfiles(c *gin.Context) {
	companyID, err := pathID(c, "company_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	profiles, err := s.profileSvc.List(c.Request.Context(), companyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": profiles})
}

func (s *Server) SetBankProfileStatus(c *gin.Context) {
	companyID, err := pathID(c, "company_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req setBankProfileStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	profile, err := s.profileSvc.SetActive(c.Request.Context(), companyID, c.Param("bank_code"), *req.IsActive, req.Actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": profile})
}

func pathID(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		return 0, errInvalidRequest
	}
	return id, nil
}
