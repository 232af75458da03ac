package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/servicepoint/internal/catalog/domain"
)

type createOfferingRequest struct {
	ProviderID   string `json:"provider_id"`
	ProviderName string `json:"provider_name"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Price        string `json:"price"`
	PricingType  string `json:"pricing_type"`
}

func (s *Server) CreateOffering(c *gin.Context) {
	var req createOfferingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.Create(c.Request.Context(), catalogdomain.CreateOfferingRequest{
		ProviderID:   strings.TrimSpace(req.ProviderID),
		ProviderName: strings.TrimSpace(req.ProviderName),
		Name:         strings.TrimSpace(req.Name),
		Description:  strings.TrimSpace(req.Description),
		Price:        strings.TrimSpace(req.Price),
		PricingType:  strings.TrimSpace(req.PricingType),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListOfferings(c *gin.Context) {
	var query struct {
		ProviderID string `form:"provider_id"`
		Active     *bool  `form:"active"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	providerID := strings.TrimSpace(query.ProviderID)
	if providerID == "" {
		AbortWithError(c, newValidationError("provider_id", "required", "provider_id is required"))
		return
	}

	activeOnly := true
	if query.Active != nil {
		activeOnly = *query.Active
	}

	resp, err := s.catalogSvc.ListByProvider(c.Request.Context(), catalogdomain.ListOfferingsRequest{
		ProviderID: providerID,
		ActiveOnly: activeOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOfferingByID(c *gin.Context) {
	resp, err := s.catalogSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
