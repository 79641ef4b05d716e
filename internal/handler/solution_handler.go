package handler

import (
	"errors"
	"net/http"

	"spec-mc/internal/service"

	"github.com/gin-gonic/gin"
)

type SolutionHandler struct{}

func NewSolutionHandler() *SolutionHandler {
	return &SolutionHandler{}
}

type validateSolutionRequest struct {
	SolutionID    string                `json:"solution_id"`
	Measurements  []service.Measurement `json:"measurements"`
	IsotopeRatios map[string]float64    `json:"isotope_ratios,omitempty"`
}

// ValidateSolution 只做组成校验，不触发求解（前端录入时的预检）
func (h *SolutionHandler) ValidateSolution(c *gin.Context) {
	var req validateSolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comp, err := service.NewSolutionComposition(req.SolutionID, req.Measurements, req.IsotopeRatios)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"valid": false,
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":        true,
		"solution_id":  comp.ID(),
		"measurements": comp.Measurements(),
	})
}
