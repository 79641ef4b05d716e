package handler

import (
	"errors"
	"net/http"

	"spec-mc/internal/db"
	"spec-mc/internal/model"
	"spec-mc/internal/service"

	"github.com/gin-gonic/gin"
)

type BatchHandler struct {
	batch *service.BatchService
}

func NewBatchHandler(batch *service.BatchService) *BatchHandler {
	return &BatchHandler{batch: batch}
}

// RunBatch 跑一整批蒙特卡洛：采样 -> 求解 -> 汇总 -> 出报告
func (h *BatchHandler) RunBatch(c *gin.Context) {
	if h.batch == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "batch service not initialized"})
		return
	}

	var req service.BatchRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.batch.Run(c.Request.Context(), req)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var bErr *service.BatchFailureError
		var iErr *service.InsufficientDataError
		if errors.As(err, &bErr) || errors.As(err, &iErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result":      result,
		"result_path": result.ResultPath,
		"report_path": result.ReportPath,
	})
}

// ListBatches 历史批次列表
func (h *BatchHandler) ListBatches(c *gin.Context) {
	var runs []model.BatchRun
	query := db.DB.Model(&model.BatchRun{}).Order("id DESC")

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Limit(100).Find(&runs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

// GetBatch 单个批次元数据
func (h *BatchHandler) GetBatch(c *gin.Context) {
	var run model.BatchRun
	if err := db.DB.First(&run, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

// GetTrials 批次内的试验执行记录（可按状态过滤，看失败归因）
func (h *BatchHandler) GetTrials(c *gin.Context) {
	var records []model.TrialRecord
	query := db.DB.Where("run_id = ?", c.Param("id")).Order("trial_index")

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Find(&records).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trials": records,
		"total":  len(records),
	})
}
