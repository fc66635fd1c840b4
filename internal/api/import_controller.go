package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"fabrica/server/internal/logger"
	"fabrica/server/internal/models"
	"fabrica/server/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ImportJobReader источник сохраненных итогов импорта
type ImportJobReader interface {
	Get(ctx context.Context, jobID string) (*models.ImportResult, error)
}

type ImportController struct {
	pipeline *services.ImportPipeline
	jobs     ImportJobReader
}

func NewImportController(pipeline *services.ImportPipeline, jobs ImportJobReader) *ImportController {
	return &ImportController{pipeline: pipeline, jobs: jobs}
}

// Import загружает файл и импортирует его
// POST /api/v1/imports/:type (multipart: file, tenant_id)
func (ic *ImportController) Import(c *gin.Context) {
	importType := models.ImportType(strings.ReplaceAll(strings.ToLower(c.Param("type")), "-", "_"))
	if _, err := services.TableFor(importType); err != nil {
		respondError(c, http.StatusBadRequest, "Неизвестный тип импорта", err)
		return
	}

	tenant := tenantID(c)
	if tenant == "" {
		respondError(c, http.StatusBadRequest, "Не указан tenant_id", nil)
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "Файл не найден в запросе", err)
		return
	}
	defer file.Close()

	result, err := ic.pipeline.Run(c.Request.Context(), services.ImportRequest{
		TenantID: tenant,
		Type:     importType,
		FileName: header.Filename,
		Body:     file,
	})
	if err != nil {
		var structural *services.StructuralImportError
		switch {
		case errors.As(err, &structural):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "Файл не может быть импортирован",
				"details": err.Error(),
				"missing": structural.Missing,
				"result":  result,
			})
		case errors.Is(err, services.ErrUnsupportedImportType):
			respondError(c, http.StatusBadRequest, "Неизвестный тип импорта", err)
		default:
			logger.FromGin(c).Error("❌ Ошибка импорта", zap.Error(err))
			respondError(c, http.StatusInternalServerError, "Ошибка импорта", err)
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetJob возвращает сохраненные итоги импорта
// GET /api/v1/imports/jobs/:id
func (ic *ImportController) GetJob(c *gin.Context) {
	if ic.jobs == nil {
		respondError(c, http.StatusServiceUnavailable, "Хранилище итогов импорта недоступно (Redis не подключен)", nil)
		return
	}

	result, err := ic.jobs.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, services.ErrNotFound) {
		respondError(c, http.StatusNotFound, "Импорт не найден", nil)
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Ошибка чтения итогов импорта", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
