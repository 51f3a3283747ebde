package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	importerdomain "github.com/newsmint/kiosk/internal/importer/domain"
)

type createImportRequest struct {
	FileName      string               `json:"file_name"`
	FileSize      int64                `json:"file_size"`
	Uploader      string               `json:"uploader"`
	SourceType    string               `json:"source_type"`
	ColumnMapping map[string]string    `json:"column_mapping"`
	Rows          []importerdomain.Row `json:"rows"`
}

func (s *Server) CreateImport(c *gin.Context) {
	var req createImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	batch, err := s.importSvc.CreateBatch(c.Request.Context(), importerdomain.CreateBatchRequest{
		FileName:      strings.TrimSpace(req.FileName),
		FileSize:      req.FileSize,
		Uploader:      strings.TrimSpace(req.Uploader),
		SourceType:    strings.TrimSpace(req.SourceType),
		ColumnMapping: req.ColumnMapping,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if len(req.Rows) > 0 {
		batch, err = s.importSvc.ProcessRows(c.Request.Context(), batch.Ref, req.Rows)
		if err != nil {
			AbortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusCreated, gin.H{"data": batch})
}

type importRowsRequest struct {
	Rows []importerdomain.Row `json:"rows"`
}

func (s *Server) ImportRows(c *gin.Context) {
	ref := strings.TrimSpace(c.Param("ref"))

	var req importRowsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	batch, err := s.importSvc.ProcessRows(c.Request.Context(), ref, req.Rows)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": batch})
}

func (s *Server) FinalizeImport(c *gin.Context) {
	ref := strings.TrimSpace(c.Param("ref"))

	batch, err := s.importSvc.FinalizeBatch(c.Request.Context(), ref)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": batch})
}

func (s *Server) CancelImport(c *gin.Context) {
	ref := strings.TrimSpace(c.Param("ref"))

	batch, err := s.importSvc.CancelBatch(c.Request.Context(), ref)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": batch})
}

func (s *Server) GetImport(c *gin.Context) {
	ref := strings.TrimSpace(c.Param("ref"))

	detail, err := s.importSvc.GetBatch(c.Request.Context(), ref)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": detail})
}
