package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsrunbook/engine/pkg/document"
)

// writeError maps a document/dochandle error to an HTTP status + body by
// dispatching on the document error taxonomy.
func writeError(c *gin.Context, err error) {
	var docErr *document.Error
	if errors.As(err, &docErr) {
		switch {
		case errors.Is(docErr.Err, document.ErrBlockNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: docErr.Error()})
			return
		case errors.Is(docErr.Err, document.ErrUnknownBlockType):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: docErr.Error()})
			return
		case errors.Is(docErr.Err, document.ErrBlockNotInteractive):
			c.JSON(http.StatusConflict, ErrorResponse{Error: docErr.Error()})
			return
		}
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}
