package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/go-doc-stats/internal/huffman"
	"github.com/gcbaptista/go-doc-stats/model"
)

// UploadDocumentRequest is the JSON alternative to a multipart upload.
type UploadDocumentRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// EncodingResponse is the Huffman encoding of a stored document.
type EncodingResponse struct {
	DocumentID string `json:"document_id"`
	model.HuffmanEncoding
}

// DecodeRequest is the body of POST /api/huffman/decode.
type DecodeRequest struct {
	Encoded   string            `json:"encoded"`
	CodeTable map[string]string `json:"code_table"`
}

// UploadDocumentHandler stores a document and rescores its collection.
// Accepts multipart/form-data with a "file" field, or a JSON UploadDocumentRequest.
// Without a collectionId path parameter the document is stored standalone.
func (api *API) UploadDocumentHandler(c *gin.Context) {
	collectionID := c.Param("collectionId")
	if collectionID != "" {
		if result := ValidateID("collectionId", collectionID); result.HasErrors() {
			SendValidationError(c, result)
			return
		}
	}

	filename, content, ok := api.readUpload(c)
	if !ok {
		return
	}
	if result := ValidateUpload(filename, content, api.options.AllowedExtensions); result.HasErrors() {
		api.options.Metrics.DocumentsRejected.WithLabelValues("invalid_upload").Inc()
		SendValidationError(c, result)
		return
	}

	doc, err := api.engine.UploadDocument(c.Request.Context(), collectionID, filename, string(content))
	if err != nil {
		SendEngineError(c, "upload document", err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// readUpload extracts filename and content from the request, sending the error response itself on failure.
func (api *API) readUpload(c *gin.Context) (string, []byte, bool) {
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		header, err := c.FormFile("file")
		if err != nil {
			if api.tooLarge(c, err) {
				return "", nil, false
			}
			SendError(c, http.StatusBadRequest, ErrorCodeInvalidRequest, "Multipart upload must carry a 'file' field")
			return "", nil, false
		}
		f, err := header.Open()
		if err != nil {
			SendError(c, http.StatusBadRequest, ErrorCodeInvalidRequest, "Failed to read uploaded file: "+err.Error())
			return "", nil, false
		}
		defer f.Close()

		content, err := io.ReadAll(f)
		if err != nil {
			if api.tooLarge(c, err) {
				return "", nil, false
			}
			SendError(c, http.StatusBadRequest, ErrorCodeInvalidRequest, "Failed to read uploaded file: "+err.Error())
			return "", nil, false
		}
		return header.Filename, content, true
	}

	var req UploadDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if api.tooLarge(c, err) {
			return "", nil, false
		}
		SendInvalidJSONError(c, err)
		return "", nil, false
	}
	return req.Filename, []byte(req.Content), true
}

// tooLarge sends a 413 and reports true when err comes from the body size limit.
func (api *API) tooLarge(c *gin.Context, err error) bool {
	var maxErr *http.MaxBytesError
	if !errors.As(err, &maxErr) {
		return false
	}
	api.options.Metrics.DocumentsRejected.WithLabelValues("too_large").Inc()
	SendPayloadTooLargeError(c, maxErr.Limit)
	return true
}

// GetDocumentHandler retrieves a specific document by ID
func (api *API) GetDocumentHandler(c *gin.Context) {
	documentID, ok := pathID(c, "documentId")
	if !ok {
		return
	}
	doc, err := api.engine.GetDocument(c.Request.Context(), documentID)
	if err != nil {
		SendEngineError(c, "get document", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// DeleteDocumentHandler deletes a specific document by ID
func (api *API) DeleteDocumentHandler(c *gin.Context) {
	documentID, ok := pathID(c, "documentId")
	if !ok {
		return
	}
	if err := api.engine.DeleteDocument(c.Request.Context(), documentID); err != nil {
		SendEngineError(c, "delete document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document '" + documentID + "' deleted"})
}

// DocumentStatisticsHandler returns the document's terms ranked by IDF.
func (api *API) DocumentStatisticsHandler(c *gin.Context) {
	documentID, ok := pathID(c, "documentId")
	if !ok {
		return
	}
	scores, err := api.engine.DocumentStatistics(c.Request.Context(), documentID)
	if err != nil {
		SendEngineError(c, "document statistics", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"document_id": documentID,
		"statistics":  scores,
	})
}

// EncodeDocumentHandler returns the Huffman encoding of a document's content.
func (api *API) EncodeDocumentHandler(c *gin.Context) {
	documentID, ok := pathID(c, "documentId")
	if !ok {
		return
	}
	enc, err := api.engine.EncodeDocument(c.Request.Context(), documentID)
	if err != nil {
		SendEngineError(c, "encode document", err)
		return
	}
	c.JSON(http.StatusOK, EncodingResponse{DocumentID: documentID, HuffmanEncoding: enc})
}

// DecodeHandler reverses an encoding using only its code table.
func (api *API) DecodeHandler(c *gin.Context) {
	var req DecodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}

	parsed, err := huffman.FromModel(model.HuffmanEncoding{Encoded: req.Encoded, CodeTable: req.CodeTable})
	if err != nil {
		SendEngineError(c, "decode", err)
		return
	}
	content, err := huffman.Decode(parsed.Encoded, parsed.Table)
	if err != nil {
		SendEngineError(c, "decode", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": content})
}
