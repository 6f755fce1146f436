package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/go-doc-stats/model"
)

// CreateCollectionRequest is the body of POST /api/collections.
type CreateCollectionRequest struct {
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
}

// CollectionResponse is the API shape of a collection.
type CollectionResponse struct {
	ID          string   `json:"id"`
	OwnerID     string   `json:"owner_id,omitempty"`
	Name        string   `json:"name"`
	DocumentIDs []string `json:"document_ids"`
	CreatedAt   string   `json:"created_at"`
}

func toCollectionResponse(c model.Collection) CollectionResponse {
	ids := c.DocumentIDs
	if ids == nil {
		ids = []string{}
	}
	return CollectionResponse{
		ID:          c.ID,
		OwnerID:     c.OwnerID,
		Name:        c.Name,
		DocumentIDs: ids,
		CreatedAt:   c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// pathID reads and validates a path parameter, sending a validation error when it is unusable.
func pathID(c *gin.Context, param string) (string, bool) {
	id := c.Param(param)
	if result := ValidateID(param, id); result.HasErrors() {
		SendValidationError(c, result)
		return "", false
	}
	return id, true
}

// CreateCollectionHandler handles the request to create a new collection.
// Request Body: CreateCollectionRequest
func (api *API) CreateCollectionHandler(c *gin.Context) {
	var req CreateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	if result := ValidateCollectionRequest(&req); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	collection, err := api.engine.CreateCollection(c.Request.Context(), req.OwnerID, req.Name)
	if err != nil {
		SendEngineError(c, "create collection", err)
		return
	}
	c.JSON(http.StatusCreated, toCollectionResponse(collection))
}

// ListCollectionsHandler lists collections, filtered by the owner_id query parameter when given.
func (api *API) ListCollectionsHandler(c *gin.Context) {
	collections, err := api.engine.ListCollections(c.Request.Context(), c.Query("owner_id"))
	if err != nil {
		SendEngineError(c, "list collections", err)
		return
	}

	out := make([]CollectionResponse, len(collections))
	for i, collection := range collections {
		out[i] = toCollectionResponse(collection)
	}
	c.JSON(http.StatusOK, gin.H{
		"collections": out,
		"total":       len(out),
	})
}

// GetCollectionHandler returns a collection and its member document IDs.
func (api *API) GetCollectionHandler(c *gin.Context) {
	collectionID, ok := pathID(c, "collectionId")
	if !ok {
		return
	}
	collection, err := api.engine.GetCollection(c.Request.Context(), collectionID)
	if err != nil {
		SendEngineError(c, "get collection", err)
		return
	}
	c.JSON(http.StatusOK, toCollectionResponse(collection))
}

// DeleteCollectionHandler deletes a collection together with its documents.
func (api *API) DeleteCollectionHandler(c *gin.Context) {
	collectionID, ok := pathID(c, "collectionId")
	if !ok {
		return
	}
	if err := api.engine.DeleteCollection(c.Request.Context(), collectionID); err != nil {
		SendEngineError(c, "delete collection", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Collection '" + collectionID + "' deleted"})
}

// CollectionStatisticsHandler returns the aggregate term statistics of a collection.
func (api *API) CollectionStatisticsHandler(c *gin.Context) {
	collectionID, ok := pathID(c, "collectionId")
	if !ok {
		return
	}
	scores, err := api.engine.CollectionStatistics(c.Request.Context(), collectionID)
	if err != nil {
		SendEngineError(c, "collection statistics", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"collection_id": collectionID,
		"statistics":    scores,
	})
}

// RecalculateHandler runs an explicit recalculation pass over a collection.
func (api *API) RecalculateHandler(c *gin.Context) {
	collectionID, ok := pathID(c, "collectionId")
	if !ok {
		return
	}
	if err := api.engine.Recalculate(c.Request.Context(), collectionID); err != nil {
		SendEngineError(c, "recalculate", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Collection '" + collectionID + "' recalculated"})
}

// AttachDocumentHandler moves an existing document into a collection.
func (api *API) AttachDocumentHandler(c *gin.Context) {
	collectionID, ok := pathID(c, "collectionId")
	if !ok {
		return
	}
	documentID, ok := pathID(c, "documentId")
	if !ok {
		return
	}
	if err := api.engine.AttachDocument(c.Request.Context(), collectionID, documentID); err != nil {
		SendEngineError(c, "attach document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "Document '" + documentID + "' added to collection '" + collectionID + "'",
		"collection_id": collectionID,
		"document_id":   documentID,
	})
}

// DetachDocumentHandler removes a document from a collection without deleting it.
func (api *API) DetachDocumentHandler(c *gin.Context) {
	collectionID, ok := pathID(c, "collectionId")
	if !ok {
		return
	}
	documentID, ok := pathID(c, "documentId")
	if !ok {
		return
	}
	if err := api.engine.DetachDocument(c.Request.Context(), collectionID, documentID); err != nil {
		SendEngineError(c, "detach document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "Document '" + documentID + "' removed from collection '" + collectionID + "'",
		"collection_id": collectionID,
		"document_id":   documentID,
	})
}
