package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/alimasry/typing-replay/gitsource"
	"github.com/alimasry/typing-replay/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewHandler creates the HTTP handler with all routes.
func NewHandler(hub *Hub) http.Handler {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api := r.Group("/api/documents")
	api.GET("", hub.listDocuments)
	api.POST("", hub.createDocument)
	api.GET("/:id", hub.getDocument)
	api.POST("/:id/revisions", hub.commitRevision)
	api.GET("/:id/revisions/:version", hub.getRevision)
	api.POST("/:id/import", hub.importHistory)

	// WebSocket endpoint.
	r.GET("/ws", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("websocket upgrade error: %v", err)
			return
		}
		client := newClient(hub, conn)
		go client.WritePump()
		go client.ReadPump()
	})

	// Serve static files.
	r.NoRoute(gin.WrapH(http.FileServer(http.Dir("static"))))

	return r
}

type createRequest struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type commitRequest struct {
	Content string `json:"content"`
}

type importRequest struct {
	Org  string `json:"org" binding:"required"`
	Repo string `json:"repo" binding:"required"`
	Ref  string `json:"ref"`
	File string `json:"file" binding:"required"`
}

func (h *Hub) listDocuments(c *gin.Context) {
	docs, err := h.store.List(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	if docs == nil {
		docs = []store.DocumentInfo{}
	}
	c.JSON(http.StatusOK, docs)
}

func (h *Hub) createDocument(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.ID == "" {
		req.ID = generateID()
	}
	ctx := c.Request.Context()
	if err := h.store.Create(ctx, req.ID, req.Content); err != nil {
		storeError(c, err)
		return
	}
	info, err := h.store.Get(ctx, req.ID)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (h *Hub) getDocument(c *gin.Context) {
	info, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Hub) commitRevision(c *gin.Context) {
	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	info, err := store.Commit(c.Request.Context(), h.store, c.Param("id"), req.Content, h.diff)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// getRevision returns the sequence that produced revision :version.
func (h *Hub) getRevision(c *gin.Context) {
	id := c.Param("id")
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version"})
		return
	}
	ctx := c.Request.Context()
	info, err := h.store.Get(ctx, id)
	if err != nil {
		storeError(c, err)
		return
	}
	if version < 1 || version > info.Version {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such revision"})
		return
	}
	ops, err := h.store.GetOperations(ctx, id, version-1)
	if err != nil {
		storeError(c, err)
		return
	}
	if len(ops) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such revision"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      id,
		"version": version,
		"before":  ops[0].Before(),
		"after":   ops[0].After(),
		"ops":     ops[0],
	})
}

// importHistory creates :id from the history of a file in a git repository.
// Each commit that changed the file becomes one revision.
func (h *Hub) importHistory(c *gin.Context) {
	if h.repos == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "git import is not configured"})
		return
	}
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ctx := c.Request.Context()
	src, err := h.repos.Open(ctx, req.Org, req.Repo)
	if errors.Is(err, gitsource.ErrInvalidName) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.Printf("api: open %s/%s: %v", req.Org, req.Repo, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "repository unavailable"})
		return
	}
	revs, err := src.FileHistory(req.Ref, req.File)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	imported, err := gitsource.Import(ctx, h.store, c.Param("id"), revs, h.diff)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": c.Param("id"), "commits": imported})
}

func storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrExists), errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("api: store error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
