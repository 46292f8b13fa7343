package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Meesho/BharatMLStack/proxy-pool/internal/egress"
	egresserrors "github.com/Meesho/BharatMLStack/proxy-pool/internal/errors"
	"github.com/Meesho/BharatMLStack/proxy-pool/pkg/pool"
)

type Handler struct {
	sessions *pool.Pool[*egress.Session]
	rotation *egress.Rotation
}

func NewHandler(sessions *pool.Pool[*egress.Session], rotation *egress.Rotation) *Handler {
	return &Handler{
		sessions: sessions,
		rotation: rotation,
	}
}

func (h *Handler) Register(router *gin.Engine) {
	router.GET("/health/self", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "true"})
	})

	api := router.Group("/api/1.0")
	{
		api.GET("/pool/stats", h.poolStats)
		api.GET("/egress/endpoints", h.listEndpoints)
		api.POST("/egress/endpoints", h.registerEndpoints)
		api.DELETE("/egress/endpoints/:name", h.removeEndpoint)
		api.POST("/egress/endpoints/:name/ban", h.banEndpoint)
		api.POST("/egress/endpoints/:name/unban", h.unbanEndpoint)
		api.POST("/egress/endpoints/:name/cooldown", h.cooldownEndpoint)
	}
}

func (h *Handler) poolStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.Stats())
}

func (h *Handler) listEndpoints(c *gin.Context) {
	c.JSON(http.StatusOK, ListEndpointsResponse{Data: h.rotation.Status()})
}

func (h *Handler) registerEndpoints(c *gin.Context) {
	var req RegisterEndpointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if len(req.Endpoints) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "endpoints are required"})
		return
	}
	for _, ep := range req.Endpoints {
		if strings.TrimSpace(ep.Name) == "" || strings.TrimSpace(ep.Server) == "" || ep.Port <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "each endpoint needs name, server and port"})
			return
		}
	}

	h.rotation.Add(req.Endpoints)
	c.JSON(http.StatusOK, gin.H{"registered": len(req.Endpoints)})
}

func (h *Handler) removeEndpoint(c *gin.Context) {
	name := c.Param("name")
	if _, err := h.rotation.Endpoint(name); err != nil {
		writeEndpointErr(c, err)
		return
	}
	h.rotation.Remove([]string{name})
	c.JSON(http.StatusOK, EndpointActionResponse{Name: name, Status: "REMOVED"})
}

func (h *Handler) banEndpoint(c *gin.Context) {
	name := c.Param("name")
	if err := h.rotation.Ban(name); err != nil {
		writeEndpointErr(c, err)
		return
	}
	c.JSON(http.StatusOK, EndpointActionResponse{Name: name, Status: "BANNED"})
}

func (h *Handler) unbanEndpoint(c *gin.Context) {
	name := c.Param("name")
	if err := h.rotation.Unban(name); err != nil {
		writeEndpointErr(c, err)
		return
	}
	c.JSON(http.StatusOK, EndpointActionResponse{Name: name, Status: "UNBANNED"})
}

func (h *Handler) cooldownEndpoint(c *gin.Context) {
	name := c.Param("name")

	var req CooldownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.Seconds <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "seconds must be > 0"})
		return
	}

	if err := h.rotation.Cooldown(name, time.Duration(req.Seconds)*time.Second); err != nil {
		writeEndpointErr(c, err)
		return
	}
	c.JSON(http.StatusOK, EndpointActionResponse{Name: name, Status: "COOLING_DOWN"})
}

func writeEndpointErr(c *gin.Context, err error) {
	if errors.Is(err, egresserrors.ErrUnknownEndpoint) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}
