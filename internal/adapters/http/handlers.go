package http

import (
	"net/http"

	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	gw *app.Gateway
}

type LoginRequest struct {
	Name string `json:"name"`
}

type WhoAmIResponse struct {
	Name string `json:"name"`
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.gw.Rooms.List())
}

func (h *handlers) getRoom(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room, ok := h.gw.Rooms.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "users": room.MembersSnapshot()})
}

// login stores a validated display name in the cookie session so that a
// later websocket upgrade can omit ?name=.
func (h *handlers) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name"})
		return
	}
	name, err := domain.ValidateName(req.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := sessions.Default(c)
	sess.Set(signal.SessionNameKey, name)
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
		return
	}
	c.JSON(http.StatusOK, WhoAmIResponse{Name: name})
}

func (h *handlers) whoami(c *gin.Context) {
	name, _ := sessions.Default(c).Get(signal.SessionNameKey).(string)
	if name == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	c.JSON(http.StatusOK, WhoAmIResponse{Name: name})
}
