// Package console serves the local control API the console UI and
// chatctl talk to. It only binds loopback; auth is the OS user.
package console

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/komsan13/chat-center-sub000/internal/chat"
	"github.com/komsan13/chat-center-sub000/internal/gateway"
	"github.com/komsan13/chat-center-sub000/internal/outbox"
	"github.com/komsan13/chat-center-sub000/internal/readsync"
	syncengine "github.com/komsan13/chat-center-sub000/internal/sync"
	"github.com/komsan13/chat-center-sub000/internal/typing"
	"go.uber.org/zap"
)

// Server exposes the sync core over HTTP for the operator-facing UI.
type Server struct {
	addr   string
	engine *syncengine.Engine
	sender *outbox.Sender
	reader *readsync.Broadcaster
	typing *typing.Local
	remote *typing.Remote
	convs  *chat.Store
	cache  *chat.Cache
	gw     *gateway.Gateway
	logger *zap.Logger
	srv    *http.Server
}

// Deps collects the server's collaborators.
type Deps struct {
	Engine       *syncengine.Engine
	Sender       *outbox.Sender
	Reader       *readsync.Broadcaster
	LocalTyping  *typing.Local
	RemoteTyping *typing.Remote
	Convs        *chat.Store
	Cache        *chat.Cache
	Gateway      *gateway.Gateway
	Logger       *zap.Logger
}

func NewServer(addr string, d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:   addr,
		engine: d.Engine,
		sender: d.Sender,
		reader: d.Reader,
		typing: d.LocalTyping,
		remote: d.RemoteTyping,
		convs:  d.Convs,
		cache:  d.Cache,
		gw:     d.Gateway,
		logger: logger,
	}
}

// Router builds the gin engine. Split out so tests can drive handlers
// without a listener.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/status", s.getStatus)
	r.POST("/reconnect", s.postReconnect)

	r.GET("/conversations", s.listConversations)
	r.POST("/conversations/refresh", s.postRefresh)
	r.POST("/conversations/:id/open", s.postOpen)
	r.POST("/selection/close", s.postClose)
	r.GET("/conversations/:id/messages", s.getMessages)
	r.POST("/conversations/:id/messages", s.postMessage)
	r.POST("/conversations/:id/read", s.postRead)
	r.POST("/conversations/:id/typing", s.postTyping)

	return r
}

// Start begins serving. The listener is opened synchronously so an
// occupied port fails startup instead of surfacing later.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.srv = &http.Server{Handler: s.Router()}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control api serve", zap.Error(err))
		}
	}()
	s.logger.Info("control api listening", zap.String("addr", s.addr))
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	if s.srv == nil {
		return
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("control api shutdown", zap.Error(err))
	}
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connection": s.gw.State(),
		"active":     s.convs.ActiveID(),
	})
}

func (s *Server) postReconnect(c *gin.Context) {
	if err := s.gw.Reconnect(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listConversations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"conversations": s.convs.List(),
		"active":        s.convs.ActiveID(),
		"typing":        s.remote.Snapshot(),
	})
}

func (s *Server) postRefresh(c *gin.Context) {
	var req struct {
		Filter string `json:"filter"`
		Search string `json:"search"`
	}
	// An absent or empty body is a plain "refresh everything".
	_ = c.ShouldBindJSON(&req)
	if err := s.engine.Refresh(c.Request.Context(), req.Filter, req.Search); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "conversation list fetch failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": s.convs.List()})
}

func (s *Server) postOpen(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.convs.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown conversation"})
		return
	}
	if err := s.engine.Open(c.Request.Context(), id); err != nil {
		// The conversation is open locally even when the read state
		// could not be persisted; report the degraded result.
		c.JSON(http.StatusAccepted, gin.H{"active": id, "warning": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": id})
}

func (s *Server) postClose(c *gin.Context) {
	s.engine.Close()
	c.Status(http.StatusNoContent)
}

func (s *Server) getMessages(c *gin.Context) {
	id := c.Param("id")
	resp := gin.H{"messages": s.cache.Messages(id)}
	if name, ok := s.remote.ActiveIn(id); ok {
		resp["typing"] = name
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) postMessage(c *gin.Context) {
	id := c.Param("id")
	var req struct {
		Type    string `json:"type"`
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	contentType := chat.ContentType(req.Type)
	if req.Type == "" {
		contentType = chat.TypeText
	}

	pid, err := s.sender.Send(c.Request.Context(), id, contentType, req.Content)
	if errors.Is(err, outbox.ErrEmptyMessage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "send rejected", "placeholder_id": pid})
		return
	}
	c.JSON(http.StatusOK, gin.H{"placeholder_id": pid})
}

func (s *Server) postRead(c *gin.Context) {
	if err := s.reader.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "read state not persisted"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) postTyping(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.typing.InputChanged(c.Param("id"), req.Content)
	c.Status(http.StatusNoContent)
}
