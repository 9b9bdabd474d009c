package server

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/plainhr/plain/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

func (s *Server) upgrader() websocket.Upgrader {
	origins := s.cfg.Server.AllowedOrigins
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(origins) == 0 || allowsAnyOrigin(origins) {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			for _, o := range origins {
				if o == origin || o == u.Scheme+"://"+u.Host {
					return true
				}
			}
			return false
		},
	}
}

// commentFeed отправляет новые комментарии поста по WebSocket, пока клиент
// держит соединение. Сообщения от клиента игнорируются.
func (s *Server) commentFeed(c *gin.Context) {
	postType := models.PostType(c.Param("type"))
	postID := c.Param("id")
	if !postType.Valid() {
		badRequest(c, "unknown post type")
		return
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection", zap.String("postID", postID), zap.Error(err))
		return
	}
	log := s.logger.With(zap.String("postType", string(postType)), zap.String("postID", postID))
	log.Debug("Comment feed connected")

	ctx, cancel := context.WithCancel(context.Background())
	feed := s.hub.Subscribe(ctx, postType, postID)

	go s.readPump(conn, cancel, log)
	s.writePump(conn, feed, cancel, log)
}

// readPump нужен для обработки ping/pong и закрытия соединения клиентом.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc, log *zap.Logger) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Comment feed read error", zap.Error(err))
			}
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, feed <-chan *models.Comment, cancel context.CancelFunc, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		_ = conn.Close()
		log.Debug("Comment feed closed")
	}()

	for {
		select {
		case comment, ok := <-feed:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(comment); err != nil {
				log.Warn("Failed to write comment", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
