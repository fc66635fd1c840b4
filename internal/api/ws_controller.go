package api

import (
	"net/http"

	"fabrica/server/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeImportsWS подключает клиента к потоку состояний импорта
// GET /api/v1/ws/imports
func ServeImportsWS(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromGin(c)
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("⚠️ Ошибка обновления WebSocket соединения", zap.Error(err))
			return
		}

		hub.AddClient(conn)
		log.Info("📡 Клиент импорта подключен", zap.Int("clients", hub.GetClientsCount()))

		defer func() {
			hub.RemoveClient(conn)
			log.Info("📡 Клиент импорта отключен", zap.Int("clients", hub.GetClientsCount()))
		}()

		// Читаем только для обработки ping/close
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Warn("⚠️ WebSocket ошибка", zap.Error(err))
				}
				break
			}
		}
	}
}
