package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"fabrica/server/internal/logger"
	"fabrica/server/internal/models"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub управляет WebSocket соединениями клиентов, следящих за импортом файлов
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.RWMutex
}

// NewHub создает хаб
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 256),
	}
}

// Run рассылает сообщения до отмены контекста
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case msg := <-h.broadcast:
			h.send(msg)
		}
	}
}

func (h *Hub) send(msg []byte) {
	h.mutex.RLock()
	var failed []*websocket.Conn
	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
			failed = append(failed, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range failed {
		h.RemoveClient(client)
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}

// AddClient добавляет клиента
func (h *Hub) AddClient(conn *websocket.Conn) {
	h.mutex.Lock()
	h.clients[conn] = true
	h.mutex.Unlock()
}

// RemoveClient удаляет клиента и закрывает соединение
func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mutex.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mutex.Unlock()
}

// BroadcastMessage ставит сообщение в очередь рассылки. Переполненная очередь - сообщение теряется
func (h *Hub) BroadcastMessage(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		return false
	}
}

// GetClientsCount количество подключенных клиентов
func (h *Hub) GetClientsCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ImportProgressMessage сообщение о смене состояния импорта
type ImportProgressMessage struct {
	Type   string              `json:"type"`
	Result models.ImportResult `json:"result"`
}

// ImportStateChanged рассылает снимок итогов импорта подключенным клиентам
func (h *Hub) ImportStateChanged(ctx context.Context, result models.ImportResult) {
	payload, err := json.Marshal(ImportProgressMessage{Type: "import_progress", Result: result})
	if err != nil {
		logger.FromContext(ctx).Warn("⚠️ Не удалось сериализовать прогресс импорта", zap.Error(err))
		return
	}
	if !h.BroadcastMessage(payload) {
		logger.FromContext(ctx).Warn("⚠️ Очередь WebSocket переполнена, сообщение пропущено",
			zap.String("job_id", result.JobID))
	}
}
