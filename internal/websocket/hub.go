package websocket

import (
	"sync"
)

// Message 发往某个会话订阅者的消息
type Message struct {
	SessionID string
	Data      []byte
}

// Hub 管理所有 WebSocket 连接
type Hub struct {
	// 已注册的客户端,按会话分组
	clients map[string]map[*Client]bool

	// Broadcast 发送消息到会话的所有订阅者
	Broadcast chan Message

	// Register 注册新客户端
	Register chan *Client

	// Unregister 注销客户端
	Unregister chan *Client

	// CloseSession 断开会话的所有订阅者
	CloseSession chan string

	// 互斥锁，保护 clients map
	mu sync.RWMutex

	done chan struct{}
}

// NewHub 创建新的 Hub
func NewHub() *Hub {
	return &Hub{
		clients:      make(map[string]map[*Client]bool),
		Broadcast:    make(chan Message, 256),
		Register:     make(chan *Client),
		Unregister:   make(chan *Client),
		CloseSession: make(chan string),
		done:         make(chan struct{}),
	}
}

// Run 运行 Hub,直到 Stop 被调用
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.clients[client.SessionID] == nil {
				h.clients[client.SessionID] = make(map[*Client]bool)
			}
			h.clients[client.SessionID][client] = true
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case sessionID := <-h.CloseSession:
			h.mu.Lock()
			for client := range h.clients[sessionID] {
				h.removeLocked(client)
			}
			h.mu.Unlock()

		case msg := <-h.Broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.SessionID] {
				select {
				case client.Send <- msg.Data:
				default:
					// 慢客户端直接断开,重连后会收到最新状态
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			return
		}
	}
}

// Publish 非阻塞地向会话订阅者投递消息,队列满时丢弃（后续状态会覆盖）
func (h *Hub) Publish(sessionID string, data []byte) bool {
	select {
	case h.Broadcast <- Message{SessionID: sessionID, Data: data}:
		return true
	default:
		return false
	}
}

// Disconnect 断开会话的所有订阅者（会话关闭时调用）
func (h *Hub) Disconnect(sessionID string) {
	select {
	case h.CloseSession <- sessionID:
	case <-h.done:
	}
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// ClientCount 获取所有会话的订阅者总数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.SessionID]
	if !ok {
		return
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.Send)
	}
	if len(clients) == 0 {
		delete(h.clients, client.SessionID)
	}
}
