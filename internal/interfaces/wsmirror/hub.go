package wsmirror

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"standlog/internal/application/port"
)

const (
	clientBuffer = 256
	writeTimeout = 5 * time.Second
)

// Message 推送给浏览器/终端客户端的一条控制台消息
type Message struct {
	Type string `json:"type"` // line / info / warn
	Text string `json:"text"`
	Ts   int64  `json:"ts"` // unix ms
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Hub 将控制台输出镜像到所有 websocket 客户端。
// 客户端缓冲满时丢弃该客户端的消息，不阻塞读取循环
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	now     func() time.Time

	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		now:     time.Now,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Hub) Publish(line string) { h.broadcast("line", line) }
func (h *Hub) Info(msg string)     { h.broadcast("info", msg) }
func (h *Hub) Warn(msg string)     { h.broadcast("warn", msg) }

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(typ, text string) {
	data, err := json.Marshal(Message{Type: typ, Text: text, Ts: h.now().UnixMilli()})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Debug().Msg("websocket client too slow, message dropped")
		}
	}
}

// ServeHTTP 升级连接并注册客户端
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	go c.writePump()

	log.Info().Str("remote", r.RemoteAddr).Msg("ws client connected")

	// 只读不处理，读失败即断开
	go func() {
		defer func() {
			h.remove(c)
			log.Info().Str("remote", r.RemoteAddr).Msg("ws client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Close 断开所有客户端
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// Server 在 addr 上提供 path 的 websocket 端点
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen 绑定地址；Serve 前即可通过 Addr 得到实际端口
func Listen(addr, path string, hub *Hub) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle(path, hub)
	return &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}, nil
}

func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve 阻塞直到 Shutdown
func (s *Server) Serve() error {
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

var _ port.Console = (*Hub)(nil)
