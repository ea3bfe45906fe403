// internal/service/feed/hub.go
package feed

import (
	"context"

	"github.com/pkg/errors"

	"stampcard/internal/pkg/logger"
)

var errHubStopped = errors.New("feed: hub stopped")

// outbound 是一条待推送给某个商户的消息
type outbound struct {
	businessID string
	payload    []byte
}

// Hub 维护所有活跃的看板连接，按商户 ID 分组广播
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	count      chan chan int
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 256),
		count:      make(chan chan int),
		done:       make(chan struct{}),
	}
}

// Run 串行处理注册、注销和广播，ctx 结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			set, ok := h.clients[c.businessID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[c.businessID] = set
			}
			set[c] = struct{}{}
			logger.L().Info().Str("business_id", c.businessID).Int("connections", len(set)).Msg("dashboard connected")
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.broadcast:
			for c := range h.clients[msg.businessID] {
				select {
				case c.send <- msg.payload:
				default:
					// 客户端太慢，直接断开
					logger.L().Warn().Str("business_id", c.businessID).Msg("dashboard too slow, dropping")
					h.remove(c)
				}
			}
		case reply := <-h.count:
			n := 0
			for _, set := range h.clients {
				n += len(set)
			}
			reply <- n
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					h.remove(c)
				}
			}
			return
		}
	}
}

func (h *Hub) remove(c *Client) {
	set, ok := h.clients[c.businessID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.businessID)
	}
	logger.L().Info().Str("business_id", c.businessID).Msg("dashboard disconnected")
}

// join 注册连接；hub 已停止时返回 false
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast 把消息推送给商户的所有连接；ctx 结束时放弃
func (h *Hub) Broadcast(ctx context.Context, businessID string, payload []byte) error {
	select {
	case <-h.done:
		return errHubStopped
	default:
	}
	select {
	case h.broadcast <- outbound{businessID: businessID, payload: payload}:
		return nil
	case <-h.done:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connections 返回当前连接数
func (h *Hub) Connections(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
	case <-h.done:
		return 0
	case <-ctx.Done():
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-ctx.Done():
		return 0
	}
}
