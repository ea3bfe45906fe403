package feed

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"stampcard/internal/pkg/logger"
)

// TokenParser 校验访问令牌并返回商户 ID
type TokenParser interface {
	Parse(token string) (string, error)
}

// Handler 提供看板的 WebSocket 入口
type Handler struct {
	hub      *Hub
	tokens   TokenParser
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, tokens TokenParser) *Handler {
	return &Handler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 看板与 API 不同源，允许跨域
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/scans", h.ServeWS)
}

// ServeWS 鉴权后把连接升级为 WebSocket 并注册到 hub。
// 浏览器无法为 WebSocket 设置请求头，所以同时接受 ?token= 参数。
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		scheme, t, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			token = strings.TrimSpace(t)
		}
	}
	businessID, err := h.tokens.Parse(token)
	if token == "" || err != nil {
		http.Error(w, `{"ok":false,"error":"UNAUTHORIZED"}`, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &Client{hub: h.hub, conn: conn, send: make(chan []byte, 64), businessID: businessID}
	if !h.hub.join(c) {
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}
