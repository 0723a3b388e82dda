package telemetry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"ultratrader/src/engine"
	"ultratrader/src/ledger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/xpwu/go-log/log"
)

const (
	writeWait       = 5 * time.Second
	broadcastBuffer = 64
)

// 帧类型
const (
	FrameCycle     = "cycle"
	FramePortfolio = "portfolio"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// PortfolioSource 只读的账户视图，引擎满足该接口
type PortfolioSource interface {
	Portfolio() *ledger.Portfolio
	TradeHistory() []ledger.TradeRecord
}

// Frame 推送给展示端的消息
type Frame struct {
	Type      string              `json:"type"`
	Report    *engine.CycleReport `json:"report,omitempty"`
	Summary   string              `json:"summary,omitempty"`
	Portfolio *ledger.Portfolio   `json:"portfolio,omitempty"`
	Timestamp int64               `json:"timestamp"`
}

// Hub 向 WebSocket 客户端广播周期报告
type Hub struct {
	source    PortfolioSource
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	lock      sync.Mutex
}

var _ engine.Observer = (*Hub)(nil)

// NewHub 创建广播中心
func NewHub(source PortfolioSource) *Hub {
	return &Hub{
		source:    source,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, broadcastBuffer),
	}
}

// Run 分发广播消息，ctx 取消后关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.lock.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.lock.Unlock()
			return

		case message := <-h.broadcast:
			h.lock.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
			h.lock.Unlock()
		}
	}
}

// Broadcast 投递消息，缓冲区满时丢弃
func (h *Hub) Broadcast(msg []byte) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		return false
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// OnCycle 实现 engine.Observer
func (h *Hub) OnCycle(ctx context.Context, report *engine.CycleReport) error {
	_, logger := log.WithCtx(ctx)

	data, err := sonic.Marshal(Frame{
		Type:      FrameCycle,
		Report:    report,
		Summary:   report.String(),
		Portfolio: report.Portfolio,
		Timestamp: report.FinishedAt.UnixMilli(),
	})
	if err != nil {
		return err
	}
	if !h.Broadcast(data) {
		logger.Error("广播队列已满，丢弃周期报告", "seq", report.Seq)
	}
	return nil
}

// Handler 路由：/ws 订阅推送，/portfolio 当前快照，/trades 最近成交
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)
	mux.HandleFunc("/portfolio", h.servePortfolio)
	mux.HandleFunc("/trades", h.serveTrades)
	return mux
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	_, logger := log.WithCtx(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WS Upgrade Error", "error", err)
		return
	}

	h.lock.Lock()
	h.clients[conn] = true
	// 新连接先收到一份当前快照
	if data, err := h.portfolioFrame(); err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.TextMessage, data)
	}
	h.lock.Unlock()

	go h.readPump(conn)
}

// readPump 丢弃客户端消息，连接断开时注销
func (h *Hub) readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.lock.Lock()
			if h.clients[conn] {
				delete(h.clients, conn)
				conn.Close()
			}
			h.lock.Unlock()
			return
		}
	}
}

func (h *Hub) portfolioFrame() ([]byte, error) {
	return sonic.Marshal(Frame{
		Type:      FramePortfolio,
		Portfolio: h.source.Portfolio(),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *Hub) servePortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.source.Portfolio())
}

func (h *Hub) serveTrades(w http.ResponseWriter, r *http.Request) {
	trades := h.source.TradeHistory()
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit >= 0 && limit < len(trades) {
		trades = trades[len(trades)-limit:]
	}
	writeJSON(w, trades)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// Serve 启动 HTTP 服务，ctx 取消后优雅关闭
func (h *Hub) Serve(ctx context.Context, addr string) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Telemetry")

	server := &http.Server{
		Addr:              addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("Telemetry Server listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
