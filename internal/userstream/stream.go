package userstream

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quantgate/internal/bracket"
	"quantgate/internal/config"
)

const fillBufferSize = 256

// Stream 维护与用户数据流的长连接，把成交回报转成事件队列。
// 连接断开后按配置的间隔自动重连，Run 返回即表示流已关闭。
type Stream struct {
	cfg    config.UserStreamConfig
	logger *zap.Logger
	fills  chan bracket.FillEvent
}

// NewStream 创建成交回报流。
func NewStream(cfg config.UserStreamConfig, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		cfg:    cfg,
		logger: logger,
		fills:  make(chan bracket.FillEvent, fillBufferSize),
	}
}

// Fills 返回成交事件通道。
func (s *Stream) Fills() <-chan bracket.FillEvent {
	return s.fills
}

// Drain 非阻塞地取走当前积压的全部成交事件。
func (s *Stream) Drain() []bracket.FillEvent {
	var events []bracket.FillEvent
	for {
		select {
		case fill := <-s.fills:
			events = append(events, fill)
		default:
			return events
		}
	}
}

// Run 启动读取循环，直到 ctx 取消。
func (s *Stream) Run(ctx context.Context) error {
	reconnectDelay := s.cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
		if err != nil {
			s.logger.Warn("用户流连接失败，等待重连",
				zap.String("url", s.cfg.URL),
				zap.Duration("wait", reconnectDelay),
				zap.Error(err),
			)
			if !sleepContext(ctx, reconnectDelay) {
				return ctx.Err()
			}
			continue
		}

		s.logger.Info("用户流已连接", zap.String("url", s.cfg.URL))
		s.readLoop(ctx, conn)

		if !sleepContext(ctx, reconnectDelay) {
			return ctx.Err()
		}
	}
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	// ctx 取消时关闭连接以解除 ReadMessage 阻塞。
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("用户流读取失败", zap.Error(err))
			}
			return
		}

		fill, ok := decodeFill(message)
		if !ok {
			continue
		}

		select {
		case s.fills <- fill:
		default:
			s.logger.Warn("成交事件队列已满，丢弃事件",
				zap.String("client_order_id", fill.ClientOrderID),
			)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
