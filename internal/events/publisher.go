package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"sunrisetour.staff/internal/config"
	"sunrisetour.staff/internal/service"
)

// SubjectMessageCreated 消息创建事件 Subject
const SubjectMessageCreated = "staff.chat.message.created"

// Publisher 基于 NATS 的事件发布器
// 为未来的实时网关提供消息扇出钩子，发布失败由调用方降级处理
type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewPublisher 连接 NATS 并创建发布器
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("Disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			slog.Info("NATS connection closed")
		}),
		nats.Timeout(10 * time.Second),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		conn:   conn,
		logger: slog.Default(),
	}, nil
}

// MessageCreated 发布消息创建事件
func (p *Publisher) MessageCreated(ctx context.Context, event *service.MessageCreatedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.conn.Publish(SubjectMessageCreated, data)
}

// Close 关闭连接
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
