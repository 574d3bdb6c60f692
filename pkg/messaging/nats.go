// pkg/messaging/nats.go
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSClient NATS JetStream客户端 - 纯基础能力封装
type NATSClient struct {
	conn      *nats.Conn
	jetStream jetstream.JetStream
	natsURL   string
	ctx       context.Context
	cancel    context.CancelFunc
	consumers map[string]jetstream.ConsumeContext // 消费者管理
	mu        sync.RWMutex                        // 保护consumers和closed
	closed    bool
	wg        sync.WaitGroup                      // 进行中的消息，只在持有mu时Add
	logger    *slog.Logger
}

// MessageHandler 通用消息处理函数类型
type MessageHandler func(ctx context.Context, data []byte) error

// permanentError 处理失败且重投也不会成功的消息
type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent 标记错误为不可重试，消息将被终止而不是重投
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent 判断错误是否不可重试
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type ackAction int

const (
	ackMessage ackAction = iota
	nakMessage
	termMessage
)

// dispatch 调用处理器并决定确认方式
func dispatch(ctx context.Context, handler MessageHandler, data []byte) (action ackAction, err error) {
	defer func() {
		if r := recover(); r != nil {
			action, err = termMessage, fmt.Errorf("处理消息 panic: %v", r)
		}
	}()

	if err := handler(ctx, data); err != nil {
		if IsPermanent(err) {
			return termMessage, err
		}
		return nakMessage, err
	}
	return ackMessage, nil
}

// NewNATSClient 创建新的NATS客户端并初始化 streams
func NewNATSClient(natsURL, clientName string, streams []jetstream.StreamConfig, logger *slog.Logger) (*NATSClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// 连接NATS
	nc, err := nats.Connect(natsURL,
		nats.Name(clientName),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1), // 无限重连
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS连接断开", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS重新连接成功")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("连接NATS失败: %w", err)
	}

	// 创建JetStream上下文
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("创建JetStream失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	client := &NATSClient{
		conn:      nc,
		jetStream: js,
		natsURL:   natsURL,
		ctx:       ctx,
		cancel:    cancel,
		consumers: make(map[string]jetstream.ConsumeContext),
		logger:    logger,
	}

	for _, cfg := range streams {
		if err := client.CreateStream(cfg); err != nil {
			client.Close()
			return nil, err
		}
	}

	return client, nil
}

// Publish 发布消息到指定主题
func (c *NATSClient) Publish(ctx context.Context, subject string, data interface{}) error {
	var payload []byte
	var err error

	switch v := data.(type) {
	case []byte:
		payload = v
	case string:
		payload = []byte(v)
	default:
		payload, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("序列化数据失败: %w", err)
		}
	}

	if _, err := c.jetStream.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("发布消息到 %s 失败: %w", subject, err)
	}

	c.logger.Debug("发布消息", "subject", subject, "bytes", len(payload))
	return nil
}

// Subscribe 以持久消费者订阅指定主题的消息
func (c *NATSClient) Subscribe(streamName, consumerName, filterSubject string, handler MessageHandler) error {
	// 创建消费者配置
	consumerConfig := jetstream.ConsumerConfig{
		Durable:       consumerName,
		Description:   fmt.Sprintf("%s 消费者", consumerName),
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
		MaxDeliver:    5,
	}

	// 创建或获取消费者
	consumer, err := c.jetStream.CreateOrUpdateConsumer(c.ctx, streamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("创建消费者 %s 失败: %w", consumerName, err)
	}

	logger := c.logger.With("consumer", consumerName)
	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if !c.beginMessage() {
			// 关闭中，交给其他消费者重投
			if err := msg.Nak(); err != nil {
				logger.Debug("关闭时退回消息失败", "error", err)
			}
			return
		}
		defer c.wg.Done()

		action, err := dispatch(c.ctx, handler, msg.Data())
		switch action {
		case ackMessage:
			err = msg.Ack()
		case nakMessage:
			logger.Warn("处理消息失败, 稍后重投", "subject", msg.Subject(), "error", err)
			err = msg.Nak()
		case termMessage:
			logger.Error("处理消息失败, 丢弃", "subject", msg.Subject(), "error", err)
			err = msg.Term()
		}
		if err != nil {
			logger.Error("确认消息失败", "error", err)
		}
	}, jetstream.PullMaxMessages(10))
	if err != nil {
		return fmt.Errorf("启动消费者 %s 失败: %w", consumerName, err)
	}

	// 保存消费者引用
	c.mu.Lock()
	c.consumers[consumerName] = cc
	c.mu.Unlock()

	logger.Info("已订阅", "subject", filterSubject, "stream", streamName)
	return nil
}

// beginMessage 登记一条进行中的消息；客户端已关闭时返回 false
func (c *NATSClient) beginMessage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	return true
}

// CreateStream 创建或更新Stream
func (c *NATSClient) CreateStream(config jetstream.StreamConfig) error {
	if _, err := c.jetStream.CreateOrUpdateStream(c.ctx, config); err != nil {
		return fmt.Errorf("创建Stream %s 失败: %w", config.Name, err)
	}
	c.logger.Info("Stream设置成功", "stream", config.Name)
	return nil
}

// DeleteConsumer 停止并删除消费者
func (c *NATSClient) DeleteConsumer(streamName, consumerName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cc, ok := c.consumers[consumerName]; ok {
		cc.Stop()
		delete(c.consumers, consumerName)
	}
	if err := c.jetStream.DeleteConsumer(c.ctx, streamName, consumerName); err != nil {
		return fmt.Errorf("删除消费者 %s 失败: %w", consumerName, err)
	}

	c.logger.Info("消费者已删除", "consumer", consumerName)
	return nil
}

// GetStreamInfo 获取Stream信息
func (c *NATSClient) GetStreamInfo(ctx context.Context, streamName string) (*jetstream.StreamInfo, error) {
	stream, err := c.jetStream.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("获取Stream %s 失败: %w", streamName, err)
	}
	return stream.Info(ctx)
}

// Close 停止所有消费者并关闭连接
func (c *NATSClient) Close() error {
	c.logger.Info("正在关闭NATS连接...")

	c.mu.Lock()
	c.closed = true
	for name, cc := range c.consumers {
		cc.Stop()
		delete(c.consumers, name)
	}
	c.mu.Unlock()

	c.cancel()
	// 等待进行中的消息处理完成
	c.wg.Wait()

	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
		}
	}

	c.logger.Info("NATS连接已关闭")
	return nil
}

// IsConnected 检查连接状态
func (c *NATSClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Ping 健康检查
func (c *NATSClient) Ping(ctx context.Context) error {
	if !c.IsConnected() {
		return errors.New("NATS未连接")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
	}
	if err := c.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("NATS flush失败: %w", err)
	}
	return nil
}

// GetStats 获取连接统计信息
func (c *NATSClient) GetStats() nats.Statistics {
	if c.conn != nil {
		return c.conn.Stats()
	}
	return nats.Statistics{}
}
