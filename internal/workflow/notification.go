package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/visnetotest/mesh-gateway/internal/config"
	"github.com/visnetotest/mesh-gateway/internal/core/apperr"
	"github.com/visnetotest/mesh-gateway/internal/core/model"
)

// Notification 表示一条待发送的通知
type Notification struct {
	Channels   []string
	Recipients []string
	Subject    string
	Message    string
}

// Notifier 定义通知发送接口，实际投递由外部系统完成
type Notifier interface {
	Send(ctx context.Context, notification *Notification) error
}

// LogNotifier 把通知写入日志的默认实现
type LogNotifier struct {
	logger config.Logger
}

// NewLogNotifier 创建日志通知器
func NewLogNotifier(logger config.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send 记录通知内容
func (n *LogNotifier) Send(ctx context.Context, notification *Notification) error {
	n.logger.Info("发送通知",
		zap.Strings("channels", notification.Channels),
		zap.Strings("recipients", notification.Recipients),
		zap.String("subject", notification.Subject))
	return nil
}

// notificationHandler 通知步骤：通过指定渠道向接收人发送通知
type notificationHandler struct {
	notifier Notifier
}

// NewNotificationHandler 创建通知步骤处理器
func NewNotificationHandler(notifier Notifier) StepHandler {
	return &notificationHandler{notifier: notifier}
}

func (h *notificationHandler) Type() string {
	return StepTypeNotification
}

func (h *notificationHandler) DefaultOutputKey() string {
	return "notification"
}

func (h *notificationHandler) ValidateConfig(cfg map[string]interface{}) error {
	if len(configStringList(cfg, "recipients")) == 0 {
		return apperr.NewInvalidArgument("通知步骤缺少recipients配置")
	}
	if len(configStringList(cfg, "channels")) == 0 {
		return apperr.NewInvalidArgument("通知步骤缺少channels配置")
	}
	return nil
}

func (h *notificationHandler) Execute(ctx context.Context, step *model.WorkflowStep, exec *model.WorkflowExecution) (*HandlerOutcome, error) {
	notification := &Notification{
		Channels:   configStringList(step.Config, "channels"),
		Recipients: configStringList(step.Config, "recipients"),
		Subject:    configString(step.Config, "subject"),
		Message:    configString(step.Config, "message"),
	}

	if err := h.notifier.Send(ctx, notification); err != nil {
		return nil, fmt.Errorf("发送通知失败: %w", err)
	}

	return &HandlerOutcome{
		Output: map[string]interface{}{
			"sent":       true,
			"channels":   notification.Channels,
			"recipients": notification.Recipients,
			"timestamp":  time.Now().Format(time.RFC3339),
		},
	}, nil
}
