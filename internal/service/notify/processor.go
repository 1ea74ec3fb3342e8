package notify

import (
	"context"
	"errors"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/errs"
	"github.com/LouYuanbo1/crosspost/internal/ports"
	"github.com/LouYuanbo1/crosspost/internal/service/jobqueue"
	"github.com/sirupsen/logrus"
)

// OperatorUserID 运营告警在站内信中的接收者
const OperatorUserID = "operator"

// Recipient 推送渠道的接收方。User 可能为空。
type Recipient struct {
	User     *model.User
	Operator bool
}

// Channel 站内信之外的推送渠道
type Channel interface {
	Name() string
	Send(ctx context.Context, to Recipient, n *model.Notification) error
}

// Delivery notify 任务的结果
type Delivery struct {
	NotificationID string   `json:"notificationId"`
	Delivered      []string `json:"delivered,omitempty"`
	Failed         []string `json:"failed,omitempty"`
}

type Processor struct {
	store    ports.NotificationStore
	users    ports.UserStore
	channels []Channel
	logger   *logrus.Entry
	now      func() time.Time
}

func NewProcessor(store ports.NotificationStore, users ports.UserStore, channels []Channel, logger *logrus.Entry) *Processor {
	return &Processor{store: store, users: users, channels: channels, logger: logger.WithField("component", "notify"), now: time.Now}
}

// Process 先写站内信,失败时返回错误让队列重试;其他渠道尽力投递,失败只记日志
func (p *Processor) Process(ctx context.Context, job *jobqueue.Job) (any, error) {
	var data model.NotificationJobData
	if err := job.Decode(&data); err != nil {
		return nil, err
	}
	if data.Type == "" || data.Title == "" {
		return nil, errs.New(errs.ValidationError, "", "通知缺少类型或标题")
	}
	n := &model.Notification{
		ID:        job.ID,
		UserID:    data.UserID,
		Type:      data.Type,
		Title:     data.Title,
		Message:   data.Message,
		ArticleID: data.ArticleID,
		Platform:  data.Platform,
		Severity:  data.Severity,
		Metadata:  data.Metadata,
		CreatedAt: p.now(),
	}
	if n.Severity == "" {
		n.Severity = model.SeverityRoutine
	}
	if n.UserID == "" {
		n.UserID = OperatorUserID
	}
	if err := p.store.Create(ctx, n); err != nil {
		return nil, errs.Wrap(errs.NetworkError, "", "create notification", err)
	}
	delivery := Delivery{NotificationID: n.ID}
	if n.Severity == model.SeverityRoutine || len(p.channels) == 0 {
		return delivery, nil
	}

	// 没有接收用户的失败通知(例如定时抓取)转给运营人员
	to := Recipient{Operator: n.Severity == model.SeverityAlert || data.UserID == ""}
	if data.UserID != "" {
		user, err := p.users.Find(ctx, data.UserID)
		switch {
		case err == nil:
			to.User = user
		case errors.Is(err, ports.ErrNotFound):
			job.Logger().WithField("user_id", data.UserID).Debug("用户不存在,只投递站内信")
		default:
			job.Logger().WithError(err).Warn("查询用户失败")
		}
	}
	for _, ch := range p.channels {
		if err := ch.Send(ctx, to, n); err != nil {
			job.Logger().WithError(err).WithField("channel", ch.Name()).Warn("推送通知失败")
			delivery.Failed = append(delivery.Failed, ch.Name())
			continue
		}
		delivery.Delivered = append(delivery.Delivered, ch.Name())
	}
	return delivery, nil
}
