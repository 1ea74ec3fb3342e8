package zhihu

import (
	"context"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/LouYuanbo1/crosspost/internal/session"
)

const (
	titleInput    = ".WriteIndex-titleInput textarea"
	contentEditor = ".PostEditor .public-DraftEditor-content"
	publishButton = ".PublishPanel-triggerButton"
	topicInput    = ".PublishPanel-searchInput input"
	topicFirst    = ".PublishPanel-suggest .Menu-item:first-child"
	confirmButton = ".PublishPanel-stepTwoButton"
	postTitle     = "h1.Post-Title"

	optionsButton = ".Post-SideActions .OptionsButton"
	deleteItem    = ".Menu .Menu-item.Button--delete"
	deleteConfirm = ".Modal .Button--primary"
	deletedToast  = ".Toast-success"
)

type Publisher struct{}

func (p *Publisher) ID() string { return ID }

func (p *Publisher) Login(ctx context.Context, s *session.Session, cred model.LoginCredentials) error {
	return platform.FormLogin(ctx, s, loginForm, cred)
}

func (p *Publisher) Publish(ctx context.Context, s *session.Session, article *model.Article) (platform.Outcome, error) {
	return p.write(ctx, s, writeURL, article, false)
}

func (p *Publisher) Update(ctx context.Context, s *session.Session, remoteID string, article *model.Article) (platform.Outcome, error) {
	return p.write(ctx, s, postURL(remoteID)+"/edit", article, true)
}

func (p *Publisher) Delete(ctx context.Context, s *session.Session, remoteID string) error {
	if err := s.Navigate(ctx, postURL(remoteID)); err != nil {
		return err
	}
	if err := s.DetectAntiAutomation(ctx, markers); err != nil {
		return err
	}
	for _, sel := range []string{optionsButton, deleteItem, deleteConfirm} {
		if err := platform.Click(ctx, s, sel); err != nil {
			return err
		}
	}
	return s.WaitFor(ctx, deletedToast, 0)
}

// 发布成功后页面会跳到 /p/{id},从地址中取文章 ID
func (p *Publisher) write(ctx context.Context, s *session.Session, url string, article *model.Article, replace bool) (platform.Outcome, error) {
	if err := s.Navigate(ctx, url); err != nil {
		return platform.Outcome{}, err
	}
	if err := s.DetectAntiAutomation(ctx, markers); err != nil {
		return platform.Outcome{}, err
	}
	write := platform.Type
	if replace {
		write = platform.Replace
	}
	if err := write(ctx, s, titleInput, article.Title); err != nil {
		return platform.Outcome{}, err
	}
	if err := write(ctx, s, contentEditor, article.Content); err != nil {
		return platform.Outcome{}, err
	}
	if err := platform.Click(ctx, s, publishButton); err != nil {
		return platform.Outcome{}, err
	}
	for i, topic := range article.Tags {
		if i >= maxTopics {
			break
		}
		if !s.SafeReplace(ctx, topicInput, topic, time.Second) || !s.SafeClick(ctx, topicFirst, 2*time.Second) {
			s.Logger().WithField("topic", topic).Debug("添加话题失败")
		}
	}
	if err := platform.Click(ctx, s, confirmButton); err != nil {
		return platform.Outcome{}, err
	}
	if err := s.DetectAntiAutomation(ctx, markers); err != nil {
		return platform.Outcome{}, err
	}
	if err := s.WaitFor(ctx, postTitle, publishTTL); err != nil {
		return platform.Outcome{}, err
	}
	return platform.ReadOutcome(ctx, s, columnURL, postPattern)
}
