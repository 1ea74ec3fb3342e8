package csdn

import (
	"context"
	"fmt"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/LouYuanbo1/crosspost/internal/session"
)

const (
	titleInput    = ".article-bar__title--input"
	contentEditor = ".editor__inner[contenteditable]"
	publishButton = ".article-bar__user-box .btn-publish"
	tagAdd        = ".mark_selection .tag__btn-tag"
	tagInput      = ".mark_selection_box .el-input__inner"
	originalType  = ".article-type-radio .el-radio:first-child"
	summaryInput  = ".desc-box textarea"
	confirmButton = ".modal__button-bar .btn-b-red"
	successTitle  = ".success-title"
	successLink   = ".success-info a[href*='/article/details/']"

	deleteConfirm = ".el-message-box__btns .el-button--primary"
	deletedToast  = ".el-message--success"
)

func deleteButton(id string) string {
	return fmt.Sprintf(".article-list-item[data-article-id='%s'] .btn-delete", id)
}

type Publisher struct{}

func (p *Publisher) ID() string { return ID }

func (p *Publisher) Login(ctx context.Context, s *session.Session, cred model.LoginCredentials) error {
	return platform.FormLogin(ctx, s, loginForm, cred)
}

func (p *Publisher) Publish(ctx context.Context, s *session.Session, article *model.Article) (platform.Outcome, error) {
	return p.edit(ctx, s, editURL, article, false)
}

func (p *Publisher) Update(ctx context.Context, s *session.Session, remoteID string, article *model.Article) (platform.Outcome, error) {
	out, err := p.edit(ctx, s, editURL+"?articleId="+remoteID, article, true)
	if err == nil && out.RemoteID == "" {
		out.RemoteID = remoteID
	}
	return out, err
}

func (p *Publisher) Delete(ctx context.Context, s *session.Session, remoteID string) error {
	if err := s.Navigate(ctx, "https://mp.csdn.net/mp_blog/manage/article?keyword="+remoteID); err != nil {
		return err
	}
	if err := s.DetectAntiAutomation(ctx, markers); err != nil {
		return err
	}
	if err := platform.Click(ctx, s, deleteButton(remoteID)); err != nil {
		return err
	}
	if err := platform.Click(ctx, s, deleteConfirm); err != nil {
		return err
	}
	return s.WaitFor(ctx, deletedToast, 0)
}

func (p *Publisher) edit(ctx context.Context, s *session.Session, url string, article *model.Article, replace bool) (platform.Outcome, error) {
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

	// 发布弹窗:标签、原创、摘要
	if len(article.Tags) > 0 && s.SafeClick(ctx, tagAdd, time.Second) {
		platform.AddTags(ctx, s, tagInput, article.Tags, 5)
	}
	s.SafeClick(ctx, originalType, time.Second)
	if article.Summary != "" {
		s.SafeReplace(ctx, summaryInput, article.Summary, time.Second)
	}
	if err := platform.Click(ctx, s, confirmButton); err != nil {
		return platform.Outcome{}, err
	}
	if err := s.DetectAntiAutomation(ctx, markers); err != nil {
		return platform.Outcome{}, err
	}
	if err := s.WaitFor(ctx, successTitle, 20*time.Second); err != nil {
		return platform.Outcome{}, err
	}
	return platform.ReadOutcome(ctx, s, blogURL, articlePattern, successLink)
}
