package juejin

import (
	"context"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/errs"
	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/LouYuanbo1/crosspost/internal/session"
)

const (
	editorURL = baseURL + "/editor/drafts/new"

	titleInput    = "input.title-input"
	contentEditor = ".bytemd-editor .CodeMirror textarea"
	openPanel     = ".publish-popup .xitu-btn"
	categoryItem  = ".category-list .item"
	tagInput      = ".tag-input input"
	summaryInput  = ".summary-textarea textarea"
	confirmButton = ".panel .footer .btn-container .ui-btn.primary"
	publishedBox  = ".thanks-page"
	publishedLink = ".thanks-page a[href*='/post/']"

	editButton    = ".article-suspended-panel .edit-btn"
	moreButton    = ".author-info-block .more-btn"
	deleteItem    = ".more-list .delete"
	deleteConfirm = ".ui-confirm .btn.primary"
	deletedToast  = ".toast.success"
)

// 掘金要求摘要不少于 50 字
const minSummaryRunes = 50

type Publisher struct{}

func (p *Publisher) ID() string { return ID }

func (p *Publisher) Login(ctx context.Context, s *session.Session, cred model.LoginCredentials) error {
	return platform.FormLogin(ctx, s, loginForm, cred)
}

func (p *Publisher) Publish(ctx context.Context, s *session.Session, article *model.Article) (platform.Outcome, error) {
	if len([]rune(article.Summary)) < minSummaryRunes {
		return platform.Outcome{}, errs.New(errs.ValidationError, ID, "摘要至少需要 %d 字", minSummaryRunes)
	}
	if err := s.Navigate(ctx, editorURL); err != nil {
		return platform.Outcome{}, err
	}
	if err := s.DetectAntiAutomation(ctx, markers); err != nil {
		return platform.Outcome{}, err
	}
	if err := p.fill(ctx, s, article, false); err != nil {
		return platform.Outcome{}, err
	}
	return p.submit(ctx, s, article)
}

func (p *Publisher) Update(ctx context.Context, s *session.Session, remoteID string, article *model.Article) (platform.Outcome, error) {
	if err := s.Navigate(ctx, postURL(remoteID)); err != nil {
		return platform.Outcome{}, err
	}
	if err := s.DetectAntiAutomation(ctx, markers); err != nil {
		return platform.Outcome{}, err
	}
	if err := platform.Click(ctx, s, editButton); err != nil {
		return platform.Outcome{}, err
	}
	if err := p.fill(ctx, s, article, true); err != nil {
		return platform.Outcome{}, err
	}
	out, err := p.submit(ctx, s, article)
	if err != nil {
		return out, err
	}
	out.RemoteID = remoteID
	return out, nil
}

func (p *Publisher) Delete(ctx context.Context, s *session.Session, remoteID string) error {
	if err := s.Navigate(ctx, postURL(remoteID)); err != nil {
		return err
	}
	if err := s.DetectAntiAutomation(ctx, markers); err != nil {
		return err
	}
	for _, sel := range []string{moreButton, deleteItem, deleteConfirm} {
		if err := platform.Click(ctx, s, sel); err != nil {
			return err
		}
	}
	return s.WaitFor(ctx, deletedToast, 0)
}

func (p *Publisher) fill(ctx context.Context, s *session.Session, article *model.Article, replace bool) error {
	write := platform.Type
	if replace {
		write = platform.Replace
	}
	if err := write(ctx, s, titleInput, article.Title); err != nil {
		return err
	}
	return write(ctx, s, contentEditor, article.Content)
}

// submit 打开发布面板,选择分类、标签、摘要后确认发布
func (p *Publisher) submit(ctx context.Context, s *session.Session, article *model.Article) (platform.Outcome, error) {
	if err := platform.Click(ctx, s, openPanel); err != nil {
		return platform.Outcome{}, err
	}
	if err := platform.Click(ctx, s, categoryItem); err != nil {
		return platform.Outcome{}, err
	}
	platform.AddTags(ctx, s, tagInput, article.Tags, 3)
	if err := platform.Replace(ctx, s, summaryInput, article.Summary); err != nil {
		return platform.Outcome{}, err
	}
	if err := platform.Click(ctx, s, confirmButton); err != nil {
		return platform.Outcome{}, err
	}
	if err := s.WaitFor(ctx, publishedBox, 20*time.Second); err != nil {
		return platform.Outcome{}, err
	}
	return platform.ReadOutcome(ctx, s, baseURL, postPattern, publishedLink)
}
