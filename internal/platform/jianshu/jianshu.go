// Package jianshu 简书发布插件。简书只支持发布,不抓取。
package jianshu

import (
	"context"
	"regexp"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/domain/model"
	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/LouYuanbo1/crosspost/internal/session"
)

const (
	ID        = "jianshu"
	baseURL   = "https://www.jianshu.com"
	writerURL = baseURL + "/writer#/"

	notebook      = ".notebook-list .notebook:first-child"
	newArticle    = ".new-note-btn"
	titleInput    = ".note-title input"
	contentEditor = "#arthur-editor"
	publishButton = ".note-toolbar .publish-btn"
	publishedBox  = ".publish-success"
	publishedLink = ".publish-success a[href*='/p/']"

	editButton    = ".article-author .edit-btn"
	settingButton = ".note-toolbar .setting-btn"
	deleteItem    = ".setting-menu .delete-note"
	deleteConfirm = ".modal-footer .btn-danger"
	deletedToast  = ".toast-success"
)

var notePattern = regexp.MustCompile(`jianshu\.com/p/([0-9a-f]+)`)

var markers = session.Markers{
	Modals:   []session.Modal{{Selector: ".download-app-guidance", Close: ".download-app-guidance .close"}},
	Captchas: []string{".geetest_holder", ".geetest_panel"},
}

var loginForm = platform.LoginForm{
	LoginURL: baseURL + "/sign_in",
	HomeURL:  baseURL + "/",
	Username: "#session_email_or_mobile_number",
	Password: "#session_password",
	Submit:   "#sign-in-form-submit-btn",
	LoggedIn: ".user .avatar",
	// 简书异地登录会要求短信验证
	SecondFactor: []string{"#sms-verify-form"},
	Markers:      markers,
	LoginTimeout: 15 * time.Second,
}

func Entry() platform.Entry {
	return platform.Entry{
		ID:        ID,
		Name:      "简书",
		Aliases:   []string{"jianshu.com", "js"},
		Publisher: &Publisher{},
	}
}

type Publisher struct{}

func (p *Publisher) ID() string { return ID }

func (p *Publisher) Login(ctx context.Context, s *session.Session, cred model.LoginCredentials) error {
	return platform.FormLogin(ctx, s, loginForm, cred)
}

func (p *Publisher) Publish(ctx context.Context, s *session.Session, article *model.Article) (platform.Outcome, error) {
	if err := p.open(ctx, s, writerURL); err != nil {
		return platform.Outcome{}, err
	}
	for _, sel := range []string{notebook, newArticle} {
		if err := platform.Click(ctx, s, sel); err != nil {
			return platform.Outcome{}, err
		}
	}
	return p.fillAndPublish(ctx, s, article, platform.Type)
}

func (p *Publisher) Update(ctx context.Context, s *session.Session, remoteID string, article *model.Article) (platform.Outcome, error) {
	if err := p.open(ctx, s, baseURL+"/p/"+remoteID); err != nil {
		return platform.Outcome{}, err
	}
	if err := platform.Click(ctx, s, editButton); err != nil {
		return platform.Outcome{}, err
	}
	return p.fillAndPublish(ctx, s, article, platform.Replace)
}

func (p *Publisher) Delete(ctx context.Context, s *session.Session, remoteID string) error {
	if err := p.open(ctx, s, baseURL+"/p/"+remoteID); err != nil {
		return err
	}
	for _, sel := range []string{editButton, settingButton, deleteItem, deleteConfirm} {
		if err := platform.Click(ctx, s, sel); err != nil {
			return err
		}
	}
	return s.WaitFor(ctx, deletedToast, 0)
}

func (p *Publisher) open(ctx context.Context, s *session.Session, url string) error {
	if err := s.Navigate(ctx, url); err != nil {
		return err
	}
	return s.DetectAntiAutomation(ctx, markers)
}

func (p *Publisher) fillAndPublish(ctx context.Context, s *session.Session, article *model.Article,
	write func(context.Context, *session.Session, string, string) error,
) (platform.Outcome, error) {
	if err := write(ctx, s, titleInput, article.Title); err != nil {
		return platform.Outcome{}, err
	}
	if err := write(ctx, s, contentEditor, article.Content); err != nil {
		return platform.Outcome{}, err
	}
	if err := platform.Click(ctx, s, publishButton); err != nil {
		return platform.Outcome{}, err
	}
	if err := s.DetectAntiAutomation(ctx, markers); err != nil {
		return platform.Outcome{}, err
	}
	if err := s.WaitFor(ctx, publishedBox, 20*time.Second); err != nil {
		return platform.Outcome{}, err
	}
	return platform.ReadOutcome(ctx, s, baseURL, notePattern, publishedLink)
}
