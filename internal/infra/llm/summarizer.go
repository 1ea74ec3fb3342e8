// Package llm 通过本地 Ollama 模型生成文章摘要
package llm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/LouYuanbo1/crosspost/internal/config"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
)

// 送入模型的正文上限,过长的文章只取开头
const maxInputRunes = 4000

var summaryTemplate = prompt.FromMessages(schema.FString,
	schema.SystemMessage("你是技术博客编辑。请用简体中文为文章写一段不超过 {max_runes} 个字的摘要,"+
		"只输出摘要本身,不要标题、引号或 Markdown。"),
	schema.UserMessage("标题: {title}\n\n正文:\n{content}"),
)

type Summarizer struct {
	model  model.BaseChatModel
	logger *logrus.Entry
}

func InitSummarizer(ctx context.Context, cfg *config.Config, logger *logrus.Entry) (*Summarizer, error) {
	timeout := cfg.LLM.Timeout.Std()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cm, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
		BaseURL: cfg.LLM.Host + ":" + strconv.Itoa(cfg.LLM.Port),
		Model:   cfg.LLM.Model,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 Ollama 模型失败: %w", err)
	}
	return NewSummarizer(cm, logger), nil
}

func NewSummarizer(cm model.BaseChatModel, logger *logrus.Entry) *Summarizer {
	return &Summarizer{model: cm, logger: logger.WithField("component", "llm")}
}

func (s *Summarizer) Summarize(ctx context.Context, title, content string, maxRunes int) (string, error) {
	if r := []rune(content); len(r) > maxInputRunes {
		content = string(r[:maxInputRunes])
	}
	messages, err := summaryTemplate.Format(ctx, map[string]any{
		"title":     title,
		"content":   content,
		"max_runes": maxRunes,
	})
	if err != nil {
		return "", fmt.Errorf("生成提示词失败: %w", err)
	}
	start := time.Now()
	resp, err := s.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("调用模型失败: %w", err)
	}
	summary := clean(resp.Content)
	if summary == "" {
		return "", fmt.Errorf("模型返回了空摘要")
	}
	s.logger.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Debug("摘要生成完成")
	return summary, nil
}

// clean 去掉推理模型的 <think> 段落和多余的引号
func clean(text string) string {
	if i := strings.Index(text, "</think>"); i >= 0 {
		text = text[i+len("</think>"):]
	}
	text = strings.TrimSpace(text)
	text = strings.Trim(text, "\"“”「」")
	return strings.Join(strings.Fields(text), " ")
}
