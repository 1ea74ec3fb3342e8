package errs

import (
	"errors"
	"fmt"
)

// Kind 错误分类,决定队列是否重试以及结果中如何展示
type Kind string

const (
	CredentialMissing    Kind = "CredentialMissing"
	AuthenticationFailed Kind = "AuthenticationFailed"
	AntiBotDetected      Kind = "AntiBotDetected"
	InteractionTimeout   Kind = "InteractionTimeout"
	NetworkError         Kind = "NetworkError"
	ValidationError      Kind = "ValidationError"
	QueueUnavailable     Kind = "QueueUnavailable"
	PlatformNotFound     Kind = "PlatformNotFound"
	Internal             Kind = "Internal"
)

// Error 带分类的错误。Platform/Op 可为空。
type Error struct {
	Kind     Kind
	Platform string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Platform != "" {
		msg = e.Platform + ": " + msg
	}
	if e.Op != "" {
		msg += " (" + e.Op + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New 创建一个新的分类错误
func New(kind Kind, platform, format string, args ...any) *Error {
	return &Error{Kind: kind, Platform: platform, Err: fmt.Errorf(format, args...)}
}

// Wrap 给已有错误附加分类。若 err 已经是 *Error 则保留原分类,只补齐平台信息。
func Wrap(kind Kind, platform, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Platform == "" {
			e.Platform = platform
		}
		return err
	}
	return &Error{Kind: kind, Platform: platform, Op: op, Err: err}
}

// KindOf 返回错误分类,未分类的错误视为 Internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent 标记错误不再重试,分类不变
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retryable 报告队列是否应该按退避策略重试该错误。
// 校验失败和缺少凭证重试也必然失败。
func Retryable(err error) bool {
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	switch KindOf(err) {
	case ValidationError, CredentialMissing, PlatformNotFound:
		return false
	}
	return err != nil
}

// Transient 只针对网络和队列不可用这类基础设施故障
func Transient(err error) bool {
	switch KindOf(err) {
	case NetworkError, QueueUnavailable:
		return true
	}
	return false
}
