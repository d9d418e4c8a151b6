package engine

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/fxcore/pkg/queue"
)

// ErrEmailClosed 邮件引擎已关闭
var ErrEmailClosed = errors.New("email: engine closed")

// EmailSettings SMTP 参数
type EmailSettings struct {
	Server   string
	Port     int
	Username string
	Password string
	Sender   string
	Receiver string
}

// EmailMessage 一封待发送的邮件
type EmailMessage struct {
	ID       string
	Subject  string
	Content  string
	From     string
	To       string
	QueuedAt time.Time
}

// Mailer 邮件发送实现
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailEngine 异步邮件发送：首次 SendEmail 时启动后台 worker
type EmailEngine struct {
	settings EmailSettings
	mailer   Mailer
	log      *logrus.Entry

	queue *queue.Queue[EmailMessage]

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewEmailEngine mailer 为 nil 时使用 SMTP over TLS
func NewEmailEngine(settings EmailSettings, mailer Mailer) *EmailEngine {
	if mailer == nil {
		mailer = &smtpMailer{settings: settings}
	}
	return &EmailEngine{
		settings: settings,
		mailer:   mailer,
		log:      logrus.WithField("component", "email_engine"),
		queue:    queue.New[EmailMessage](0),
	}
}

// Name 引擎名
func (e *EmailEngine) Name() string {
	return "email"
}

// SendEmail 入队一封邮件，receiver 为空时使用默认收件人
func (e *EmailEngine) SendEmail(subject, content, receiver string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEmailClosed
	}
	if !e.started {
		e.startLocked()
	}
	e.mu.Unlock()

	if receiver == "" {
		receiver = e.settings.Receiver
	}
	e.queue.Put(EmailMessage{
		ID:       uuid.NewString(),
		Subject:  subject,
		Content:  content,
		From:     e.settings.Sender,
		To:       receiver,
		QueuedAt: time.Now(),
	})
	return nil
}

func (e *EmailEngine) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.started = true
	go e.run(ctx)
}

func (e *EmailEngine) run(ctx context.Context) {
	defer close(e.done)
	for {
		msg, ok := e.queue.Get(ctx, time.Second)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if err := e.mailer.Send(ctx, msg); err != nil {
			e.log.Errorf("发送邮件失败 id=%s to=%s: %v", msg.ID, msg.To, err)
		}
		_ = e.queue.TaskDone()
	}
}

// Close 停止 worker 并等待其退出；可重复调用。未发送的邮件被丢弃。
func (e *EmailEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started := e.started
	e.mu.Unlock()

	if !started {
		return nil
	}
	e.cancel()
	<-e.done
	if n := e.queue.Len(); n > 0 {
		e.log.Warnf("邮件引擎关闭，丢弃 %d 封未发送邮件", n)
	}
	return nil
}

// Pending 尚未发送的邮件数
func (e *EmailEngine) Pending() int {
	return e.queue.Len()
}

type smtpMailer struct {
	settings EmailSettings
}

func (m *smtpMailer) Send(ctx context.Context, msg EmailMessage) error {
	if m.settings.Server == "" {
		return errors.New("email: smtp server not configured")
	}
	if msg.To == "" {
		return errors.New("email: empty receiver")
	}
	addr := net.JoinHostPort(m.settings.Server, strconv.Itoa(m.settings.Port))

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 10 * time.Second},
		Config:    &tls.Config{ServerName: m.settings.Server},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	c, err := smtp.NewClient(conn, m.settings.Server)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if m.settings.Username != "" {
		auth := smtp.PlainAuth("", m.settings.Username, m.settings.Password, m.settings.Server)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(msg.From); err != nil {
		return err
	}
	if err := c.Rcpt(msg.To); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(buildMessage(msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(msg EmailMessage) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Message-ID: <%s@fxcore>\r\n", msg.ID)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Content)
	return []byte(b.String())
}
