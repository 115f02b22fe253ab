package mail

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/logger"
	"github.com/teranos/pegabatch/tracker"
)

// EmailLogger records notification attempts.
type EmailLogger interface {
	LogEmail(ctx context.Context, e tracker.EmailLog) error
}

// Notifier sends the results and error emails for requests and records each
// attempt. A Notifier without a Sender only logs.
type Notifier struct {
	Sender    Sender
	Log       EmailLogger
	Templates Templates
	// FileHost prefixes artifact names to build download links.
	FileHost string
	Logger   *zap.SugaredLogger
}

// NewNotifier uses the default templates.
func NewNotifier(sender Sender, log EmailLogger, fileHost string) *Notifier {
	return &Notifier{
		Sender:    sender,
		Log:       log,
		Templates: DefaultTemplates(),
		FileHost:  fileHost,
		Logger:    logger.AddMailSymbol(logger.ComponentLogger("mail")),
	}
}

// Results tells the owner where to download their finished analysis.
func (n *Notifier) Results(ctx context.Context, req *tracker.Request, file string) error {
	link := Link(n.FileHost, file)
	subject, body := n.Templates.Results.Render(map[string]string{"FILE_LINK": link})
	return n.deliver(ctx, req, file, Message{Subject: subject, Body: body})
}

// Failure tells the owner their analysis could not finish, attaching the
// error text as erros_<id>.txt.
func (n *Notifier) Failure(ctx context.Context, req *tracker.Request, errText string) error {
	subject, body := n.Templates.Error.Render(map[string]string{"REQUEST_ID": req.ID})
	return n.deliver(ctx, req, "", Message{
		Subject:     subject,
		Body:        body,
		Attachments: []Attachment{{Name: "erros_" + req.ID + ".txt", Content: []byte(errText)}},
	})
}

func (n *Notifier) deliver(ctx context.Context, req *tracker.Request, fileID string, m Message) error {
	log := n.Logger
	if log == nil {
		log = logger.ComponentLogger("mail")
	}
	m.To = Recipients(req.Email)
	if n.Sender == nil || len(m.To) == 0 {
		log.Debugw("Notification skipped", logger.FieldJobID, req.ID, "recipients", len(m.To))
		return nil
	}

	entry := tracker.EmailLog{
		RequestID: req.ID,
		FileID:    fileID,
		SentTo:    strings.Join(m.To, ", "),
		Status:    tracker.EmailSent,
	}
	sendErr := n.Sender.Send(ctx, m)
	if sendErr != nil {
		entry.Status = tracker.EmailError
		entry.Error = sendErr.Error()
		log.Warnw("Notification failed", logger.FieldJobID, req.ID, logger.FieldError, sendErr)
	} else {
		log.Infow("Notification sent", logger.FieldJobID, req.ID, "subject", m.Subject)
	}

	if n.Log != nil {
		if err := n.Log.LogEmail(ctx, entry); err != nil {
			return errors.WithSecondaryError(err, sendErr)
		}
	}
	if sendErr != nil {
		return errors.Wrapf(sendErr, "notify request %s", req.ID)
	}
	return nil
}

// Recipients splits a comma or semicolon separated address list.
func Recipients(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// Link joins a file host and an artifact name.
func Link(host, file string) string {
	name := file
	if i := strings.LastIndexAny(file, `/\`); i >= 0 {
		name = file[i+1:]
	}
	if host == "" {
		return name
	}
	return strings.TrimRight(host, "/") + "/" + name
}
