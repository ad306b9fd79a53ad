package user

import (
	"bytes"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core"
)

type mailSvcStub struct {
	sent []*core.EmailMessage
}

func (svc *mailSvcStub) SendMessages(messages ...*core.EmailMessage) {
	svc.sent = append(svc.sent, messages...)
}

func TestSendPasswordResetMail(t *testing.T) {
	secretKey = []byte("secret")
	passwordResetTimeoutDelta = 3 * 24 * time.Hour

	usr := User{
		ID:       "018c2f5e-28a5-7df0-a6f1-000000000003",
		Name:     "T",
		Username: "t",
		Email:    "t@test.test",
	}
	usr.SetActive(true)
	_ = usr.SetPassword("pwd")

	var buf bytes.Buffer
	mailSvc := &mailSvcStub{}
	svc := &service{
		mailSvc: mailSvc,
		conf:    &core.Config{FrontendBaseURL: "http://test.test"},
		logger:  core.NewStdLogger(log.New(&buf, "", 0)),
	}

	svc.sendPasswordResetMail(usr)
	if len(mailSvc.sent) != 1 {
		t.Fatalf("sendPasswordResetMail() sent %d messages, want 1", len(mailSvc.sent))
	}
	if !strings.Contains(mailSvc.sent[0].BodyStr, "http://test.test/password-reset/") {
		t.Errorf("sendPasswordResetMail() body is missing the reset link:\n%s", mailSvc.sent[0].BodyStr)
	}
	if buf.Len() != 0 {
		t.Errorf("sendPasswordResetMail() logged unexpectedly: %s", buf.String())
	}

	// token generation failure is logged, not swallowed
	makeTokenFunc = func(User) (string, error) { return "", errors.New("no signing key") }
	defer func() { makeTokenFunc = MakeToken }()

	svc.sendPasswordResetMail(usr)
	if len(mailSvc.sent) != 1 {
		t.Errorf("sendPasswordResetMail() sent a mail without a token")
	}
	logged := buf.String()
	if !strings.Contains(logged, "WARN password reset mail dropped") {
		t.Errorf("sendPasswordResetMail() did not warn on token failure: %q", logged)
	}
	if !strings.Contains(logged, "no signing key") {
		t.Errorf("sendPasswordResetMail() warn is missing the cause: %q", logged)
	}
}
