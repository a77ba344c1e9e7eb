package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

// DevSender writes each message to dir as an .html body plus a .json
// envelope. Used when EMAIL_DEV_DIR is set.
type DevSender struct {
	dir string
	seq atomic.Uint64
	now func() time.Time
}

// NewDevSender creates the directory lazily on first send.
func NewDevSender(dir string) *DevSender {
	return &DevSender{dir: dir, now: time.Now}
}

type devEnvelope struct {
	Timestamp string `json:"timestamp"`
	SendTo    string `json:"send_to"`
	Subject   string `json:"subject"`
	Tag       string `json:"tag,omitempty"`
	BodyFile  string `json:"body_file"`
}

func (d *DevSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create dir: %v", ErrFailedToSendEmail, err)
	}

	now := d.now()
	label := params.Tag
	if label == "" {
		label = params.Subject
	}
	base := fmt.Sprintf("%s_%04d_%s", now.Format("20060102_150405"), d.seq.Add(1), fileLabel(label))

	htmlName := base + ".html"
	if err := os.WriteFile(filepath.Join(d.dir, htmlName), []byte(params.BodyHTML), 0o644); err != nil {
		return fmt.Errorf("%w: write body: %v", ErrFailedToSendEmail, err)
	}

	env, err := json.MarshalIndent(devEnvelope{
		Timestamp: now.Format(time.RFC3339),
		SendTo:    params.SendTo,
		Subject:   params.Subject,
		Tag:       params.Tag,
		BodyFile:  htmlName,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode envelope: %v", ErrFailedToSendEmail, err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".json"), env, 0o644); err != nil {
		return fmt.Errorf("%w: write envelope: %v", ErrFailedToSendEmail, err)
	}
	return nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-z0-9\-_.]`)

func fileLabel(s string) string {
	s = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "_"))
	s = unsafeFileChars.ReplaceAllString(s, "")
	if len(s) > 60 {
		s = s[:60]
	}
	if s == "" {
		return "email"
	}
	return s
}
