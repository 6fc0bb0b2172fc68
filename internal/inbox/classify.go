// Package inbox scans the sending account for replies and bounces and
// feeds them back into the store, so a prospect who answered never gets a
// follow-up from a later run.
package inbox

import (
	"regexp"
	"strings"
	"time"
)

const (
	KindReply  = "reply"
	KindBounce = "bounce"
)

// Message is the minimal slice of an inbound email the classifier needs.
type Message struct {
	From    string
	Subject string
	Body    string
	Date    time.Time
}

// Hit is one classified message: a bounce carrying the failed recipient, or
// a reply carrying the sender. The caller decides whether the address
// belongs to a known prospect.
type Hit struct {
	Kind    string
	Email   string
	Subject string
	Date    time.Time
}

var (
	addrPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// DSN headers that name the failed recipient outright. Checked before
	// the generic body scan because bounce bodies quote our own headers.
	recipientPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)X-Failed-Recipients:\s*(\S+@\S+)`),
		regexp.MustCompile(`(?i)Final-Recipient:\s*rfc822;\s*(\S+@\S+)`),
		regexp.MustCompile(`(?i)Original-Recipient:\s*rfc822;\s*(\S+@\S+)`),
	}
)

// Classify decides what one message means for the pipeline. selfAddr is the
// sending account; its own address never counts as a bounced recipient.
func Classify(m Message, selfAddr string) (Hit, bool) {
	from := strings.ToLower(strings.TrimSpace(m.From))
	if from == "" {
		return Hit{}, false
	}

	if isMailerDaemon(from) {
		email := extractBouncedRecipient(m, selfAddr)
		if email == "" {
			return Hit{}, false
		}
		return Hit{Kind: KindBounce, Email: email, Subject: m.Subject, Date: m.Date}, true
	}

	if strings.EqualFold(from, selfAddr) {
		return Hit{}, false
	}
	return Hit{Kind: KindReply, Email: from, Subject: m.Subject, Date: m.Date}, true
}

func isMailerDaemon(from string) bool {
	return strings.Contains(from, "mailer-daemon") || strings.Contains(from, "postmaster")
}

// extractBouncedRecipient digs the failed address out of a delivery status
// notification: structured DSN headers first, then the first address in the
// subject or body that is neither us nor the daemon.
func extractBouncedRecipient(m Message, selfAddr string) string {
	for _, re := range recipientPatterns {
		if match := re.FindStringSubmatch(m.Body); len(match) > 1 {
			if addr := addrPattern.FindString(match[1]); addr != "" {
				return strings.ToLower(addr)
			}
		}
	}

	self := strings.ToLower(strings.TrimSpace(selfAddr))
	daemon := strings.ToLower(strings.TrimSpace(m.From))
	for _, candidate := range addrPattern.FindAllString(m.Subject+"\n"+m.Body, -1) {
		candidate = strings.ToLower(candidate)
		if candidate == self || candidate == daemon {
			continue
		}
		return candidate
	}
	return ""
}
