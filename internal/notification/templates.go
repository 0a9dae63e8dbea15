package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"cardvault/pkg/email"
)

// Kind selects the card lifecycle email.
type Kind string

const (
	KindSubmitted Kind = "submitted"
	KindApproved  Kind = "approved"
	KindRejected  Kind = "rejected"
)

// CardNotice carries what every card email renders.
type CardNotice struct {
	To        string
	FullName  string
	Reference string
	LastFour  string
	Issuer    string
	At        time.Time
}

// Message is a rendered multipart email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type templateData struct {
	Greeting  string
	Reference string
	LastFour  string
	Issuer    string
	Timestamp string
}

type templateSet struct {
	subject string
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

var (
	submittedHTML = htmltemplate.Must(htmltemplate.New("submitted").Parse(`<div style="font-family:system-ui,Segoe UI,Roboto,Arial,sans-serif">
  <h2>Card received</h2>
  <p>{{.Greeting}}</p>
  <p>Your <strong>{{.Issuer}}</strong> card ending in <strong>{{.LastFour}}</strong> was submitted for verification.</p>
  <p><strong>Reference (RUV):</strong> {{.Reference}}</p>
  <p>Submitted: {{.Timestamp}} (UTC)</p>
  <p>We will email you as soon as the verification finishes.</p>
</div>`))
	submittedText = texttemplate.Must(texttemplate.New("submitted").Parse(`{{.Greeting}}

Your {{.Issuer}} card ending in {{.LastFour}} was submitted for verification.
Reference (RUV): {{.Reference}}
Submitted: {{.Timestamp}} (UTC)

We will email you as soon as the verification finishes.`))

	approvedHTML = htmltemplate.Must(htmltemplate.New("approved").Parse(`<div style="font-family:system-ui,Segoe UI,Roboto,Arial,sans-serif">
  <h2>Card approved</h2>
  <p>{{.Greeting}}</p>
  <p>Your <strong>{{.Issuer}}</strong> card ending in <strong>{{.LastFour}}</strong> was approved.</p>
  <p><strong>Reference (RUV):</strong> {{.Reference}}</p>
  <p>Approved: {{.Timestamp}} (UTC)</p>
  <p>You can start using it on the platform now.</p>
</div>`))
	approvedText = texttemplate.Must(texttemplate.New("approved").Parse(`{{.Greeting}}

Your {{.Issuer}} card ending in {{.LastFour}} was approved.
Reference (RUV): {{.Reference}}
Approved: {{.Timestamp}} (UTC)

You can start using it on the platform now.`))

	rejectedHTML = htmltemplate.Must(htmltemplate.New("rejected").Parse(`<div style="font-family:system-ui,Segoe UI,Roboto,Arial,sans-serif">
  <h2>Card rejected</h2>
  <p>{{.Greeting}}</p>
  <p>Your <strong>{{.Issuer}}</strong> card ending in <strong>{{.LastFour}}</strong> did not pass verification.</p>
  <p><strong>Reference (RUV):</strong> {{.Reference}}</p>
  <p>Evaluated: {{.Timestamp}} (UTC)</p>
  <p>If you think this is a mistake, try again or contact support.</p>
</div>`))
	rejectedText = texttemplate.Must(texttemplate.New("rejected").Parse(`{{.Greeting}}

Your {{.Issuer}} card ending in {{.LastFour}} did not pass verification.
Reference (RUV): {{.Reference}}
Evaluated: {{.Timestamp}} (UTC)

If you think this is a mistake, try again or contact support.`))
)

var templates = map[Kind]templateSet{
	KindSubmitted: {subject: "We received your card", html: submittedHTML, text: submittedText},
	KindApproved:  {subject: "Your card was approved", html: approvedHTML, text: approvedText},
	KindRejected:  {subject: "Your card was rejected", html: rejectedHTML, text: rejectedText},
}

// Render builds the email for kind.
func Render(kind Kind, notice CardNotice) (Message, error) {
	set, ok := templates[kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown notification kind %q", kind)
	}

	greeting := "Hello,"
	if name := email.GreetingName(notice.FullName, notice.To); name != "" {
		greeting = "Hello " + name + ","
	}
	data := templateData{
		Greeting:  greeting,
		Reference: notice.Reference,
		LastFour:  notice.LastFour,
		Issuer:    notice.Issuer,
		Timestamp: notice.At.UTC().Format("2006-01-02 15:04:05"),
	}

	var html, text bytes.Buffer
	if err := set.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", kind, err)
	}
	if err := set.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", kind, err)
	}
	return Message{To: notice.To, Subject: set.subject, HTML: html.String(), Text: text.String()}, nil
}
