package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/bissquit/submanage/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Template identifiers accepted by the send-message endpoint.
const (
	TemplateRenewalGentle = "renewal_reminder_gentle"
	TemplateRenewalUrgent = "renewal_reminder_urgent"
	TemplateExpired       = "expired_winback"
	TemplateWelcome       = "welcome"
)

var subjects = map[string]string{
	TemplateRenewalGentle: "Your subscription renews soon",
	TemplateRenewalUrgent: "Your subscription ends in {{.DaysLeft}} day(s)",
	TemplateExpired:       "We miss you, {{.FirstName}}",
	TemplateWelcome:       "Welcome aboard, {{.FirstName}}",
}

// TemplateData is the data available to message templates.
type TemplateData struct {
	FullName  string
	FirstName string
	Plan      domain.Plan
	EndDate   time.Time
	DaysLeft  int
}

// NewTemplateData derives template data for sub at now.
func NewTemplateData(sub *domain.Subscriber, now time.Time) TemplateData {
	first := sub.FullName
	if i := strings.IndexByte(first, ' '); i > 0 {
		first = first[:i]
	}

	days := int(sub.EndDate.Sub(now).Hours() / 24)
	if days < 0 {
		days = 0
	}

	return TemplateData{
		FullName:  sub.FullName,
		FirstName: titleCase(first),
		Plan:      sub.Plan,
		EndDate:   sub.EndDate,
		DaysLeft:  days,
	}
}

// Renderer renders subscriber messages from embedded templates.
type Renderer struct {
	bodies   map[string]*template.Template
	subjects map[string]*template.Template
}

// NewRenderer loads every template. Each template id has an "email" variant
// and a short "text" variant used for SMS and WhatsApp.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":      titleCase,
		"upper":      strings.ToUpper,
		"formatDate": formatDate,
		"planName":   planName,
	}

	r := &Renderer{
		bodies:   make(map[string]*template.Template),
		subjects: make(map[string]*template.Template),
	}

	for id, subject := range subjects {
		tmpl, err := template.New(id + "_subject").Funcs(funcMap).Parse(subject)
		if err != nil {
			return nil, fmt.Errorf("parse subject %s: %w", id, err)
		}
		r.subjects[id] = tmpl

		for _, format := range []string{"email", "text"} {
			name := fmt.Sprintf("%s_%s", id, format)
			filename := fmt.Sprintf("templates/%s.tmpl", name)

			content, err := templatesFS.ReadFile(filename)
			if err != nil {
				return nil, fmt.Errorf("read template %s: %w", filename, err)
			}

			tmpl, err := template.New(name).Funcs(funcMap).Parse(string(content))
			if err != nil {
				return nil, fmt.Errorf("parse template %s: %w", name, err)
			}
			r.bodies[name] = tmpl
		}
	}

	return r, nil
}

// Templates returns the known template ids in sorted order.
func (r *Renderer) Templates() []string {
	ids := make([]string, 0, len(r.subjects))
	for id := range r.subjects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Render returns the subject and body of template id for channel.
func (r *Renderer) Render(id string, channel domain.Channel, data TemplateData) (subject, body string, err error) {
	subjectTmpl, ok := r.subjects[id]
	if !ok {
		return "", "", fmt.Errorf("%s: %w", id, ErrUnknownTemplate)
	}

	format := "text"
	if channel == domain.ChannelEmail {
		format = "email"
	}
	name := fmt.Sprintf("%s_%s", id, format)

	var buf bytes.Buffer
	if err := r.bodies[name].Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", name, err)
	}
	body = strings.TrimSpace(buf.String())

	buf.Reset()
	if err := subjectTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("execute subject %s: %w", id, err)
	}

	return buf.String(), body, nil
}

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

func formatDate(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006")
}

func planName(p domain.Plan) string {
	switch p {
	case domain.PlanOneMonth:
		return "1-month"
	case domain.PlanThreeMonths:
		return "3-month"
	case domain.PlanSixMonths:
		return "6-month"
	case domain.PlanOneYear:
		return "annual"
	}
	return string(p)
}
