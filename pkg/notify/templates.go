package notify

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/arnavshah/shift-offer-api/pkg/models"
)

// TemplateData is what every message template renders against.
type TemplateData struct {
	StaffName  string
	Department string
	ShiftID    string
	Start      string
	End        string
	DueAt      string
	Event      string
}

// defaultTemplates covers every queue event. A template file can override
// any of them per channel.
var defaultTemplates = map[string]string{
	models.EventOfferSent:      "Hi {{.StaffName}}, an open {{.Department}} shift ({{.Start}} - {{.End}}) is yours if you want it. Respond by {{.DueAt}}.",
	models.EventOfferAccepted:  "Thanks {{.StaffName}}, you are confirmed for the {{.Department}} shift on {{.Start}}.",
	models.EventOfferDeclined:  "Noted, {{.StaffName}}. You declined the {{.Department}} shift on {{.Start}}.",
	models.EventOfferExpired:   "The offer for the {{.Department}} shift on {{.Start}} has expired and moved to the next person.",
	models.EventOfferCancelled: "The {{.Department}} shift on {{.Start}} is no longer available.",
	models.EventQueueExhausted: "No staff accepted the open {{.Department}} shift {{.ShiftID}} ({{.Start}} - {{.End}}). Manual escalation needed.",
}

// TemplateStore renders per-event, per-channel message bodies.
type TemplateStore struct {
	templates map[string]*template.Template
}

// key is "event" or "event/channel"; the channel-specific entry wins.
func key(event string, channel models.Channel) string {
	return event + "/" + string(channel)
}

// NewTemplateStore returns a store holding the built-in templates.
func NewTemplateStore() (*TemplateStore, error) {
	ts := &TemplateStore{templates: make(map[string]*template.Template)}
	for event, body := range defaultTemplates {
		if err := ts.set(event, body); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

func (ts *TemplateStore) set(name, body string) error {
	tmpl, err := template.New(name).Parse(body)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", name, err)
	}
	ts.templates[name] = tmpl
	return nil
}

// templateFile mirrors the on-disk YAML layout:
//
//	templates:
//	  offer_sent:
//	    default: "..."
//	    sms: "..."
type templateFile struct {
	Templates map[string]map[string]string `yaml:"templates"`
}

// LoadFile overlays templates from a YAML file onto the defaults.
func (ts *TemplateStore) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read template file: %w", err)
	}
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse template file: %w", err)
	}
	for event, channels := range file.Templates {
		for channel, body := range channels {
			name := event
			if channel != "default" {
				name = key(event, models.Channel(channel))
			}
			if err := ts.set(name, body); err != nil {
				return err
			}
		}
	}
	return nil
}

// Render produces the message body for an event on a channel. A channel
// override is preferred, then the event default.
func (ts *TemplateStore) Render(event string, channel models.Channel, data TemplateData) (string, error) {
	tmpl, ok := ts.templates[key(event, channel)]
	if !ok {
		tmpl, ok = ts.templates[event]
	}
	if !ok {
		return "", fmt.Errorf("no template for event %q", event)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s: %w", event, err)
	}
	return sb.String(), nil
}
