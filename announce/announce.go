// Package announce publishes one status update per imported person.
package announce

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"vacunagates/models"
	"vacunagates/wait"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const (
	// MaxPostLength is the platform's limit, counted in characters.
	MaxPostLength = 280

	MinDelay     = 5 * time.Second
	MaxDelay     = 30 * time.Second
	DefaultDelay = MinDelay
)

// DefaultTemplate is the announcement posted for every person.
const DefaultTemplate = "{{.FirstName}} {{.LastName}} de {{.Age}} años de edad, VACUNADO. Observción: {{.Observation}}, Proyecto: {{.Project}}."

var announcements = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vacunagates_announcements_total",
	Help: "Status updates attempted by the announcer, by result",
}, []string{"result"})

// Source lists the persons to announce.
type Source interface {
	Persons(ctx context.Context) ([]models.Person, error)
}

// Poster publishes a status update and returns its id.
type Poster interface {
	CreatePost(ctx context.Context, text string) (string, error)
}

type Announcer struct {
	source Source
	poster Poster
	tmpl   *template.Template
	delay  time.Duration
	sleep  wait.Sleeper
}

// ClampDelay keeps the inter-post delay inside [MinDelay, MaxDelay]. Zero
// selects DefaultDelay.
func ClampDelay(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultDelay
	case d < MinDelay:
		return MinDelay
	case d > MaxDelay:
		return MaxDelay
	default:
		return d
	}
}

// NewAnnouncer parses text as the post template; an empty text selects
// DefaultTemplate.
func NewAnnouncer(source Source, poster Poster, text string, delay time.Duration) (*Announcer, error) {
	if text == "" {
		text = DefaultTemplate
	}
	tmpl, err := template.New("announcement").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid announcement template: %w", err)
	}
	return &Announcer{
		source: source,
		poster: poster,
		tmpl:   tmpl,
		delay:  ClampDelay(delay),
		sleep:  wait.Sleep,
	}, nil
}

// WithSleep replaces the wait between posts.
func (a *Announcer) WithSleep(sleep wait.Sleeper) *Announcer {
	a.sleep = wait.Or(sleep)
	return a
}

// Delay is the clamped wait between consecutive posts.
func (a *Announcer) Delay() time.Duration {
	return a.delay
}

// Render fills the template for one person and truncates the result to
// MaxPostLength characters.
func (a *Announcer) Render(person models.Person) (string, error) {
	var sb strings.Builder
	if err := a.tmpl.Execute(&sb, person); err != nil {
		return "", fmt.Errorf("failed to render announcement for %s: %w", person.N, err)
	}
	return Truncate(sb.String(), MaxPostLength), nil
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// AnnounceAll posts one update per stored person, in store order, waiting
// the configured delay between consecutive posts. A failed person is logged
// and skipped. It returns how many updates were posted.
func (a *Announcer) AnnounceAll(ctx context.Context) (int, error) {
	persons, err := a.source.Persons(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read persons: %w", err)
	}

	log.WithFields(log.Fields{
		"count": len(persons),
		"delay": a.Delay(),
	}).Info("Starting announcements")

	posted := 0
	for i, person := range persons {
		if i > 0 {
			if err := a.sleep(ctx, a.Delay()); err != nil {
				return posted, err
			}
		}

		fields := log.Fields{"n": person.N}
		text, err := a.Render(person)
		if err != nil {
			announcements.WithLabelValues("error").Inc()
			log.WithFields(fields).WithError(err).Error("Failed to render announcement")
			continue
		}

		id, err := a.poster.CreatePost(ctx, text)
		if err != nil {
			announcements.WithLabelValues("error").Inc()
			log.WithFields(fields).WithError(err).Error("Failed to post announcement")
			continue
		}

		announcements.WithLabelValues("ok").Inc()
		posted++
		log.WithFields(fields).WithField("id", id).Infof("> %s", text)
	}

	log.WithField("posted", posted).Info("Finished announcements")
	return posted, nil
}
