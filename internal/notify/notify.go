package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"variazioni/internal/identity"
	appLog "variazioni/internal/log"
	"variazioni/internal/model"
	"variazioni/internal/prefs"
	"variazioni/internal/source"
)

// Digest is the payload delivered to a subscriber's webhook endpoint: the
// subscriber's identity, the day, and one preformatted line per variation.
type Digest struct {
	Kind  string   `json:"kind"`
	Value string   `json:"value"`
	Date  string   `json:"date"`
	Count int      `json:"count"`
	Lines []string `json:"lines"`
}

// BuildDigest filters the day's events for one subscription and formats
// the result. Count is zero when the subscriber has no variations.
func BuildDigest(sub prefs.Subscription, events []model.Event, date string) Digest {
	q := identity.Query{
		Mode:       identity.Mode(sub.Kind),
		Value:      sub.Value,
		TargetDate: date,
	}
	matched := identity.SelectAndSort(events, q)

	lines := make([]string, 0, len(matched))
	for _, ev := range matched {
		lines = append(lines, formatLine(ev))
	}
	return Digest{
		Kind:  sub.Kind,
		Value: sub.Value,
		Date:  date,
		Count: len(matched),
		Lines: lines,
	}
}

// formatLine renders one variation as a digest line. All-day entries carry
// a marker instead of a clock time.
func formatLine(ev model.Event) string {
	prefix := "tutto il giorno"
	if ev.Start.Kind == model.StampTimed {
		prefix = ev.Start.At.Format("15:04")
	}
	line := prefix + "  " + ev.Summary
	if ev.Location != "" {
		line += " (" + ev.Location + ")"
	}
	return line
}

// Deliverer posts digests to subscriber webhooks.
type Deliverer struct {
	http *http.Client
	// sendEmpty controls whether zero-variation digests are delivered.
	sendEmpty bool
}

// NewDeliverer creates a webhook deliverer.
func NewDeliverer(sendEmpty bool) *Deliverer {
	return &Deliverer{
		http:      &http.Client{Timeout: 10 * time.Second},
		sendEmpty: sendEmpty,
	}
}

// DeliverAll builds and posts one digest per subscription. Per-subscription
// failures are logged and collected; one bad endpoint never aborts the
// batch.
func (d *Deliverer) DeliverAll(ctx context.Context, subs []prefs.Subscription, events []model.Event, date string) (sent int, errs []error) {
	for _, sub := range subs {
		digest := BuildDigest(sub, events, date)
		if digest.Count == 0 && !d.sendEmpty {
			appLog.Debug("digest skipped, no variations", "kind", sub.Kind, "value", sub.Value, "date", date)
			continue
		}
		if err := d.deliver(ctx, sub.Endpoint, digest); err != nil {
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			appLog.Error("digest delivery failed", err, "id", sub.ID, "endpoint", source.RedactURL(sub.Endpoint))
			continue
		}
		sent++
		appLog.Info("digest delivered", "kind", sub.Kind, "value", sub.Value, "date", date, "count", digest.Count)
	}
	return sent, errs
}

func (d *Deliverer) deliver(ctx context.Context, endpoint string, digest Digest) error {
	body, err := json.Marshal(digest)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
