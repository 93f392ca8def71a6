package gtm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/api/tagmanager/v2"

	"github.com/troikatech/engage-api/pkg/metrics"
)

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]+`)

// TagEvent identifies the tracked event a unified tag mirrors.
type TagEvent struct {
	Category string
	Type     string
	Entity   string
	UserID   string
}

// UnifiedTagName builds UNIFIED_{CATEGORY}_{TYPE}_{entity}_{userId}.
// Runs of non-alphanumerics in entity collapse to one underscore.
func UnifiedTagName(ev TagEvent) string {
	entity := nonAlnum.ReplaceAllString(ev.Entity, "_")
	if entity == "" {
		entity = "general"
	}
	userID := ev.UserID
	if userID == "" {
		userID = "anonymous"
	}
	return fmt.Sprintf("UNIFIED_%s_%s_%s_%s",
		strings.ToUpper(ev.Category), strings.ToUpper(ev.Type), entity, userID)
}

// UnifiedTriggerName is shared by every tag of the same category and type.
func UnifiedTriggerName(category, eventType string) string {
	return fmt.Sprintf("UNIFIED_TRIGGER_%s_%s", strings.ToUpper(category), strings.ToUpper(eventType))
}

// UnifiedEventName is the dataLayer event the trigger listens for.
func UnifiedEventName(category, eventType string) string {
	return fmt.Sprintf("unified_%s_%s", strings.ToLower(category), strings.ToLower(eventType))
}

// SyncResult reports what SyncUnifiedTag did.
type SyncResult struct {
	TagName   string `json:"tag_name"`
	TagID     string `json:"tag_id"`
	TriggerID string `json:"trigger_id"`
	Created   bool   `json:"created"`
}

// SyncUnifiedTag finds-or-creates the trigger and tag for ev in the default
// workspace. Writes for one tag name are serialised in-process; a concurrent
// writer elsewhere makes GTM reject the stale fingerprint and the error is returned.
func (c *Client) SyncUnifiedTag(ctx context.Context, ev TagEvent) (*SyncResult, error) {
	name := UnifiedTagName(ev)
	unlock := c.locks.Lock("tag:" + name)
	defer unlock()

	workspace := c.WorkspacePath("", "", "")

	triggerID, err := c.ensureTrigger(ctx, workspace, ev.Category, ev.Type)
	if err != nil {
		metrics.RecordTagSync("failed")
		return nil, err
	}

	desired := unifiedTag(name, ev, triggerID)

	tags, err := c.ListTags(ctx, workspace)
	if err != nil {
		metrics.RecordTagSync("failed")
		return nil, err
	}

	if existing := findTag(tags, name); existing != nil {
		updated, err := c.UpdateTag(ctx, existing.Path, existing.Fingerprint, desired)
		if err != nil {
			metrics.RecordTagSync("failed")
			return nil, err
		}
		metrics.RecordTagSync("updated")
		return &SyncResult{TagName: name, TagID: updated.TagId, TriggerID: triggerID}, nil
	}

	created, err := c.CreateTag(ctx, workspace, desired)
	if err != nil {
		metrics.RecordTagSync("failed")
		return nil, err
	}
	metrics.RecordTagSync("created")
	return &SyncResult{TagName: name, TagID: created.TagId, TriggerID: triggerID, Created: true}, nil
}

func (c *Client) ensureTrigger(ctx context.Context, workspace, category, eventType string) (string, error) {
	name := UnifiedTriggerName(category, eventType)
	unlock := c.locks.Lock("trigger:" + name)
	defer unlock()

	desired := &tagmanager.Trigger{
		Name: name,
		Type: "customEvent",
		CustomEventFilter: []*tagmanager.Condition{{
			Type: "equals",
			Parameter: []*tagmanager.Parameter{
				{Type: "template", Key: "arg0", Value: "{{_event}}"},
				{Type: "template", Key: "arg1", Value: UnifiedEventName(category, eventType)},
			},
		}},
	}

	triggers, err := c.ListTriggers(ctx, workspace)
	if err != nil {
		return "", err
	}
	for _, t := range triggers {
		if t.Name == name {
			return t.TriggerId, nil
		}
	}

	created, err := c.CreateTrigger(ctx, workspace, desired)
	if err != nil {
		return "", err
	}
	return created.TriggerId, nil
}

func findTag(tags []*tagmanager.Tag, name string) *tagmanager.Tag {
	for _, t := range tags {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func unifiedTag(name string, ev TagEvent, triggerID string) *tagmanager.Tag {
	html := fmt.Sprintf(`<script>
window.dataLayer = window.dataLayer || [];
window.dataLayer.push({
  'event': 'unified_tracking',
  'event_category': %q,
  'event_type': %q,
  'entity': %q,
  'user_id': %q
});
</script>`, strings.ToLower(ev.Category), ev.Type, ev.Entity, ev.UserID)

	return &tagmanager.Tag{
		Name:            name,
		Type:            "html",
		FiringTriggerId: []string{triggerID},
		Notes:           "Managed by engage-api unified tracking",
		Parameter: []*tagmanager.Parameter{
			{Type: "template", Key: "html", Value: html},
			{Type: "boolean", Key: "supportDocumentWrite", Value: "false"},
		},
	}
}
