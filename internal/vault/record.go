package vault

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aide-sh/aide/internal/constants"
	"github.com/aide-sh/aide/internal/domain"
)

// frontmatterDelim separates the structured header from the body.
const frontmatterDelim = "---"

// recordHeader is the typed portion of a task record's YAML frontmatter.
// Unknown keys are preserved separately in Task.Metadata so any header
// field the engine writes round-trips through ParseTask.
type recordHeader struct {
	Title    string `yaml:"title"`
	Source   string `yaml:"source,omitempty"`
	Priority string `yaml:"priority,omitempty"`
	Created  string `yaml:"created,omitempty"`
	Type     string `yaml:"type,omitempty"`
}

// typedHeaderKeys are the frontmatter keys owned by recordHeader; anything
// else lands in Task.Metadata.
var typedHeaderKeys = map[string]bool{ //nolint:gochecknoglobals // Read-only lookup table
	"title":    true,
	"source":   true,
	"priority": true,
	"created":  true,
	"type":     true,
}

// EncodeTask serializes a task into the on-disk record format:
// YAML frontmatter followed by the free-text body.
func EncodeTask(t *domain.Task) ([]byte, error) {
	header := recordHeader{
		Title:    t.Title,
		Source:   t.Source,
		Priority: string(t.Priority),
		Type:     t.Type,
	}
	if !t.Created.IsZero() {
		header.Created = t.Created.Format(time.RFC3339)
	}

	headerYAML, err := yaml.Marshal(&header)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task header: %w", err)
	}

	var extraYAML []byte
	if len(t.Metadata) > 0 {
		extraYAML, err = yaml.Marshal(t.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode task metadata: %w", err)
		}
	}

	var b strings.Builder
	b.WriteString(frontmatterDelim + "\n")
	b.Write(headerYAML)
	b.Write(extraYAML)
	b.WriteString(frontmatterDelim + "\n\n")
	b.WriteString(t.Body)
	if !strings.HasSuffix(t.Body, "\n") {
		b.WriteString("\n")
	}
	return []byte(b.String()), nil
}

// ParseTask parses a record into a task. Malformed headers degrade
// gracefully: the entire content becomes the body and the name stands in
// for the title, never a failed task.
func ParseTask(name string, data []byte) *domain.Task {
	content := string(data)
	task := &domain.Task{
		Name:     name,
		Title:    strings.TrimSuffix(name, constants.RecordExt),
		Priority: constants.PriorityNormal,
		Body:     strings.TrimSpace(content),
	}

	rawHeader, body, ok := splitFrontmatter(content)
	if !ok {
		return task
	}

	var header recordHeader
	if err := yaml.Unmarshal([]byte(rawHeader), &header); err != nil {
		return task
	}

	var all map[string]any
	if err := yaml.Unmarshal([]byte(rawHeader), &all); err != nil {
		return task
	}

	task.Body = strings.TrimSpace(body)
	if header.Title != "" {
		task.Title = header.Title
	}
	task.Source = header.Source
	if header.Priority != "" {
		task.Priority = constants.Priority(header.Priority)
	}
	task.Type = header.Type
	if header.Created != "" {
		if created, err := time.Parse(time.RFC3339, header.Created); err == nil {
			task.Created = created
		}
	}

	for key := range typedHeaderKeys {
		delete(all, key)
	}
	if len(all) > 0 {
		task.Metadata = all
	}
	return task
}

// splitFrontmatter separates "---\n<yaml>\n---\n<body>" content. Returns
// ok=false when no well-formed frontmatter block is present.
func splitFrontmatter(content string) (header, body string, ok bool) {
	if !strings.HasPrefix(content, frontmatterDelim) {
		return "", "", false
	}
	rest := strings.TrimPrefix(content, frontmatterDelim)
	idx := strings.Index(rest, "\n"+frontmatterDelim)
	if idx < 0 {
		return "", "", false
	}
	header = rest[:idx]
	body = rest[idx+len("\n"+frontmatterDelim):]
	// Drop the delimiter's trailing newline if present.
	body = strings.TrimPrefix(body, "\n")
	return header, body, true
}

// nameTimestampFormat is the prefix format for generated record names.
const nameTimestampFormat = "20060102_150405"

// slugPattern matches runs of characters that are unsafe in record names.
var slugPattern = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// maxSlugLen bounds the sanitized title portion of generated names.
const maxSlugLen = 60

// GenerateName builds a record name from a timestamp and a sanitized
// title: 20060102_150405_<slug>.md. Names are unique per second per
// title, which is sufficient for the single-writer orchestrator tick;
// Create rejects collisions loudly.
func GenerateName(now time.Time, title string) string {
	return fmt.Sprintf("%s_%s%s", now.Format(nameTimestampFormat), Slugify(title), constants.RecordExt)
}

// Slugify sanitizes a title for use in a record name.
func Slugify(title string) string {
	slug := slugPattern.ReplaceAllString(strings.TrimSpace(title), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		slug = "task"
	}
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	return slug
}
