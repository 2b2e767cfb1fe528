package domain

import "strings"

// SanitizeTasks is the single validation boundary for inbound task records.
// Records without an id or a creation timestamp are rejected; tags are trimmed
// and de-duplicated keeping first occurrence. The input slice is not modified.
func SanitizeTasks(in []TaskRecord) ([]TaskRecord, []*InvalidRecordError) {
	out := make([]TaskRecord, 0, len(in))
	var rejected []*InvalidRecordError

	for i, t := range in {
		t.ID = strings.TrimSpace(t.ID)
		switch {
		case t.ID == "":
			rejected = append(rejected, &InvalidRecordError{Index: i, Reason: "missing id"})
			continue
		case t.CreatedAt.IsZero():
			rejected = append(rejected, &InvalidRecordError{Index: i, TaskID: t.ID, Reason: "missing createdAt"})
			continue
		}

		t.Status = Status(strings.ToLower(strings.TrimSpace(string(t.Status))))
		t.Priority = Priority(strings.ToLower(strings.TrimSpace(string(t.Priority))))
		if t.CompletedAt != nil && t.CompletedAt.IsZero() {
			t.CompletedAt = nil
		}
		if t.DueDate != nil && t.DueDate.IsZero() {
			t.DueDate = nil
		}
		t.Tags = dedupeTags(t.Tags)
		out = append(out, t)
	}
	return out, rejected
}

func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ValidUserID returns the trimmed user id and whether it is usable.
func ValidUserID(u *User) (string, bool) {
	if u == nil {
		return "", false
	}
	id := strings.TrimSpace(u.ID)
	return id, id != ""
}
