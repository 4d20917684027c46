package vector

// RecordMetadata is the enriched metadata attached to a long-term record.
// The three tag fields are drawn from closed sets; confidence is in [0,1].
type RecordMetadata struct {
	Domain     string  `json:"domain"`
	EntityType string  `json:"entity_type"`
	EntityName string  `json:"entity_name"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

var allowedDomains = map[string]struct{}{
	"movies": {}, "sports": {}, "tech": {}, "general": {},
}

var allowedEntityTypes = map[string]struct{}{
	"fictional_character": {}, "real_person": {}, "organization": {},
	"concept": {}, "unknown": {},
}

var allowedSources = map[string]struct{}{
	"user": {}, "wiki": {}, "pdf": {}, "web": {}, "memory": {},
}

// FallbackMetadata is the well-formed record substituted wholesale whenever
// generated metadata fails validation. A record therefore always carries
// usable metadata even when upstream generation misbehaves.
func FallbackMetadata() RecordMetadata {
	return RecordMetadata{
		Domain:     "general",
		EntityType: "unknown",
		EntityName: "unknown",
		Source:     "memory",
		Confidence: 0,
	}
}

// ValidateMetadata checks every field against the closed sets. Any violation
// replaces the whole object with the fallback; fields are never accepted
// partially since they are generated jointly by one inference call.
func ValidateMetadata(raw RecordMetadata) RecordMetadata {
	if _, ok := allowedDomains[raw.Domain]; !ok {
		return FallbackMetadata()
	}
	if _, ok := allowedEntityTypes[raw.EntityType]; !ok {
		return FallbackMetadata()
	}
	if _, ok := allowedSources[raw.Source]; !ok {
		return FallbackMetadata()
	}
	if raw.Confidence < 0 || raw.Confidence > 1 {
		return FallbackMetadata()
	}
	if raw.EntityName == "" {
		raw.EntityName = "unknown"
	}
	return raw
}

// MergeMetadata resolves newly generated metadata against what is already
// stored for the record. Confidence is a vote over the whole object: the new
// metadata wins entirely when its confidence is at least the old one's,
// otherwise the old metadata is kept untouched.
func MergeMetadata(old, new RecordMetadata) RecordMetadata {
	if new.Confidence >= old.Confidence {
		return new
	}
	return old
}
