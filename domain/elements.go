package domain

// Fact types. The set is open-ended on the wire; these are the common values.
const (
	FactEvent        = "EVENT"
	FactStatement    = "STATEMENT"
	FactAnnouncement = "ANNOUNCEMENT"
	FactOther        = "OTHER"
)

// Entity types.
const (
	EntityPerson       = "PERSON"
	EntityOrganization = "ORGANIZATION"
	EntityPlace        = "PLACE"
	EntityOther        = "OTHER"
)

// Fact is a discrete assertion extracted from a fragment. IDs are dense
// integers starting at 1, scoped to the fragment, so cross-references
// (quotes, relations) are by integer.
type Fact struct {
	ID                int     `json:"id"`
	SourceFragmentID  string  `json:"source_fragment_id"`
	Text              string  `json:"text"`
	Confidence        float64 `json:"confidence"`
	Type              string  `json:"type"`
	TemporalPrecision string  `json:"temporal_precision,omitempty"`
}

// Entity is a named person, organization, place, or similar. Normalization
// fields are filled by phase 4 when the datastore finds a canonical match.
type Entity struct {
	ID               int      `json:"id"`
	SourceFragmentID string   `json:"source_fragment_id"`
	Text             string   `json:"text"`
	Type             string   `json:"type"`
	Relevance        float64  `json:"relevance"`
	Descriptors      []string `json:"descriptors,omitempty"`

	NormalizedID            string  `json:"normalized_id,omitempty"`
	NormalizedName          string  `json:"normalized_name,omitempty"`
	NormalizationSimilarity float64 `json:"normalization_similarity,omitempty"`
}

// Quote is a verbatim statement attributed to a speaker. CitedEntityID, when
// non-zero, references an Entity of the same fragment.
type Quote struct {
	ID               int     `json:"id"`
	SourceFragmentID string  `json:"source_fragment_id"`
	Text             string  `json:"text"`
	SpeakerText      string  `json:"speaker_text"`
	CitedEntityID    int     `json:"cited_entity_id,omitempty"`
	Context          string  `json:"context,omitempty"`
	Relevance        float64 `json:"relevance"`
}

// Datum is a quantitative value extracted from the text.
type Datum struct {
	ID               int     `json:"id"`
	SourceFragmentID string  `json:"source_fragment_id"`
	Description      string  `json:"description"`
	Value            float64 `json:"value"`
	Unit             string  `json:"unit"`
	PeriodReference  string  `json:"period_reference,omitempty"`
	Category         string  `json:"category,omitempty"`
	Trend            string  `json:"trend,omitempty"`
}

// FactRelation links two facts of the same fragment.
type FactRelation struct {
	FactA       int     `json:"fact_a"`
	FactB       int     `json:"fact_b"`
	Type        string  `json:"type"`
	Strength    float64 `json:"strength"`
	Description string  `json:"description,omitempty"`
}

// EntityRelation links two entities of the same fragment.
type EntityRelation struct {
	EntityA  int     `json:"entity_a"`
	EntityB  int     `json:"entity_b"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
}

// Contradiction marks two facts of the same fragment as conflicting.
type Contradiction struct {
	FactA       int    `json:"fact_a"`
	FactB       int    `json:"fact_b"`
	Description string `json:"description,omitempty"`
}

// Relations bundles the three relation kinds produced by phase 4.
type Relations struct {
	FactFact       []FactRelation   `json:"fact_fact"`
	EntityEntity   []EntityRelation `json:"entity_entity"`
	Contradictions []Contradiction  `json:"contradictions"`
}
