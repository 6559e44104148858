// Package domain defines the core data model of the pipeline: articles,
// fragments, and the elements extracted from them (facts, entities, quotes,
// quantitative data, relations).
//
// Inbound wire types (Article, Fragment) keep the Spanish field names of the
// upstream connector contract. Internal and result types use English tags.
package domain

import "time"

// Article is the inbound unit posted by the connector. It is immutable and
// discarded after fragmentation.
type Article struct {
	// Medio is the source medium name (e.g., "El Diario").
	Medio string `json:"medio" validate:"required"`
	// Pais is the ISO country of the medium.
	Pais string `json:"pais" validate:"required"`
	// TipoMedio is the medium type (prensa, radio, television, digital).
	TipoMedio string `json:"tipo_medio" validate:"required"`
	// Titular is the headline.
	Titular string `json:"titular" validate:"required"`
	// FechaPublicacion is the publication timestamp (RFC 3339 or YYYY-MM-DD).
	FechaPublicacion string `json:"fecha_publicacion" validate:"required"`
	// ContenidoTexto is the full article text.
	ContenidoTexto string `json:"contenido_texto" validate:"required"`

	Idioma    string         `json:"idioma,omitempty"`
	Autor     string         `json:"autor,omitempty"`
	URL       string         `json:"url,omitempty"`
	Seccion   string         `json:"seccion,omitempty"`
	EsOpinion bool           `json:"es_opinion,omitempty"`
	EsOficial bool           `json:"es_oficial,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// PublicationTime parses FechaPublicacion. Both RFC 3339 and plain dates are
// accepted; anything else is a validation error upstream.
func (a *Article) PublicationTime() (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, a.FechaPublicacion); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", a.FechaPublicacion)
}

// Fragment is the unit of work the controller processes. Fragments come from
// splitting an article (one per article in the base case) or directly from
// the connector.
type Fragment struct {
	ID             string         `json:"id_fragmento" validate:"required"`
	TextoOriginal  string         `json:"texto_original" validate:"required"`
	ArticuloFuente string         `json:"id_articulo_fuente" validate:"required"`
	Orden          int            `json:"orden,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
