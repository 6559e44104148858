package pipeline

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/prensadata/rotativa/domain"
)

// FieldError is one input validation failure, keyed by the wire field name.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError aggregates the field errors of one rejected input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(names, ", "))
}

// IsValidationError unwraps err as a ValidationError.
func IsValidationError(err error) (*ValidationError, bool) {
	ve, ok := err.(*ValidationError)
	return ve, ok
}

// newValidator builds a validator that reports wire (JSON tag) field names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateArticle applies the inbound article rules: required fields, a
// parseable publication date, and the minimum content length.
func (c *Controller) ValidateArticle(article *domain.Article) []FieldError {
	fieldErrs := c.structErrors(article)

	if article.FechaPublicacion != "" {
		if _, err := article.PublicationTime(); err != nil {
			fieldErrs = append(fieldErrs, FieldError{Field: "fecha_publicacion", Error: "unparseable date"})
		}
	}
	if article.ContenidoTexto != "" && len(article.ContenidoTexto) < c.minContent {
		fieldErrs = append(fieldErrs, FieldError{
			Field: "contenido_texto",
			Error: fmt.Sprintf("below minimum length %d", c.minContent),
		})
	}
	return fieldErrs
}

// ValidateFragment applies the inbound fragment rules.
func (c *Controller) ValidateFragment(fragment *domain.Fragment) []FieldError {
	fieldErrs := c.structErrors(fragment)

	if fragment.TextoOriginal != "" && len(fragment.TextoOriginal) < c.minContent {
		fieldErrs = append(fieldErrs, FieldError{
			Field: "texto_original",
			Error: fmt.Sprintf("below minimum length %d", c.minContent),
		})
	}
	return fieldErrs
}

func (c *Controller) structErrors(v any) []FieldError {
	err := c.validate.Struct(v)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "body", Error: err.Error()}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Error: fe.Tag()})
	}
	return out
}
