// Package render substitutes placeholder tokens in template subjects and
// bodies.
//
// A token is the placeholder key wrapped in a fixed prefix and suffix, for
// example [[{username}]]. Substitution is literal and single pass: a value
// that itself looks like a token is never expanded again, and tokens without
// a binding are left in the output untouched.
package render

import (
	"sort"
	"strings"

	"Mailwright/internal/models"
)

const (
	KeyAppName     = "app_name"
	KeySupportMail = "support_mail"
	KeySignature   = "signature"

	// Missing is substituted for a bound key the payload does not carry.
	Missing = "N/A"
)

// Defaults are the values injected into every render.
type Defaults struct {
	AppName     string
	SupportMail string
	Signature   string
}

type Renderer struct {
	Prefix   string
	Suffix   string
	Defaults Defaults
}

func New(prefix, suffix string, defaults Defaults) *Renderer {
	return &Renderer{Prefix: prefix, Suffix: suffix, Defaults: defaults}
}

// Token returns the literal token for key.
func (r *Renderer) Token(key string) string {
	return r.Prefix + key + r.Suffix
}

// Render returns the template subject and body with every bound token
// replaced. Defaults are seeded first and vars are applied over them, so a
// caller value wins over a default with the same key.
func (r *Renderer) Render(t models.EmailTemplate, vars map[string]string) (subject, body string) {
	replacer := r.replacer(r.merge(vars))
	return r.apply(replacer, t.Subject), r.apply(replacer, t.Body)
}

func (r *Renderer) merge(vars map[string]string) map[string]string {
	merged := map[string]string{
		KeyAppName:     r.Defaults.AppName,
		KeySupportMail: r.Defaults.SupportMail,
		KeySignature:   r.Defaults.Signature,
	}
	for k, v := range vars {
		merged[k] = v
	}
	return merged
}

func (r *Renderer) replacer(vars map[string]string) *strings.Replacer {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, r.Token(k), vars[k])
	}
	return strings.NewReplacer(pairs...)
}

func (r *Renderer) apply(replacer *strings.Replacer, s string) string {
	if s == "" {
		return ""
	}
	return replacer.Replace(s)
}

// Variables builds the substitution map for a resolved template: one entry
// per bound placeholder, looked up in fields by the metadata key. Keys the
// payload lacks, or carries empty, map to Missing.
func Variables(placeholders []models.ResolvedPlaceholder, fields map[string]string) map[string]string {
	vars := make(map[string]string, len(placeholders))
	for _, p := range placeholders {
		key := p.Metadata.Key
		if key == "" {
			continue
		}
		if v, ok := fields[key]; ok && v != "" {
			vars[key] = v
		} else {
			vars[key] = Missing
		}
	}
	return vars
}
