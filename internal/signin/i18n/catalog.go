// Package i18n resolves user-facing text for the request language.
package i18n

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

type ctxKey struct{}

// selection is the request-scoped language. It is created per request by
// WithRequest and may be narrowed later by the sign-in request's ui_locales.
type selection struct {
	mu  sync.Mutex
	tag language.Tag
}

// Catalog holds every supported language's messages.
type Catalog struct {
	tags     []language.Tag
	matcher  language.Matcher
	messages map[language.Tag]map[string]string
}

// New returns a catalog with the built-in languages. The first is the
// fallback.
func New() *Catalog {
	c := &Catalog{messages: map[language.Tag]map[string]string{}}
	c.add(language.English, english)
	c.add(language.German, german)
	return c
}

func (c *Catalog) add(tag language.Tag, msgs map[string]string) {
	c.tags = append(c.tags, tag)
	c.messages[tag] = msgs
	c.matcher = language.NewMatcher(c.tags)
}

// Languages lists the supported languages, fallback first.
func (c *Catalog) Languages() []language.Tag {
	return append([]language.Tag(nil), c.tags...)
}

// WithRequest starts a language selection for one request, seeded from an
// Accept-Language header.
func (c *Catalog) WithRequest(ctx context.Context, acceptLanguage string) context.Context {
	sel := &selection{tag: c.tags[0]}
	if desired, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil && len(desired) > 0 {
		sel.tag = c.match(desired...)
	}
	return context.WithValue(ctx, ctxKey{}, sel)
}

// SetRequestLanguage narrows the request language to the best match among
// space separated ui_locales. Unknown or unparsable locales are ignored.
func (c *Catalog) SetRequestLanguage(ctx context.Context, uiLocales string) {
	sel, ok := ctx.Value(ctxKey{}).(*selection)
	if !ok {
		return
	}
	var desired []language.Tag
	for _, l := range strings.Fields(uiLocales) {
		if tag, err := language.Parse(l); err == nil {
			desired = append(desired, tag)
		}
	}
	if len(desired) == 0 {
		return
	}
	_, idx, conf := c.matcher.Match(desired...)
	if conf == language.No {
		return
	}
	sel.mu.Lock()
	sel.tag = c.tags[idx]
	sel.mu.Unlock()
}

// Language is the language selected for ctx.
func (c *Catalog) Language(ctx context.Context) language.Tag {
	sel, ok := ctx.Value(ctxKey{}).(*selection)
	if !ok {
		return c.tags[0]
	}
	sel.mu.Lock()
	defer sel.mu.Unlock()
	return sel.tag
}

// Message returns the text for id in the request language, falling back to
// the default language and finally to id itself.
func (c *Catalog) Message(ctx context.Context, id string) string {
	if msg, ok := c.messages[c.Language(ctx)][id]; ok {
		return msg
	}
	if msg, ok := c.messages[c.tags[0]][id]; ok {
		return msg
	}
	return id
}

func (c *Catalog) match(desired ...language.Tag) language.Tag {
	_, idx, conf := c.matcher.Match(desired...)
	if conf == language.No {
		return c.tags[0]
	}
	return c.tags[idx]
}
