package i18n

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestCatalog(t *testing.T) {
	t.Parallel()
	c := New()

	t.Run("english without a request selection", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "Username is required", c.Message(context.Background(), "username_required"))
	})

	t.Run("accept-language picks the closest language", func(t *testing.T) {
		t.Parallel()
		ctx := c.WithRequest(context.Background(), "de-AT,de;q=0.9,en;q=0.5")
		require.Equal(t, language.German, c.Language(ctx))
		require.Equal(t, "Benutzername ist erforderlich", c.Message(ctx, "username_required"))
	})

	t.Run("ui locales narrow the selection for this request only", func(t *testing.T) {
		t.Parallel()
		ctx := c.WithRequest(context.Background(), "en")
		other := c.WithRequest(context.Background(), "en")

		c.SetRequestLanguage(ctx, "de-CH fr")
		require.Equal(t, language.German, c.Language(ctx))
		require.Equal(t, language.English, c.Language(other))
	})

	t.Run("unknown locales keep the current language", func(t *testing.T) {
		t.Parallel()
		ctx := c.WithRequest(context.Background(), "de")
		c.SetRequestLanguage(ctx, "!!")
		require.Equal(t, language.German, c.Language(ctx))
	})

	t.Run("unknown ids fall back to the id", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "no.such.id", c.Message(context.Background(), "no.such.id"))
	})

	t.Run("every language defines every message", func(t *testing.T) {
		t.Parallel()
		for id := range english {
			require.Contains(t, german, id)
		}
		require.Len(t, german, len(english))
	})
}
