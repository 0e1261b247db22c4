package speaker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/voicegateway/internal/speaker"
)

func hamidashi(t *testing.T) *speaker.Table {
	t.Helper()
	tbl, err := speaker.NewTable("让", "说", []speaker.Alias{
		{Name: "妃爱", ID: 0},
		{Name: "华乃", ID: 1},
		{Name: "亚澄", ID: 2},
		{Name: "明日海", ID: 2},
		{Name: "里", ID: 5},
		{Name: "里姐", ID: 5},
	}, 8)
	require.NoError(t, err)
	return tbl
}

func TestTableMatch(t *testing.T) {
	t.Parallel()
	tbl := hamidashi(t)

	tests := []struct {
		name    string
		message string
		want    speaker.Match
		ok      bool
	}{
		{
			name:    "simple",
			message: "让妃爱说こんにちは",
			want:    speaker.Match{Speaker: "妃爱", ID: 0, Text: "こんにちは"},
			ok:      true,
		},
		{
			name:    "aliases share an id",
			message: "让明日海说你好",
			want:    speaker.Match{Speaker: "明日海", ID: 2, Text: "你好"},
			ok:      true,
		},
		{
			name:    "longer alias wins over its prefix",
			message: "让里姐说早上好",
			want:    speaker.Match{Speaker: "里姐", ID: 5, Text: "早上好"},
			ok:      true,
		},
		{
			name:    "text is kept verbatim",
			message: "让华乃说  说说 [JA]x[JA]\n",
			want:    speaker.Match{Speaker: "华乃", ID: 1, Text: "  说说 [JA]x[JA]\n"},
			ok:      true,
		},
		{name: "not anchored at start", message: "请让妃爱说你好"},
		{name: "empty text", message: "让妃爱说"},
		{name: "unknown speaker", message: "让宁宁说你好"},
		{name: "missing connective", message: "让妃爱你好"},
		{name: "empty message", message: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := tbl.Match(tc.message)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTableMetacharactersAreLiteral(t *testing.T) {
	t.Parallel()
	tbl, err := speaker.NewTable("say(", ")+", []speaker.Alias{{Name: "a.b", ID: 0}}, 1)
	require.NoError(t, err)

	m, ok := tbl.Match("say(a.b)+hello")
	require.True(t, ok)
	assert.Equal(t, "hello", m.Text)

	_, ok = tbl.Match("say(axb)+hello")
	assert.False(t, ok)
}

func TestNewTableValidation(t *testing.T) {
	t.Parallel()

	_, err := speaker.NewTable("让", "说", nil, 1)
	assert.ErrorIs(t, err, speaker.ErrNoAliases)

	_, err = speaker.NewTable("", "说", []speaker.Alias{{Name: "a", ID: 0}}, 1)
	assert.ErrorIs(t, err, speaker.ErrEmptyMarker)

	_, err = speaker.NewTable("让", "说", []speaker.Alias{{Name: "", ID: 0}}, 1)
	assert.ErrorIs(t, err, speaker.ErrEmptyAlias)

	_, err = speaker.NewTable("让", "说", []speaker.Alias{{Name: "a", ID: 0}, {Name: "a", ID: 0}}, 1)
	assert.ErrorIs(t, err, speaker.ErrDuplicateAlias)

	_, err = speaker.NewTable("让", "说", []speaker.Alias{{Name: "a", ID: 3}}, 3)
	assert.ErrorIs(t, err, speaker.ErrSpeakerOutOfRange)

	_, err = speaker.NewTable("让", "说", []speaker.Alias{{Name: "a", ID: -1}}, 3)
	assert.ErrorIs(t, err, speaker.ErrSpeakerOutOfRange)
}

func TestTableAliasOrderAndSpeakers(t *testing.T) {
	t.Parallel()
	tbl := hamidashi(t)

	aliases := tbl.Aliases()
	require.Len(t, aliases, 6)
	assert.Equal(t, "明日海", aliases[0].Name)
	assert.Equal(t, "里", aliases[len(aliases)-1].Name)

	assert.Equal(t, []speaker.Alias{
		{Name: "妃爱", ID: 0},
		{Name: "华乃", ID: 1},
		{Name: "明日海", ID: 2},
		{Name: "里姐", ID: 5},
	}, tbl.Speakers())

	assert.Equal(t, "让", tbl.Imperative())
	assert.Equal(t, "说", tbl.Connective())
}
