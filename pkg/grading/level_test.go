package grading

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextLevel(t *testing.T) {
	for _, l := range Levels() {
		next, err := NextLevel(l)
		require.NoError(t, err)
		if l == HighestLevel {
			assert.Nil(t, next)
			continue
		}
		require.NotNil(t, next)
		assert.Equal(t, l+1, *next)
	}

	_, err := NextLevel(0)
	assert.True(t, errors.Is(err, ErrInvalidLevel))
	_, err = NextLevel(HighestLevel + 1)
	assert.True(t, errors.Is(err, ErrInvalidLevel))
}

func TestIsHighestLevel(t *testing.T) {
	assert.True(t, IsHighestLevel(Basic9))
	assert.False(t, IsHighestLevel(Basic8))
	assert.False(t, IsHighestLevel(KG1))
	assert.False(t, IsHighestLevel(42))
}

func TestLevelCategory(t *testing.T) {
	want := map[Level]Category{
		KG1: CategoryKG, KG2: CategoryKG,
		Basic1: CategoryLowerPrimary, Basic3: CategoryLowerPrimary,
		Basic4: CategoryUpperPrimary, Basic6: CategoryUpperPrimary,
		Basic7: CategoryJHS, Basic9: CategoryJHS,
	}
	for level, category := range want {
		got, err := LevelCategory(level)
		require.NoError(t, err)
		assert.Equal(t, category, got, level.String())
	}
	_, err := LevelCategory(-3)
	assert.True(t, errors.Is(err, ErrInvalidLevel))
}

func TestLevelNames(t *testing.T) {
	name, err := LevelName(KG2)
	require.NoError(t, err)
	assert.Equal(t, "KG 2", name)
	assert.Equal(t, "Basic 7", Basic7.String())
	assert.Equal(t, "Level(12)", Level(12).String())
	assert.Len(t, Levels(), 11)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"KG 1":    KG1,
		"kg2":     KG2,
		"Basic 1": Basic1,
		"BASIC9":  Basic9,
		"JHS 1":   Basic7,
		"jhs 3":   Basic9,
		"5":       Basic3,
	}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	for _, bad := range []string{"", "KG 3", "Basic 10", "JHS 4", "Primary 1", "0", "12"} {
		_, err := ParseLevel(bad)
		assert.True(t, errors.Is(err, ErrInvalidLevel), bad)
	}
}
