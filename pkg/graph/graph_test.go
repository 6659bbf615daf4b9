package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nounverb/nounverb/pkg/verrors"
)

func TestAddNounRejectsUnregisteredKind(t *testing.T) {
	s := New()
	err := s.AddNoun(&Noun{ID: "n1", Kind: NounKind("Robot")})
	assert.Error(t, err)
}

func TestRegisterNounKindAllowsFutureUse(t *testing.T) {
	RegisterNounKind("Robot")
	s := New()
	err := s.AddNoun(&Noun{ID: "n1", Kind: "Robot"})
	assert.NoError(t, err)
}

func TestGetNounsByKind(t *testing.T) {
	s := New()
	require.NoError(t, s.AddNoun(&Noun{ID: "p1", Kind: Person}))
	require.NoError(t, s.AddNoun(&Noun{ID: "p2", Kind: Person}))
	require.NoError(t, s.AddNoun(&Noun{ID: "l1", Kind: Location}))

	people := s.GetNounsByKind(Person)
	assert.Len(t, people, 2)
}

func TestDeleteNoun(t *testing.T) {
	s := New()
	require.NoError(t, s.AddNoun(&Noun{ID: "n1", Kind: Thing}))
	assert.True(t, s.DeleteNoun("n1"))
	assert.False(t, s.DeleteNoun("n1"))
	assert.Len(t, s.GetNounsByKind(Thing), 0)
}

func TestAddVerbRequiresExistingEndpoints(t *testing.T) {
	s := New()
	require.NoError(t, s.AddNoun(&Noun{ID: "a"}))

	err := s.AddVerb(&Verb{ID: "v1", Source: "a", Target: "b", Kind: "RelatedTo"})
	require.Error(t, err)
	assert.True(t, verrors.IsNotFound(err))
}

func TestVerbIndicesBidirectionalLookup(t *testing.T) {
	s := New()
	require.NoError(t, s.AddNoun(&Noun{ID: "a"}))
	require.NoError(t, s.AddNoun(&Noun{ID: "b"}))
	require.NoError(t, s.AddVerb(&Verb{ID: "v1", Source: "a", Target: "b", Kind: "Owns"}))

	bySource := s.GetVerbsBySource("a")
	require.Len(t, bySource, 1)
	assert.Equal(t, "v1", bySource[0].ID)

	byTarget := s.GetVerbsByTarget("b")
	require.Len(t, byTarget, 1)
	assert.Equal(t, "v1", byTarget[0].ID)

	byKind := s.GetVerbsByKind("Owns")
	require.Len(t, byKind, 1)
}

func TestVerbsByNounDirection(t *testing.T) {
	s := New()
	require.NoError(t, s.AddNoun(&Noun{ID: "a"}))
	require.NoError(t, s.AddNoun(&Noun{ID: "b"}))
	require.NoError(t, s.AddNoun(&Noun{ID: "c"}))
	require.NoError(t, s.AddVerb(&Verb{ID: "v1", Source: "a", Target: "b", Kind: "Owns"}))
	require.NoError(t, s.AddVerb(&Verb{ID: "v2", Source: "c", Target: "a", Kind: "Owns"}))

	assert.Len(t, s.VerbsByNoun("a", Out), 1)
	assert.Len(t, s.VerbsByNoun("a", In), 1)
	assert.Len(t, s.VerbsByNoun("a", Both), 2)
}

func TestDeleteVerbRemovesFromAllIndices(t *testing.T) {
	s := New()
	require.NoError(t, s.AddNoun(&Noun{ID: "a"}))
	require.NoError(t, s.AddNoun(&Noun{ID: "b"}))
	require.NoError(t, s.AddVerb(&Verb{ID: "v1", Source: "a", Target: "b", Kind: "Owns"}))

	assert.True(t, s.DeleteVerb("v1"))
	assert.Len(t, s.GetVerbsBySource("a"), 0)
	assert.Len(t, s.GetVerbsByTarget("b"), 0)
	assert.Len(t, s.GetVerbsByKind("Owns"), 0)
}

func TestVerbKindIsOpenString(t *testing.T) {
	s := New()
	require.NoError(t, s.AddNoun(&Noun{ID: "a"}))
	require.NoError(t, s.AddNoun(&Noun{ID: "b"}))
	err := s.AddVerb(&Verb{ID: "v1", Source: "a", Target: "b", Kind: "TotallyMadeUpKind"})
	assert.NoError(t, err, "verb kinds are an open string, unlike noun kinds")
}

func TestClear(t *testing.T) {
	s := New()
	require.NoError(t, s.AddNoun(&Noun{ID: "a"}))
	require.NoError(t, s.AddNoun(&Noun{ID: "b"}))
	require.NoError(t, s.AddVerb(&Verb{ID: "v1", Source: "a", Target: "b", Kind: "Owns"}))

	s.Clear()
	assert.Equal(t, 0, s.NounCount())
	assert.Equal(t, 0, s.VerbCount())
}
