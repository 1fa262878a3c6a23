package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/songbook/internal/apperr"
)

func TestParse_Normalises(t *testing.T) {
	ref, err := Parse("  zhsp ")
	require.NoError(t, err)
	assert.Equal(t, Ref("ZHSP"), ref)
}

func TestParse_RejectsBadShapes(t *testing.T) {
	for _, in := range []string{"", "   ", "Z-H", "../CH", "ABCDEFGHIJKLMNOPQ"} {
		_, err := Parse(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassPrepackaged, Classify("ZH"))
	assert.Equal(t, ClassPublic, Classify("CH"))
	assert.Equal(t, ClassKnown, Classify("ARF"))
	assert.Equal(t, ClassUnknown, Classify("XX"))
}

func TestSetsAreDisjoint(t *testing.T) {
	for _, p := range Prepackaged {
		assert.False(t, IsKnown(p), "%s is both prepackaged and known", p)
	}
	for _, p := range Public {
		assert.True(t, IsKnown(p), "public %s must be known", p)
	}
}

func TestImportable(t *testing.T) {
	require.NoError(t, Importable("CH"))
	require.NoError(t, Importable("ARFR"))
	assert.True(t, errors.Is(Importable("ZH"), apperr.ErrPrepackaged))
	assert.True(t, errors.Is(Importable("NOPE"), apperr.ErrUnknownBook))
}
