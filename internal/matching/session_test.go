package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommonTopics(t *testing.T) {
	a := &Session{ID: "a", Topics: []string{"arrays", "graphs", "dp"}}
	b := &Session{ID: "b", Topics: []string{"dp", "arrays", "strings"}}

	assert.Equal(t, []string{"arrays", "dp"}, CommonTopics(a, b))
	assert.Empty(t, CommonTopics(a, &Session{ID: "c", Topics: []string{"trees"}}))
}

func TestCommonDifficulties(t *testing.T) {
	a := &Session{ID: "a", Difficulties: Difficulties{Easy: true, Medium: true}}
	b := &Session{ID: "b", Difficulties: Difficulties{Medium: true, Hard: true}}

	assert.Equal(t, []Difficulty{DifficultyMedium}, CommonDifficulties(a, b))
}

func TestHasCommonDifficulties(t *testing.T) {
	a := &Session{ID: "a", Difficulties: Difficulties{Easy: true}}
	b := &Session{ID: "b", Difficulties: Difficulties{Hard: true}}
	c := &Session{ID: "c", Difficulties: Difficulties{Easy: true, Hard: true}}

	assert.False(t, HasCommonDifficulties(a, b))
	assert.True(t, HasCommonDifficulties(a, c))
	assert.True(t, HasCommonDifficulties(b, c))
}

func TestDifficultiesNone(t *testing.T) {
	assert.True(t, Difficulties{}.None())
	assert.False(t, Difficulties{Medium: true}.None())
}
