package sqlbase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDialect_Bind(t *testing.T) {
	query := "SELECT id FROM node_states WHERE id = $1 AND status IN ($2, $10)"

	assert.Equal(t, query, Dialect{}.bind(query))
	assert.Equal(t,
		"SELECT id FROM node_states WHERE id = ?1 AND status IN (?2, ?10)",
		Dialect{Rebind: NumberedQuestionMarks}.bind(query))
}

func TestInList(t *testing.T) {
	placeholders, args := inList([]string{"r1", "r2", "r3"})

	assert.Equal(t, "$1, $2, $3", placeholders)
	assert.Equal(t, []any{"r1", "r2", "r3"}, args)
}

func TestDialect_UniqueViolationWithoutDetector(t *testing.T) {
	assert.False(t, Dialect{}.uniqueViolation(assert.AnError))
	assert.False(t, Dialect{IsUniqueViolation: func(error) bool { return true }}.uniqueViolation(nil))
}
