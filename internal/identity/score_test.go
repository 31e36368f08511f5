package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreTiers(t *testing.T) {
	assert.Equal(t, 1.0, Score("JOHN SMITH", "john  smith"))
	assert.Equal(t, 1.0, Score("Mr. John Smith", "john smith"))
	assert.Equal(t, 0.95, Score("Smith, John", "John Smith"))
	assert.Equal(t, 0.95, Score("Dr. John A. Smith", "john smith"))
	assert.Equal(t, 0.90, Score("John Michael Smith", "Smith John Michael"))
	assert.InDelta(t, 0.9, Score("Jon Smith", "John Smith"), 0.01)
}

func TestScoreProperties(t *testing.T) {
	assert.GreaterOrEqual(t, Score("Smith, John", "John Smith"), 0.95)
	assert.GreaterOrEqual(t, Score("Dr. John A. Smith", "john smith"), Threshold)
	assert.Less(t, Score("John Smith", "Mary Jones"), Threshold)
	assert.Less(t, Score("Ravi Kumar", "Priya Sharma"), Threshold)
}

func TestScoreSymmetricAndBounded(t *testing.T) {
	names := []string{
		"John Smith", "Smith, John", "Dr. John A. Smith", "Jon Smith",
		"Mary Jones", "J. Smith", "", "Dr.", "Smith John Michael", "John Michael Smith",
	}
	for _, a := range names {
		for _, b := range names {
			s := Score(a, b)
			assert.Equal(t, s, Score(b, a), "%q vs %q", a, b)
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0)
		}
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, clamp(-0.5))
	assert.Equal(t, 1.0, clamp(1.5))
	assert.Equal(t, 0.4, clamp(0.4))
}
