package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bioleads/lead-enrichment-pipeline/internal/lead"
)

func scored(name string, total int) lead.Scored {
	return lead.Scored{
		Record: lead.Record{Name: name, Status: lead.StatusScored},
		Score:  lead.ScoreResult{Total: total},
	}
}

func TestByScoreStable(t *testing.T) {
	in := []lead.Scored{
		scored("low", 10),
		scored("tie-a", 50),
		scored("high", 90),
		scored("tie-b", 50),
	}

	out := ByScore(in)

	assert.Equal(t, "high", out[0].Record.Name)
	assert.Equal(t, "tie-a", out[1].Record.Name, "ties keep input order")
	assert.Equal(t, "tie-b", out[2].Record.Name)
	assert.Equal(t, "low", out[3].Record.Name)
	assert.Equal(t, "low", in[0].Record.Name, "input is not mutated")
}

func TestFilterMin(t *testing.T) {
	in := []lead.Scored{scored("a", 10), scored("b", 50), scored("c", 49)}
	out := FilterMin(in, 50)
	assert.Len(t, out, 1)
	assert.Equal(t, "b", out[0].Record.Name)

	assert.Len(t, FilterMin(in, 0), 3)
	assert.Empty(t, FilterMin(nil, 0))
}

func TestTop(t *testing.T) {
	in := []lead.Scored{scored("a", 10), scored("b", 50), scored("c", 30)}

	out := Top(in, 2)
	assert.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Record.Name)
	assert.Equal(t, "c", out[1].Record.Name)

	assert.Len(t, Top(in, 10), 3)
	assert.Empty(t, Top(in, 0))
	assert.Empty(t, Top(in, -1))
}
