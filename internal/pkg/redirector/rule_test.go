package redirector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchOrderedSequencesDirsAddsHides(t *testing.T) {
	var b Batch
	b.Add(HideRule("/system/etc/hosts"))
	b.Add(AddRule("/system/bin/tool", "/mirror/m1/system/bin/tool", DTReg))
	b.Add(InjectDirRule("/system/bin"))
	b.Add(ClearAllRule())

	ordered := b.Ordered()
	require := []RuleKind{KindClearAll, KindInjectDir, KindAdd, KindHide}
	for i, kind := range require {
		assert.Equal(t, kind, ordered[i].Kind, "position %d", i)
	}
}

func TestBatchOrderedPreservesWithinKindOrder(t *testing.T) {
	var b Batch
	b.Add(AddRule("/a", "/t/a", DTReg))
	b.Add(AddRule("/b", "/t/b", DTReg))

	ordered := b.Ordered()
	assert.Equal(t, "/a", ordered[0].Src)
	assert.Equal(t, "/b", ordered[1].Src)
}
