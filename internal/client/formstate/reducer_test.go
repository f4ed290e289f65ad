package formstate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tenderdocs/internal/domain"
)

func descriptor(id string) domain.FileDescriptor {
	return domain.FileDescriptor{FileID: id, FileName: id + ".pdf", Size: 10, Mime: "application/pdf"}
}

func TestReduce_Single(t *testing.T) {
	s := NewState()

	s1 := Reduce(s, Event{Type: EventAddSingle, QuestionID: "q1", File: descriptor("a")})
	assert.True(t, s1.IsDirty)
	assert.Equal(t, uint64(1), s1.Revision)
	assert.Equal(t, "a", s1.SingleUploads["q1"].FileID)
	assert.Empty(t, s.SingleUploads, "input state must not change")

	s2 := Reduce(s1, Event{Type: EventAddSingle, QuestionID: "q1", File: descriptor("b")})
	assert.Equal(t, "b", s2.SingleUploads["q1"].FileID)
	assert.Equal(t, uint64(2), s2.Revision)

	s3 := Reduce(s2, Event{Type: EventRemoveSingle, QuestionID: "q1"})
	assert.NotContains(t, s3.SingleUploads, "q1")
	assert.Equal(t, "b", s2.SingleUploads["q1"].FileID)

	s4 := Reduce(s3, Event{Type: EventRemoveSingle, QuestionID: "q1"})
	assert.Equal(t, s3.Revision, s4.Revision, "removing a missing entry is a no-op")
}

func TestReduce_Multi(t *testing.T) {
	s := NewState()
	s = Reduce(s, Event{Type: EventAddMulti, QuestionID: "refs", File: descriptor("a")})
	s = Reduce(s, Event{Type: EventAddMulti, QuestionID: "refs", File: descriptor("b")})
	dup := Reduce(s, Event{Type: EventAddMulti, QuestionID: "refs", File: descriptor("a")})

	assert.Len(t, s.MultiUploads["refs"], 2)
	assert.Equal(t, s.Revision, dup.Revision)

	s = Reduce(s, Event{Type: EventRemoveMulti, QuestionID: "refs", FileID: "a"})
	assert.Equal(t, []domain.FileDescriptor{descriptor("b")}, s.MultiUploads["refs"])

	s = Reduce(s, Event{Type: EventRemoveMulti, QuestionID: "refs", FileID: "b"})
	assert.NotContains(t, s.MultiUploads, "refs")
}

func TestReduce_MarkSavedOnlyForLatestRevision(t *testing.T) {
	s := Reduce(NewState(), Event{Type: EventAddSingle, QuestionID: "q1", File: descriptor("a")})
	saved := s.Revision
	s = Reduce(s, Event{Type: EventAddSingle, QuestionID: "q2", File: descriptor("b")})

	stale := Reduce(s, Event{Type: EventMarkSaved, Revision: saved})
	assert.True(t, stale.IsDirty)

	fresh := Reduce(s, Event{Type: EventMarkSaved, Revision: s.Revision})
	assert.False(t, fresh.IsDirty)
}

func TestReduce_Init(t *testing.T) {
	s := Reduce(NewState(), Event{Type: EventAddSingle, QuestionID: "old", File: descriptor("x")})

	persisted := domain.NewFormState()
	persisted.SingleUploads["q1"] = descriptor("a")
	persisted.MultiUploads["refs"] = []domain.FileDescriptor{descriptor("b")}
	persisted.MultiUploads["empty"] = nil

	s = Reduce(s, Event{Type: EventInit, State: persisted})

	assert.False(t, s.IsDirty)
	assert.NotContains(t, s.SingleUploads, "old")
	assert.Contains(t, s.SingleUploads, "q1")
	assert.NotContains(t, s.MultiUploads, "empty")
	delete(persisted.MultiUploads, "empty")
	assert.Equal(t, persisted, s.Persisted())
}
