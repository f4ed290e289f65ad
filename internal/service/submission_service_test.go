package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenderdocs/internal/cache"
	"tenderdocs/internal/domain"
)

func TestSubmit_ReportsAllMissing(t *testing.T) {
	f := newFixture(t)

	_, err := f.submissions.Submit(context.Background(), f.tenderID, f.userID)
	requireCode(t, err, CodeMissingRequiredUploads)

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, domain.RequiredQuestionIDs(), se.Details["missingQuestionIds"])
	for _, id := range domain.RequiredQuestionIDs() {
		assert.Contains(t, se.Message, id)
	}
}

func TestSubmit_ReportsOnlyMissing(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "company_registration", mib)
	f.upload(t, "technical_proposal", 20*mib)
	f.upload(t, "references", mib)

	_, err := f.submissions.Submit(context.Background(), f.tenderID, f.userID)
	requireCode(t, err, CodeMissingRequiredUploads)

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"financial_statements", "price_schedule"}, se.Details["missingQuestionIds"])
}

func TestSubmit_Succeeds(t *testing.T) {
	f := newFixture(t)
	for _, id := range domain.RequiredQuestionIDs() {
		f.upload(t, id, 2*mib)
	}

	res, err := f.submissions.Submit(context.Background(), f.tenderID, f.userID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionSubmitted, res.Status)
	assert.Equal(t, f.clock, res.SubmittedAt)

	_, err = f.submissions.Submit(context.Background(), f.tenderID, f.userID)
	requireCode(t, err, CodeAlreadySubmitted)
}

func TestSubmit_AlreadySubmittedAfterTenderCloses(t *testing.T) {
	f := newFixture(t)
	for _, id := range domain.RequiredQuestionIDs() {
		f.upload(t, id, 2*mib)
	}
	_, err := f.submissions.Submit(context.Background(), f.tenderID, f.userID)
	require.NoError(t, err)

	f.db.tenders[f.tenderID].Active = false

	_, err = f.submissions.Submit(context.Background(), f.tenderID, f.userID)
	requireCode(t, err, CodeAlreadySubmitted)
}

func TestSubmit_InactiveTenderWithDraft(t *testing.T) {
	f := newFixture(t)
	f.upload(t, domain.RequiredQuestionIDs()[0], 2*mib)
	f.db.tenders[f.tenderID].Active = false

	_, err := f.submissions.Submit(context.Background(), f.tenderID, f.userID)
	requireCode(t, err, CodeTenderInactive)
}

func TestSubmit_LocksUploads(t *testing.T) {
	f := newFixture(t)
	pending := f.initiate(t, "references", 20*mib)
	for _, id := range domain.RequiredQuestionIDs() {
		f.upload(t, id, mib)
	}
	_, err := f.submissions.Submit(context.Background(), f.tenderID, f.userID)
	require.NoError(t, err)

	_, err = f.uploads.Complete(context.Background(), CompleteInput{
		TenderID: f.tenderID, UploadSessionID: pending.UploadSessionID, UserID: f.userID, Parts: partsFor(pending),
	})
	requireCode(t, err, CodeAlreadySubmitted)

	err = f.uploads.Abort(context.Background(), AbortInput{TenderID: f.tenderID, UploadSessionID: pending.UploadSessionID, UserID: f.userID})
	requireCode(t, err, CodeAlreadySubmitted)
}

func TestSubmit_DeactivatedFileDoesNotCount(t *testing.T) {
	files := []domain.UploadedFile{
		{QuestionID: "company_registration", Active: false},
		{QuestionID: "financial_statements", Active: true},
		{QuestionID: "technical_proposal", Active: true},
		{QuestionID: "price_schedule", Active: true},
	}
	assert.Equal(t, []string{"company_registration"}, MissingRequired(files))
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	status, err := f.submissions.Status(context.Background(), f.tenderID, f.userID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionDraft, status.Submission.Status)
	assert.Nil(t, status.Submission.SubmittedAt)
	assert.Len(t, status.Uploads, len(domain.Questions()))
	for _, summary := range status.Uploads {
		assert.Nil(t, summary)
	}

	uploaded := f.upload(t, "price_schedule", 3*mib)

	status, err = f.submissions.Status(context.Background(), f.tenderID, f.userID)
	require.NoError(t, err)
	require.NotNil(t, status.Uploads["price_schedule"])
	assert.Equal(t, uploaded.FileID, status.Uploads["price_schedule"].FileID)
	assert.Nil(t, status.Uploads["company_registration"])
}

func TestStatus_UnknownTender(t *testing.T) {
	f := newFixture(t)
	_, err := f.submissions.Status(context.Background(), f.db.addTender(true), f.userID)
	require.NoError(t, err)

	f2 := newFixture(t)
	_, err = f2.submissions.Status(context.Background(), f.tenderID, f.userID)
	requireCode(t, err, CodeNotFound)
}

func TestStatus_CachedAndInvalidated(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	f := newFixture(t)
	statusCache := cache.NewRedisStatusCache(client, time.Minute, zerolog.Nop())
	f.submissions.cache = statusCache
	f.uploads.cache = statusCache

	status, err := f.submissions.Status(context.Background(), f.tenderID, f.userID)
	require.NoError(t, err)
	assert.Nil(t, status.Uploads["price_schedule"])

	_, cached := statusCache.Get(context.Background(), f.tenderID, f.userID)
	require.True(t, cached)

	f.upload(t, "price_schedule", mib)

	_, cached = statusCache.Get(context.Background(), f.tenderID, f.userID)
	assert.False(t, cached, "complete must invalidate the cached status")

	status, err = f.submissions.Status(context.Background(), f.tenderID, f.userID)
	require.NoError(t, err)
	assert.NotNil(t, status.Uploads["price_schedule"])
}
