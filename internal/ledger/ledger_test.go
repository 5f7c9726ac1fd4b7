package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/store"
)

// fakeStore records call order and can be configured to fail at a given
// step, without pulling in a database.
type fakeStore struct {
	store.Store // embed nil: any unimplemented method panics if called

	calls []string

	failInsert    error
	failUserIncr  error
	failProfIncr  error
	insertedUsage *store.TokenUsageRecord
}

func (f *fakeStore) InsertTokenUsageRecord(ctx context.Context, r *store.TokenUsageRecord) error {
	f.calls = append(f.calls, "insert")
	if f.failInsert != nil {
		return f.failInsert
	}
	f.insertedUsage = r
	return nil
}

func (f *fakeStore) IncrementUserTokens(ctx context.Context, userID string, prompt, completion int64) error {
	f.calls = append(f.calls, "user")
	return f.failUserIncr
}

func (f *fakeStore) IncrementProfileTokens(ctx context.Context, profileID string, prompt, completion int64) error {
	f.calls = append(f.calls, "profile")
	return f.failProfIncr
}

func TestRecord_RejectsNegativeCounts(t *testing.T) {
	l := New(&fakeStore{})
	err := l.Record(context.Background(), Entry{PromptTokens: -1, CompletionTokens: 2})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
}

func TestRecord_WritesInOrder(t *testing.T) {
	fs := &fakeStore{}
	l := New(fs)

	err := l.Record(context.Background(), Entry{
		UserID: "u1", ProfileID: "p1", PromptTokens: 5, CompletionTokens: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"insert", "user", "profile"}, fs.calls)
	require.NotNil(t, fs.insertedUsage)
	assert.EqualValues(t, 8, fs.insertedUsage.TotalTokens)
}

func TestRecord_StopsAtFirstFailureButLeavesPriorWritesInPlace(t *testing.T) {
	fs := &fakeStore{failUserIncr: fmt.Errorf("db down")}
	l := New(fs)

	err := l.Record(context.Background(), Entry{UserID: "u1", ProfileID: "p1", PromptTokens: 1, CompletionTokens: 1})
	require.Error(t, err)
	assert.Equal(t, []string{"insert", "user"}, fs.calls, "profile increment must not run after user increment fails")
	assert.NotNil(t, fs.insertedUsage, "the already-inserted usage record must remain in place")
}
