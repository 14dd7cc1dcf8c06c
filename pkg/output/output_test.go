package output

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingOutput struct{ err error }

func (f failingOutput) WriteBatch(context.Context, [][]byte) error { return f.err }

func TestWriterOutput(t *testing.T) {
	var buf bytes.Buffer
	out := NewWriterOutput(&buf)

	require.NoError(t, out.WriteBatch(context.Background(), [][]byte{[]byte(`{"id":"a"}`), []byte(`{"id":"b"}`)}))
	assert.Equal(t, "{\"id\":\"a\"}\n{\"id\":\"b\"}\n", buf.String())
}

func TestHTTPOutput(t *testing.T) {
	var got []byte
	var contentType, token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = io.ReadAll(r.Body)
		contentType = r.Header.Get("Content-Type")
		token = r.Header.Get("X-Token")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	out := NewHTTPOutput(srv.URL, map[string]string{"X-Token": "abc"})
	require.NoError(t, out.WriteBatch(context.Background(), [][]byte{[]byte(`{"id":"a"}`), []byte(`{"id":"b"}`)}))

	assert.Equal(t, "{\"id\":\"a\"}\n{\"id\":\"b\"}\n", string(got))
	assert.Equal(t, "application/x-ndjson", contentType)
	assert.Equal(t, "abc", token)
}

func TestHTTPOutput_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewHTTPOutput(srv.URL, nil).WriteBatch(context.Background(), [][]byte{[]byte(`{}`)})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
}

func TestFanOutOutput(t *testing.T) {
	var a, b bytes.Buffer
	entries := [][]byte{[]byte(`{"id":"a"}`)}

	require.NoError(t, NewFanOutOutput(NewWriterOutput(&a), NewWriterOutput(&b)).WriteBatch(context.Background(), entries))
	assert.Equal(t, a.String(), b.String())

	boom := errors.New("boom")
	err := NewFanOutOutput(NewWriterOutput(io.Discard), failingOutput{boom}).WriteBatch(context.Background(), entries)
	assert.ErrorIs(t, err, boom)
}

func TestPostgresOutput_WriteBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	out := NewPostgresOutput(db, "")
	entries := [][]byte{
		[]byte(`{"id":"ev1","triggersFired":[false,true]}`),
		[]byte(`{"id":"ev2","triggersFired":[]}`),
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO "trigger_decisions" (event_id, triggers_fired, event)`))
	prep.ExpectExec().WithArgs("ev1", pq.Array([]bool{false, true}), string(entries[0])).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("ev2", pq.Array([]bool{}), string(entries[1])).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, out.WriteBatch(context.Background(), entries))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOutput_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	out := NewPostgresOutput(db, "decisions")
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO "decisions"`))
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = out.WriteBatch(context.Background(), [][]byte{[]byte(`{"id":"ev1","triggersFired":[true]}`)})
	assert.ErrorContains(t, err, "insert event ev1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOutput_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "trigger_decisions"`)).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewPostgresOutput(db, "").EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
