package timescale

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/munin2tinyobs/pkg/rrd"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
)

const tagsJSON = `{"ds_type":"gauge","rrd_cf":"AVERAGE","source":"munin"}`

func point(value rrd.Value, ts int64) metrics.WriteRequest {
	return metrics.WriteRequest{
		Measurement: "cpu.host1.system.load",
		Tags:        map[string]string{metrics.TagCF: "AVERAGE", metrics.TagDSType: "gauge", metrics.TagSource: metrics.SourceMunin},
		Time:        time.Unix(ts, 0),
		Value:       value,
	}
}

func newMock(t *testing.T) (*Writer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	w, err := New(db, "munin_points")
	require.NoError(t, err)
	return w, mock
}

func TestWriter_Write(t *testing.T) {
	w, mock := newMock(t)

	insert := regexp.QuoteMeta("INSERT INTO munin_points (measurement, tags, ts, value, raw)") +
		".*" + regexp.QuoteMeta("ON CONFLICT (measurement, tags, ts) DO NOTHING")

	mock.ExpectBegin()
	mock.ExpectExec(insert).
		WithArgs("cpu.host1.system.load", tagsJSON, time.Unix(1304014720, 0).UTC(), 0.5, "5.0000000000e-01").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).
		WithArgs("cpu.host1.system.load", tagsJSON, time.Unix(1304014780, 0).UTC(), nil, "U").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := w.Write(context.Background(), []metrics.WriteRequest{
		point(rrd.ParseValue("5.0000000000e-01"), 1304014720),
		point(rrd.ParseValue("U"), 1304014780),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_RollbackOnInsertError(t *testing.T) {
	w, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO munin_points").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO munin_points").WillReturnError(errors.New("relation \"munin_points\" does not exist"))
	mock.ExpectRollback()

	err := w.Write(context.Background(), []metrics.WriteRequest{
		point(rrd.NumberValue(1), 1),
		point(rrd.NumberValue(2), 2),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "insert point 1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_BeginError(t *testing.T) {
	w, mock := newMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	err := w.Write(context.Background(), []metrics.WriteRequest{point(rrd.NumberValue(1), 1)})
	require.ErrorContains(t, err, "timescale: begin")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_CommitError(t *testing.T) {
	w, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO munin_points").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	err := w.Write(context.Background(), []metrics.WriteRequest{point(rrd.NumberValue(1), 1)})
	require.ErrorContains(t, err, "timescale: commit")
}

func TestWriter_EmptyBatch(t *testing.T) {
	w, mock := newMock(t)
	require.NoError(t, w.Write(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNew_TableName(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"munin_points", "metrics.munin_points", "_p1"} {
		_, err := New(db, table)
		require.NoError(t, err, table)
	}
	for _, table := range []string{"", "1points", "points; DROP TABLE x", "a.b.c"} {
		_, err := New(db, table)
		require.Error(t, err, table)
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open("", "munin_points")
	require.Error(t, err)
}
