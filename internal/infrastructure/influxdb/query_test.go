package influxdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/tally-core/internal/infrastructure/influxdb"
)

const historyCSV = `#datatype,string,long,dateTime:RFC3339,long,string
#group,false,false,false,false,false
#default,_result,,,,
,result,table,_time,_value,source
,,0,2026-10-01T10:00:00Z,10,api
,,0,2026-10-01T10:01:00Z,11,mqtt

`

func (f *fakeInflux) answerQueries(csv string) {
	f.mu.Lock()
	f.queryCSV = csv
	f.mu.Unlock()
}

func (f *fakeInflux) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return ""
	}
	return f.queries[len(f.queries)-1]
}

func TestCounterHistory(t *testing.T) {
	client, server := connect(t)
	server.answerQueries(historyCSV)

	samples, err := client.CounterHistory(context.Background(), "e2268234-9d3d-4ab2-9b68-ec6088f8074b", time.Hour)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, uint32(10), samples[0].Value)
	assert.Equal(t, "api", samples[0].Source)
	assert.Equal(t, time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC), samples[0].Time.UTC())
	assert.Equal(t, uint32(11), samples[1].Value)
	assert.Equal(t, "mqtt", samples[1].Source)

	query := server.lastQuery()
	assert.Contains(t, query, `from(bucket: "metrics")`)
	assert.Contains(t, query, "range(start: -3600s)")
	assert.Contains(t, query, `r.key == "e2268234-9d3d-4ab2-9b68-ec6088f8074b"`)
}

func TestCounterHistory_Empty(t *testing.T) {
	client, server := connect(t)
	server.answerQueries("")

	samples, err := client.CounterHistory(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestCounterHistory_InvalidRange(t *testing.T) {
	client, _ := connect(t)

	_, err := client.CounterHistory(context.Background(), "k", 0)
	assert.Error(t, err)
	_, err = client.CounterHistory(context.Background(), "k", -time.Hour)
	assert.Error(t, err)
}

func TestCounterHistory_NotConnected(t *testing.T) {
	var client *influxdb.Client
	_, err := client.CounterHistory(context.Background(), "k", time.Hour)
	assert.ErrorIs(t, err, influxdb.ErrNotConnected)

	client, _ = connect(t)
	require.NoError(t, client.Close())
	_, err = client.CounterHistory(context.Background(), "k", time.Hour)
	assert.ErrorIs(t, err, influxdb.ErrNotConnected)
}
