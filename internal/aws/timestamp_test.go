package aws

import (
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_RoundTrip(t *testing.T) {
	type row struct {
		At  Timestamp  `dynamodbav:"at"`
		Opt *Timestamp `dynamodbav:"opt,omitempty"`
	}
	in := row{At: At(time.Date(2025, 1, 31, 16, 59, 59, 500, time.UTC))}

	item, err := attributevalue.MarshalMap(in)
	require.NoError(t, err)
	_, hasOpt := item["opt"]
	assert.False(t, hasOpt)

	var out row
	require.NoError(t, attributevalue.UnmarshalMap(item, &out))
	assert.True(t, in.At.Equal(out.At.Time))
}

func TestFormatTime_SortsChronologically(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{base.Add(time.Second), base.Add(500 * time.Millisecond), base, base.Add(1)}
	var s []string
	for _, tm := range times {
		s = append(s, FormatTime(tm))
	}
	sort.Strings(s)
	assert.Equal(t, FormatTime(base), s[0])
	assert.Equal(t, FormatTime(base.Add(1)), s[1])
	assert.Equal(t, FormatTime(base.Add(time.Second)), s[3])
}
