package cityname

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	r := newTestResolver(t)

	st := r.Summarize([]string{"Tokyo", "tokyo", "東京都", "  ", "Osaka", "Tokyo", "12 Xyzzy Road, Quuxtown"}, 2)

	assert.Equal(t, 7, st.TotalOriginal)
	assert.Equal(t, 6, st.UniqueOriginal)
	assert.Equal(t, 6, st.TotalNormalized)
	assert.Equal(t, 3, st.UniqueNormalized)
	assert.Equal(t, 1, st.EmptyResults)
	assert.Equal(t, 1, st.LowConfidence)
	assert.InDelta(t, 50.0, st.CompressionRatio, 1e-9)
	assert.Equal(t, 4, st.ByMethod[MethodDirect])
	assert.Equal(t, 1, st.ByMethod[MethodDictionary])
	assert.Equal(t, 1, st.ByMethod[MethodUnresolved])
	assert.Equal(t, 1, st.ByMethod[MethodFallbackToken])
	assert.Equal(t, []CityFrequency{{City: "Tokyo", Count: 4}, {City: "Osaka", Count: 1}}, st.TopCities)
}

func TestSummarize_Empty(t *testing.T) {
	r := newTestResolver(t)

	st := r.Summarize(nil, 10)
	assert.Zero(t, st.TotalOriginal)
	assert.Zero(t, st.CompressionRatio)
	assert.Empty(t, st.TopCities)
}
