package certvalidator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRLCache_PutGet(t *testing.T) {
	pki := newTestPKI(t, certSpec{})
	crl := mustMakeCRL(t, pki.inter, pki.interKey, 5, evalTime.Add(-time.Hour), evalTime.Add(24*time.Hour), nil)

	cache := NewCRLCache(10)
	issuerDN := pki.inter.Subject.String()

	_, ok := cache.Get(issuerDN)
	assert.False(t, ok)

	require.True(t, cache.Put(issuerDN, crl))
	got, ok := cache.Get(issuerDN)
	require.True(t, ok)
	assert.Zero(t, CRLNumberOf(got).Int64()-5)
	assert.Equal(t, 1, cache.Len())
}

func TestCRLCache_NumberRegressionRejected(t *testing.T) {
	pki := newTestPKI(t, certSpec{})
	cache := NewCRLCache(10)
	issuerDN := pki.inter.Subject.String()

	crl5 := mustMakeCRL(t, pki.inter, pki.interKey, 5, evalTime.Add(-2*time.Hour), evalTime.Add(24*time.Hour), nil)
	// Later thisUpdate, but a smaller number: a replayed or rolled-back list.
	crl4 := mustMakeCRL(t, pki.inter, pki.interKey, 4, evalTime.Add(-time.Hour), evalTime.Add(48*time.Hour), nil)

	require.True(t, cache.Put(issuerDN, crl5))
	assert.False(t, cache.Put(issuerDN, crl4))

	got, ok := cache.Get(issuerDN)
	require.True(t, ok)
	assert.EqualValues(t, 5, CRLNumberOf(got).Int64())

	// Equal and larger numbers are accepted.
	crl5b := mustMakeCRL(t, pki.inter, pki.interKey, 5, evalTime.Add(-time.Hour), evalTime.Add(48*time.Hour), nil)
	assert.True(t, cache.Put(issuerDN, crl5b))
	crl6 := mustMakeCRL(t, pki.inter, pki.interKey, 6, evalTime, evalTime.Add(72*time.Hour), nil)
	assert.True(t, cache.Put(issuerDN, crl6))

	got, _ = cache.Get(issuerDN)
	assert.EqualValues(t, 6, CRLNumberOf(got).Int64())
}

func TestCRLCache_MonotonicUnderConcurrentPut(t *testing.T) {
	pki := newTestPKI(t, certSpec{})
	cache := NewCRLCache(10)
	issuerDN := pki.inter.Subject.String()

	var wg sync.WaitGroup
	for n := int64(1); n <= 8; n++ {
		crl := mustMakeCRL(t, pki.inter, pki.interKey, n, evalTime.Add(-time.Hour), evalTime.Add(24*time.Hour), nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Put(issuerDN, crl)
		}()
	}
	wg.Wait()

	got, ok := cache.Get(issuerDN)
	require.True(t, ok)
	assert.EqualValues(t, 8, CRLNumberOf(got).Int64())
}

func TestCRLCache_LRUEviction(t *testing.T) {
	cache := NewCRLCache(2)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	cache.now = func() time.Time { return clock }

	issuers := make([]string, 3)
	for i := range issuers {
		ca, caKey := mustMakeCert(t, certSpec{cn: "Evict CA " + string(rune('A'+i)), serial: int64(60 + i), isCA: true, maxPathLen: -1}, nil, nil)
		issuers[i] = ca.Subject.String()
		crl := mustMakeCRL(t, ca, caKey, 1, base.Add(-time.Hour), base.Add(24*time.Hour), nil)

		clock = clock.Add(time.Minute)
		require.True(t, cache.Put(issuers[i], crl))
	}

	assert.Equal(t, 2, cache.Len())
	_, ok := cache.Get(issuers[0])
	assert.False(t, ok, "least recently used entry should have been evicted")
	_, ok = cache.Get(issuers[1])
	assert.True(t, ok)
	_, ok = cache.Get(issuers[2])
	assert.True(t, ok)
}

func TestCRLCache_IsExpiringSoon(t *testing.T) {
	pki := newTestPKI(t, certSpec{})
	cache := NewCRLCache(10)
	cache.now = func() time.Time { return evalTime }
	issuerDN := pki.inter.Subject.String()

	// No entry at all.
	assert.True(t, cache.IsExpiringSoon(issuerDN, time.Hour))

	crl := mustMakeCRL(t, pki.inter, pki.interKey, 1, evalTime.Add(-time.Hour), evalTime.Add(30*time.Minute), nil)
	require.True(t, cache.Put(issuerDN, crl))

	assert.True(t, cache.IsExpiringSoon(issuerDN, time.Hour))
	assert.False(t, cache.IsExpiringSoon(issuerDN, 10*time.Minute))
}

func TestCRLCache_RemoveExpired(t *testing.T) {
	cache := NewCRLCache(10)
	now := evalTime
	cache.now = func() time.Time { return now }

	freshCA, freshKey := mustMakeCert(t, certSpec{cn: "Fresh CA", serial: 70, isCA: true, maxPathLen: -1}, nil, nil)
	staleCA, staleKey := mustMakeCert(t, certSpec{cn: "Stale CA", serial: 71, isCA: true, maxPathLen: -1}, nil, nil)

	fresh := mustMakeCRL(t, freshCA, freshKey, 1, evalTime.Add(-time.Hour), evalTime.Add(24*time.Hour), nil)
	stale := mustMakeCRL(t, staleCA, staleKey, 1, evalTime.Add(-48*time.Hour), evalTime.Add(-time.Hour), nil)

	require.True(t, cache.Put(freshCA.Subject.String(), fresh))
	require.True(t, cache.Put(staleCA.Subject.String(), stale))

	removed := cache.RemoveExpired()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, cache.Len())

	_, ok := cache.Get(freshCA.Subject.String())
	assert.True(t, ok)
	_, ok = cache.Get(staleCA.Subject.String())
	assert.False(t, ok)
}
