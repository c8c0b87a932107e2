package cache

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/p-arndt/querybench/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// countingGen returns values and counts its invocations.
func countingGen(values []string, calls *int) Generator {
	return func(ctx context.Context) ([]string, error) {
		*calls++
		return values, nil
	}
}

func TestKey(t *testing.T) {
	plain := New(nil, false, testLogger())
	assert.Equal(t, "schema:db1", plain.Key(NamespaceSchema, "db1", "abc"))
	assert.Equal(t, "populate:db1", plain.Key(NamespacePopulate, "db1", ""))

	versioned := New(nil, true, testLogger())
	assert.Equal(t, "schema:db1:abc", versioned.Key(NamespaceSchema, "db1", "abc"))
	assert.Equal(t, "schema:db1", versioned.Key(NamespaceSchema, "db1", ""))
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("Tabela users\nColunas:\nid - INT")
	b := Fingerprint("Tabela users\nColunas:\nid - BIGINT")

	assert.Len(t, a, 32)
	assert.Equal(t, a, Fingerprint("Tabela users\nColunas:\nid - INT"))
	assert.NotEqual(t, a, b)
}

func TestSerializeSchemaUsesBlankLines(t *testing.T) {
	ddl := []string{
		"CREATE TABLE a (\n  id INT\n);",
		"CREATE TABLE b (\n  id INT\n);",
	}
	raw := serialize("schema:db1", ddl)

	assert.Equal(t, "CREATE TABLE a (\n  id INT\n);\n\nCREATE TABLE b (\n  id INT\n);", raw)
	assert.Equal(t, ddl, deserialize("schema:db1", raw))
}

func TestSerializeOtherNamespacesUseNewlines(t *testing.T) {
	stmts := []string{"INSERT INTO a VALUES (1);", "INSERT INTO a VALUES (2);"}
	raw := serialize("populate:db1", stmts)

	assert.Equal(t, "INSERT INTO a VALUES (1);\nINSERT INTO a VALUES (2);", raw)
	assert.Equal(t, stmts, deserialize("populate:db1", raw))
}

func TestDeserializeDropsBlankParts(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, deserialize("populate:x", "a\n\n \nb\n"))
	assert.Nil(t, deserialize("populate:x", ""))
}

func TestGetOrGenerate_BypassNeverTouchesStore(t *testing.T) {
	st := &MockStore{}
	c := New(st, false, testLogger())
	calls := 0

	got, err := c.GetOrGenerate(context.Background(), "schema:db1", countingGen([]string{"x"}, &calls), true)

	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got)
	assert.Equal(t, 1, calls)
	st.AssertNotCalled(t, "GetCacheEntry", mock.Anything)
	st.AssertNotCalled(t, "PutCacheEntry", mock.Anything, mock.Anything)
}

func TestProperty_BypassNeverTouchesStore(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("bypass calls the generator and leaves the store alone for any key", prop.ForAll(
		func(key string, values []string) bool {
			st := &MockStore{}
			c := New(st, false, testLogger())
			calls := 0

			got, err := c.GetOrGenerate(context.Background(), key, countingGen(values, &calls), true)
			if err != nil || calls != 1 || len(got) != len(values) {
				return false
			}
			return len(st.Calls) == 0
		},
		gen.AnyString(),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func TestGetOrGenerate_SecondCallHits(t *testing.T) {
	st := newTestStore(t)

	c := New(st, false, testLogger())
	ddl := []string{"CREATE TABLE a (\n  id INT\n);", "CREATE TABLE b (id INT);"}
	calls := 0

	first, err := c.GetOrGenerate(context.Background(), "schema:db1", countingGen(ddl, &calls), false)
	require.NoError(t, err)
	second, err := c.GetOrGenerate(context.Background(), "schema:db1", countingGen(ddl, &calls), false)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, ddl, first)
	assert.Equal(t, ddl, second)
}

func TestGetOrGenerate_HitSkipsGenerator(t *testing.T) {
	st := &MockStore{}
	c := New(st, false, testLogger())
	st.On("GetCacheEntry", "populate:db1").Return("INSERT 1;\nINSERT 2;", true, nil)

	got, err := c.GetOrGenerate(context.Background(), "populate:db1", func(ctx context.Context) ([]string, error) {
		t.Fatal("generator must not run on a hit")
		return nil, nil
	}, false)

	require.NoError(t, err)
	assert.Equal(t, []string{"INSERT 1;", "INSERT 2;"}, got)
	st.AssertNotCalled(t, "PutCacheEntry", mock.Anything, mock.Anything)
}

func TestGetOrGenerate_WriteFailureStillReturnsValue(t *testing.T) {
	st := &MockStore{}
	c := New(st, false, testLogger())
	st.On("GetCacheEntry", "schema:X").Return("", false, nil)
	st.On("PutCacheEntry", "schema:X", "CREATE TABLE x (id INT);").Return(errors.New("disk full"))
	calls := 0

	got, err := c.GetOrGenerate(context.Background(), "schema:X",
		countingGen([]string{"CREATE TABLE x (id INT);"}, &calls), false)

	require.NoError(t, err)
	assert.Equal(t, []string{"CREATE TABLE x (id INT);"}, got)
	assert.Equal(t, 1, calls)
	st.AssertNumberOfCalls(t, "PutCacheEntry", 1)
}

func TestGetOrGenerate_ReadFailureFallsBack(t *testing.T) {
	st := &MockStore{}
	c := New(st, false, testLogger())
	st.On("GetCacheEntry", "schema:X").Return("", false, errors.New("database is locked"))
	st.On("PutCacheEntry", "schema:X", mock.Anything).Return(nil)
	calls := 0

	got, err := c.GetOrGenerate(context.Background(), "schema:X", countingGen([]string{"a"}, &calls), false)

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 1, calls)
}

func TestGetOrGenerate_GeneratorErrorReturned(t *testing.T) {
	st := &MockStore{}
	c := New(st, false, testLogger())
	st.On("GetCacheEntry", "populate:db1").Return("", false, nil)
	genErr := errors.New("generation service unavailable")

	_, err := c.GetOrGenerate(context.Background(), "populate:db1", func(ctx context.Context) ([]string, error) {
		return nil, genErr
	}, false)

	assert.ErrorIs(t, err, genErr)
	st.AssertNotCalled(t, "PutCacheEntry", mock.Anything, mock.Anything)
}

func TestGetOrGenerate_NilStoreGenerates(t *testing.T) {
	c := New(nil, false, testLogger())
	calls := 0

	for i := 0; i < 2; i++ {
		_, err := c.GetOrGenerate(context.Background(), "schema:db1", countingGen([]string{"a"}, &calls), false)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}
