// Package memotest provides reusable store contract tests for memo.Store implementations.
//
// Example pattern (driver test):
//
//	func TestSQLiteStoreContract(t *testing.T) {
//		ctx := context.Background()
//		store := memo.NewSQLStore(ctx, "sqlite", "file:"+filepath.Join(t.TempDir(), "memo.db"))
//		t.Cleanup(func() { _ = store.Close(ctx) })
//
//		// Collections are namespaced per test.
//		memotest.RunStoreContract(t, store, memotest.Options{CaseName: t.Name()})
//	}
//
// Example factory/cleanup wrapper:
//
//	func runContractWithFactory(t *testing.T, mk func(t *testing.T) (memo.Store, func())) {
//		t.Helper()
//		store, cleanup := mk(t)
//		t.Cleanup(cleanup)
//		memotest.RunStoreContract(t, store, memotest.Options{CaseName: t.Name()})
//	}
package memotest
