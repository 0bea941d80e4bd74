package memo

import "github.com/goforj/memo/memocore"

// Driver identifies a document store backend.
type Driver = memocore.Driver

// Store is the document store contract.
type Store = memocore.Store

// Doc is an ordered document used as filter, index probe and stored entry.
type Doc = memocore.Doc

// Elem is a single Doc field.
type Elem = memocore.Elem

const (
	DriverNull   = memocore.DriverNull
	DriverMemory = memocore.DriverMemory
	DriverMongo  = memocore.DriverMongo
	DriverSQL    = memocore.DriverSQL
	DriverRedis  = memocore.DriverRedis
	DriverNATS   = memocore.DriverNATS
	DriverDynamo = memocore.DriverDynamo
)
