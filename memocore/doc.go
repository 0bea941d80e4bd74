package memocore

import "go.mongodb.org/mongo-driver/bson"

// Doc is an ordered document. Field order is preserved on the wire so a Doc
// can double as an index probe for a compound index declared in the same order.
type Doc = bson.D

// Elem is a single key/value pair of a Doc.
type Elem = bson.E
