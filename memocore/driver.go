package memocore

// Driver identifies a document store backend.
type Driver string

const (
	DriverNull   Driver = "null"
	DriverMemory Driver = "memory"
	DriverMongo  Driver = "mongo"
	DriverSQL    Driver = "sql"
	DriverRedis  Driver = "redis"
	DriverNATS   Driver = "nats"
	DriverDynamo Driver = "dynamodb"
)
