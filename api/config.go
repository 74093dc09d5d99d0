package api

type ServerConfig struct {
	S3    S3Config
	DB    DBConfig
	Redis RedisConfig
}

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string

	// ProcessedBucket holds the date-partitioned NDJSON objects.
	ProcessedBucket string
	// URLsBucket and RescrapePrefix locate the rescrape URL lists.
	URLsBucket     string
	RescrapePrefix string
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	StreamKeys RedisStreamKeys
}

type RedisStreamKeys struct {
	Pipeline string
}
