package p2p

// Config of the unsafe payload feed
type Config struct {
	// QueueSize is the number of payloads buffered until the driver drains them
	QueueSize int `mapstructure:"QueueSize"`
	// SeenCacheSize is the number of recent block hashes used to drop duplicates
	SeenCacheSize int `mapstructure:"SeenCacheSize"`
}
