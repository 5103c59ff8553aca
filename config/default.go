package config

// This values doesnt have a default value because depend on the
// environment / deployment
const DefaultMandatoryVars = `
# Layer 1 (Ethereum) RPC provider URL
L1URL = "http://localhost:8545"

# Authenticated engine API endpoint of the L2 execution client
L2EngineURL = "http://localhost:8551"

# JWTSecret is the hex secret shared with the execution client, or the path of a file holding it
JWTSecret = "/app/jwt.txt"

# RollupConfigPath is the rollup.json of the chain
RollupConfigPath = "/app/rollup.json"
`

// This doesn't belong to config, but are the vars used
// to avoid repetition in config-files
const DefaultVars = `
PathRWData = "/tmp/opnode"
L1RequestsPerSecond = 20
`

// DefaultValues is the default configuration
const DefaultValues = `
# This is the default configuration for the rollup node

# Log configuration
[Log]
  # Environment is the environment where the node is running
  Environment = "development" # "production" or "development"
  # Level is the log level
  Level = "info"
  # Outputs are the outputs where the logs will be written
  Outputs = ["stderr"]
  # MaxSizeMB rotates file outputs once they reach this size, 0 disables rotation
  MaxSizeMB = 0
  # MaxBackups is the number of rotated files to keep
  MaxBackups = 3

# Common configuration
[Common]
  # RollupConfigPath is the JSON or TOML description of the chain, --rollup-cfg overrides it
  RollupConfigPath = "{{RollupConfigPath}}"
  # DataDir is where the node keeps its local files
  DataDir = "{{PathRWData}}"

# L1 chain watcher configuration
[L1]
  # URL is the URL of the L1 RPC node, usually an Ethereum node or and RPC provider
  URL = "{{L1URL}}"
  # PollInterval is the wait between polls once the watcher reached the L1 head
  PollInterval = "4s"
  # RequestsPerSecond caps the calls made to the L1 node
  RequestsPerSecond = {{L1RequestsPerSecond}}
  # BufferSize is the number of L1 blocks fetched ahead of the driver
  BufferSize = 128
  # RetryAfterErrorPeriod is the time to wait before retrying a failed call
  RetryAfterErrorPeriod = "1s"
  # MaxRetryAttemptsAfterError is the number of retries before giving up, -1 retries forever
  MaxRetryAttemptsAfterError = -1

# Execution engine configuration
[Engine]
  # URL is the authenticated engine API endpoint
  URL = "{{L2EngineURL}}"
  # JWTSecret is the hex secret or the path of the file that holds it
  JWTSecret = "{{JWTSecret}}"
  # ForkchoiceTimeout bounds engine_forkchoiceUpdated and engine_newPayload
  ForkchoiceTimeout = "8s"
  # GetPayloadTimeout bounds engine_getPayload
  GetPayloadTimeout = "1s"
  # SyncMode is "cl" to derive every block from L1 or "el" to let the engine sync from its peers first
  SyncMode = "cl"

# Derivation loop configuration
[Driver]
  # TickInterval is the wait of the loop when a step made no progress
  TickInterval = "100ms"
  # EngineReadyInterval is the wait between probes of the engine on startup
  EngineReadyInterval = "1s"
  # UnsafeLookahead is how far ahead of the unsafe head a payload may be queued
  UnsafeLookahead = 1024

# Block producer configuration, only used with the sequencer component
[Sequencer]
  # SealingDuration is how long before the block time the block being built is sealed
  SealingDuration = "50ms"
  # MaxSafeLag pauses sequencing while the unsafe head is this many blocks ahead of the safe head, 0 disables it
  MaxSafeLag = 0

# Unsafe payload feed
[P2P]
  # QueueSize is the number of payloads buffered until the driver drains them
  QueueSize = 256
  # SeenCacheSize is the number of block hashes remembered to drop duplicates
  SeenCacheSize = 1024

# Safe head database
[SafeDB]
  # DBPath is the path of the database, empty disables it
  DBPath = "{{PathRWData}}/safedb.sqlite"

[RPC]
  # Host defines the network adapter that will be used to serve the HTTP requests
  Host = "0.0.0.0"
  # Port defines the port to serve the endpoints via HTTP
  Port = 9545
  # ReadTimeout is the HTTP server read timeout
  # check net/http.server.ReadTimeout and net/http.server.ReadHeaderTimeout
  ReadTimeout = "2s"
  # WriteTimeout is the HTTP server write timeout
  # check net/http.server.WriteTimeout
  WriteTimeout = "2s"
  # MaxRequestsPerIPAndSecond defines how much requests a single IP can
  # send within a single second
  MaxRequestsPerIPAndSecond = 50
`
