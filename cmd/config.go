package main

import "time"

type Config struct {
	BufferSize            int           `env:"BUFFER_SIZE,required=true"`
	SocketBufferSize      int           `env:"SOCKET_BUFFER_SIZE,required=true"`
	SinkTimeout           time.Duration `env:"SINK_TIMEOUT,required=true"`
	RestartInterval       time.Duration `env:"RESTART_INTERVAL,required=true"`
	PresenceSweepInterval time.Duration `env:"PRESENCE_SWEEP_INTERVAL,required=true"`
	PresenceTTL           time.Duration `env:"PRESENCE_TTL,required=true"`
	MetricInterval        time.Duration `env:"METRIC_INTERVAL,required=true"`
	AuthTokenDuration     time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`
	JWTSecret             string        `env:"JWT_SECRET,required=true"`
	BadgerFilepath        string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel              string        `env:"LOG_LEVEL,required=true"`
	Host                  string        `env:"HOST,default=localhost"`
	Port                  int           `env:"PORT,default=8080"`
}
