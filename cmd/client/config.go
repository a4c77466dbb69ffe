package main

import "time"

// Config defines the client-side environment variables.
// A .env file in the working directory is loaded first when present.
type Config struct {
	ServerAddress       string        `env:"FLASHFEED_SERVER_ADDR,default=localhost:50051"`
	Conversation        string        `env:"FLASHFEED_CONVERSATION,default=Messages"`
	Email               string        `env:"FLASHFEED_EMAIL"`
	Password            string        `env:"FLASHFEED_PASSWORD"`
	Register            bool          `env:"FLASHFEED_REGISTER,default=false"`
	SendTimeout         time.Duration `env:"SEND_TIMEOUT,default=5s"`
	ResubscribeInterval time.Duration `env:"RESUBSCRIBE_INTERVAL,default=1s"`
	MaxBodyLength       int           `env:"MAX_BODY_LENGTH,default=4096"`
	BufferSize          int           `env:"BUFFER_SIZE,default=64"`
	Colours             bool          `env:"COLOURS,default=true"`
	LogLevel            string        `env:"LOG_LEVEL,default=WARN"`
}
