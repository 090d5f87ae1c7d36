package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host string `env:"HOST,default=0.0.0.0"`
	Port int    `env:"PORT,default=8080"`

	LogLevel string `env:"LOG_LEVEL,default=INFO"`
	LogFile  string `env:"LOG_FILE"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`

	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`

	HistoryLimit     *int `env:"HISTORY_LIMIT"`
	MaxContentLength int  `env:"MAX_CONTENT_LENGTH,default=4000"`
	MaxImageBytes    int  `env:"MAX_IMAGE_BYTES,default=1048576"`

	CharReplacement string `env:"CHARACTER_REPLACEMENT,default=*"`
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
