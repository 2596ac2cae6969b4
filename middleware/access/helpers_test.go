package access

import "github.com/rs/zerolog"

var zerologNop = zerolog.Nop()
